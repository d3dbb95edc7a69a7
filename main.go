package main

import (
	"os"

	"github.com/msomdec/diabot/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
