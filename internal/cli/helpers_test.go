package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/msomdec/diabot/internal/config"
	"github.com/msomdec/diabot/internal/telegram"
)

const (
	testSecret = "cli_test_secret-0123"
	testKey    = "cli-test-key-material-0123456789abcdef"
)

func testConfig(t *testing.T, extra map[string]string) *config.Config {
	t.Helper()
	env := map[string]string{
		"BOT_TOKEN":      "123:ABC",
		"WEBHOOK_SECRET": testSecret,
		"ENCRYPTION_KEY": testKey,
		"DATA_DIR":       t.TempDir(),
	}
	for k, v := range extra {
		env[k] = v
	}
	cfg, err := config.FromEnv(func(k string) string { return env[k] })
	require.NoError(t, err)
	return cfg
}

type botCall struct {
	method string
	form   map[string]string
}

// fakeBotAPI answers the Bot API methods the CLI uses.
type fakeBotAPI struct {
	mu         sync.Mutex
	calls      []botCall
	webhookURL string
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	r.ParseForm()
	form := map[string]string{}
	for k, v := range r.PostForm {
		form[k] = v[0]
	}

	f.mu.Lock()
	f.calls = append(f.calls, botCall{method: method, form: form})
	url := f.webhookURL
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch method {
	case "getMe":
		io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Diabot","username":"diabot_test"}}`)
	case "getWebhookInfo":
		io.WriteString(w, `{"ok":true,"result":{"url":"`+url+`","has_custom_certificate":false,"pending_update_count":4}}`)
	default:
		io.WriteString(w, `{"ok":true,"result":true}`)
	}
}

func (f *fakeBotAPI) find(method string) (botCall, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c.method == method {
			return c, true
		}
	}
	return botCall{}, false
}

// runCLI executes the root command with cfg and a fake Bot API and returns
// stdout.
func runCLI(t *testing.T, cfg *config.Config, api *fakeBotAPI, args ...string) (string, error) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	if api == nil {
		api = &fakeBotAPI{}
	}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	opts := &RootOptions{
		loadConfig: func() (*config.Config, error) { return cfg, nil },
		newClient: func(token string) (*telegram.Client, error) {
			return telegram.NewWithEndpoint(token, srv.URL+"/bot%s/%s", srv.Client())
		},
	}
	cmd := newRootCommand(opts)

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}
