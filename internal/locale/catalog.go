// Package locale resolves (language, message key) pairs to user-facing text.
package locale

import (
	_ "embed"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/msomdec/diabot/internal/domain"
)

//go:embed messages.yaml
var messagesYAML []byte

// Catalog is immutable after construction and safe for concurrent use.
type Catalog struct {
	messages map[string]map[domain.Language]string
	printers map[domain.Language]*message.Printer
}

// Load parses the embedded message catalog.
func Load() (*Catalog, error) {
	return Parse(messagesYAML)
}

// Parse builds a catalog from YAML and checks that every key is translated
// into every supported language.
func Parse(data []byte) (*Catalog, error) {
	var raw map[string]map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse messages: %w", err)
	}

	c := &Catalog{
		messages: make(map[string]map[domain.Language]string, len(raw)),
		printers: make(map[domain.Language]*message.Printer, len(domain.Languages)),
	}

	var missing []string
	for key, byLang := range raw {
		texts := make(map[domain.Language]string, len(byLang))
		for code, text := range byLang {
			lang := domain.Language(code)
			if !lang.Valid() {
				return nil, fmt.Errorf("%w: message %q has unsupported language %q", domain.ErrInvalidInput, key, code)
			}
			texts[lang] = text
		}
		for _, lang := range domain.Languages {
			if texts[lang] == "" {
				missing = append(missing, key+"/"+string(lang))
			}
		}
		c.messages[key] = texts
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("%w: untranslated messages: %s", domain.ErrInvalidInput, strings.Join(missing, ", "))
	}

	for _, lang := range domain.Languages {
		c.printers[lang] = message.NewPrinter(Tag(lang))
	}
	return c, nil
}

// Tag maps a session language onto a BCP 47 tag.
func Tag(l domain.Language) language.Tag {
	switch l {
	case domain.LanguageKazakh:
		return language.Kazakh
	default:
		return language.Russian
	}
}

// T returns the message for key in lang, formatted with args. An unknown key
// is logged and returned as is so a missing translation never breaks a reply.
func (c *Catalog) T(lang domain.Language, key string, args ...any) string {
	text, ok := c.messages[key][lang]
	if !ok {
		slog.Warn("missing message", "key", key, "language", lang)
		return key
	}
	if len(args) == 0 {
		return text
	}
	return fmt.Sprintf(text, args...)
}

// Has reports whether key exists.
func (c *Catalog) Has(key string) bool {
	_, ok := c.messages[key]
	return ok
}

// Number formats v with the given number of decimals using the language's
// decimal separator.
func (c *Catalog) Number(lang domain.Language, v float64, decimals int) string {
	p, ok := c.printers[lang]
	if !ok {
		p = c.printers[domain.DefaultLanguage]
	}
	return p.Sprintf(fmt.Sprintf("%%.%df", decimals), v)
}

// MatchLabel returns the key among keys whose text in lang equals label.
func (c *Catalog) MatchLabel(lang domain.Language, label string, keys ...string) (string, bool) {
	label = strings.TrimSpace(label)
	for _, key := range keys {
		if c.messages[key][lang] == label {
			return key, true
		}
	}
	return "", false
}

var languageLabels = map[domain.Language]string{
	domain.LanguageRussian: "🇷🇺 Русский",
	domain.LanguageKazakh:  "🇰🇿 Қазақша",
}

// LanguageLabel is the language-neutral label shown on the language keyboard.
func LanguageLabel(l domain.Language) string {
	return languageLabels[l]
}

// MatchLanguageLabel resolves a language keyboard label typed or tapped by the user.
func MatchLanguageLabel(label string) (domain.Language, bool) {
	label = strings.TrimSpace(label)
	for _, l := range domain.Languages {
		if languageLabels[l] == label {
			return l, true
		}
	}
	return "", false
}
