package service

import (
	"context"
	"fmt"

	"github.com/msomdec/diabot/internal/domain"
)

// SettingsModule shows and changes user preferences.
type SettingsModule struct{}

func (SettingsModule) ID() domain.Module { return domain.ModuleSettings }

func (SettingsModule) ShowMain(t *Turn) *domain.Reply {
	return settingsMenu(t, t.T("settings.main", t.T("language.name")))
}

func settingsMenu(t *Turn, text string) *domain.Reply {
	return &domain.Reply{
		Text: text,
		Inline: [][]domain.Button{
			{{Label: t.T("settings.button.language"), Token: domain.SettingsAction{Action: domain.SettingsLanguage}.Token()}},
			t.BackRow(),
		},
	}
}

func (m SettingsModule) HandleCallback(_ context.Context, t *Turn, cb domain.Callback) (*domain.Reply, error) {
	if t.Session.Phase != domain.PhaseSettings {
		return nil, fmt.Errorf("%w: %s cannot handle %q", domain.ErrPhaseMismatch, m.ID(), t.Session.Phase)
	}

	switch e := cb.(type) {
	case domain.Back:
		return t.ToTopMenu(), nil
	case domain.SettingsAction:
		if e.Action == domain.SettingsLanguage {
			t.Session.SetPhase(domain.PhaseLanguageChoice)
			return t.LanguageMenu("start.choose_language"), nil
		}
	}
	return nil, fmt.Errorf("%w: %s in %q", domain.ErrUnhandledEvent, cb.Token(), t.Session.Phase)
}

func (m SettingsModule) HandleText(_ context.Context, t *Turn, text string) (*domain.Reply, error) {
	if t.Session.Phase != domain.PhaseSettings {
		return nil, fmt.Errorf("%w: %s cannot handle %q", domain.ErrPhaseMismatch, m.ID(), t.Session.Phase)
	}
	if t.IsBackLabel(text) {
		return t.ToTopMenu(), nil
	}
	return settingsMenu(t, t.T("settings.use_buttons")), nil
}
