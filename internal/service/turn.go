package service

import (
	"context"
	"time"

	"github.com/msomdec/diabot/internal/content"
	"github.com/msomdec/diabot/internal/domain"
	"github.com/msomdec/diabot/internal/locale"
)

// Module is a feature area owning a group of phases. Handlers mutate the
// turn's session in place and return the reply. They return
// domain.ErrUnhandledEvent for events their current phase does not accept
// and domain.ErrPhaseMismatch when asked to handle a phase they do not own.
type Module interface {
	ID() domain.Module
	ShowMain(t *Turn) *domain.Reply
	HandleText(ctx context.Context, t *Turn, text string) (*domain.Reply, error)
	HandleCallback(ctx context.Context, t *Turn, cb domain.Callback) (*domain.Reply, error)
}

// Turn is the handling context of one event for one user. It owns the
// loaded session exclusively until the router commits it.
type Turn struct {
	Session *domain.Session
	EventID int64
	Now     time.Time

	catalog *locale.Catalog
	library *content.Library
	journal *Journal
	pending []pendingEntry
}

type pendingEntry struct {
	measurement *domain.Measurement
	food        *domain.FoodEntry
}

// Lang is the session language.
func (t *Turn) Lang() domain.Language { return t.Session.Language }

// T localizes key in the session language.
func (t *Turn) T(key string, args ...any) string {
	return t.catalog.T(t.Session.Language, key, args...)
}

// Num formats a number for the session language.
func (t *Turn) Num(v float64, decimals int) string {
	return t.catalog.Number(t.Session.Language, v, decimals)
}

// Library returns the static content.
func (t *Turn) Library() *content.Library { return t.library }

// Journal returns the log stream reader.
func (t *Turn) Journal() *Journal { return t.journal }

// RecordMeasurement queues a reading. It is written by the router before the
// session, and only if the turn succeeds.
func (t *Turn) RecordMeasurement(m domain.Measurement) {
	m.EventID = t.EventID
	t.pending = append(t.pending, pendingEntry{measurement: &m})
}

// RecordFood queues a food entry like RecordMeasurement.
func (t *Turn) RecordFood(f domain.FoodEntry) {
	f.EventID = t.EventID
	t.pending = append(t.pending, pendingEntry{food: &f})
}

func (t *Turn) discard() { t.pending = nil }

// IsBackLabel reports whether text is the localized back button label.
func (t *Turn) IsBackLabel(text string) bool {
	_, ok := t.catalog.MatchLabel(t.Session.Language, text, "button.back")
	return ok
}

// BackRow is the inline row returning to the top menu.
func (t *Turn) BackRow() []domain.Button {
	return []domain.Button{{Label: t.T("button.back"), Token: domain.Back{}.Token()}}
}

// ToTopMenu moves the user to the top menu, dropping any scratch.
func (t *Turn) ToTopMenu() *domain.Reply {
	t.Session.SetPhase(domain.PhaseTopMenu)
	t.Session.ClearScratch()
	return t.TopMenu()
}

var topMenuKeys = [][]string{
	{"menu.glucose", "menu.bread_units"},
	{"menu.lessons", "menu.settings"},
}

var topMenuTargets = map[string]domain.Module{
	"menu.glucose":     domain.ModuleGlucose,
	"menu.bread_units": domain.ModuleBreadUnits,
	"menu.lessons":     domain.ModuleLessons,
	"menu.settings":    domain.ModuleSettings,
}

// TopMenu renders the top menu keyboard.
func (t *Turn) TopMenu() *domain.Reply {
	kb := make([][]string, 0, len(topMenuKeys))
	for _, row := range topMenuKeys {
		labels := make([]string, 0, len(row))
		for _, key := range row {
			labels = append(labels, t.T(key))
		}
		kb = append(kb, labels)
	}
	return &domain.Reply{Text: t.T("top.greeting"), Keyboard: kb}
}

// matchTopMenu resolves a top menu label to its module.
func (t *Turn) matchTopMenu(text string) (domain.Module, bool) {
	keys := make([]string, 0, len(topMenuTargets))
	for _, row := range topMenuKeys {
		keys = append(keys, row...)
	}
	key, ok := t.catalog.MatchLabel(t.Session.Language, text, keys...)
	if !ok {
		return "", false
	}
	return topMenuTargets[key], true
}

// LanguageMenu renders the language choice keyboard.
func (t *Turn) LanguageMenu(textKey string) *domain.Reply {
	labels := make([]string, 0, len(domain.Languages))
	for _, l := range domain.Languages {
		labels = append(labels, locale.LanguageLabel(l))
	}
	return &domain.Reply{Text: t.T(textKey), Keyboard: [][]string{labels}}
}
