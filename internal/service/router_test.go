package service_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/msomdec/diabot/internal/domain"
	"github.com/msomdec/diabot/internal/locale"
	"github.com/msomdec/diabot/internal/service"
)

func TestRouter_StartAndChooseLanguage(t *testing.T) {
	h := newHarness(t)

	out := h.command(1, 1, service.CommandStart)
	assert.Equal(t, domain.PhaseLanguageChoice, out.Session.Phase)
	assert.True(t, out.Persisted)
	assert.Equal(t, h.tr("start.choose_language"), out.Reply.Text)
	require.Len(t, out.Reply.Keyboard, 1)
	assert.Contains(t, out.Reply.Keyboard[0], "🇷🇺 Русский")

	out = h.text(1, 2, "🇷🇺 Русский")
	assert.Equal(t, domain.PhaseTopMenu, out.Session.Phase)
	assert.Equal(t, domain.LanguageRussian, out.Session.Language)

	stored := h.load(1)
	assert.Equal(t, domain.PhaseTopMenu, stored.Phase)
	assert.Equal(t, domain.LanguageRussian, stored.Language)
	assert.Equal(t, int64(2), stored.LastUpdateID)
}

func TestRouter_ChooseKazakh(t *testing.T) {
	h := newHarness(t)

	h.command(1, 1, service.CommandStart)
	out := h.text(1, 2, "🇰🇿 Қазақша")

	assert.Equal(t, domain.LanguageKazakh, out.Session.Language)
	assert.Equal(t, h.catalog.T(domain.LanguageKazakh, "top.greeting"), out.Reply.Text)
	assert.Equal(t, h.catalog.T(domain.LanguageKazakh, "menu.glucose"), out.Reply.Keyboard[0][0])
}

func TestRouter_LanguageChoiceRejectsOtherText(t *testing.T) {
	h := newHarness(t)
	h.seed(sessionAt(1, domain.PhaseLanguageChoice, nil))

	out := h.text(1, 1, "English please")

	assert.Equal(t, domain.PhaseLanguageChoice, out.Session.Phase)
	assert.False(t, out.Persisted)
	assert.Equal(t, h.tr("language.unknown"), out.Reply.Text)
	assert.Zero(t, h.records.puts.Load())
}

func TestRouter_LanguageButton(t *testing.T) {
	h := newHarness(t)
	h.seed(sessionAt(1, domain.PhaseLanguageChoice, nil))

	out := h.tap(1, 1, "lang:kk")

	assert.Equal(t, domain.LanguageKazakh, out.Session.Language)
	assert.Equal(t, domain.PhaseTopMenu, out.Session.Phase)
}

func TestRouter_GlucoseMeasurementFlow(t *testing.T) {
	h := newHarness(t)

	out := h.text(1, 1, h.tr("menu.glucose"))
	assert.Equal(t, domain.PhaseGlucoseMain, out.Session.Phase)
	assert.Equal(t, h.tr("glucose.main"), out.Reply.Text)

	out = h.tap(1, 2, "glu:add")
	assert.Equal(t, domain.PhaseGlucoseTypeChoice, out.Session.Phase)

	out = h.tap(1, 3, "glu:type:fasting")
	assert.Equal(t, domain.PhaseAwaitingGlucoseValue, out.Session.Phase)
	assert.Equal(t, map[string]string{"type": "fasting"}, out.Session.Scratch)

	out = h.text(1, 4, "5.6")
	assert.Equal(t, domain.PhaseGlucoseMain, out.Session.Phase)
	assert.Empty(t, out.Session.Scratch)
	assert.Contains(t, out.Reply.Text, h.tr("glucose.band.elevated"))

	ms := h.measurements(1)
	require.Len(t, ms, 1)
	assert.Equal(t, domain.MeasurementFasting, ms[0].Type)
	assert.InDelta(t, 5.6, ms[0].Value, 1e-9)
	assert.Equal(t, int64(4), ms[0].EventID)
	assert.Equal(t, testNow, ms[0].At)

	stored := h.load(1)
	assert.Equal(t, domain.PhaseGlucoseMain, stored.Phase)
	assert.Empty(t, stored.Scratch)
}

func TestRouter_InvalidValueIsNoOp(t *testing.T) {
	h := newHarness(t)
	h.seed(sessionAt(1, domain.PhaseAwaitingGlucoseValue, map[string]string{"type": "fasting"}))

	for i, input := range []string{"abc", "", "5.6.1", "NaN"} {
		out := h.text(1, int64(i+1), input)
		assert.Equal(t, domain.PhaseAwaitingGlucoseValue, out.Session.Phase)
		assert.Equal(t, map[string]string{"type": "fasting"}, out.Session.Scratch)
		assert.False(t, out.Persisted)
		assert.Equal(t, h.tr("glucose.invalid_value"), out.Reply.Text)
	}

	assert.Empty(t, h.measurements(1))
	assert.Zero(t, h.records.puts.Load())
}

func TestRouter_OutOfRangeValue(t *testing.T) {
	h := newHarness(t)
	h.seed(sessionAt(1, domain.PhaseAwaitingGlucoseValue, map[string]string{"type": "bedtime"}))

	out := h.text(1, 1, "40")
	assert.Equal(t, domain.PhaseAwaitingGlucoseValue, out.Session.Phase)
	assert.Equal(t, h.tr("glucose.out_of_range", h.num(1, 1), h.num(35, 1)), out.Reply.Text)

	out = h.text(1, 2, "6,2")
	assert.Equal(t, domain.PhaseGlucoseMain, out.Session.Phase)
	require.Len(t, h.measurements(1), 1)
}

func TestRouter_BackClearsScratchFromAnyModule(t *testing.T) {
	cases := []struct {
		phase   domain.Phase
		scratch map[string]string
	}{
		{domain.PhaseGlucoseMain, nil},
		{domain.PhaseAwaitingGlucoseValue, map[string]string{"type": "after_meal"}},
		{domain.PhaseBreadUnitsMain, map[string]string{"stale": "x"}},
		{domain.PhaseAwaitingGramCount, map[string]string{"category": "fruits", "item": "apple"}},
		{domain.PhaseLessonsMain, nil},
		{domain.PhaseAwaitingLessonNav, map[string]string{"lesson": "basics", "page": "1"}},
		{domain.PhaseSettings, nil},
	}
	for _, tc := range cases {
		t.Run(string(tc.phase), func(t *testing.T) {
			h := newHarness(t)
			h.seed(sessionAt(1, tc.phase, tc.scratch))

			out := h.tap(1, 1, "nav:back")

			assert.Equal(t, domain.PhaseTopMenu, out.Session.Phase)
			assert.Empty(t, out.Session.Scratch)
			assert.Equal(t, h.tr("top.greeting"), out.Reply.Text)
			assert.Empty(t, h.load(1).Scratch)
		})
	}
}

func TestRouter_BackLabelAsText(t *testing.T) {
	h := newHarness(t)
	h.seed(sessionAt(1, domain.PhaseFoodItemChoice, map[string]string{"category": "fruits"}))

	out := h.text(1, 1, h.tr("button.back"))

	assert.Equal(t, domain.PhaseTopMenu, out.Session.Phase)
	assert.Empty(t, out.Session.Scratch)
}

func TestRouter_MenuCommandFromAnywhere(t *testing.T) {
	h := newHarness(t)
	h.seed(sessionAt(1, domain.PhaseAwaitingGramCount, map[string]string{"item": "apple"}))

	out := h.command(1, 1, service.CommandMenu)

	assert.Equal(t, domain.PhaseTopMenu, out.Session.Phase)
	assert.Empty(t, out.Session.Scratch)
}

func TestRouter_HelpIsInformational(t *testing.T) {
	h := newHarness(t)
	h.seed(sessionAt(1, domain.PhaseGlucoseMain, nil))

	out := h.command(1, 1, service.CommandHelp)

	assert.Equal(t, h.tr("help.text"), out.Reply.Text)
	assert.False(t, out.Persisted)
	assert.Zero(t, h.records.puts.Load())
}

func TestRouter_UnknownCommand(t *testing.T) {
	h := newHarness(t)

	out := h.command(1, 1, "frobnicate")

	assert.Equal(t, h.tr("error.use_menu"), out.Reply.Text)
	assert.False(t, out.Persisted)
}

func TestRouter_TopMenuUnknownText(t *testing.T) {
	h := newHarness(t)

	out := h.text(1, 1, "hello")

	assert.Equal(t, domain.PhaseTopMenu, out.Session.Phase)
	assert.Equal(t, h.tr("top.unknown"), out.Reply.Text)
	assert.False(t, out.Persisted)
}

func TestRouter_TopMenuLabelSwitchesModule(t *testing.T) {
	h := newHarness(t)
	h.seed(sessionAt(1, domain.PhaseLessonsMain, nil))

	out := h.text(1, 1, h.tr("menu.bread_units"))
	assert.Equal(t, domain.PhaseBreadUnitsMain, out.Session.Phase)

	// Awaiting typed input, the label is just text for the module.
	h.seed(sessionAt(2, domain.PhaseAwaitingGlucoseValue, map[string]string{"type": "fasting"}))
	out = h.text(2, 1, h.tr("menu.bread_units"))
	assert.Equal(t, domain.PhaseAwaitingGlucoseValue, out.Session.Phase)
	assert.Equal(t, h.tr("glucose.invalid_value"), out.Reply.Text)
}

func TestRouter_StaleButtonIsUnhandled(t *testing.T) {
	h := newHarness(t)
	h.seed(sessionAt(1, domain.PhaseGlucoseMain, nil))

	out := h.tap(1, 1, "bu:add")

	assert.Equal(t, domain.PhaseGlucoseMain, out.Session.Phase)
	assert.Equal(t, h.tr("error.use_menu"), out.Reply.Text)
	assert.False(t, out.Persisted)
	assert.Equal(t, []string{"cb-bu:add"}, h.messenger.acks)
}

func TestRouter_AcknowledgeUndecodedTap(t *testing.T) {
	h := newHarness(t)

	h.router.Acknowledge(context.Background(), "cbq-unknown")
	h.router.Acknowledge(context.Background(), "")

	assert.Equal(t, []string{"cbq-unknown"}, h.messenger.acks)
	assert.Zero(t, h.messenger.count())
	assert.Zero(t, h.records.puts.Load())
}

func TestRouter_DuplicateUpdateSkipped(t *testing.T) {
	h := newHarness(t)
	h.seed(sessionAt(1, domain.PhaseAwaitingGlucoseValue, map[string]string{"type": "fasting"}))

	first := h.text(1, 10, "5.6")
	require.True(t, first.Persisted)

	// Redelivery of the same update.
	again := h.text(1, 10, "5.6")
	assert.True(t, again.Duplicate)
	assert.Nil(t, again.Reply)
	assert.Len(t, h.measurements(1), 1)
	assert.Equal(t, int64(1), h.records.puts.Load())
	assert.Equal(t, 1, h.messenger.count())
}

func TestRouter_OutOfOrderUpdateIsDispatched(t *testing.T) {
	h := newHarness(t)
	h.seed(sessionAt(1, domain.PhaseGlucoseMain, nil))

	first := h.tap(1, 11, "glu:add")
	require.True(t, first.Persisted)
	require.Equal(t, domain.PhaseGlucoseTypeChoice, first.Session.Phase)

	// A different event with a lower id, delivered late.
	late := h.command(1, 10, service.CommandHelp)
	assert.False(t, late.Duplicate)
	require.NotNil(t, late.Reply)
	assert.Equal(t, h.tr("help.text"), late.Reply.Text)
	assert.Equal(t, 2, h.messenger.count())

	back := h.tap(1, 9, "nav:back")
	assert.False(t, back.Duplicate)
	assert.Equal(t, domain.PhaseTopMenu, back.Session.Phase)

	stored := h.load(1)
	assert.Equal(t, []int64{11, 9}, stored.RecentUpdates)
	assert.Equal(t, int64(11), stored.LastUpdateID)

	again := h.tap(1, 11, "glu:add")
	assert.True(t, again.Duplicate)
	assert.Equal(t, domain.PhaseTopMenu, h.load(1).Phase)
}

func TestRouter_RetryAfterLostSaveDoesNotDuplicateLog(t *testing.T) {
	h := newHarness(t)
	h.seed(sessionAt(1, domain.PhaseAwaitingGlucoseValue, map[string]string{"type": "fasting"}))

	// The entry reached the log but the session save did not.
	require.NoError(t, h.journal.AppendMeasurement(context.Background(), 1, domain.Measurement{
		EventID: 7, Type: domain.MeasurementFasting, Value: 5.6, At: testNow,
	}))

	out := h.text(1, 7, "5.6")
	assert.True(t, out.Persisted)
	assert.Equal(t, domain.PhaseGlucoseMain, out.Session.Phase)
	assert.Len(t, h.measurements(1), 1)
}

func TestRouter_UnroutablePhase(t *testing.T) {
	h := newHarness(t)
	h.seed(sessionAt(1, domain.Phase("retired_phase"), nil))

	out := h.text(1, 1, "hello")

	assert.Nil(t, out.Reply)
	assert.False(t, out.Persisted)
	assert.Zero(t, h.messenger.count())
	assert.Zero(t, h.records.puts.Load())

	// Global commands still recover the user.
	out = h.command(1, 2, service.CommandMenu)
	assert.Equal(t, domain.PhaseTopMenu, out.Session.Phase)
}

// misrouted registers the lessons handlers under the glucose module id.
type misrouted struct{ service.LessonsModule }

func (misrouted) ID() domain.Module { return domain.ModuleGlucose }

func TestRouter_PhaseMismatch(t *testing.T) {
	h := newHarness(t, misrouted{}, service.LessonsModule{})
	h.seed(sessionAt(1, domain.PhaseAwaitingGlucoseValue, map[string]string{"type": "fasting"}))

	out := h.text(1, 1, "5.6")

	assert.Equal(t, domain.PhaseAwaitingGlucoseValue, out.Session.Phase)
	assert.Equal(t, map[string]string{"type": "fasting"}, out.Session.Scratch)
	assert.Equal(t, h.tr("error.use_menu"), out.Reply.Text)
	assert.False(t, out.Persisted)
	assert.Empty(t, h.measurements(1))
}

func TestRouter_LoadFailure(t *testing.T) {
	h := newHarness(t)
	h.records.getErr = errStorageDown

	_, err := h.router.Handle(context.Background(), domain.Inbound{UserID: 1, Event: domain.Text{Body: "hi"}})

	assert.ErrorIs(t, err, errStorageDown)
	assert.Equal(t, h.tr("error.try_again"), h.messenger.last().Text)
}

func TestRouter_SendFailureKeepsTransition(t *testing.T) {
	h := newHarness(t)
	h.messenger.sendErr = fmt.Errorf("telegram unavailable")

	out := h.text(1, 1, h.tr("menu.lessons"))

	assert.True(t, out.Persisted)
	assert.Equal(t, domain.PhaseLessonsMain, h.load(1).Phase)
}

func TestRouter_ReadOnlyActionDoesNotWrite(t *testing.T) {
	h := newHarness(t)
	h.seed(sessionAt(1, domain.PhaseGlucoseMain, nil))

	out := h.tap(1, 1, "glu:history")

	assert.Equal(t, h.tr("glucose.history.empty"), out.Reply.Text)
	assert.False(t, out.Persisted)
	assert.Zero(t, h.records.puts.Load())
}

func TestRouter_CorruptRecordStartsOver(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Records().Put(context.Background(), 1, []byte("garbage, not ciphertext")))

	out := h.text(1, 1, h.tr("menu.settings"))

	assert.Equal(t, domain.PhaseSettings, out.Session.Phase)
	assert.Equal(t, h.tr("settings.main", h.tr("language.name")), out.Reply.Text)
}

func TestRouter_ConcurrentUsersDoNotLeak(t *testing.T) {
	h := newHarness(t)

	glucose := func(user int64) error {
		steps := []domain.Inbound{
			{Event: domain.Text{Body: h.tr("menu.glucose")}},
			{Event: domain.GlucoseAction{Action: domain.ActionAdd}},
			{Event: domain.MeasurementTypeSelect{Type: domain.MeasurementAfterMeal}},
		}
		return drive(h, user, steps)
	}
	lessons := func(user int64) error {
		steps := []domain.Inbound{
			{Event: domain.Text{Body: h.tr("menu.lessons")}},
			{Event: domain.LessonSelect{LessonID: "basics"}},
			{Event: domain.LessonNav{Action: domain.NavNext}},
		}
		return drive(h, user, steps)
	}

	g := new(errgroup.Group)
	for user := int64(1); user <= 20; user++ {
		if user%2 == 0 {
			g.Go(func() error { return glucose(user) })
		} else {
			g.Go(func() error { return lessons(user) })
		}
	}
	require.NoError(t, g.Wait())

	for user := int64(1); user <= 20; user++ {
		s := h.load(user)
		if user%2 == 0 {
			assert.Equal(t, domain.PhaseAwaitingGlucoseValue, s.Phase, "user %d", user)
			assert.Equal(t, map[string]string{"type": "after_meal"}, s.Scratch, "user %d", user)
		} else {
			assert.Equal(t, domain.PhaseAwaitingLessonNav, s.Phase, "user %d", user)
			assert.Equal(t, map[string]string{"lesson": "basics", "page": "1"}, s.Scratch, "user %d", user)
		}
	}
}

func drive(h *harness, user int64, steps []domain.Inbound) error {
	for i, in := range steps {
		in.UserID = user
		in.ChatID = user
		in.UpdateID = int64(i + 1)
		if _, err := h.router.Handle(context.Background(), in); err != nil {
			return err
		}
	}
	return nil
}

func TestRouter_SingleWriterPerUser(t *testing.T) {
	h := newHarness(t)
	h.seed(sessionAt(1, domain.PhaseGlucoseMain, nil))

	const n = 25
	outcomes := make([]*service.Outcome, n)
	g := new(errgroup.Group)
	for i := range n {
		g.Go(func() error {
			out, err := h.router.Handle(context.Background(), domain.Inbound{
				UserID: 1,
				Event:  domain.GlucoseAction{Action: domain.ActionAdd},
			})
			outcomes[i] = out
			return err
		})
	}
	require.NoError(t, g.Wait())

	accepted := 0
	for _, out := range outcomes {
		if out.Persisted {
			accepted++
		}
	}
	assert.Equal(t, 1, accepted)
	assert.Equal(t, int64(1), h.records.puts.Load())
	assert.Equal(t, domain.PhaseGlucoseTypeChoice, h.load(1).Phase)
}

func TestRouter_LanguageChangeFromSettings(t *testing.T) {
	h := newHarness(t)
	h.seed(sessionAt(1, domain.PhaseSettings, nil))

	out := h.tap(1, 1, "set:lang")
	assert.Equal(t, domain.PhaseLanguageChoice, out.Session.Phase)

	out = h.text(1, 2, locale.LanguageLabel(domain.LanguageKazakh))
	assert.Equal(t, domain.LanguageKazakh, out.Session.Language)
	assert.Equal(t, domain.PhaseTopMenu, out.Session.Phase)

	out = h.text(1, 3, h.catalog.T(domain.LanguageKazakh, "menu.settings"))
	assert.Equal(t, h.catalog.T(domain.LanguageKazakh, "settings.main", "Қазақша"), out.Reply.Text)
}
