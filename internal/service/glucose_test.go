package service_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msomdec/diabot/internal/domain"
	"github.com/msomdec/diabot/internal/service"
)

func TestInterpretGlucose(t *testing.T) {
	tests := []struct {
		typ  domain.MeasurementType
		v    float64
		want service.Band
	}{
		{domain.MeasurementFasting, 3.2, service.BandLow},
		{domain.MeasurementFasting, 3.9, service.BandNormal},
		{domain.MeasurementFasting, 5.5, service.BandNormal},
		{domain.MeasurementFasting, 5.6, service.BandElevated},
		{domain.MeasurementBeforeMeal, 6.9, service.BandElevated},
		{domain.MeasurementBeforeMeal, 7.0, service.BandHigh},
		{domain.MeasurementAfterMeal, 3.8, service.BandLow},
		{domain.MeasurementAfterMeal, 7.8, service.BandNormal},
		{domain.MeasurementAfterMeal, 9.0, service.BandElevated},
		{domain.MeasurementBedtime, 11.0, service.BandElevated},
		{domain.MeasurementBedtime, 11.1, service.BandHigh},
	}
	for _, tt := range tests {
		got := service.InterpretGlucose(tt.typ, tt.v)
		assert.Equal(t, tt.want, got, "%s %.1f", tt.typ, tt.v)
	}
}

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"5.6", 5.6, true},
		{"5,6", 5.6, true},
		{"  12 ", 12, true},
		{"150", 150, true},
		{"", 0, false},
		{"abc", 0, false},
		{"5.6 mmol", 0, false},
		{"1,2,3", 0, false},
		{"Inf", 0, false},
		{"NaN", 0, false},
	}
	for _, tt := range tests {
		got, ok := service.ParseDecimal(tt.in)
		assert.Equal(t, tt.ok, ok, "input %q", tt.in)
		if tt.ok {
			assert.InDelta(t, tt.want, got, 1e-9, "input %q", tt.in)
		}
	}
}

func TestWeeklyAverages(t *testing.T) {
	entries := []domain.Measurement{
		{Type: domain.MeasurementFasting, Value: 9.9, At: testNow.Add(-8 * 24 * time.Hour)},
		{Type: domain.MeasurementFasting, Value: 5.0, At: testNow.Add(-2 * 24 * time.Hour)},
		{Type: domain.MeasurementFasting, Value: 6.0, At: testNow.Add(-time.Hour)},
		{Type: domain.MeasurementBedtime, Value: 7.5, At: testNow.Add(-3 * time.Hour)},
	}

	got := service.WeeklyAverages(entries, testNow)

	require.Len(t, got, 2)
	assert.Equal(t, domain.MeasurementFasting, got[0].Type)
	assert.InDelta(t, 5.5, got[0].Mean, 1e-9)
	assert.Equal(t, 2, got[0].Count)
	assert.Equal(t, domain.MeasurementBedtime, got[1].Type)
	assert.Equal(t, 1, got[1].Count)

	assert.Empty(t, service.WeeklyAverages(nil, testNow))
}

func TestGlucoseModule_HistoryAndStats(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for i, v := range []float64{5.1, 6.3, 4.8} {
		require.NoError(t, h.journal.AppendMeasurement(ctx, 1, domain.Measurement{
			EventID: int64(i + 1),
			Type:    domain.MeasurementFasting,
			Value:   v,
			At:      testNow.Add(-time.Duration(3-i) * time.Hour),
		}))
	}
	h.seed(sessionAt(1, domain.PhaseGlucoseMain, nil))

	out := h.tap(1, 10, "glu:history")
	lines := strings.Split(out.Reply.Text, "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, h.tr("glucose.history.title"), lines[0])
	// Newest first.
	assert.Contains(t, lines[1], h.num(4.8, 1))
	assert.Contains(t, lines[3], h.num(5.1, 1))

	out = h.tap(1, 11, "glu:stats")
	assert.Equal(t, h.tr("glucose.stats.title")+"\n"+h.tr("glucose.stats.line", h.tr("glucose.type.fasting"), h.num(5.4, 1), 3), out.Reply.Text)
	assert.Equal(t, domain.PhaseGlucoseMain, out.Session.Phase)
}

func TestGlucoseModule_TextInMenuPhases(t *testing.T) {
	h := newHarness(t)
	h.seed(sessionAt(1, domain.PhaseGlucoseTypeChoice, nil))

	out := h.text(1, 1, "5.6")

	assert.Equal(t, domain.PhaseGlucoseTypeChoice, out.Session.Phase)
	assert.Equal(t, h.tr("glucose.use_buttons"), out.Reply.Text)
	assert.Len(t, out.Reply.Inline, 3) // two rows of types plus back
}

func TestGlucoseModule_LostScratchRestartsTypeChoice(t *testing.T) {
	h := newHarness(t)
	h.seed(sessionAt(1, domain.PhaseAwaitingGlucoseValue, nil))

	out := h.text(1, 1, "5.6")

	assert.Equal(t, domain.PhaseGlucoseTypeChoice, out.Session.Phase)
	assert.Equal(t, h.tr("glucose.choose_type"), out.Reply.Text)
	assert.Empty(t, h.measurements(1))
}
