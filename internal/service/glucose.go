package service

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/msomdec/diabot/internal/domain"
)

// Accepted glucose readings, mmol/L.
const (
	MinGlucose = 1.0
	MaxGlucose = 35.0
)

const (
	glucoseHistorySize = 10
	glucoseStatsWindow = 7 * 24 * time.Hour
	glucoseStatsScan   = 500
	scratchType        = "type"
)

// Band is the interpretation of a glucose reading.
type Band string

const (
	BandLow      Band = "low"
	BandNormal   Band = "normal"
	BandElevated Band = "elevated"
	BandHigh     Band = "high"
)

// InterpretGlucose classifies a reading. Targets depend on whether the
// reading was taken before or after food.
func InterpretGlucose(t domain.MeasurementType, v float64) Band {
	if v < 3.9 {
		return BandLow
	}
	switch t {
	case domain.MeasurementFasting, domain.MeasurementBeforeMeal:
		switch {
		case v <= 5.5:
			return BandNormal
		case v < 7.0:
			return BandElevated
		}
	default:
		switch {
		case v <= 7.8:
			return BandNormal
		case v <= 11.0:
			return BandElevated
		}
	}
	return BandHigh
}

// ParseDecimal reads a user-typed number, accepting a comma as the
// decimal separator.
func ParseDecimal(text string) (float64, bool) {
	text = strings.ReplaceAll(strings.TrimSpace(text), ",", ".")
	if text == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// GlucoseModule keeps the glucose diary.
type GlucoseModule struct{}

func (GlucoseModule) ID() domain.Module { return domain.ModuleGlucose }

func (GlucoseModule) ShowMain(t *Turn) *domain.Reply {
	return glucoseMenu(t, t.T("glucose.main"))
}

func glucoseMenu(t *Turn, text string) *domain.Reply {
	return &domain.Reply{
		Text: text,
		Inline: [][]domain.Button{
			{{Label: t.T("glucose.button.add"), Token: domain.GlucoseAction{Action: domain.ActionAdd}.Token()}},
			{
				{Label: t.T("glucose.button.history"), Token: domain.GlucoseAction{Action: domain.ActionHistory}.Token()},
				{Label: t.T("glucose.button.stats"), Token: domain.GlucoseAction{Action: domain.ActionStats}.Token()},
			},
			t.BackRow(),
		},
	}
}

func typeName(t *Turn, mt domain.MeasurementType) string {
	return t.T("glucose.type." + string(mt))
}

func (m GlucoseModule) HandleCallback(ctx context.Context, t *Turn, cb domain.Callback) (*domain.Reply, error) {
	if _, ok := cb.(domain.Back); ok {
		return t.ToTopMenu(), nil
	}

	switch t.Session.Phase {
	case domain.PhaseGlucoseMain:
		action, ok := cb.(domain.GlucoseAction)
		if !ok {
			break
		}
		switch action.Action {
		case domain.ActionAdd:
			t.Session.SetPhase(domain.PhaseGlucoseTypeChoice)
			return typeChoice(t), nil
		case domain.ActionHistory:
			return m.history(ctx, t)
		case domain.ActionStats:
			return m.stats(ctx, t)
		}

	case domain.PhaseGlucoseTypeChoice:
		sel, ok := cb.(domain.MeasurementTypeSelect)
		if !ok {
			break
		}
		t.Session.SetPhase(domain.PhaseAwaitingGlucoseValue)
		t.Session.SetScratch(scratchType, string(sel.Type))
		return &domain.Reply{
			Text:   t.T("glucose.enter_value", typeName(t, sel.Type)),
			Inline: [][]domain.Button{t.BackRow()},
		}, nil

	case domain.PhaseAwaitingGlucoseValue:

	default:
		return nil, fmt.Errorf("%w: %s cannot handle %q", domain.ErrPhaseMismatch, m.ID(), t.Session.Phase)
	}
	return nil, fmt.Errorf("%w: %s in %q", domain.ErrUnhandledEvent, cb.Token(), t.Session.Phase)
}

func typeChoice(t *Turn) *domain.Reply {
	rows := make([][]domain.Button, 0, 3)
	var row []domain.Button
	for _, mt := range domain.MeasurementTypes {
		row = append(row, domain.Button{Label: typeName(t, mt), Token: domain.MeasurementTypeSelect{Type: mt}.Token()})
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, t.BackRow())
	return &domain.Reply{Text: t.T("glucose.choose_type"), Inline: rows}
}

func (m GlucoseModule) HandleText(ctx context.Context, t *Turn, text string) (*domain.Reply, error) {
	if t.IsBackLabel(text) {
		return t.ToTopMenu(), nil
	}

	switch t.Session.Phase {
	case domain.PhaseAwaitingGlucoseValue:
		raw, _ := t.Session.ScratchValue(scratchType)
		mt := domain.MeasurementType(raw)
		if !mt.Valid() {
			// Scratch lost; ask for the type again rather than guess it.
			t.Session.SetPhase(domain.PhaseGlucoseTypeChoice)
			t.Session.ClearScratch()
			return typeChoice(t), nil
		}

		v, ok := ParseDecimal(text)
		if !ok {
			return &domain.Reply{Text: t.T("glucose.invalid_value"), Inline: [][]domain.Button{t.BackRow()}}, nil
		}
		if v < MinGlucose || v > MaxGlucose {
			return &domain.Reply{
				Text:   t.T("glucose.out_of_range", t.Num(MinGlucose, 1), t.Num(MaxGlucose, 1)),
				Inline: [][]domain.Button{t.BackRow()},
			}, nil
		}

		t.RecordMeasurement(domain.Measurement{Type: mt, Value: v, At: t.Now.UTC()})
		t.Session.SetPhase(domain.PhaseGlucoseMain)
		t.Session.ClearScratch()

		band := InterpretGlucose(mt, v)
		return glucoseMenu(t, t.T("glucose.saved", typeName(t, mt), t.Num(v, 1), t.T("glucose.band."+string(band)))), nil

	case domain.PhaseGlucoseMain:
		return glucoseMenu(t, t.T("glucose.use_buttons")), nil
	case domain.PhaseGlucoseTypeChoice:
		reply := typeChoice(t)
		reply.Text = t.T("glucose.use_buttons")
		return reply, nil
	}
	return nil, fmt.Errorf("%w: %s cannot handle %q", domain.ErrPhaseMismatch, m.ID(), t.Session.Phase)
}

func (m GlucoseModule) history(ctx context.Context, t *Turn) (*domain.Reply, error) {
	entries, err := t.Journal().Measurements(ctx, t.Session.UserID, glucoseHistorySize)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return glucoseMenu(t, t.T("glucose.history.empty")), nil
	}

	lines := []string{t.T("glucose.history.title")}
	for _, e := range slices.Backward(entries) {
		lines = append(lines, t.T("glucose.history.line", e.At.Format("02.01 15:04"), typeName(t, e.Type), t.Num(e.Value, 1)))
	}
	return glucoseMenu(t, strings.Join(lines, "\n")), nil
}

// GlucoseAverage is the mean of one measurement type over a period.
type GlucoseAverage struct {
	Type  domain.MeasurementType
	Mean  float64
	Count int
}

// WeeklyAverages averages readings taken within the week before now, per type,
// in menu order. Types without readings are omitted.
func WeeklyAverages(entries []domain.Measurement, now time.Time) []GlucoseAverage {
	since := now.Add(-glucoseStatsWindow)
	sums := make(map[domain.MeasurementType]float64)
	counts := make(map[domain.MeasurementType]int)
	for _, e := range entries {
		if e.At.Before(since) || e.At.After(now) {
			continue
		}
		sums[e.Type] += e.Value
		counts[e.Type]++
	}

	var out []GlucoseAverage
	for _, mt := range domain.MeasurementTypes {
		if n := counts[mt]; n > 0 {
			out = append(out, GlucoseAverage{Type: mt, Mean: sums[mt] / float64(n), Count: n})
		}
	}
	return out
}

func (m GlucoseModule) stats(ctx context.Context, t *Turn) (*domain.Reply, error) {
	entries, err := t.Journal().Measurements(ctx, t.Session.UserID, glucoseStatsScan)
	if err != nil {
		return nil, err
	}
	avgs := WeeklyAverages(entries, t.Now)
	if len(avgs) == 0 {
		return glucoseMenu(t, t.T("glucose.stats.empty")), nil
	}

	lines := []string{t.T("glucose.stats.title")}
	for _, a := range avgs {
		lines = append(lines, t.T("glucose.stats.line", typeName(t, a.Type), t.Num(a.Mean, 1), a.Count))
	}
	return glucoseMenu(t, strings.Join(lines, "\n")), nil
}
