package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/msomdec/diabot/internal/content"
	"github.com/msomdec/diabot/internal/domain"
)

// CarbsPerBreadUnit is the grams of carbohydrate in one bread unit.
const CarbsPerBreadUnit = 12.0

// Accepted portion weights, grams.
const (
	MinGrams = 1.0
	MaxGrams = 5000.0
)

const (
	foodHistorySize = 10
	foodTodayScan   = 200
	scratchCategory = "category"
	scratchItem     = "item"
)

// Portion computes carbohydrates and bread units for grams of a food.
func Portion(carbsPer100g, grams float64) (carbs, breadUnits float64) {
	carbs = carbsPer100g * grams / 100
	return carbs, carbs / CarbsPerBreadUnit
}

// BreadUnitsModule converts eaten food into bread units and keeps the food log.
type BreadUnitsModule struct{}

func (BreadUnitsModule) ID() domain.Module { return domain.ModuleBreadUnits }

func (BreadUnitsModule) ShowMain(t *Turn) *domain.Reply {
	return breadUnitsMenu(t, t.T("bu.main"))
}

func breadUnitsMenu(t *Turn, text string) *domain.Reply {
	return &domain.Reply{
		Text: text,
		Inline: [][]domain.Button{
			{{Label: t.T("bu.button.add"), Token: domain.BreadUnitsAction{Action: domain.ActionAdd}.Token()}},
			{
				{Label: t.T("bu.button.today"), Token: domain.BreadUnitsAction{Action: domain.ActionToday}.Token()},
				{Label: t.T("bu.button.history"), Token: domain.BreadUnitsAction{Action: domain.ActionHistory}.Token()},
			},
			t.BackRow(),
		},
	}
}

func categoryChoice(t *Turn) *domain.Reply {
	var rows [][]domain.Button
	for _, c := range t.Library().Categories() {
		rows = append(rows, []domain.Button{{Label: c.Name(t.Lang()), Token: domain.FoodCategorySelect{Category: c.ID}.Token()}})
	}
	rows = append(rows, t.BackRow())
	return &domain.Reply{Text: t.T("bu.choose_category"), Inline: rows}
}

func itemChoice(t *Turn, c *content.Category) *domain.Reply {
	var rows [][]domain.Button
	for _, f := range c.Items() {
		rows = append(rows, []domain.Button{{Label: f.Name(t.Lang()), Token: domain.FoodItemSelect{Item: f.ID}.Token()}})
	}
	rows = append(rows, t.BackRow())
	return &domain.Reply{Text: t.T("bu.choose_item"), Inline: rows}
}

func (m BreadUnitsModule) HandleCallback(ctx context.Context, t *Turn, cb domain.Callback) (*domain.Reply, error) {
	if _, ok := cb.(domain.Back); ok {
		return t.ToTopMenu(), nil
	}

	switch t.Session.Phase {
	case domain.PhaseBreadUnitsMain:
		action, ok := cb.(domain.BreadUnitsAction)
		if !ok {
			break
		}
		switch action.Action {
		case domain.ActionAdd:
			t.Session.SetPhase(domain.PhaseFoodCategoryChoice)
			return categoryChoice(t), nil
		case domain.ActionToday:
			return m.today(ctx, t)
		case domain.ActionHistory:
			return m.history(ctx, t)
		}

	case domain.PhaseFoodCategoryChoice:
		sel, ok := cb.(domain.FoodCategorySelect)
		if !ok {
			break
		}
		c, ok := t.Library().Category(sel.Category)
		if !ok {
			reply := categoryChoice(t)
			reply.Text = t.T("bu.use_buttons")
			return reply, nil
		}
		t.Session.SetPhase(domain.PhaseFoodItemChoice)
		t.Session.SetScratch(scratchCategory, c.ID)
		return itemChoice(t, c), nil

	case domain.PhaseFoodItemChoice:
		sel, ok := cb.(domain.FoodItemSelect)
		if !ok {
			break
		}
		catID, _ := t.Session.ScratchValue(scratchCategory)
		c, ok := t.Library().Category(catID)
		if !ok {
			t.Session.SetPhase(domain.PhaseFoodCategoryChoice)
			t.Session.ClearScratch()
			return categoryChoice(t), nil
		}
		f, ok := t.Library().Food(sel.Item)
		if !ok || f.Category != c.ID {
			reply := itemChoice(t, c)
			reply.Text = t.T("bu.use_buttons")
			return reply, nil
		}
		t.Session.SetPhase(domain.PhaseAwaitingGramCount)
		t.Session.SetScratch(scratchItem, f.ID)
		return &domain.Reply{
			Text:   t.T("bu.enter_grams", f.Name(t.Lang())),
			Inline: [][]domain.Button{t.BackRow()},
		}, nil

	case domain.PhaseAwaitingGramCount:

	default:
		return nil, fmt.Errorf("%w: %s cannot handle %q", domain.ErrPhaseMismatch, m.ID(), t.Session.Phase)
	}
	return nil, fmt.Errorf("%w: %s in %q", domain.ErrUnhandledEvent, cb.Token(), t.Session.Phase)
}

func (m BreadUnitsModule) HandleText(ctx context.Context, t *Turn, text string) (*domain.Reply, error) {
	if t.IsBackLabel(text) {
		return t.ToTopMenu(), nil
	}

	switch t.Session.Phase {
	case domain.PhaseAwaitingGramCount:
		itemID, _ := t.Session.ScratchValue(scratchItem)
		f, ok := t.Library().Food(itemID)
		if !ok {
			t.Session.SetPhase(domain.PhaseFoodCategoryChoice)
			t.Session.ClearScratch()
			return categoryChoice(t), nil
		}

		grams, ok := ParseDecimal(text)
		if !ok {
			return &domain.Reply{Text: t.T("bu.invalid_grams"), Inline: [][]domain.Button{t.BackRow()}}, nil
		}
		if grams < MinGrams || grams > MaxGrams {
			return &domain.Reply{
				Text:   t.T("bu.out_of_range", t.Num(MinGrams, 0), t.Num(MaxGrams, 0)),
				Inline: [][]domain.Button{t.BackRow()},
			}, nil
		}

		carbs, bu := Portion(f.CarbsPer100g, grams)
		t.RecordFood(domain.FoodEntry{
			Category:   f.Category,
			Item:       f.ID,
			Grams:      grams,
			Carbs:      carbs,
			BreadUnits: bu,
			At:         t.Now.UTC(),
		})
		t.Session.SetPhase(domain.PhaseBreadUnitsMain)
		t.Session.ClearScratch()

		return breadUnitsMenu(t, t.T("bu.saved", f.Name(t.Lang()), t.Num(grams, 0), t.Num(carbs, 1), t.Num(bu, 1))), nil

	case domain.PhaseBreadUnitsMain:
		return breadUnitsMenu(t, t.T("bu.use_buttons")), nil
	case domain.PhaseFoodCategoryChoice:
		reply := categoryChoice(t)
		reply.Text = t.T("bu.use_buttons")
		return reply, nil
	case domain.PhaseFoodItemChoice:
		catID, _ := t.Session.ScratchValue(scratchCategory)
		c, ok := t.Library().Category(catID)
		if !ok {
			t.Session.SetPhase(domain.PhaseFoodCategoryChoice)
			t.Session.ClearScratch()
			return categoryChoice(t), nil
		}
		reply := itemChoice(t, c)
		reply.Text = t.T("bu.use_buttons")
		return reply, nil
	}
	return nil, fmt.Errorf("%w: %s cannot handle %q", domain.ErrPhaseMismatch, m.ID(), t.Session.Phase)
}

// DayTotal sums bread units of entries on the same UTC calendar day as now.
func DayTotal(entries []domain.FoodEntry, now time.Time) (total float64, count int) {
	day := now.UTC().Truncate(24 * time.Hour)
	for _, e := range entries {
		if e.At.UTC().Truncate(24 * time.Hour).Equal(day) {
			total += e.BreadUnits
			count++
		}
	}
	return total, count
}

func (m BreadUnitsModule) today(ctx context.Context, t *Turn) (*domain.Reply, error) {
	entries, err := t.Journal().FoodEntries(ctx, t.Session.UserID, foodTodayScan)
	if err != nil {
		return nil, err
	}
	total, count := DayTotal(entries, t.Now)
	return breadUnitsMenu(t, t.T("bu.today", t.Num(total, 1), count)), nil
}

func (m BreadUnitsModule) history(ctx context.Context, t *Turn) (*domain.Reply, error) {
	entries, err := t.Journal().FoodEntries(ctx, t.Session.UserID, foodHistorySize)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return breadUnitsMenu(t, t.T("bu.history.empty")), nil
	}

	lines := []string{t.T("bu.history.title")}
	for _, e := range slices.Backward(entries) {
		name := e.Item
		if f, ok := t.Library().Food(e.Item); ok {
			name = f.Name(t.Lang())
		}
		lines = append(lines, t.T("bu.history.line", e.At.Format("02.01 15:04"), name, t.Num(e.Grams, 0), t.Num(e.BreadUnits, 1)))
	}
	return breadUnitsMenu(t, strings.Join(lines, "\n")), nil
}
