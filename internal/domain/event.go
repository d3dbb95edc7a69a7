package domain

import (
	"fmt"
	"strings"
)

// Event is one normalized inbound occurrence. The concrete types below are
// the closed set of variants; button tokens are decoded into them once, at
// the transport boundary, by ParseCallback.
type Event interface {
	isEvent()
}

// Callback is an Event that originates from an inline button.
type Callback interface {
	Event
	Token() string
}

// Command is a slash command such as /start. Name has no leading slash.
type Command struct{ Name string }

// Text is free text typed by the user.
type Text struct{ Body string }

// Back returns the user to the top menu.
type Back struct{}

type LanguageSelect struct{ Language Language }

// GlucoseAction is a glucose main-menu button.
type GlucoseAction struct{ Action string }

type MeasurementTypeSelect struct{ Type MeasurementType }

// BreadUnitsAction is a bread-units main-menu button.
type BreadUnitsAction struct{ Action string }

type FoodCategorySelect struct{ Category string }

type FoodItemSelect struct{ Item string }

type LessonSelect struct{ LessonID string }

// LessonNav moves within an open lesson.
type LessonNav struct{ Action string }

// SettingsAction is a settings-menu button.
type SettingsAction struct{ Action string }

const (
	ActionAdd     = "add"
	ActionHistory = "history"
	ActionStats   = "stats"
	ActionToday   = "today"

	NavNext = "next"
	NavPrev = "prev"
	NavList = "list"

	SettingsLanguage = "lang"
)

func (Command) isEvent()               {}
func (Text) isEvent()                  {}
func (Back) isEvent()                  {}
func (LanguageSelect) isEvent()        {}
func (GlucoseAction) isEvent()         {}
func (MeasurementTypeSelect) isEvent() {}
func (BreadUnitsAction) isEvent()      {}
func (FoodCategorySelect) isEvent()    {}
func (FoodItemSelect) isEvent()        {}
func (LessonSelect) isEvent()          {}
func (LessonNav) isEvent()             {}
func (SettingsAction) isEvent()        {}

func (Back) Token() string                    { return "nav:back" }
func (e LanguageSelect) Token() string        { return "lang:" + string(e.Language) }
func (e GlucoseAction) Token() string         { return "glu:" + e.Action }
func (e MeasurementTypeSelect) Token() string { return "glu:type:" + string(e.Type) }
func (e BreadUnitsAction) Token() string      { return "bu:" + e.Action }
func (e FoodCategorySelect) Token() string    { return "bu:cat:" + e.Category }
func (e FoodItemSelect) Token() string        { return "bu:item:" + e.Item }
func (e LessonSelect) Token() string          { return "les:open:" + e.LessonID }
func (e LessonNav) Token() string             { return "les:" + e.Action }
func (e SettingsAction) Token() string        { return "set:" + e.Action }

// MaxTokenLen is the Telegram limit for callback data.
const MaxTokenLen = 64

// ParseCallback decodes a button token into its event variant.
// Unknown or malformed tokens return ErrInvalidInput.
func ParseCallback(token string) (Callback, error) {
	if token == "" || len(token) > MaxTokenLen {
		return nil, fmt.Errorf("%w: callback token length %d", ErrInvalidInput, len(token))
	}

	parts := strings.SplitN(token, ":", 3)
	bad := fmt.Errorf("%w: unknown callback token %q", ErrInvalidInput, token)

	switch {
	case token == "nav:back":
		return Back{}, nil

	case parts[0] == "lang" && len(parts) == 2:
		l := Language(parts[1])
		if !l.Valid() {
			return nil, bad
		}
		return LanguageSelect{Language: l}, nil

	case parts[0] == "glu" && len(parts) == 2:
		switch parts[1] {
		case ActionAdd, ActionHistory, ActionStats:
			return GlucoseAction{Action: parts[1]}, nil
		}
	case parts[0] == "glu" && len(parts) == 3 && parts[1] == "type":
		t := MeasurementType(parts[2])
		if !t.Valid() {
			return nil, bad
		}
		return MeasurementTypeSelect{Type: t}, nil

	case parts[0] == "bu" && len(parts) == 2:
		switch parts[1] {
		case ActionAdd, ActionToday, ActionHistory:
			return BreadUnitsAction{Action: parts[1]}, nil
		}
	case parts[0] == "bu" && len(parts) == 3 && parts[1] == "cat" && parts[2] != "":
		return FoodCategorySelect{Category: parts[2]}, nil
	case parts[0] == "bu" && len(parts) == 3 && parts[1] == "item" && parts[2] != "":
		return FoodItemSelect{Item: parts[2]}, nil

	case parts[0] == "les" && len(parts) == 3 && parts[1] == "open" && parts[2] != "":
		return LessonSelect{LessonID: parts[2]}, nil
	case parts[0] == "les" && len(parts) == 2:
		switch parts[1] {
		case NavNext, NavPrev, NavList:
			return LessonNav{Action: parts[1]}, nil
		}

	case parts[0] == "set" && len(parts) == 2 && parts[1] == SettingsLanguage:
		return SettingsAction{Action: parts[1]}, nil
	}
	return nil, bad
}

// Inbound is one event attributed to a user, as delivered by the transport.
type Inbound struct {
	UserID     int64
	ChatID     int64
	UpdateID   int64  // Transport delivery id, 0 when unknown
	CallbackID string // Set for button taps so the transport can acknowledge them
	Event      Event
}
