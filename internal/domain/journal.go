package domain

import (
	"context"
	"time"
)

// Stream names an append-only per-user log.
type Stream string

const (
	StreamGlucose Stream = "glucose"
	StreamFood    Stream = "food"
)

// MeasurementType is the moment a glucose value was taken at.
type MeasurementType string

const (
	MeasurementFasting    MeasurementType = "fasting"
	MeasurementBeforeMeal MeasurementType = "before_meal"
	MeasurementAfterMeal  MeasurementType = "after_meal"
	MeasurementBedtime    MeasurementType = "bedtime"
)

// MeasurementTypes lists the types in menu order.
var MeasurementTypes = []MeasurementType{
	MeasurementFasting,
	MeasurementBeforeMeal,
	MeasurementAfterMeal,
	MeasurementBedtime,
}

func (t MeasurementType) Valid() bool {
	for _, v := range MeasurementTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Measurement is one glucose reading in mmol/L.
type Measurement struct {
	EventID int64           `json:"event_id,omitempty"`
	Type    MeasurementType `json:"type"`
	Value   float64         `json:"value"`
	At      time.Time       `json:"at"`
}

// FoodEntry is one eaten portion converted to bread units.
type FoodEntry struct {
	EventID    int64     `json:"event_id,omitempty"`
	Category   string    `json:"category"`
	Item       string    `json:"item"`
	Grams      float64   `json:"grams"`
	Carbs      float64   `json:"carbs"`
	BreadUnits float64   `json:"bread_units"`
	At         time.Time `json:"at"`
}

// LogStore persists opaque append-only entries, one stream per user and kind.
// Append skips an entry whose non-zero eventID equals the last entry's
// eventID, so a redelivered event cannot be logged twice.
type LogStore interface {
	Append(ctx context.Context, userID int64, stream Stream, eventID int64, payload []byte) error
	// Tail returns up to limit most recent payloads, oldest first.
	// A limit <= 0 returns the whole stream.
	Tail(ctx context.Context, userID int64, stream Stream, limit int) ([][]byte, error)
}
