package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const DateLayout = "2006-01-02"

// Impression is one print of a value proposition shown to a user.
type Impression struct {
	UserID   string
	Day      time.Time
	Category string
	Position int
	Extra    map[string]string // flattened passthrough fields
}

// Tap is a click on a printed value proposition. Same shape as Impression.
type Tap = Impression

type Payment struct {
	UserID   string
	PayDate  time.Time
	Total    decimal.Decimal
	Category string
}

type LabeledImpression struct {
	Impression
	Clicked bool
}

// WindowedCount is a prior-occurrence ordinal attributed to Day.
type WindowedCount struct {
	Day      time.Time
	UserID   string
	Category string
	Count    int
}

// WindowedSum is a running payment total attributed to Day.
type WindowedSum struct {
	Day      time.Time
	UserID   string
	Category string
	Total    decimal.Decimal
}

type FeatureRow struct {
	LabeledImpression
	ViewsPrev  int
	ClicksPrev int
	AmountPrev decimal.Decimal
}

// GroupKey identifies a (user, category) pair.
type GroupKey struct {
	UserID   string
	Category string
}

// JoinKey identifies a (day, user, category) triple.
type JoinKey struct {
	Day      time.Time
	UserID   string
	Category string
}

// DailyAggKey groups feature rows for the summary endpoint.
type DailyAggKey struct {
	Date     time.Time
	Category string
}

type DailyAgg struct {
	Key         DailyAggKey
	Impressions int
	Clicks      int
	Users       int
	AmountPrev  decimal.Decimal
}

// Feature is the JSON view of a FeatureRow.
type Feature struct {
	UserID     string            `json:"user_id"`
	Day        string            `json:"day"`
	Category   string            `json:"category"`
	Position   int               `json:"position"`
	Clicked    bool              `json:"clicked"`
	ViewsPrev  int               `json:"quantity_views_prev_print"`
	ClicksPrev int               `json:"quantity_clicked_prev_print"`
	AmountPrev decimal.Decimal   `json:"import_accumulates_prev_print"`
	Extra      map[string]string `json:"extra,omitempty"`
}

type Summary struct {
	Date        string          `json:"date"`
	Category    string          `json:"category"`
	Impressions int             `json:"impressions"`
	Clicks      int             `json:"clicks"`
	Users       int             `json:"users"`
	CTR         float64         `json:"ctr"`
	AmountPrev  decimal.Decimal `json:"import_accumulates_prev_print"`
}

// DayUTC truncates t to midnight UTC of its calendar day.
func DayUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (f FeatureRow) Key() JoinKey {
	return JoinKey{Day: f.Day, UserID: f.UserID, Category: f.Category}
}

func (f FeatureRow) ToFeature() Feature {
	return Feature{
		UserID:     f.UserID,
		Day:        f.Day.Format(DateLayout),
		Category:   f.Category,
		Position:   f.Position,
		Clicked:    f.Clicked,
		ViewsPrev:  f.ViewsPrev,
		ClicksPrev: f.ClicksPrev,
		AmountPrev: f.AmountPrev,
		Extra:      f.Extra,
	}
}
