package features

import (
	"time"

	"github.com/AngelCh415/vp-features/internal/models"
)

const DefaultLabelWindowDays = 7

// LabelClicks left-joins the impressions of the trailing window with the taps
// on (day, user, category). The window is [latest impression day - windowDays,
// latest impression day] across the whole dataset. An impression matched by n
// taps yields n clicked rows; an unmatched one yields a single row. Output
// keeps impression order and the impression position.
func LabelClicks(prints []models.Impression, taps []models.Tap, windowDays int) []models.LabeledImpression {
	if len(prints) == 0 {
		return []models.LabeledImpression{}
	}
	hi := latestDay(prints)
	lo := hi.AddDate(0, 0, -windowDays)

	tapped := make(map[models.JoinKey]int)
	for _, t := range taps {
		if inRange(t.Day, lo, hi) {
			tapped[models.JoinKey{Day: t.Day, UserID: t.UserID, Category: t.Category}]++
		}
	}

	out := make([]models.LabeledImpression, 0, len(prints))
	for _, p := range prints {
		if !inRange(p.Day, lo, hi) {
			continue
		}
		n := tapped[models.JoinKey{Day: p.Day, UserID: p.UserID, Category: p.Category}]
		if n == 0 {
			out = append(out, models.LabeledImpression{Impression: p})
			continue
		}
		for range n {
			out = append(out, models.LabeledImpression{Impression: p, Clicked: true})
		}
	}
	return out
}

func latestDay(prints []models.Impression) time.Time {
	hi := prints[0].Day
	for _, p := range prints[1:] {
		if p.Day.After(hi) {
			hi = p.Day
		}
	}
	return hi
}

// inRange reports lo <= d <= hi.
func inRange(d, lo, hi time.Time) bool {
	return !d.Before(lo) && !d.After(hi)
}
