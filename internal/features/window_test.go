package features

import (
	"context"
	"math/rand/v2"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/vp-features/internal/models"
)

// randomLog builds a reproducible event log spread over 60 days with heavy
// same-day collisions per (user, category).
func randomLog(t testing.TB, seed uint64, n int) ([]models.Impression, []models.Tap, []models.Payment) {
	t.Helper()
	r := rand.New(rand.NewPCG(seed, seed+1))
	users := []string{"u1", "u2", "u3", "u4"}
	cats := []string{"cashback", "travel", "transport"}
	base := day(t, "2024-01-01")
	ev := func() models.Impression {
		return models.Impression{
			UserID:   users[r.IntN(len(users))],
			Day:      base.AddDate(0, 0, r.IntN(60)),
			Category: cats[r.IntN(len(cats))],
			Position: r.IntN(4),
		}
	}
	prints := make([]models.Impression, n)
	for i := range prints {
		prints[i] = ev()
	}
	taps := make([]models.Tap, n/3)
	for i := range taps {
		taps[i] = ev()
	}
	pays := make([]models.Payment, n/4)
	for i := range pays {
		e := ev()
		pays[i] = models.Payment{
			UserID:   e.UserID,
			PayDate:  e.Day,
			Category: e.Category,
			Total:    decimal.New(int64(r.IntN(100000)), -2),
		}
	}
	return prints, taps, pays
}

// naiveCounts recomputes every anchor from scratch over a stably day-sorted copy.
func naiveCounts(events []models.Impression, anchors []time.Time, windowDays int) []models.WindowedCount {
	order := make([]int, len(events))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return events[order[a]].Day.Before(events[order[b]].Day) })

	var out []models.WindowedCount
	for _, end := range anchors {
		start := end.AddDate(0, 0, -windowDays)
		seen := make(map[models.GroupKey]int)
		for _, i := range order {
			e := events[i]
			if !inRange(e.Day, start, end) {
				continue
			}
			k := models.GroupKey{UserID: e.UserID, Category: e.Category}
			c := seen[k]
			seen[k]++
			if e.Day.Equal(end) {
				out = append(out, models.WindowedCount{Day: e.Day, UserID: e.UserID, Category: e.Category, Count: c})
			}
		}
	}
	return out
}

func naiveSums(pays []models.Payment, anchors []time.Time, windowDays int) []models.WindowedSum {
	order := make([]int, len(pays))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return pays[order[a]].PayDate.Before(pays[order[b]].PayDate) })

	var out []models.WindowedSum
	for _, end := range anchors {
		start := end.AddDate(0, 0, -windowDays)
		run := make(map[models.GroupKey]decimal.Decimal)
		for _, i := range order {
			p := pays[i]
			if !inRange(p.PayDate, start, end) {
				continue
			}
			k := models.GroupKey{UserID: p.UserID, Category: p.Category}
			run[k] = run[k].Add(p.Total)
			if p.PayDate.Equal(end) {
				out = append(out, models.WindowedSum{Day: p.PayDate, UserID: p.UserID, Category: p.Category, Total: run[k]})
			}
		}
	}
	return out
}

func TestCountPriorMatchesNaiveRescan(t *testing.T) {
	for _, seed := range []uint64{1, 2, 3, 42} {
		prints, taps, _ := randomLog(t, seed, 400)
		anchors := AnchorDays(LabelClicks(prints, taps, DefaultLabelWindowDays))
		require.NotEmpty(t, anchors)

		require.Equal(t, naiveCounts(prints, anchors, DefaultFeatureWindowDays), nonNil(CountPrior(prints, anchors, DefaultFeatureWindowDays)), "seed %d", seed)
		require.Equal(t, naiveCounts(taps, anchors, DefaultFeatureWindowDays), nonNil(CountPrior(taps, anchors, DefaultFeatureWindowDays)), "seed %d", seed)
	}
}

func nonNil(rows []models.WindowedCount) []models.WindowedCount {
	if len(rows) == 0 {
		return nil
	}
	return rows
}

func TestSumPriorMatchesNaiveRescan(t *testing.T) {
	for _, seed := range []uint64{5, 6, 7} {
		prints, taps, pays := randomLog(t, seed, 400)
		anchors := AnchorDays(LabelClicks(prints, taps, DefaultLabelWindowDays))

		got := SumPrior(pays, anchors, DefaultFeatureWindowDays)
		requireSumsEqual(t, naiveSums(pays, anchors, DefaultFeatureWindowDays), got)
		for _, s := range got {
			assert.False(t, s.Total.IsNegative())
		}
	}
}

func TestSumPriorEqualsWindowTotal(t *testing.T) {
	_, _, pays := randomLog(t, 11, 600)
	anchors := []time.Time{day(t, "2024-01-25"), day(t, "2024-02-10")}

	got := SumPrior(pays, anchors, DefaultFeatureWindowDays)
	last := make(map[models.JoinKey]decimal.Decimal)
	for _, s := range got {
		last[models.JoinKey{Day: s.Day, UserID: s.UserID, Category: s.Category}] = s.Total
	}
	for k, v := range last {
		want := decimal.Zero
		for _, p := range pays {
			if p.UserID == k.UserID && p.Category == k.Category && inRange(p.PayDate, k.Day.AddDate(0, 0, -DefaultFeatureWindowDays), k.Day) {
				want = want.Add(p.Total)
			}
		}
		assert.True(t, want.Equal(v), "%v: want %s got %s", k, want, v)
	}
}

func TestCountPriorSameDayFanOut(t *testing.T) {
	events := []models.Impression{
		imp(t, "u1", "2024-01-08", "cashback", 2),
		imp(t, "u1", "2024-01-02", "cashback", 0),
		imp(t, "u1", "2024-01-08", "cashback", 1),
		imp(t, "u1", "2023-12-01", "cashback", 0), // outside window
	}
	got := CountPrior(events, []time.Time{day(t, "2024-01-08")}, DefaultFeatureWindowDays)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Count, "first same-day row follows 2024-01-02")
	assert.Equal(t, 2, got[1].Count)
}

func TestCountPriorWindowBoundsInclusive(t *testing.T) {
	events := []models.Impression{
		imp(t, "u1", "2024-01-01", "cashback", 0), // D-21, included
		imp(t, "u1", "2023-12-31", "cashback", 0), // D-22, excluded
		imp(t, "u1", "2024-01-22", "cashback", 0),
	}
	got := CountPrior(events, []time.Time{day(t, "2024-01-22")}, DefaultFeatureWindowDays)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Count)
}

func TestSumPriorScenario(t *testing.T) {
	pays := []models.Payment{
		pay(t, "u2", "2024-01-08", "travel", 20),
		pay(t, "u2", "2024-01-01", "travel", 10),
	}
	got := SumPrior(pays, []time.Time{day(t, "2024-01-08")}, DefaultFeatureWindowDays)
	require.Len(t, got, 1)
	assert.True(t, decimal.NewFromInt(30).Equal(got[0].Total), got[0].Total.String())
}

func TestAccumulateOrdersByAnchor(t *testing.T) {
	in := Input{
		Impressions: []models.Impression{
			imp(t, "u1", "2024-01-02", "cashback", 0),
			imp(t, "u2", "2024-01-01", "travel", 0),
			imp(t, "u1", "2024-01-01", "cashback", 0),
		},
	}
	anchors := []time.Time{day(t, "2024-01-02"), day(t, "2024-01-01")}

	w, err := Accumulate(context.Background(), in, anchors, DefaultFeatureWindowDays)
	require.NoError(t, err)
	require.Len(t, w.Views, 3)
	assert.Equal(t, anchors[0], w.Views[0].Day)
	assert.Equal(t, 1, w.Views[0].Count)
	assert.Equal(t, "u2", w.Views[1].UserID)
	assert.Equal(t, "u1", w.Views[2].UserID)
	assert.Empty(t, w.Clicks)
	assert.Empty(t, w.Payments)
}

func TestAccumulateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Accumulate(ctx, Input{}, nil, DefaultFeatureWindowDays)
	require.ErrorIs(t, err, context.Canceled)
}
