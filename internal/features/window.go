package features

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/AngelCh415/vp-features/internal/models"
)

const DefaultFeatureWindowDays = 21

// Windows holds the three accumulated series, each ordered by anchor day and,
// within a day, by input row order.
type Windows struct {
	Views    []models.WindowedCount
	Clicks   []models.WindowedCount
	Payments []models.WindowedSum
}

// AnchorDays returns the distinct labeled days in first-appearance order.
func AnchorDays(labeled []models.LabeledImpression) []time.Time {
	seen := make(map[time.Time]struct{})
	var out []time.Time
	for _, l := range labeled {
		if _, ok := seen[l.Day]; ok {
			continue
		}
		seen[l.Day] = struct{}{}
		out = append(out, l.Day)
	}
	return out
}

// Accumulate computes the three windowed series concurrently. The inputs are
// only read.
func Accumulate(ctx context.Context, in Input, anchors []time.Time, windowDays int) (Windows, error) {
	var w Windows
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		w.Views = CountPrior(in.Impressions, anchors, windowDays)
		return ctx.Err()
	})
	g.Go(func() error {
		w.Clicks = CountPrior(in.Taps, anchors, windowDays)
		return ctx.Err()
	})
	g.Go(func() error {
		w.Payments = SumPrior(in.Payments, anchors, windowDays)
		return ctx.Err()
	})
	if err := g.Wait(); err != nil {
		return Windows{}, err
	}
	return w, nil
}

// CountPrior assigns every event on an anchor day the number of same
// (user, category) events before it inside [day - windowDays, day]. Same-day
// events are ordered by input position.
func CountPrior(events []models.Impression, anchors []time.Time, windowDays int) []models.WindowedCount {
	buckets := sweep(len(events), func(i int) (models.GroupKey, time.Time, decimal.Decimal) {
		e := events[i]
		return models.GroupKey{UserID: e.UserID, Category: e.Category}, e.Day, decimal.Zero
	}, anchors, windowDays, false)

	out := make([]models.WindowedCount, 0, bucketLen(buckets))
	for _, b := range buckets {
		for _, h := range b {
			e := events[h.idx]
			out = append(out, models.WindowedCount{Day: e.Day, UserID: e.UserID, Category: e.Category, Count: h.ordinal})
		}
	}
	return out
}

// SumPrior assigns every payment on an anchor day the running total of its
// (user, category) payments inside [day - windowDays, day], itself included.
func SumPrior(payments []models.Payment, anchors []time.Time, windowDays int) []models.WindowedSum {
	buckets := sweep(len(payments), func(i int) (models.GroupKey, time.Time, decimal.Decimal) {
		p := payments[i]
		return models.GroupKey{UserID: p.UserID, Category: p.Category}, p.PayDate, p.Total
	}, anchors, windowDays, true)

	out := make([]models.WindowedSum, 0, bucketLen(buckets))
	for _, b := range buckets {
		for _, h := range b {
			p := payments[h.idx]
			out = append(out, models.WindowedSum{Day: p.PayDate, UserID: p.UserID, Category: p.Category, Total: h.sum})
		}
	}
	return out
}

type windowEvent struct {
	idx    int
	day    time.Time
	amount decimal.Decimal
}

type hit struct {
	idx     int
	ordinal int
	sum     decimal.Decimal
}

// sweep walks every (user, category) group once in day order, keeping a lower
// pointer on the first event still inside the trailing window. It returns one
// bucket per anchor, each sorted by input index.
func sweep(n int, at func(i int) (models.GroupKey, time.Time, decimal.Decimal), anchors []time.Time, windowDays int, sums bool) [][]hit {
	anchorPos := make(map[time.Time]int, len(anchors))
	for i, d := range anchors {
		if _, ok := anchorPos[d]; !ok {
			anchorPos[d] = i
		}
	}
	buckets := make([][]hit, len(anchors))
	if n == 0 || len(anchors) == 0 {
		return buckets
	}

	groups := make(map[models.GroupKey][]windowEvent)
	for i := 0; i < n; i++ {
		k, d, amt := at(i)
		groups[k] = append(groups[k], windowEvent{idx: i, day: d, amount: amt})
	}

	for _, evs := range groups {
		// events are appended in input order, so a stable sort keeps it as the tie-break
		slices.SortStableFunc(evs, func(a, b windowEvent) int { return a.day.Compare(b.day) })

		var prefix []decimal.Decimal
		if sums {
			prefix = make([]decimal.Decimal, len(evs)+1)
			prefix[0] = decimal.Zero
			for i, e := range evs {
				prefix[i+1] = prefix[i].Add(e.amount)
			}
		}

		lo := 0
		for i, e := range evs {
			pos, ok := anchorPos[e.day]
			if !ok {
				continue
			}
			start := e.day.AddDate(0, 0, -windowDays)
			for evs[lo].day.Before(start) {
				lo++
			}
			h := hit{idx: e.idx, ordinal: i - lo}
			if sums {
				h.sum = prefix[i+1].Sub(prefix[lo])
			}
			buckets[pos] = append(buckets[pos], h)
		}
	}

	for _, b := range buckets {
		slices.SortFunc(b, func(x, y hit) int { return cmp.Compare(x.idx, y.idx) })
	}
	return buckets
}

func bucketLen(buckets [][]hit) int {
	n := 0
	for _, b := range buckets {
		n += len(b)
	}
	return n
}
