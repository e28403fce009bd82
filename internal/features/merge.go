package features

import (
	"github.com/shopspring/decimal"

	"github.com/AngelCh415/vp-features/internal/models"
)

// FanOutReport counts join keys of the labeled table that matched more than
// one windowed row, per series. Each of those keys multiplies output rows.
type FanOutReport struct {
	Views    int `json:"views"`
	Clicks   int `json:"clicks"`
	Payments int `json:"payments"`
}

func (r FanOutReport) Any() bool { return r.Views+r.Clicks+r.Payments > 0 }

// Merge left-joins labeled impressions with the windowed series on
// (day, user, category). Missing metrics are zero. A key matched by several
// windowed rows yields one output row per combination, views outermost and
// payments innermost, each in series order.
func Merge(labeled []models.LabeledImpression, w Windows) ([]models.FeatureRow, FanOutReport) {
	views := indexCounts(w.Views)
	clicks := indexCounts(w.Clicks)
	pays := make(map[models.JoinKey][]decimal.Decimal)
	for _, p := range w.Payments {
		k := models.JoinKey{Day: p.Day, UserID: p.UserID, Category: p.Category}
		pays[k] = append(pays[k], p.Total)
	}

	var rep FanOutReport
	seen := make(map[models.JoinKey]struct{})
	out := make([]models.FeatureRow, 0, len(labeled))
	for _, l := range labeled {
		k := models.JoinKey{Day: l.Day, UserID: l.UserID, Category: l.Category}
		vs, cs, ps := views[k], clicks[k], pays[k]
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			rep.Views += multi(len(vs))
			rep.Clicks += multi(len(cs))
			rep.Payments += multi(len(ps))
		}
		if len(vs) == 0 {
			vs = []int{0}
		}
		if len(cs) == 0 {
			cs = []int{0}
		}
		if len(ps) == 0 {
			ps = []decimal.Decimal{decimal.Zero}
		}
		for _, v := range vs {
			for _, c := range cs {
				for _, p := range ps {
					out = append(out, models.FeatureRow{
						LabeledImpression: l,
						ViewsPrev:         v,
						ClicksPrev:        c,
						AmountPrev:        p,
					})
				}
			}
		}
	}
	return out, rep
}

func indexCounts(rows []models.WindowedCount) map[models.JoinKey][]int {
	idx := make(map[models.JoinKey][]int)
	for _, r := range rows {
		k := models.JoinKey{Day: r.Day, UserID: r.UserID, Category: r.Category}
		idx[k] = append(idx[k], r.Count)
	}
	return idx
}

func multi(n int) int {
	if n > 1 {
		return 1
	}
	return 0
}
