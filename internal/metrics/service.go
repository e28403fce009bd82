package metrics

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/AngelCh415/vp-features/internal/models"
	"github.com/AngelCh415/vp-features/internal/store"
)

// Service answers read queries over the stored feature table.
type Service struct{ st *store.MemoryStore }

func NewService(st *store.MemoryStore) *Service { return &Service{st: st} }
func norm(s string) string                      { return strings.ToLower(strings.TrimSpace(s)) }

func csvSet(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, p := range strings.Split(s, ",") {
		p = norm(p)
		if p != "" {
			out[p] = struct{}{}
		}
	}
	return out
}

// QueryFeatures filters by from, to, user_id, category (comma list) and
// clicked, then paginates with limit/offset. Rows keep table order per day.
func (s *Service) QueryFeatures(v url.Values) ([]models.Feature, error) {
	from, to, err := dateRange(v)
	if err != nil {
		return nil, err
	}
	users := csvSet(v.Get("user_id"))
	cats := csvSet(v.Get("category"))
	var clicked *bool
	if c := v.Get("clicked"); c != "" {
		b, err := strconv.ParseBool(c)
		if err != nil {
			return nil, fmt.Errorf("bad clicked: %q", c)
		}
		clicked = &b
	}
	limit := atoiDef(v.Get("limit"), 100)
	offset := atoiDef(v.Get("offset"), 0)

	rows := s.st.Query(from, to, func(r models.FeatureRow) bool {
		if len(users) > 0 {
			if _, ok := users[norm(r.UserID)]; !ok {
				return false
			}
		}
		if len(cats) > 0 {
			if _, ok := cats[r.Category]; !ok {
				return false
			}
		}
		return clicked == nil || r.Clicked == *clicked
	})

	out := make([]models.Feature, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ToFeature())
	}
	limit, offset = clampLimitOffset(limit, offset, len(out))
	return paginate(out, limit, offset), nil
}

// QuerySummary returns impressions, clicks, CTR and summed prior payments per
// (day, category).
func (s *Service) QuerySummary(v url.Values) ([]models.Summary, error) {
	from, to, err := dateRange(v)
	if err != nil {
		return nil, err
	}
	cats := csvSet(v.Get("category"))
	limit := atoiDef(v.Get("limit"), 100)
	offset := atoiDef(v.Get("offset"), 0)

	aggs := s.st.Daily(from, to, func(r models.FeatureRow) bool {
		if len(cats) == 0 {
			return true
		}
		_, ok := cats[r.Category]
		return ok
	})

	// orden determinista
	sort.Slice(aggs, func(i, j int) bool {
		if !aggs[i].Key.Date.Equal(aggs[j].Key.Date) {
			return aggs[i].Key.Date.Before(aggs[j].Key.Date)
		}
		return aggs[i].Key.Category < aggs[j].Key.Category
	})

	rows := make([]models.Summary, 0, len(aggs))
	for _, a := range aggs {
		m := models.Summary{
			Date:        a.Key.Date.Format(models.DateLayout),
			Category:    a.Key.Category,
			Impressions: a.Impressions,
			Clicks:      a.Clicks,
			Users:       a.Users,
			AmountPrev:  a.AmountPrev,
		}
		if a.Impressions > 0 {
			m.CTR = round3(float64(a.Clicks) / float64(a.Impressions))
		}
		rows = append(rows, m)
	}
	limit, offset = clampLimitOffset(limit, offset, len(rows))
	return paginate(rows, limit, offset), nil
}

func dateRange(v url.Values) (time.Time, time.Time, error) {
	var from, to time.Time
	var err error
	if s := v.Get("from"); s != "" {
		if from, err = time.Parse(models.DateLayout, s); err != nil {
			return from, to, fmt.Errorf("bad from: %q", s)
		}
	}
	if s := v.Get("to"); s != "" {
		if to, err = time.Parse(models.DateLayout, s); err != nil {
			return from, to, fmt.Errorf("bad to: %q", s)
		}
	}
	return from, to, nil
}

func paginate[T any](rows []T, limit, offset int) []T {
	if offset >= len(rows) {
		return []T{}
	}
	end := offset + limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end]
}

func atoiDef(s string, d int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
}
func clampLimitOffset(limit, offset, n int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = n
	}
	if limit > 1000 {
		limit = 1000
	} // tope sano
	if offset > n {
		offset = n
	}
	return limit, offset
}
func round3(f float64) float64 { return float64(int64(f*1000+0.5)) / 1000 }
