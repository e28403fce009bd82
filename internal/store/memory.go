package store

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"

	"github.com/AngelCh415/vp-features/internal/features"
	"github.com/AngelCh415/vp-features/internal/models"
)

// RunInfo describes the feature table currently held.
type RunInfo struct {
	RunID      string                `json:"run_id"`
	Started    time.Time             `json:"started"`
	Duration   time.Duration         `json:"duration_ns"`
	Labeled    int                   `json:"labeled"`
	Rows       int                   `json:"rows"`
	AnchorDays int                   `json:"anchor_days"`
	FanOut     features.FanOutReport `json:"fan_out"`
}

// MemoryStore keeps the latest feature table, indexed by day.
type MemoryStore struct {
	mu    sync.RWMutex
	run   *RunInfo
	rows  []models.FeatureRow
	byDay *btree.Map[int64, []models.FeatureRow]
	seen  map[string]struct{} // per-key idempotence for exports
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byDay: btree.NewMap[int64, []models.FeatureRow](32),
		seen:  make(map[string]struct{}),
	}
}

func (s *MemoryStore) MarkSeen(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	return true
}

func (s *MemoryStore) Forget(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, key)
}

// Replace swaps in the table of a finished run.
func (s *MemoryStore) Replace(res features.Result) {
	idx := btree.NewMap[int64, []models.FeatureRow](32)
	for _, r := range res.Rows {
		k := dayKey(r.Day)
		rows, _ := idx.Get(k)
		idx.Set(k, append(rows, r))
	}
	info := &RunInfo{
		RunID:      res.RunID,
		Started:    res.Started,
		Duration:   res.Duration,
		Labeled:    len(res.Labeled),
		Rows:       len(res.Rows),
		AnchorDays: len(res.Anchors),
		FanOut:     res.FanOut,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.run = info
	s.rows = res.Rows
	s.byDay = idx
}

func (s *MemoryStore) Latest() (RunInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.run == nil {
		return RunInfo{}, false
	}
	return *s.run, true
}

// All returns the table in output order.
func (s *MemoryStore) All() []models.FeatureRow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.FeatureRow, len(s.rows))
	copy(out, s.rows)
	return out
}

// Snapshot returns the current run and its rows for from <= day <= to, read
// under one lock so both belong to the same run.
func (s *MemoryStore) Snapshot(from, to time.Time, f func(models.FeatureRow) bool) (RunInfo, []models.FeatureRow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.run == nil {
		return RunInfo{}, nil, false
	}
	return *s.run, s.query(from, to, f), true
}

// Query returns rows with from <= day <= to accepted by f, ordered by day.
// A zero bound is open.
func (s *MemoryStore) Query(from, to time.Time, f func(models.FeatureRow) bool) []models.FeatureRow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.query(from, to, f)
}

func (s *MemoryStore) query(from, to time.Time, f func(models.FeatureRow) bool) []models.FeatureRow {
	var out []models.FeatureRow
	visit := func(k int64, rows []models.FeatureRow) bool {
		if !to.IsZero() && k > dayKey(to) {
			return false
		}
		for _, r := range rows {
			if f == nil || f(r) {
				out = append(out, r)
			}
		}
		return true
	}
	if from.IsZero() {
		s.byDay.Scan(visit)
	} else {
		s.byDay.Ascend(dayKey(from), visit)
	}
	return out
}

// Daily aggregates rows per (day, category).
func (s *MemoryStore) Daily(from, to time.Time, f func(models.FeatureRow) bool) []models.DailyAgg {
	rows := s.Query(from, to, f)
	agg := make(map[models.DailyAggKey]*models.DailyAgg)
	users := make(map[models.DailyAggKey]map[string]struct{})
	var order []models.DailyAggKey
	for _, r := range rows {
		k := models.DailyAggKey{Date: r.Day, Category: r.Category}
		a, ok := agg[k]
		if !ok {
			a = &models.DailyAgg{Key: k, AmountPrev: decimal.Zero}
			agg[k] = a
			users[k] = make(map[string]struct{})
			order = append(order, k)
		}
		a.Impressions++
		if r.Clicked {
			a.Clicks++
		}
		a.AmountPrev = a.AmountPrev.Add(r.AmountPrev)
		users[k][r.UserID] = struct{}{}
	}
	out := make([]models.DailyAgg, 0, len(order))
	for _, k := range order {
		a := agg[k]
		a.Users = len(users[k])
		out = append(out, *a)
	}
	return out
}

func dayKey(t time.Time) int64 {
	return models.DayUTC(t).Unix()
}
