package features

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/AngelCh415/vp-features/internal/models"
)

// Input is the normalized event log of one run. It is never modified.
type Input struct {
	Impressions []models.Impression
	Taps        []models.Tap
	Payments    []models.Payment
}

// Options sets the window lengths in days. Zero is a valid length: the label
// window keeps the latest day only and the feature window counts same-day
// events only. Negative values select the defaults.
type Options struct {
	LabelWindowDays   int
	FeatureWindowDays int
}

func DefaultOptions() Options {
	return Options{LabelWindowDays: DefaultLabelWindowDays, FeatureWindowDays: DefaultFeatureWindowDays}
}

// Result carries every table derived by a run.
type Result struct {
	RunID    string
	Labeled  []models.LabeledImpression
	Anchors  []time.Time
	Windows  Windows
	Rows     []models.FeatureRow
	FanOut   FanOutReport
	Started  time.Time
	Duration time.Duration
}

// Recorder observes finished runs.
type Recorder interface {
	ObserveRun(res Result, err error)
}

type nopRecorder struct{}

func (nopRecorder) ObserveRun(Result, error) {}

type Pipeline struct {
	log  *slog.Logger
	opts Options
	rec  Recorder
}

func NewPipeline(log *slog.Logger, opts Options, rec Recorder) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	if opts.LabelWindowDays < 0 {
		opts.LabelWindowDays = DefaultLabelWindowDays
	}
	if opts.FeatureWindowDays < 0 {
		opts.FeatureWindowDays = DefaultFeatureWindowDays
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Pipeline{log: log, opts: opts, rec: rec}
}

// Run labels, accumulates and merges. A SchemaError aborts before any stage
// runs; an empty impression log yields an empty result.
func (p *Pipeline) Run(ctx context.Context, in Input) (res Result, err error) {
	res = Result{RunID: uuid.NewString(), Started: time.Now()}
	log := p.log.With(slog.String("run_id", res.RunID))
	defer func() {
		res.Duration = time.Since(res.Started)
		p.rec.ObserveRun(res, err)
	}()

	if err = Validate(in); err != nil {
		return res, err
	}

	res.Labeled = LabelClicks(in.Impressions, in.Taps, p.opts.LabelWindowDays)
	res.Anchors = AnchorDays(res.Labeled)
	log.Debug("labeled impressions",
		slog.Int("rows", len(res.Labeled)),
		slog.Int("anchor_days", len(res.Anchors)))
	if err = ctx.Err(); err != nil {
		return res, err
	}

	res.Windows, err = Accumulate(ctx, in, res.Anchors, p.opts.FeatureWindowDays)
	if err != nil {
		return res, fmt.Errorf("accumulate: %w", err)
	}
	log.Debug("accumulated windows",
		slog.Int("views", len(res.Windows.Views)),
		slog.Int("clicks", len(res.Windows.Clicks)),
		slog.Int("payments", len(res.Windows.Payments)))

	res.Rows, res.FanOut = Merge(res.Labeled, res.Windows)
	if res.FanOut.Any() {
		log.Warn("join ambiguity: keys matched several windowed rows",
			slog.Int("views_keys", res.FanOut.Views),
			slog.Int("clicks_keys", res.FanOut.Clicks),
			slog.Int("payments_keys", res.FanOut.Payments),
			slog.Int("labeled", len(res.Labeled)),
			slog.Int("rows", len(res.Rows)))
	}

	log.Info("feature run complete",
		slog.Int("impressions", len(in.Impressions)),
		slog.Int("taps", len(in.Taps)),
		slog.Int("payments", len(in.Payments)),
		slog.Int("rows", len(res.Rows)),
		slog.Duration("took", time.Since(res.Started)))
	return res, nil
}

// Validate checks the fields every stage relies on. Dates must be UTC
// midnights as produced by models.DayUTC.
func Validate(in Input) error {
	for i, e := range in.Impressions {
		if err := validateEvent(StreamPrints, i, e); err != nil {
			return err
		}
	}
	for i, e := range in.Taps {
		if err := validateEvent(StreamTaps, i, e); err != nil {
			return err
		}
	}
	for i, pay := range in.Payments {
		switch {
		case pay.UserID == "":
			return &SchemaError{Stream: StreamPays, Row: i, Field: "user_id", Err: ErrMissing}
		case pay.PayDate.IsZero():
			return &SchemaError{Stream: StreamPays, Row: i, Field: "pay_date", Err: ErrZeroDate}
		case pay.PayDate != models.DayUTC(pay.PayDate):
			return &SchemaError{Stream: StreamPays, Row: i, Field: "pay_date", Err: ErrNotDay}
		case pay.Category == "":
			return &SchemaError{Stream: StreamPays, Row: i, Field: "value_prop", Err: ErrMissing}
		}
	}
	return nil
}

func validateEvent(stream string, i int, e models.Impression) error {
	switch {
	case e.UserID == "":
		return &SchemaError{Stream: stream, Row: i, Field: "user_id", Err: ErrMissing}
	case e.Day.IsZero():
		return &SchemaError{Stream: stream, Row: i, Field: "day", Err: ErrZeroDate}
	case e.Day != models.DayUTC(e.Day):
		return &SchemaError{Stream: stream, Row: i, Field: "day", Err: ErrNotDay}
	case e.Category == "":
		return &SchemaError{Stream: stream, Row: i, Field: "value_prop", Err: ErrMissing}
	}
	return nil
}
