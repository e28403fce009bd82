package ingest

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AngelCh415/vp-features/internal/config"
	"github.com/AngelCh415/vp-features/internal/features"
	"github.com/AngelCh415/vp-features/internal/models"
	"github.com/AngelCh415/vp-features/internal/sink"
	"github.com/AngelCh415/vp-features/internal/store"
)

var (
	ErrSinkNotConfigured = errors.New("sink not configured")
	ErrNoRun             = errors.New("no feature run available")
)

type ETL struct {
	c   HTTPClient
	x   *Extractor
	st  *store.MemoryStore
	p   *features.Pipeline
	log *slog.Logger
	cfg config.Config
}

func NewETL(c HTTPClient, st *store.MemoryStore, p *features.Pipeline, log *slog.Logger, cfg config.Config) *ETL {
	return &ETL{c: c, x: NewExtractor(c, cfg.FetchRetries), st: st, p: p, log: log, cfg: cfg}
}

// Load extracts and normalizes the three configured sources concurrently.
func (e *ETL) Load(ctx context.Context) (features.Input, error) {
	var in features.Input
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		in.Impressions, err = e.loadEvents(ctx, features.StreamPrints, e.cfg.PrintsSource)
		return err
	})
	g.Go(func() error {
		var err error
		in.Taps, err = e.loadEvents(ctx, features.StreamTaps, e.cfg.TapsSource)
		return err
	})
	g.Go(func() error {
		recs, err := e.x.Extract(ctx, features.StreamPays, e.cfg.PaysSource)
		if err != nil {
			return err
		}
		in.Payments, err = NormalizePayments(recs)
		return err
	})
	if err := g.Wait(); err != nil {
		return features.Input{}, err
	}
	e.log.Info("sources loaded",
		slog.Int("prints", len(in.Impressions)),
		slog.Int("taps", len(in.Taps)),
		slog.Int("pays", len(in.Payments)))
	return in, nil
}

func (e *ETL) loadEvents(ctx context.Context, stream, src string) ([]models.Impression, error) {
	recs, err := e.x.Extract(ctx, stream, src)
	if err != nil {
		return nil, err
	}
	flat, err := Flatten(stream, recs)
	if err != nil {
		return nil, err
	}
	return NormalizeEvents(stream, flat)
}

// Run loads the sources, computes the feature table, stores it and writes it
// to the configured output. Nothing is stored when any step fails.
func (e *ETL) Run(ctx context.Context) (features.Result, error) {
	in, err := e.Load(ctx)
	if err != nil {
		return features.Result{}, err
	}
	res, err := e.p.Run(ctx, in)
	if err != nil {
		return res, err
	}
	if e.cfg.OutputPath != "" {
		out, err := sink.Open(ctx, e.cfg.OutputPath, sink.S3Config{Region: e.cfg.AWSRegion, Endpoint: e.cfg.S3Endpoint})
		if err != nil {
			return res, err
		}
		if err := out.Write(ctx, res.Rows); err != nil {
			return res, fmt.Errorf("write %s: %w", out, err)
		}
		e.log.Info("feature table written", slog.String("dest", out.String()), slog.Int("rows", len(res.Rows)))
	}
	e.st.Replace(res)
	return res, nil
}

// ExportDay posts the stored rows of one day to the sink URL as signed JSON.
// A day already exported for the current run is skipped.
func (e *ETL) ExportDay(ctx context.Context, date time.Time) (int, error) {
	if e.cfg.SinkURL == "" || e.cfg.SinkSecret == "" {
		return 0, ErrSinkNotConfigured
	}
	d := models.DayUTC(date)
	run, rows, ok := e.st.Snapshot(d, d, nil)
	if !ok {
		return 0, ErrNoRun
	}
	if len(rows) == 0 {
		return 0, nil
	}
	key := "export|" + run.RunID + "|" + d.Format(models.DateLayout)
	if !e.st.MarkSeen(key) {
		return 0, nil
	}

	n, err := e.post(ctx, rows)
	if err != nil {
		e.st.Forget(key)
		return 0, err
	}
	return n, nil
}

func (e *ETL) post(ctx context.Context, rows []models.FeatureRow) (int, error) {
	payload := make([]models.Feature, 0, len(rows))
	for _, r := range rows {
		payload = append(payload, r.ToFeature())
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.SinkURL, bytes.NewReader(b))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", Sign(e.cfg.SinkSecret, b))
	resp, err := e.c.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, &StatusError{Code: resp.StatusCode, Body: "export sink rejected payload"}
	}
	return len(rows), nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
