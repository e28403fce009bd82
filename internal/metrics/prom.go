package metrics

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AngelCh415/vp-features/internal/features"
)

const namespace = "vpfeatures"

// Recorder exposes pipeline runs as Prometheus collectors.
type Recorder struct {
	runs        *prometheus.CounterVec
	duration    prometheus.Histogram
	rows        *prometheus.GaugeVec
	fanOutKeys  *prometheus.GaugeVec
	lastSuccess prometheus.Gauge
}

func NewRecorder(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Feature pipeline runs by outcome.",
		}, []string{"status"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of feature pipeline runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		rows: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "table_rows",
			Help:      "Rows per derived table in the last successful run.",
		}, []string{"table"}),
		fanOutKeys: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "join_fanout_keys",
			Help:      "Join keys matched by several windowed rows in the last successful run.",
		}, []string{"series"}),
		lastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
	}
}

func (r *Recorder) ObserveRun(res features.Result, err error) {
	r.duration.Observe(res.Duration.Seconds())
	switch {
	case err == nil:
		r.runs.WithLabelValues("ok").Inc()
	case features.IsSchemaError(err):
		r.runs.WithLabelValues("schema_error").Inc()
		return
	case errors.Is(err, context.Canceled):
		r.runs.WithLabelValues("canceled").Inc()
		return
	default:
		r.runs.WithLabelValues("error").Inc()
		return
	}

	r.rows.WithLabelValues("labeled").Set(float64(len(res.Labeled)))
	r.rows.WithLabelValues("views").Set(float64(len(res.Windows.Views)))
	r.rows.WithLabelValues("clicks").Set(float64(len(res.Windows.Clicks)))
	r.rows.WithLabelValues("payments").Set(float64(len(res.Windows.Payments)))
	r.rows.WithLabelValues("features").Set(float64(len(res.Rows)))
	r.fanOutKeys.WithLabelValues("views").Set(float64(res.FanOut.Views))
	r.fanOutKeys.WithLabelValues("clicks").Set(float64(res.FanOut.Clicks))
	r.fanOutKeys.WithLabelValues("payments").Set(float64(res.FanOut.Payments))
	r.lastSuccess.Set(float64(res.Started.Add(res.Duration).Unix()))
}
