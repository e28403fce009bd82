package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AngelCh415/vp-features/internal/features"
	"github.com/AngelCh415/vp-features/internal/ingest"
	"github.com/AngelCh415/vp-features/internal/metrics"
	"github.com/AngelCh415/vp-features/internal/sink"
	"github.com/AngelCh415/vp-features/internal/store"
	"github.com/AngelCh415/vp-features/internal/utils"
)

func NewRouter(log *slog.Logger, etl *ingest.ETL, st *store.MemoryStore, mSvc *metrics.Service, gatherer prometheus.Gatherer) http.Handler {
	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer)
	mux.Use(utils.RequestID)
	mux.Use(utils.Logger(log))

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
	mux.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if _, ok := st.Latest(); !ok {
			http.Error(w, "no feature run yet", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(200)
		w.Write([]byte("ready"))
	})
	mux.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// una corrida a la vez
	var runMu sync.Mutex
	mux.Post("/features/run", func(w http.ResponseWriter, r *http.Request) {
		if !runMu.TryLock() {
			http.Error(w, "run already in progress", http.StatusConflict)
			return
		}
		defer runMu.Unlock()
		res, err := etl.Run(r.Context())
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		info, _ := st.Latest()
		log.Info("features run via http", slog.String("run_id", res.RunID), slog.String("rid", utils.RID(r.Context())))
		writeJSON(w, info)
	})

	mux.Get("/features/run", func(w http.ResponseWriter, r *http.Request) {
		info, ok := st.Latest()
		if !ok {
			http.Error(w, ingest.ErrNoRun.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, info)
	})

	mux.Get("/features", func(w http.ResponseWriter, r *http.Request) {
		rows, err := mSvc.QueryFeatures(r.URL.Query())
		if err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
		writeJSON(w, rows)
	})

	mux.Get("/features/summary", func(w http.ResponseWriter, r *http.Request) {
		rows, err := mSvc.QuerySummary(r.URL.Query())
		if err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
		writeJSON(w, rows)
	})

	mux.Get("/features.csv", func(w http.ResponseWriter, r *http.Request) {
		if _, ok := st.Latest(); !ok {
			http.Error(w, ingest.ErrNoRun.Error(), http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		if err := sink.WriteCSV(w, st.All()); err != nil {
			log.Error("csv stream failed", slog.String("err", err.Error()))
		}
	})

	mux.Post("/export/run", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("date")
		if q == "" {
			http.Error(w, "date required (YYYY-MM-DD)", 400)
			return
		}
		t, err := time.Parse("2006-01-02", q)
		if err != nil {
			http.Error(w, "bad date", 400)
			return
		}
		n, err := etl.ExportDay(r.Context(), t)
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		writeJSON(w, map[string]any{"exported": n})
	})

	return mux
}

func statusFor(err error) int {
	switch {
	case features.IsSchemaError(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ingest.ErrNoRun):
		return http.StatusNotFound
	case errors.Is(err, ingest.ErrSinkNotConfigured):
		return http.StatusPreconditionFailed
	case errors.Is(err, ingest.ErrUnsupportedFormat):
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", " ")
	enc.Encode(v)
}
