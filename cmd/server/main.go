package main

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/AngelCh415/vp-features/internal/config"
	"github.com/AngelCh415/vp-features/internal/features"
	"github.com/AngelCh415/vp-features/internal/httpx"
	"github.com/AngelCh415/vp-features/internal/ingest"
	"github.com/AngelCh415/vp-features/internal/metrics"
	"github.com/AngelCh415/vp-features/internal/store"
)

func main() {
	_ = godotenv.Load() // .env opcional
	cfg := config.FromEnv()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	p := features.NewPipeline(logger, features.Options{
		LabelWindowDays:   cfg.LabelWindowDays,
		FeatureWindowDays: cfg.FeatureWindowDays,
	}, metrics.NewRecorder(reg))

	cl := ingest.NewHTTPClient(cfg.HTTPTimeout)
	st := store.NewMemoryStore()
	etl := ingest.NewETL(cl, st, p, logger, cfg)
	mSvc := metrics.NewService(st)

	r := httpx.NewRouter(logger, etl, st, mSvc, reg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("starting server", slog.String("port", cfg.Port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", slog.String("err", err.Error()))
		os.Exit(1)
	}
}
