package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/AngelCh415/vp-features/internal/config"
	"github.com/AngelCh415/vp-features/internal/features"
	"github.com/AngelCh415/vp-features/internal/ingest"
	"github.com/AngelCh415/vp-features/internal/store"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd(config.FromEnv()).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(cfg config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "featurize",
		Short:         "Build the value proposition feature table from print, tap and pay logs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(cfg))
	return root
}

func newRunCmd(cfg config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once and write the feature table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.OutputPath == "" {
				return fmt.Errorf("--out is required")
			}
			logger := slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.LogLevel}))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p := features.NewPipeline(logger, features.Options{
				LabelWindowDays:   cfg.LabelWindowDays,
				FeatureWindowDays: cfg.FeatureWindowDays,
			}, nil)
			etl := ingest.NewETL(ingest.NewHTTPClient(cfg.HTTPTimeout), store.NewMemoryStore(), p, logger, cfg)
			res, err := etl.Run(ctx)
			if err != nil {
				logger.Error("feature run failed", slog.String("err", err.Error()))
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d rows written to %s (run %s)\n", len(res.Rows), cfg.OutputPath, res.RunID)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.PrintsSource, "prints", cfg.PrintsSource, "prints source (path or http(s) URL)")
	f.StringVar(&cfg.TapsSource, "taps", cfg.TapsSource, "taps source (path or http(s) URL)")
	f.StringVar(&cfg.PaysSource, "pays", cfg.PaysSource, "pays source (path or http(s) URL)")
	f.StringVar(&cfg.OutputPath, "out", cfg.OutputPath, "output CSV path or s3://bucket/key")
	f.IntVar(&cfg.LabelWindowDays, "label-window", cfg.LabelWindowDays, "days of prints to label, counted back from the latest print")
	f.IntVar(&cfg.FeatureWindowDays, "feature-window", cfg.FeatureWindowDays, "trailing window in days for the prior counts")
	return cmd
}
