package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

type Config struct {
	PrintsSource string
	TapsSource   string
	PaysSource   string
	OutputPath   string // file path or s3://bucket/key; empty disables the CSV sink

	SinkURL    string
	SinkSecret string

	Port         string
	HTTPTimeout  time.Duration
	FetchRetries int
	LogLevel     slog.Level

	LabelWindowDays   int
	FeatureWindowDays int

	AWSRegion  string
	S3Endpoint string
}

func FromEnv() Config {
	to := 15 * time.Second
	if v := os.Getenv("HTTP_TIMEOUT_SECONDS"); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil {
			to = d
		}
	}
	lvl := slog.LevelInfo
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	return Config{
		PrintsSource:      envOr("PRINTS_SOURCE", "data/raw/prints.json"),
		TapsSource:        envOr("TAPS_SOURCE", "data/raw/taps.json"),
		PaysSource:        envOr("PAYS_SOURCE", "data/raw/pays.csv"),
		OutputPath:        os.Getenv("OUTPUT_PATH"),
		SinkURL:           os.Getenv("SINK_URL"),
		SinkSecret:        os.Getenv("SINK_SECRET"),
		Port:              envOr("PORT", "8080"),
		HTTPTimeout:       to,
		FetchRetries:      intOr("FETCH_RETRIES", 2),
		LogLevel:          lvl,
		LabelWindowDays:   intOr("LABEL_WINDOW_DAYS", 7),
		FeatureWindowDays: intOr("FEATURE_WINDOW_DAYS", 21),
		AWSRegion:         envOr("AWS_REGION", "us-east-1"),
		S3Endpoint:        os.Getenv("S3_ENDPOINT"),
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

// 0 es válido: ventana de un solo día
func intOr(k string, def int) int {
	v, err := strconv.Atoi(os.Getenv(k))
	if err != nil || v < 0 {
		return def
	}
	return v
}
