package sink

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/AngelCh415/vp-features/internal/models"
)

// Sink persists a finished feature table.
type Sink interface {
	Write(ctx context.Context, rows []models.FeatureRow) error
	String() string
}

// Open returns the sink for dest: s3://bucket/key or a local file path.
func Open(ctx context.Context, dest string, s3cfg S3Config) (Sink, error) {
	if !strings.HasPrefix(dest, "s3://") {
		return &FileSink{Path: dest}, nil
	}
	u, err := url.Parse(dest)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", dest, err)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return nil, fmt.Errorf("s3 destination needs bucket and key: %q", dest)
	}
	s3cfg.Bucket = u.Host
	return NewS3Sink(ctx, s3cfg, key)
}
