package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/AngelCh415/vp-features/internal/models"
)

// FileSink writes the CSV to Path, replacing it atomically.
type FileSink struct {
	Path string
}

func (f *FileSink) String() string { return f.Path }

func (f *FileSink) Write(ctx context.Context, rows []models.FeatureRow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".features-*.csv")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := WriteCSV(tmp, rows); err != nil {
		tmp.Close()
		return fmt.Errorf("encode csv: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.Path)
}
