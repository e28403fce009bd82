package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/AngelCh415/vp-features/internal/utils"
)

// GetWithRetry fetches url, retrying transport errors and 5xx answers with
// exponential backoff. 4xx answers are returned at once.
func GetWithRetry(ctx context.Context, c HTTPClient, url string, retries int) ([]byte, error) {
	var body []byte
	var final error
	err := utils.NewBackoff(100*time.Millisecond, retries).Do(ctx, func(int) error {
		b, err := get(ctx, c, url)
		var se *StatusError
		if errors.As(err, &se) && se.Code < 500 {
			final = err
			return nil
		}
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	if final != nil {
		return nil, final
	}
	return body, nil
}
