package features

import (
	"errors"
	"fmt"
)

const (
	StreamPrints = "prints"
	StreamTaps   = "taps"
	StreamPays   = "pays"
)

// SchemaError reports a required field that is missing or has the wrong kind.
// Row is zero-based within Stream; -1 when the failure is not row specific.
type SchemaError struct {
	Stream string
	Row    int
	Field  string
	Err    error
}

func (e *SchemaError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("schema: %s row %d: %v", e.Stream, e.Row, e.Err)
	}
	if e.Row < 0 {
		return fmt.Sprintf("schema: %s: field %q: %v", e.Stream, e.Field, e.Err)
	}
	return fmt.Sprintf("schema: %s row %d: field %q: %v", e.Stream, e.Row, e.Field, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

var (
	ErrMissing  = errors.New("missing value")
	ErrZeroDate = errors.New("zero date")
	ErrNotDay   = errors.New("not a UTC calendar day")
)
