package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/AngelCh415/vp-features/internal/features"
	"github.com/AngelCh415/vp-features/internal/models"
	"github.com/AngelCh415/vp-features/internal/sink"
)

var (
	errNotObject  = errors.New("nested value is not an object")
	errDuplicate  = errors.New("nested key collides with a top-level column")
	errBadDate    = errors.New("not a date")
	errBadInteger = errors.New("not an integer")
	errBadNumber  = errors.New("not numeric")
	errReserved   = errors.New("passthrough column shadows an output column")
)

// nestedColumns are unpacked into top-level columns by Flatten.
var nestedColumns = []string{"event_data"}

var dayLayouts = []string{
	models.DateLayout,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// Flatten promotes the keys of nested event payloads to columns and drops the
// nested column. A nested key clashing with an existing column is an error.
func Flatten(stream string, recs []Record) ([]Record, error) {
	out := make([]Record, len(recs))
	for i, rec := range recs {
		flat := make(Record, len(rec))
		for k, v := range rec {
			if !isNested(k) {
				flat[k] = v
			}
		}
		for _, col := range nestedColumns {
			v, ok := rec[col]
			if !ok || v == nil {
				continue
			}
			obj, ok := v.(map[string]any)
			if !ok {
				return nil, &features.SchemaError{Stream: stream, Row: i, Field: col, Err: errNotObject}
			}
			for k, nv := range obj {
				if _, dup := flat[k]; dup {
					return nil, &features.SchemaError{Stream: stream, Row: i, Field: k, Err: errDuplicate}
				}
				flat[k] = nv
			}
		}
		out[i] = flat
	}
	return out, nil
}

func isNested(k string) bool {
	for _, c := range nestedColumns {
		if k == c {
			return true
		}
	}
	return false
}

// NormalizeEvents types flattened print or tap rows. Unknown columns are kept
// as passthrough strings; one named like an output column is a SchemaError.
func NormalizeEvents(stream string, recs []Record) ([]models.Impression, error) {
	out := make([]models.Impression, 0, len(recs))
	for i, rec := range recs {
		fail := func(field string, err error) error {
			return &features.SchemaError{Stream: stream, Row: i, Field: field, Err: err}
		}
		user, ok := text(rec["user_id"])
		if !ok || user == "" {
			return nil, fail("user_id", features.ErrMissing)
		}
		d, err := parseDay(rec["day"])
		if err != nil {
			return nil, fail("day", err)
		}
		catField, cat := category(rec)
		if cat == "" {
			return nil, fail(catField, features.ErrMissing)
		}
		pos, err := integer(rec["position"])
		if err != nil {
			return nil, fail("position", err)
		}

		var extra map[string]string
		for k, v := range rec {
			switch k {
			case "user_id", "day", "position", "value_prop", "category":
				continue
			}
			if slices.Contains(sink.Columns, k) {
				return nil, fail(k, errReserved)
			}
			if extra == nil {
				extra = make(map[string]string)
			}
			extra[k] = passthrough(v)
		}
		out = append(out, models.Impression{UserID: user, Day: d, Category: cat, Position: pos, Extra: extra})
	}
	return out, nil
}

// NormalizePayments types pay rows.
func NormalizePayments(recs []Record) ([]models.Payment, error) {
	out := make([]models.Payment, 0, len(recs))
	for i, rec := range recs {
		fail := func(field string, err error) error {
			return &features.SchemaError{Stream: features.StreamPays, Row: i, Field: field, Err: err}
		}
		user, ok := text(rec["user_id"])
		if !ok || user == "" {
			return nil, fail("user_id", features.ErrMissing)
		}
		d, err := parseDay(rec["pay_date"])
		if err != nil {
			return nil, fail("pay_date", err)
		}
		total, err := amount(rec["total"])
		if err != nil {
			return nil, fail("total", err)
		}
		catField, cat := category(rec)
		if cat == "" {
			return nil, fail(catField, features.ErrMissing)
		}
		out = append(out, models.Payment{UserID: user, PayDate: d, Total: total, Category: cat})
	}
	return out, nil
}

// NormalizeCategory lower-cases and trims a value proposition label.
func NormalizeCategory(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func category(rec Record) (string, string) {
	for _, k := range []string{"value_prop", "category"} {
		if s, ok := text(rec[k]); ok {
			return k, NormalizeCategory(s)
		}
	}
	return "value_prop", ""
}

func text(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return "", false
}

func parseDay(v any) (time.Time, error) {
	s, ok := text(v)
	if !ok || s == "" {
		return time.Time{}, features.ErrMissing
	}
	for _, l := range dayLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return models.DayUTC(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", errBadDate, s)
}

func integer(v any) (int, error) {
	s, ok := text(v)
	if !ok || s == "" {
		return 0, features.ErrMissing
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %q", errBadInteger, s)
	}
	return int(f), nil
}

func amount(v any) (decimal.Decimal, error) {
	s, ok := text(v)
	if !ok || s == "" {
		return decimal.Decimal{}, features.ErrMissing
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", errBadNumber, s)
	}
	return d, nil
}

func passthrough(v any) string {
	if s, ok := text(v); ok {
		return s
	}
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
