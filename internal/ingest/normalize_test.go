package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/vp-features/internal/features"
)

const printsJSON = `{"day":"2020-11-01","event_data":{"position":0,"value_prop":" Cellphone_Recharge "},"user_id":98702}
{"day":"2020-11-01","event_data":{"position":1,"value_prop":"prepaid","banner":"top"},"user_id":"63252"}
`

const paysCSV = `pay_date,total,user_id,value_prop
2020-11-01,645.73,35387,request_money
2020-11-01,1,63252, Prepaid
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestDetectFormat(t *testing.T) {
	for src, want := range map[string]Format{
		"data/prints.json":                 FormatJSONLines,
		"data/taps.JSONL":                  FormatJSONLines,
		"pays.csv":                         FormatCSV,
		"https://example.com/pays.csv?v=1": FormatCSV,
		"http://example.com/a/prints.json": FormatJSONLines,
	} {
		got, err := DetectFormat(src)
		require.NoError(t, err, src)
		assert.Equal(t, want, got, src)
	}
	_, err := DetectFormat("pays.parquet")
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExtractAndNormalizeEvents(t *testing.T) {
	x := NewExtractor(NewHTTPClient(time.Second), 0)
	recs, err := x.Extract(context.Background(), features.StreamPrints, writeFile(t, "prints.json", printsJSON))
	require.NoError(t, err)
	require.Len(t, recs, 2)

	flat, err := Flatten(features.StreamPrints, recs)
	require.NoError(t, err)
	assert.NotContains(t, flat[0], "event_data")

	events, err := NormalizeEvents(features.StreamPrints, flat)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "98702", events[0].UserID)
	assert.Equal(t, time.Date(2020, 11, 1, 0, 0, 0, 0, time.UTC), events[0].Day)
	assert.Equal(t, "cellphone_recharge", events[0].Category)
	assert.Equal(t, 0, events[0].Position)
	assert.Empty(t, events[0].Extra)

	assert.Equal(t, "63252", events[1].UserID)
	assert.Equal(t, 1, events[1].Position)
	assert.Equal(t, map[string]string{"banner": "top"}, events[1].Extra)
}

func TestExtractAndNormalizePayments(t *testing.T) {
	x := NewExtractor(NewHTTPClient(time.Second), 0)
	recs, err := x.Extract(context.Background(), features.StreamPays, writeFile(t, "pays.csv", paysCSV))
	require.NoError(t, err)

	pays, err := NormalizePayments(recs)
	require.NoError(t, err)
	require.Len(t, pays, 2)
	assert.Equal(t, "35387", pays[0].UserID)
	assert.Equal(t, "645.73", pays[0].Total.String())
	assert.Equal(t, "request_money", pays[0].Category)
	assert.Equal(t, "prepaid", pays[1].Category, "pays categories are normalized like prints")
}

func TestNormalizeSchemaErrors(t *testing.T) {
	cases := []struct {
		name   string
		stream string
		rec    Record
		field  string
	}{
		{"bad day", features.StreamPrints, Record{"user_id": "1", "day": "yesterday", "value_prop": "a", "position": "0"}, "day"},
		{"missing user", features.StreamTaps, Record{"day": "2020-11-01", "value_prop": "a", "position": "0"}, "user_id"},
		{"fractional position", features.StreamPrints, Record{"user_id": "1", "day": "2020-11-01", "value_prop": "a", "position": "1.5"}, "position"},
		{"missing category", features.StreamPrints, Record{"user_id": "1", "day": "2020-11-01", "position": "0"}, "value_prop"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NormalizeEvents(tc.stream, []Record{tc.rec})
			var se *features.SchemaError
			require.True(t, errors.As(err, &se), "%v", err)
			assert.Equal(t, tc.stream, se.Stream)
			assert.Equal(t, tc.field, se.Field)
			assert.Equal(t, 0, se.Row)
		})
	}

	_, err := NormalizePayments([]Record{{"user_id": "1", "pay_date": "2020-11-01", "total": "abc", "value_prop": "a"}})
	var se *features.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "total", se.Field)
}

func TestFlattenRejectsCollision(t *testing.T) {
	_, err := Flatten(features.StreamTaps, []Record{{"user_id": "1", "event_data": map[string]any{"user_id": "2"}}})
	assert.True(t, features.IsSchemaError(err))

	_, err = Flatten(features.StreamTaps, []Record{{"event_data": "flat"}})
	assert.True(t, features.IsSchemaError(err))
}

func TestNormalizeRejectsOutputColumnNames(t *testing.T) {
	for _, col := range []string{"clicked", "quantity_views_prev_print", "import_accumulates_prev_print"} {
		flat, err := Flatten(features.StreamPrints, []Record{{
			"user_id":    "1",
			"day":        "2020-11-01",
			"event_data": map[string]any{"position": "0", "value_prop": "a", col: "x"},
		}})
		require.NoError(t, err)

		_, err = NormalizeEvents(features.StreamPrints, flat)
		var se *features.SchemaError
		require.True(t, errors.As(err, &se), "%s: %v", col, err)
		assert.Equal(t, col, se.Field)
	}
}

func TestExtractMalformedJSONLine(t *testing.T) {
	x := NewExtractor(NewHTTPClient(time.Second), 0)
	src := writeFile(t, "taps.json", `{"day":"2020-11-01"}`+"\n{broken\n")
	_, err := x.Extract(context.Background(), features.StreamTaps, src)
	var se *features.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 1, se.Row)
}

func TestExtractUnsupported(t *testing.T) {
	x := NewExtractor(NewHTTPClient(time.Second), 0)
	_, err := x.Extract(context.Background(), features.StreamPays, "pays.xlsx")
	require.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.True(t, strings.Contains(err.Error(), "pays.xlsx"))
}
