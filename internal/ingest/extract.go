package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/AngelCh415/vp-features/internal/features"
)

type Format string

const (
	FormatJSONLines Format = "jsonl"
	FormatCSV       Format = "csv"
)

var ErrUnsupportedFormat = errors.New("unsupported file format")

// Record is one decoded source row before flattening and typing.
type Record map[string]any

// DetectFormat picks the decoder from the file extension of a path or URL.
func DetectFormat(src string) (Format, error) {
	p := src
	if isRemote(src) {
		u, err := url.Parse(src)
		if err != nil {
			return "", err
		}
		p = u.Path
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".json", ".jsonl", ".ndjson":
		return FormatJSONLines, nil
	case ".csv":
		return FormatCSV, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, src)
}

func isRemote(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

type Extractor struct {
	c       HTTPClient
	retries int
}

func NewExtractor(c HTTPClient, retries int) *Extractor {
	return &Extractor{c: c, retries: retries}
}

// Extract reads every row of src, a local path or an http(s) URL.
func (x *Extractor) Extract(ctx context.Context, stream, src string) ([]Record, error) {
	f, err := DetectFormat(src)
	if err != nil {
		return nil, err
	}

	var r io.Reader
	if isRemote(src) {
		b, err := GetWithRetry(ctx, x.c, src, x.retries)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", stream, err)
		}
		r = bytes.NewReader(b)
	} else {
		fh, err := os.Open(src)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", stream, err)
		}
		defer fh.Close()
		r = fh
	}

	if f == FormatCSV {
		return decodeCSV(stream, r)
	}
	return decodeJSONLines(stream, r)
}

func decodeJSONLines(stream string, r io.Reader) ([]Record, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var out []Record
	for row := 0; ; row++ {
		var rec Record
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, &features.SchemaError{Stream: stream, Row: row, Err: err}
		}
		out = append(out, rec)
	}
}

func decodeCSV(stream string, r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, &features.SchemaError{Stream: stream, Row: -1, Field: "header", Err: err}
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var out []Record
	for row := 0; ; row++ {
		vals, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, &features.SchemaError{Stream: stream, Row: row, Err: err}
		}
		rec := make(Record, len(header))
		for i, h := range header {
			rec[h] = vals[i]
		}
		out = append(out, rec)
	}
}
