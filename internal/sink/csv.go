package sink

import (
	"encoding/csv"
	"io"
	"slices"
	"strconv"

	"github.com/AngelCh415/vp-features/internal/models"
)

// Columns is the fixed part of the feature table header.
var Columns = []string{
	"user_id",
	"day",
	"category",
	"position",
	"clicked",
	"quantity_views_prev_print",
	"quantity_clicked_prev_print",
	"import_accumulates_prev_print",
}

// Header returns Columns followed by every passthrough column, sorted.
func Header(rows []models.FeatureRow) []string {
	set := make(map[string]struct{})
	for _, r := range rows {
		for k := range r.Extra {
			set[k] = struct{}{}
		}
	}
	extra := make([]string, 0, len(set))
	for k := range set {
		if !slices.Contains(Columns, k) {
			extra = append(extra, k)
		}
	}
	slices.Sort(extra)
	return append(slices.Clone(Columns), extra...)
}

// WriteCSV encodes rows with a header line. Output depends only on rows.
func WriteCSV(w io.Writer, rows []models.FeatureRow) error {
	header := Header(rows)
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	rec := make([]string, len(header))
	for _, r := range rows {
		rec[0] = r.UserID
		rec[1] = r.Day.Format(models.DateLayout)
		rec[2] = r.Category
		rec[3] = strconv.Itoa(r.Position)
		rec[4] = strconv.FormatBool(r.Clicked)
		rec[5] = strconv.Itoa(r.ViewsPrev)
		rec[6] = strconv.Itoa(r.ClicksPrev)
		rec[7] = r.AmountPrev.String()
		for i, col := range header[len(Columns):] {
			rec[len(Columns)+i] = r.Extra[col]
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
