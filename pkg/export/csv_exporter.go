package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// CSVExporter renders datasets as RFC 4180 CSV. Cells that a spreadsheet
// would evaluate as a formula are prefixed with a quote, since course titles
// and student names are user input.
type CSVExporter struct {
	// BOM prepends a UTF-8 byte order mark so spreadsheet apps detect the
	// encoding of non-Latin names.
	BOM bool
}

// NewCSVExporter returns an exporter that writes a BOM.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{BOM: true}
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Render returns the document. title has no place in CSV and is ignored.
func (e *CSVExporter) Render(data Dataset, _ string) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.Write(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write streams the header row and then one record per row to w, in header
// order. Missing keys become empty cells.
func (e *CSVExporter) Write(w io.Writer, data Dataset) error {
	if len(data.Headers) == 0 {
		return errors.New("csv export needs at least one column")
	}
	if e.BOM {
		if _, err := w.Write(utf8BOM); err != nil {
			return fmt.Errorf("write csv bom: %w", err)
		}
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(data.Headers); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(data.Headers))
	for n, row := range data.Rows {
		for i, col := range data.Headers {
			record[i] = neutralize(row[col])
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row %d: %w", n+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func neutralize(cell string) string {
	if cell == "" {
		return cell
	}
	switch cell[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + cell
	}
	return cell
}
