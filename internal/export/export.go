// Package export writes tabular views of the gate register as CSV or XLSX.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

// ErrMissingColumn is returned by the readers when a header is absent.
var ErrMissingColumn = errors.New("missing column")

// Column maps a row key to the header printed for it.
type Column struct {
	Key    string `json:"key"`
	Header string `json:"header"`
}

// Row holds one record's values by column key. Missing keys export empty.
type Row map[string]string

// Filename returns "<name>_<YYYY-MM-DD>.csv".
func Filename(name string, t time.Time) string {
	return fmt.Sprintf("%s_%s.csv", name, t.Format(time.DateOnly))
}

// XLSXFilename returns "<name>_<YYYY-MM-DD>.xlsx".
func XLSXFilename(name string, t time.Time) string {
	return fmt.Sprintf("%s_%s.xlsx", name, t.Format(time.DateOnly))
}

// WriteCSV writes a header row and then one line per row, "\n" separated.
// Fields containing a comma, quote or newline are quoted with inner quotes
// doubled. A record made of one empty field is written as "" so that it
// does not turn into a blank line, which readers skip.
func WriteCSV(w io.Writer, cols []Column, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := writeRecord(w, cw, headers(cols)); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	rec := make([]string, len(cols))
	for i, r := range rows {
		for j, c := range cols {
			rec[j] = r[c.Key]
		}
		if err := writeRecord(w, cw, rec); err != nil {
			return fmt.Errorf("writing row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeRecord(w io.Writer, cw *csv.Writer, rec []string) error {
	if len(rec) != 1 || rec[0] != "" {
		return cw.Write(rec)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	_, err := io.WriteString(w, `""`+"\n")
	return err
}

// ReadCSV parses data written by WriteCSV back into rows keyed by cols.
// Header order may differ from cols; every column must be present.
func ReadCSV(r io.Reader, cols []Column) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}
	return toRows(records, cols)
}

// WriteXLSX writes the same table as WriteCSV into a single-sheet workbook.
func WriteXLSX(w io.Writer, sheet string, cols []Column, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheet == "" {
		sheet = "Sheet1"
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	hdr := make([]any, len(cols))
	for i, h := range headers(cols) {
		hdr[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &hdr); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, r := range rows {
		vals := make([]any, len(cols))
		for j, c := range cols {
			vals[j] = r[c.Key]
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &vals); err != nil {
			return fmt.Errorf("writing row %d: %w", i+1, err)
		}
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

// ReadXLSX reads the first sheet of a workbook written by WriteXLSX.
func ReadXLSX(r io.Reader, cols []Column) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", sheets[0], err)
	}
	return toRows(records, cols)
}

func headers(cols []Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Header
	}
	return out
}

func toRows(records [][]string, cols []Column) ([]Row, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no header row", ErrMissingColumn)
	}
	index := make(map[string]int, len(records[0]))
	for i, h := range records[0] {
		index[h] = i
	}
	pos := make([]int, len(cols))
	for i, c := range cols {
		p, ok := index[c.Header]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, c.Header)
		}
		pos[i] = p
	}

	rows := make([]Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(Row, len(cols))
		for i, c := range cols {
			if pos[i] < len(rec) {
				row[c.Key] = rec[pos[i]]
			} else {
				row[c.Key] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
