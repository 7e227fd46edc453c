// Package tabular reads uploaded CSV and Excel files into header-keyed rows.
package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"cdr-graph/backend/internal/schema"
	apperrors "cdr-graph/backend/pkg/errors"
)

// Table is a parsed upload. Header holds normalized column names; every row
// has exactly len(Header) cells.
type Table struct {
	Name   string
	Header []string
	Cells  [][]string
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.Cells) }

// Columns returns a copy of the normalized header.
func (t *Table) Columns() []string {
	return append([]string(nil), t.Header...)
}

// Row returns data row i keyed by normalized column. When two headers
// normalize to the same name the later column wins.
func (t *Table) Row(i int) schema.NormalizedRow {
	row := make(schema.NormalizedRow, len(t.Header))
	for j, col := range t.Header {
		row[col] = t.Cells[i][j]
	}
	return row
}

// Supported reports whether name has an extension Read understands.
func Supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".xlsx", ".xlsm":
		return true
	}
	return false
}

// Read parses r according to the extension of name.
func Read(name string, r io.Reader) (*Table, error) {
	if !Supported(name) {
		return nil, UnsupportedError(name)
	}
	if strings.ToLower(filepath.Ext(name)) == ".csv" {
		return ReadCSV(name, r)
	}
	return ReadXLSX(name, r)
}

// UnsupportedError is the error Read returns for a name Supported rejects.
func UnsupportedError(name string) error {
	return apperrors.NewTableInvalid(fmt.Sprintf("unsupported file extension %q", filepath.Ext(name)), nil)
}

// ReadCSV parses a comma separated file with a header row.
func ReadCSV(name string, r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var records [][]string
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperrors.NewTableInvalid("malformed csv", err)
		}
		records = append(records, rec)
	}
	return build(name, records)
}

// ReadXLSX parses the first sheet of an Excel workbook.
func ReadXLSX(name string, r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, apperrors.NewTableInvalid("unreadable workbook", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperrors.NewTableInvalid("workbook has no sheets", nil)
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, apperrors.NewTableInvalid("unreadable sheet "+sheets[0], err)
	}
	return build(name, records)
}

func build(name string, records [][]string) (*Table, error) {
	// Leading blank lines before the header are ignored.
	for len(records) > 0 && blank(records[0]) {
		records = records[1:]
	}
	if len(records) == 0 {
		return nil, apperrors.NewTableInvalid("file has no header row", nil)
	}

	header := schema.NormalizeColumns(stripBOM(records[0]))
	t := &Table{Name: name, Header: header}
	for _, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		cells := make([]string, len(header))
		copy(cells, rec)
		t.Cells = append(t.Cells, cells)
	}
	return t, nil
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func stripBOM(header []string) []string {
	if len(header) == 0 {
		return header
	}
	out := append([]string(nil), header...)
	out[0] = strings.TrimPrefix(out[0], "\ufeff")
	return out
}
