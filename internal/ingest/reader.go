package ingest

// reader.go wraps the spreadsheet library behind a small streaming surface.
// Sheets are read row by row so memory stays flat regardless of file size.

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Workbook is an open spreadsheet file. Not safe for concurrent use; each
// job opens its own.
type Workbook struct {
	f *excelize.File
}

// OpenWorkbook opens the spreadsheet at path. An unreadable or corrupt file
// yields a StructuralError.
func OpenWorkbook(path string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, &StructuralError{Message: fmt.Sprintf("open workbook: %v", err)}
	}
	return &Workbook{f: f}, nil
}

// Close releases the underlying file.
func (w *Workbook) Close() error {
	return w.f.Close()
}

// SheetNames returns the sheet names in workbook order.
func (w *Workbook) SheetNames() []string {
	return w.f.GetSheetList()
}

// RequireSheets verifies that every named sheet exists (case-sensitive).
// The error lists all missing names at once so the caller can report the
// full shortfall in a single failure.
func (w *Workbook) RequireSheets(names ...string) error {
	have := make(map[string]bool)
	for _, s := range w.SheetNames() {
		have[s] = true
	}

	var missing []string
	for _, name := range names {
		if !have[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &StructuralError{
			Sheet: missing[0],
			Message: fmt.Sprintf("missing required sheets: %s (workbook contains: %s)",
				strings.Join(missing, ", "), strings.Join(w.SheetNames(), ", ")),
		}
	}
	return nil
}

// CountRows streams a sheet once and counts its non-empty data rows. The
// header row is not counted. Rows whose cells are all blank are skipped,
// matching ReadSheet, so the count equals the number of rows a full read
// will deliver.
func (w *Workbook) CountRows(sheet string) (int, error) {
	rows, err := w.f.Rows(sheet)
	if err != nil {
		return 0, &StructuralError{Sheet: sheet, Message: fmt.Sprintf("read rows: %v", err)}
	}
	defer rows.Close()

	count := 0
	first := true
	for rows.Next() {
		cells, err := rows.Columns()
		if err != nil {
			return 0, &StructuralError{Sheet: sheet, Message: fmt.Sprintf("read row: %v", err)}
		}
		if first {
			first = false
			continue
		}
		if !rowEmpty(cells) {
			count++
		}
	}
	if err := rows.Error(); err != nil {
		return 0, &StructuralError{Sheet: sheet, Message: fmt.Sprintf("read rows: %v", err)}
	}
	return count, nil
}

// ReadSheet streams a sheet's data rows to fn. The first row is treated as
// the header and defines field names for every following row; header cells
// are trimmed. Fully blank rows are skipped. Row indices are 1-based over
// data rows, so the first row after the header is index 1.
//
// fn returning an error stops the read and propagates the error unchanged.
func (w *Workbook) ReadSheet(sheet string, fn func(RawRow) error) error {
	rows, err := w.f.Rows(sheet)
	if err != nil {
		return &StructuralError{Sheet: sheet, Message: fmt.Sprintf("read rows: %v", err)}
	}
	defer rows.Close()

	var header []string
	index := 0
	for rows.Next() {
		cells, err := rows.Columns()
		if err != nil {
			return &StructuralError{Sheet: sheet, Message: fmt.Sprintf("read row: %v", err)}
		}

		if header == nil {
			if rowEmpty(cells) {
				return &StructuralError{Sheet: sheet, Message: "empty header row"}
			}
			header = make([]string, len(cells))
			for i, h := range cells {
				header[i] = strings.TrimSpace(h)
			}
			continue
		}

		if rowEmpty(cells) {
			continue
		}
		index++

		values := make(map[string]string, len(header))
		for i, name := range header {
			if name == "" {
				continue
			}
			if i < len(cells) {
				values[name] = strings.TrimSpace(cells[i])
			} else {
				values[name] = ""
			}
		}

		if err := fn(RawRow{Sheet: sheet, Index: index, Values: values}); err != nil {
			return err
		}
	}
	if err := rows.Error(); err != nil {
		return &StructuralError{Sheet: sheet, Message: fmt.Sprintf("read rows: %v", err)}
	}
	if header == nil {
		return &StructuralError{Sheet: sheet, Message: "sheet has no header row"}
	}
	return nil
}

func rowEmpty(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
