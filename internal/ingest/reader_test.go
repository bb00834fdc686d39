package ingest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

// writeWorkbook builds an xlsx file in a temp dir. sheets maps sheet name to
// rows, each row a slice of cell values starting at A1.
func writeWorkbook(t *testing.T, sheets map[string][][]any) string {
	t.Helper()

	f := excelize.NewFile()
	first := true
	for name, rows := range sheets {
		if first {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				t.Fatalf("rename sheet: %v", err)
			}
			first = false
		} else {
			if _, err := f.NewSheet(name); err != nil {
				t.Fatalf("new sheet: %v", err)
			}
		}
		for i, row := range rows {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			if err != nil {
				t.Fatalf("cell name: %v", err)
			}
			if err := f.SetSheetRow(name, cell, &row); err != nil {
				t.Fatalf("set row: %v", err)
			}
		}
	}

	path := filepath.Join(t.TempDir(), "input.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save workbook: %v", err)
	}
	return path
}

func employeeSheetRows(extra ...[]any) [][]any {
	rows := [][]any{
		{"employee_id", "name", "department_code", "salary", "hire_date"},
		{"E001", "Alice Nowak", "HR", "58000", "15/03/2019"},
		{"E002", "Bob Lee", "DEV", "72000", "01/09/2021"},
	}
	return append(rows, extra...)
}

func TestWorkbookRequireSheets(t *testing.T) {
	path := writeWorkbook(t, map[string][][]any{
		SheetEmployees: employeeSheetRows(),
	})
	wb, err := OpenWorkbook(path)
	if err != nil {
		t.Fatalf("OpenWorkbook: %v", err)
	}
	defer wb.Close()

	if err := wb.RequireSheets(SheetEmployees); err != nil {
		t.Errorf("RequireSheets(Employees): %v", err)
	}

	err = wb.RequireSheets(SheetEmployees, SheetProjects)
	if err == nil {
		t.Fatal("expected error for missing Projects sheet")
	}
	var structErr *StructuralError
	if !errors.As(err, &structErr) {
		t.Fatalf("error type = %T, want *StructuralError", err)
	}
	if !strings.Contains(err.Error(), SheetProjects) {
		t.Errorf("error %q does not name the missing sheet", err.Error())
	}
	if !strings.Contains(err.Error(), SheetEmployees) {
		t.Errorf("error %q does not list available sheets", err.Error())
	}
}

func TestWorkbookCountRows(t *testing.T) {
	path := writeWorkbook(t, map[string][][]any{
		SheetEmployees: employeeSheetRows(
			[]any{"", "", "", "", ""}, // blank row, not counted
			[]any{"E003", "Cara Diaz", "FIN", "61000", "02/01/2023"},
		),
	})
	wb, err := OpenWorkbook(path)
	if err != nil {
		t.Fatalf("OpenWorkbook: %v", err)
	}
	defer wb.Close()

	n, err := wb.CountRows(SheetEmployees)
	if err != nil {
		t.Fatalf("CountRows: %v", err)
	}
	if n != 3 {
		t.Errorf("CountRows = %d, want 3", n)
	}
}

func TestWorkbookReadSheet(t *testing.T) {
	path := writeWorkbook(t, map[string][][]any{
		SheetEmployees: employeeSheetRows(
			[]any{"", "", "", "", ""},
			[]any{"E003", "Cara Diaz"}, // short row, trailing fields blank
		),
	})
	wb, err := OpenWorkbook(path)
	if err != nil {
		t.Fatalf("OpenWorkbook: %v", err)
	}
	defer wb.Close()

	var rows []RawRow
	err = wb.ReadSheet(SheetEmployees, func(r RawRow) error {
		rows = append(rows, r)
		return nil
	})
	if err != nil {
		t.Fatalf("ReadSheet: %v", err)
	}

	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if rows[0].Index != 1 || rows[2].Index != 3 {
		t.Errorf("row indices = %d..%d, want 1..3", rows[0].Index, rows[2].Index)
	}
	if got := rows[0].Get("employee_id"); got != "E001" {
		t.Errorf("row 1 employee_id = %q, want E001", got)
	}
	if got := rows[1].Get("hire_date"); got != "01/09/2021" {
		t.Errorf("row 2 hire_date = %q, want 01/09/2021", got)
	}
	if got := rows[2].Get("salary"); got != "" {
		t.Errorf("short row salary = %q, want empty", got)
	}
	if rows[2].Sheet != SheetEmployees {
		t.Errorf("row sheet = %q, want %q", rows[2].Sheet, SheetEmployees)
	}
}

func TestWorkbookReadSheetStopsOnCallbackError(t *testing.T) {
	path := writeWorkbook(t, map[string][][]any{
		SheetEmployees: employeeSheetRows(),
	})
	wb, err := OpenWorkbook(path)
	if err != nil {
		t.Fatalf("OpenWorkbook: %v", err)
	}
	defer wb.Close()

	stop := errors.New("stop")
	calls := 0
	err = wb.ReadSheet(SheetEmployees, func(RawRow) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) {
		t.Fatalf("err = %v, want the callback error", err)
	}
	if calls != 1 {
		t.Errorf("callback ran %d times, want 1", calls)
	}
}

func TestOpenWorkbookInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.xlsx")
	if err := os.WriteFile(path, []byte("not a spreadsheet"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	_, err := OpenWorkbook(path)
	if err == nil {
		t.Fatal("expected error for invalid file")
	}
	var structErr *StructuralError
	if !errors.As(err, &structErr) {
		t.Fatalf("error type = %T, want *StructuralError", err)
	}
}
