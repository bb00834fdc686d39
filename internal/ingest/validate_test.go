package ingest

import (
	"strings"
	"testing"
)

func employeeRow(index int, overrides map[string]string) RawRow {
	values := map[string]string{
		"employee_id":     "E001",
		"name":            "Alice Nowak",
		"department_code": "HR",
		"salary":          "58000",
		"hire_date":       "15/03/2019",
	}
	for k, v := range overrides {
		values[k] = v
	}
	return RawRow{Sheet: SheetEmployees, Index: index, Values: values}
}

func TestValidateEmployee(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]string
		wantField string
		wantMsg   string
	}{
		{
			name: "valid row passes",
		},
		{
			name:      "missing employee_id",
			overrides: map[string]string{"employee_id": ""},
			wantField: "employee_id",
			wantMsg:   "employee_id is required",
		},
		{
			name:      "missing salary",
			overrides: map[string]string{"salary": ""},
			wantField: "salary",
			wantMsg:   "salary is required",
		},
		{
			name:      "non-numeric salary",
			overrides: map[string]string{"salary": "abc"},
			wantField: "salary",
			wantMsg:   "salary must be numeric, got: abc",
		},
		{
			name:      "unparseable hire date",
			overrides: map[string]string{"hire_date": "sometime in March"},
			wantField: "hire_date",
			wantMsg:   "hire_date must be a date, got: sometime in March",
		},
		{
			name:      "blank optional hire date passes",
			overrides: map[string]string{"hire_date": ""},
		},
		{
			name:      "currency formatted salary passes",
			overrides: map[string]string{"salary": "$58,000.50"},
		},
		{
			name: "required check wins over type check",
			overrides: map[string]string{
				"employee_id": "",
				"salary":      "abc",
			},
			wantField: "employee_id",
			wantMsg:   "employee_id is required",
		},
	}

	v := NewValidator(EmployeeSheet, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rowErr := v.Validate(employeeRow(1, tt.overrides))
			if tt.wantMsg == "" {
				if rowErr != nil {
					t.Fatalf("Validate returned %v, want nil", rowErr)
				}
				return
			}
			if rowErr == nil {
				t.Fatal("Validate returned nil, want an error")
			}
			if rowErr.Field != tt.wantField {
				t.Errorf("field = %q, want %q", rowErr.Field, tt.wantField)
			}
			if rowErr.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", rowErr.Message, tt.wantMsg)
			}
			if rowErr.Sheet != SheetEmployees || rowErr.Row != 1 {
				t.Errorf("location = %s row %d, want %s row 1", rowErr.Sheet, rowErr.Row, SheetEmployees)
			}
		})
	}
}

func TestValidateProject(t *testing.T) {
	v := NewValidator(ProjectSheet, nil)

	row := RawRow{Sheet: SheetProjects, Index: 4, Values: map[string]string{
		"project_id":   "",
		"project_name": "Apollo",
		"budget_usd":   "120000",
	}}
	rowErr := v.Validate(row)
	if rowErr == nil || rowErr.Message != "project_id is required" {
		t.Fatalf("Validate = %v, want project_id is required", rowErr)
	}

	row.Values["project_id"] = "P010"
	row.Values["budget_usd"] = "lots"
	rowErr = v.Validate(row)
	if rowErr == nil || !strings.Contains(rowErr.Message, "budget_usd must be numeric") {
		t.Fatalf("Validate = %v, want budget_usd numeric error", rowErr)
	}
	if rowErr.Row != 4 {
		t.Errorf("row = %d, want 4", rowErr.Row)
	}
}

func TestValidatorWidenedByRules(t *testing.T) {
	input := rulesCSVHeader +
		"Employees,bonus,salary,CAST,NUMBER\n"
	rs, err := LoadRules(strings.NewReader(input))
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}

	v := NewValidator(EmployeeSheet, rs)
	rowErr := v.Validate(employeeRow(2, map[string]string{"bonus": "n/a"}))
	if rowErr == nil {
		t.Fatal("expected a numeric error for rule-cast field")
	}
	if rowErr.Field != "bonus" || !strings.Contains(rowErr.Message, "bonus must be numeric") {
		t.Errorf("got %v, want bonus numeric error", rowErr)
	}

	if got := v.Validate(employeeRow(2, map[string]string{"bonus": "1500"})); got != nil {
		t.Errorf("valid bonus rejected: %v", got)
	}
}
