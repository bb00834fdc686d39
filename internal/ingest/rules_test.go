package ingest

import (
	"errors"
	"strings"
	"testing"
)

const rulesCSVHeader = "source_sheet,source_field,target_field,transformation_type,parameters\n"

func TestLoadRules(t *testing.T) {
	input := rulesCSVHeader +
		`Employees,department_code,department_name,MAPPING,"HR:Human Resources, DEV:Development, FIN:Finance"` + "\n" +
		"Employees,salary,annual_salary_eur,CALCULATION,0.92\n" +
		"Employees,hire_date,tenure_years,CALCULATION,DATE_DIFF_TO_NOW\n" +
		"Projects,budget_usd,budget_usd,CAST,NUMBER\n" +
		"Projects,project_name,project_name,RENAME,\n"

	rs, err := LoadRules(strings.NewReader(input))
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}

	rules := rs.Rules()
	if len(rules) != 5 {
		t.Fatalf("got %d rules, want 5", len(rules))
	}

	mapping := rules[0]
	if mapping.Kind != RuleMapping {
		t.Errorf("rule 0 kind = %q, want %q", mapping.Kind, RuleMapping)
	}
	if got := mapping.Mapping["DEV"]; got != "Development" {
		t.Errorf("mapping DEV = %q, want Development", got)
	}
	if len(mapping.Mapping) != 3 {
		t.Errorf("mapping has %d pairs, want 3", len(mapping.Mapping))
	}

	calc := rules[1]
	if calc.Kind != RuleCalculation || calc.Factor != 0.92 || calc.DateDiff {
		t.Errorf("rule 1 = %+v, want numeric calculation with factor 0.92", calc)
	}

	tenure := rules[2]
	if !tenure.DateDiff {
		t.Errorf("rule 2 = %+v, want DATE_DIFF_TO_NOW calculation", tenure)
	}

	cast := rules[3]
	if cast.Kind != RuleCast || cast.Cast != CastNumber {
		t.Errorf("rule 3 = %+v, want CAST NUMBER", cast)
	}

	if got := rs.ForSheet(SheetEmployees); len(got) != 3 {
		t.Errorf("ForSheet(Employees) returned %d rules, want 3", len(got))
	}
}

func TestLoadRulesOrderPreserved(t *testing.T) {
	input := rulesCSVHeader +
		"Employees,salary,salary,CAST,NUMBER\n" +
		"Employees,salary,annual_salary_eur,CALCULATION,0.92\n"

	rs, err := LoadRules(strings.NewReader(input))
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	rules := rs.Rules()
	if rules[0].TargetField != "salary" || rules[1].TargetField != "annual_salary_eur" {
		t.Errorf("declared order not preserved: %q then %q", rules[0].TargetField, rules[1].TargetField)
	}
}

func TestLoadRulesRejections(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantLine int
		wantMsg  string
	}{
		{
			name:     "unknown transformation type",
			input:    rulesCSVHeader + "Employees,salary,salary,UPPERCASE,\n",
			wantLine: 2,
			wantMsg:  "unknown transformation type",
		},
		{
			name: "duplicate target field",
			input: rulesCSVHeader +
				"Employees,salary,annual_salary_eur,CALCULATION,0.92\n" +
				"Employees,salary,annual_salary_eur,CALCULATION,1.10\n",
			wantLine: 3,
			wantMsg:  "duplicate mapping",
		},
		{
			name:     "missing header column",
			input:    "source_sheet,source_field,target_field,transformation_type\nEmployees,a,name,RENAME\n",
			wantLine: 1,
			wantMsg:  "missing required column",
		},
		{
			name:     "empty file",
			input:    "",
			wantMsg:  "empty rules file",
			wantLine: 0,
		},
		{
			name:     "malformed mapping pair",
			input:    rulesCSVHeader + `Employees,department_code,department_name,MAPPING,"HR Human Resources"` + "\n",
			wantLine: 2,
			wantMsg:  "malformed mapping pair",
		},
		{
			name:     "empty mapping parameters",
			input:    rulesCSVHeader + "Employees,department_code,department_name,MAPPING,\n",
			wantLine: 2,
			wantMsg:  "mapping parameters must not be empty",
		},
		{
			name:     "non-numeric calculation factor",
			input:    rulesCSVHeader + "Employees,salary,annual_salary_eur,CALCULATION,about-one\n",
			wantLine: 2,
			wantMsg:  "numeric factor",
		},
		{
			name:     "unknown cast type",
			input:    rulesCSVHeader + "Employees,salary,salary,CAST,DECIMAL\n",
			wantLine: 2,
			wantMsg:  "unknown cast type",
		},
		{
			name:     "unknown sheet",
			input:    rulesCSVHeader + "Invoices,total,total,CAST,NUMBER\n",
			wantLine: 2,
			wantMsg:  "unknown sheet",
		},
		{
			name:     "unknown target field",
			input:    rulesCSVHeader + "Employees,salary,monthly_salary,CAST,NUMBER\n",
			wantLine: 2,
			wantMsg:  "unknown target field",
		},
		{
			name:     "empty source field",
			input:    rulesCSVHeader + "Employees,,name,RENAME,\n",
			wantLine: 2,
			wantMsg:  "must not be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadRules(strings.NewReader(tt.input))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("error type = %T, want *ConfigError", err)
			}
			if cfgErr.Line != tt.wantLine {
				t.Errorf("line = %d, want %d", cfgErr.Line, tt.wantLine)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestRuleSetTypedFields(t *testing.T) {
	input := rulesCSVHeader +
		"Employees,salary,annual_salary_eur,CALCULATION,0.92\n" +
		"Employees,hire_date,tenure_years,CALCULATION,DATE_DIFF_TO_NOW\n" +
		"Projects,budget_usd,budget_usd,CAST,NUMBER\n" +
		"Projects,start_date,start_date,CAST,DATE\n"

	rs, err := LoadRules(strings.NewReader(input))
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}

	if got := rs.NumericFields(SheetEmployees); len(got) != 1 || got[0] != "salary" {
		t.Errorf("NumericFields(Employees) = %v, want [salary]", got)
	}
	if got := rs.DateFields(SheetEmployees); len(got) != 1 || got[0] != "hire_date" {
		t.Errorf("DateFields(Employees) = %v, want [hire_date]", got)
	}
	if got := rs.NumericFields(SheetProjects); len(got) != 1 || got[0] != "budget_usd" {
		t.Errorf("NumericFields(Projects) = %v, want [budget_usd]", got)
	}
	if got := rs.DateFields(SheetProjects); len(got) != 1 || got[0] != "start_date" {
		t.Errorf("DateFields(Projects) = %v, want [start_date]", got)
	}
}
