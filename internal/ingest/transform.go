package ingest

// transform.go turns validated raw rows into destination records. The fixed
// source columns are copied first, then the configured directives run in
// declared order, each writing one target field. Rows reach this stage
// already validated, so casts on validated fields cannot fail here; what can
// fail is a MAPPING directive meeting a code its table does not know, which
// rejects the row.

import (
	"fmt"
	"time"
)

// daysPerYear converts an elapsed duration to whole years of tenure.
// Partial years are truncated, never rounded up.
const daysPerYear = 365

// Transformer applies one RuleSet. now is injectable so tenure calculations
// are deterministic under test.
type Transformer struct {
	rules *RuleSet
	now   func() time.Time
}

func NewTransformer(rules *RuleSet, now func() time.Time) *Transformer {
	if now == nil {
		now = time.Now
	}
	return &Transformer{rules: rules, now: now}
}

// TransformEmployee builds an EmployeeRecord from a validated row. A nil
// RowError means the record is ready to persist.
func (t *Transformer) TransformEmployee(row RawRow) (*EmployeeRecord, *RowError) {
	rec := &EmployeeRecord{
		EmployeeID:     row.Get("employee_id"),
		Name:           optText(row.Get("name")),
		DepartmentCode: optText(row.Get("department_code")),
	}
	if raw := row.Get("salary"); raw != "" {
		n, err := ParseNumber(raw)
		if err != nil {
			return nil, internalRowError(row, "salary", err)
		}
		rec.Salary = &n
	}
	if raw := row.Get("hire_date"); raw != "" {
		d, err := ParseDate(raw)
		if err != nil {
			return nil, internalRowError(row, "hire_date", err)
		}
		rec.HireDate = &d
	}

	for _, rule := range t.rules.ForSheet(SheetEmployees) {
		val, rowErr := t.apply(row, rule)
		if rowErr != nil {
			return nil, rowErr
		}
		if val == nil {
			continue
		}
		if rowErr := setEmployeeField(rec, row, rule.TargetField, val); rowErr != nil {
			return nil, rowErr
		}
	}
	return rec, nil
}

// TransformProject builds a ProjectRecord from a validated row.
func (t *Transformer) TransformProject(row RawRow) (*ProjectRecord, *RowError) {
	rec := &ProjectRecord{
		ProjectID:   row.Get("project_id"),
		ProjectName: optText(row.Get("project_name")),
		Status:      optText(row.Get("status")),
	}
	if raw := row.Get("budget_usd"); raw != "" {
		n, err := ParseNumber(raw)
		if err != nil {
			return nil, internalRowError(row, "budget_usd", err)
		}
		rec.BudgetUSD = &n
	}
	if raw := row.Get("start_date"); raw != "" {
		d, err := ParseDate(raw)
		if err != nil {
			return nil, internalRowError(row, "start_date", err)
		}
		rec.StartDate = &d
	}

	for _, rule := range t.rules.ForSheet(SheetProjects) {
		val, rowErr := t.apply(row, rule)
		if rowErr != nil {
			return nil, rowErr
		}
		if val == nil {
			continue
		}
		if rowErr := setProjectField(rec, row, rule.TargetField, val); rowErr != nil {
			return nil, rowErr
		}
	}
	return rec, nil
}

// apply evaluates one directive against the row's source field. A blank
// source value is a no-op: the target stays unset rather than becoming an
// error, since only the validator decides which fields are required.
func (t *Transformer) apply(row RawRow, rule Rule) (any, *RowError) {
	raw := row.Get(rule.SourceField)
	if raw == "" {
		return nil, nil
	}

	switch rule.Kind {
	case RuleRename:
		return raw, nil

	case RuleCast:
		switch rule.Cast {
		case CastText:
			return raw, nil
		case CastNumber:
			n, err := ParseNumber(raw)
			if err != nil {
				return nil, internalRowError(row, rule.SourceField, err)
			}
			return n, nil
		case CastDate:
			d, err := ParseDate(raw)
			if err != nil {
				return nil, internalRowError(row, rule.SourceField, err)
			}
			return d, nil
		}

	case RuleCalculation:
		if rule.DateDiff {
			d, err := ParseDate(raw)
			if err != nil {
				return nil, internalRowError(row, rule.SourceField, err)
			}
			days := int(t.now().Sub(d).Hours() / 24)
			if days < 0 {
				days = 0
			}
			return days / daysPerYear, nil
		}
		n, err := ParseNumber(raw)
		if err != nil {
			return nil, internalRowError(row, rule.SourceField, err)
		}
		return Round2(n * rule.Factor), nil

	case RuleMapping:
		mapped, ok := rule.Mapping[raw]
		if !ok {
			return nil, &RowError{
				Sheet:   row.Sheet,
				Row:     row.Index,
				Field:   rule.SourceField,
				Message: fmt.Sprintf("%s has no mapping for value: %s", rule.SourceField, raw),
			}
		}
		return mapped, nil
	}

	return nil, internalRowError(row, rule.SourceField, fmt.Errorf("unhandled rule kind %q", rule.Kind))
}

func setEmployeeField(rec *EmployeeRecord, row RawRow, target string, val any) *RowError {
	switch target {
	case "employee_id":
		if s, ok := val.(string); ok {
			rec.EmployeeID = s
			return nil
		}
	case "name":
		if s, ok := val.(string); ok {
			rec.Name = &s
			return nil
		}
	case "department_code":
		if s, ok := val.(string); ok {
			rec.DepartmentCode = &s
			return nil
		}
	case "department_name":
		if s, ok := val.(string); ok {
			rec.DepartmentName = &s
			return nil
		}
	case "salary":
		if n, ok := val.(float64); ok {
			rec.Salary = &n
			return nil
		}
	case "annual_salary_eur":
		if n, ok := val.(float64); ok {
			n = Round2(n)
			rec.AnnualSalaryEUR = &n
			return nil
		}
	case "hire_date":
		if d, ok := val.(time.Time); ok {
			rec.HireDate = &d
			return nil
		}
	case "tenure_years":
		if y, ok := val.(int); ok {
			rec.TenureYears = &y
			return nil
		}
	}
	return internalRowError(row, target, fmt.Errorf("directive produced %T for target %s", val, target))
}

func setProjectField(rec *ProjectRecord, row RawRow, target string, val any) *RowError {
	switch target {
	case "project_id":
		if s, ok := val.(string); ok {
			rec.ProjectID = s
			return nil
		}
	case "project_name":
		if s, ok := val.(string); ok {
			rec.ProjectName = &s
			return nil
		}
	case "status":
		if s, ok := val.(string); ok {
			rec.Status = &s
			return nil
		}
	case "budget_usd":
		if n, ok := val.(float64); ok {
			rec.BudgetUSD = &n
			return nil
		}
	case "start_date":
		if d, ok := val.(time.Time); ok {
			rec.StartDate = &d
			return nil
		}
	}
	return internalRowError(row, target, fmt.Errorf("directive produced %T for target %s", val, target))
}

// internalRowError covers failures the validator should have prevented.
// The row is still rejected cleanly instead of failing the job.
func internalRowError(row RawRow, field string, err error) *RowError {
	return &RowError{
		Sheet:   row.Sheet,
		Row:     row.Index,
		Field:   field,
		Message: fmt.Sprintf("internal error: %v", err),
	}
}

func optText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
