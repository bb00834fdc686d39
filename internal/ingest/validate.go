package ingest

// validate.go checks raw rows against per-sheet field requirements before
// any transformation runs. A validation failure rejects the single row and
// never the job.

import (
	"fmt"
	"slices"
)

// SheetSpec declares the field requirements of one source sheet. Required
// fields are checked before type checks, so a blank required numeric field
// reports "is required" rather than a type error.
type SheetSpec struct {
	Sheet    string
	Required []string
	Numeric  []string
	Dates    []string
}

// EmployeeSheet and ProjectSheet are the built-in requirements of the two
// source sheets. Rules may widen the typed sets but never the required set.
var (
	EmployeeSheet = SheetSpec{
		Sheet:    SheetEmployees,
		Required: []string{"employee_id", "salary"},
		Numeric:  []string{"salary"},
		Dates:    []string{"hire_date"},
	}
	ProjectSheet = SheetSpec{
		Sheet:    SheetProjects,
		Required: []string{"project_id"},
		Numeric:  []string{"budget_usd"},
		Dates:    []string{"start_date"},
	}
)

// Validator applies a SheetSpec widened by rule-declared typed fields.
type Validator struct {
	spec    SheetSpec
	numeric map[string]bool
	dates   map[string]bool
}

// NewValidator builds a validator for one sheet. Fields that rules cast to
// numbers or dates, or feed into calculations, are type-checked here so the
// transformer never sees an uncastable accepted row.
func NewValidator(spec SheetSpec, rules *RuleSet) *Validator {
	v := &Validator{
		spec:    spec,
		numeric: make(map[string]bool),
		dates:   make(map[string]bool),
	}
	for _, f := range spec.Numeric {
		v.numeric[f] = true
	}
	for _, f := range spec.Dates {
		v.dates[f] = true
	}
	if rules != nil {
		for _, f := range rules.NumericFields(spec.Sheet) {
			v.numeric[f] = true
		}
		for _, f := range rules.DateFields(spec.Sheet) {
			v.dates[f] = true
		}
	}
	return v
}

// Validate returns nil if the row is acceptable, or the first RowError in
// check order: required fields first (in declared order), then numeric fields,
// then date fields. Blank optional fields pass type checks.
func (v *Validator) Validate(row RawRow) *RowError {
	for _, field := range v.spec.Required {
		if row.Get(field) == "" {
			return &RowError{
				Sheet:   row.Sheet,
				Row:     row.Index,
				Field:   field,
				Message: fmt.Sprintf("%s is required", field),
			}
		}
	}

	for _, field := range v.spec.Numeric {
		if err := v.checkNumeric(row, field); err != nil {
			return err
		}
	}
	for _, f := range sortedKeys(v.numeric) {
		if slices.Contains(v.spec.Numeric, f) {
			continue
		}
		if err := v.checkNumeric(row, f); err != nil {
			return err
		}
	}

	for _, field := range v.spec.Dates {
		if err := v.checkDate(row, field); err != nil {
			return err
		}
	}
	for _, f := range sortedKeys(v.dates) {
		if slices.Contains(v.spec.Dates, f) {
			continue
		}
		if err := v.checkDate(row, f); err != nil {
			return err
		}
	}

	return nil
}

// sortedKeys keeps rule-derived field checks in a stable order.
func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (v *Validator) checkNumeric(row RawRow, field string) *RowError {
	raw := row.Get(field)
	if raw == "" {
		return nil
	}
	if _, err := ParseNumber(raw); err != nil {
		return &RowError{
			Sheet:   row.Sheet,
			Row:     row.Index,
			Field:   field,
			Message: fmt.Sprintf("%s must be numeric, got: %s", field, raw),
		}
	}
	return nil
}

func (v *Validator) checkDate(row RawRow, field string) *RowError {
	raw := row.Get(field)
	if raw == "" {
		return nil
	}
	if _, err := ParseDate(raw); err != nil {
		return &RowError{
			Sheet:   row.Sheet,
			Row:     row.Index,
			Field:   field,
			Message: fmt.Sprintf("%s must be a date, got: %s", field, raw),
		}
	}
	return nil
}
