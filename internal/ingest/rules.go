package ingest

// rules.go loads the external transformation configuration (a CSV file) into
// an immutable RuleSet. The expected format is:
//
//	source_sheet,source_field,target_field,transformation_type,parameters
//	Employees,department_code,department_name,MAPPING,"HR:Human Resources, DEV:Development"
//	Employees,salary,annual_salary_eur,CALCULATION,0.92
//	Employees,hire_date,tenure_years,CALCULATION,DATE_DIFF_TO_NOW
//
// Loading is side-effect-free and deterministic: the same input always yields
// the same RuleSet or the same ConfigError.

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// RuleKind is the closed set of transformation directives. Directives are
// data-only; dispatch happens via explicit switches in the Transformer.
type RuleKind string

const (
	RuleRename      RuleKind = "RENAME"
	RuleCast        RuleKind = "CAST"
	RuleCalculation RuleKind = "CALCULATION"
	RuleMapping     RuleKind = "MAPPING"
)

// CastType is the target semantic type of a CAST directive.
type CastType string

const (
	CastNumber CastType = "NUMBER"
	CastDate   CastType = "DATE"
	CastText   CastType = "TEXT"
)

// CalcDateDiffToNow is the CALCULATION parameter requesting whole elapsed
// years between the source date and now (tenure).
const CalcDateDiffToNow = "DATE_DIFF_TO_NOW"

// Rule is one parsed directive. Exactly one of the parsed parameter fields
// is meaningful depending on Kind.
type Rule struct {
	SourceSheet string
	SourceField string
	TargetField string
	Kind        RuleKind
	Params      string

	Mapping  map[string]string // MAPPING: code -> canonical value
	Factor   float64           // CALCULATION with a numeric factor
	DateDiff bool              // CALCULATION with DATE_DIFF_TO_NOW
	Cast     CastType          // CAST
}

// RuleSet is the ordered, immutable collection of directives for one job.
// It is shared read-only across all row-processing units.
type RuleSet struct {
	rules []Rule
}

// Rules returns the directives in declared order.
func (rs *RuleSet) Rules() []Rule {
	return rs.rules
}

// ForSheet returns the directives declared for a sheet, in declared order.
func (rs *RuleSet) ForSheet(sheet string) []Rule {
	var out []Rule
	for _, r := range rs.rules {
		if strings.EqualFold(r.SourceSheet, sheet) {
			out = append(out, r)
		}
	}
	return out
}

// NumericFields returns the source fields of a sheet that rules declare
// numeric (CAST NUMBER or a numeric-factor CALCULATION). The Validator
// merges these with the sheet's built-in numeric fields.
func (rs *RuleSet) NumericFields(sheet string) []string {
	var out []string
	for _, r := range rs.ForSheet(sheet) {
		switch {
		case r.Kind == RuleCast && r.Cast == CastNumber:
			out = append(out, r.SourceField)
		case r.Kind == RuleCalculation && !r.DateDiff:
			out = append(out, r.SourceField)
		}
	}
	return out
}

// DateFields returns the source fields of a sheet that rules declare dates.
func (rs *RuleSet) DateFields(sheet string) []string {
	var out []string
	for _, r := range rs.ForSheet(sheet) {
		switch {
		case r.Kind == RuleCast && r.Cast == CastDate:
			out = append(out, r.SourceField)
		case r.Kind == RuleCalculation && r.DateDiff:
			out = append(out, r.SourceField)
		}
	}
	return out
}

// rulesHeader is the required column set of the rules file.
var rulesHeader = []string{"source_sheet", "source_field", "target_field", "transformation_type", "parameters"}

// targetFields whitelists the destination attributes a directive may write,
// per sheet. The destination schema is fixed, so a target outside this set
// is a configuration mistake caught at load time.
var targetFields = map[string]map[string]bool{
	SheetEmployees: {
		"employee_id":       true,
		"name":              true,
		"department_code":   true,
		"salary":            true,
		"hire_date":         true,
		"department_name":   true,
		"annual_salary_eur": true,
		"tenure_years":      true,
	},
	SheetProjects: {
		"project_id":   true,
		"project_name": true,
		"budget_usd":   true,
		"start_date":   true,
		"status":       true,
	},
}

// LoadRulesFile opens and parses the rules file at path.
// A missing file is a ConfigError (fatal to the job).
func LoadRulesFile(path string) (*RuleSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ConfigError{Message: fmt.Sprintf("open rules file: %v", err)}
	}
	defer f.Close()
	return LoadRules(f)
}

// LoadRules parses a rules CSV into a RuleSet.
//
// It rejects, with line/column attribution: a missing or incomplete header,
// unknown transformation types, unknown target fields, duplicate
// (sheet, target_field) pairs, and malformed parameters for each kind.
func LoadRules(r io.Reader) (*RuleSet, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, &ConfigError{Message: "empty rules file"}
	}
	if err != nil {
		return nil, &ConfigError{Line: 1, Message: fmt.Sprintf("read header: %v", err)}
	}

	colIdx := make(map[string]int, len(header))
	for i, h := range header {
		colIdx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, want := range rulesHeader {
		if _, ok := colIdx[want]; !ok {
			return nil, &ConfigError{Line: 1, Column: want, Message: "missing required column"}
		}
	}

	cell := func(record []string, name string) string {
		i := colIdx[name]
		if i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	rs := &RuleSet{}
	seen := make(map[string]int) // sheet + "\x00" + target -> line

	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ConfigError{Line: line, Message: fmt.Sprintf("read record: %v", err)}
		}

		rule := Rule{
			SourceSheet: cell(record, "source_sheet"),
			SourceField: cell(record, "source_field"),
			TargetField: cell(record, "target_field"),
			Kind:        RuleKind(strings.ToUpper(cell(record, "transformation_type"))),
			Params:      cell(record, "parameters"),
		}

		if rule.SourceSheet == "" {
			return nil, &ConfigError{Line: line, Column: "source_sheet", Message: "must not be empty"}
		}
		if rule.SourceField == "" {
			return nil, &ConfigError{Line: line, Column: "source_field", Message: "must not be empty"}
		}
		if rule.TargetField == "" {
			return nil, &ConfigError{Line: line, Column: "target_field", Message: "must not be empty"}
		}

		allowed, ok := targetFields[rule.SourceSheet]
		if !ok {
			return nil, &ConfigError{Line: line, Column: "source_sheet",
				Message: fmt.Sprintf("unknown sheet %q", rule.SourceSheet)}
		}
		if !allowed[rule.TargetField] {
			return nil, &ConfigError{Line: line, Column: "target_field",
				Message: fmt.Sprintf("unknown target field %q for sheet %q", rule.TargetField, rule.SourceSheet)}
		}

		key := rule.SourceSheet + "\x00" + rule.TargetField
		if prev, dup := seen[key]; dup {
			return nil, &ConfigError{Line: line, Column: "target_field",
				Message: fmt.Sprintf("duplicate mapping for target %q (first declared on line %d)", rule.TargetField, prev)}
		}
		seen[key] = line

		switch rule.Kind {
		case RuleRename:
			// No parameters.

		case RuleCast:
			cast := CastType(strings.ToUpper(rule.Params))
			switch cast {
			case CastNumber, CastDate, CastText:
				rule.Cast = cast
			default:
				return nil, &ConfigError{Line: line, Column: "parameters",
					Message: fmt.Sprintf("unknown cast type %q", rule.Params)}
			}

		case RuleCalculation:
			if rule.Params == CalcDateDiffToNow {
				rule.DateDiff = true
				break
			}
			factor, err := strconv.ParseFloat(rule.Params, 64)
			if err != nil {
				return nil, &ConfigError{Line: line, Column: "parameters",
					Message: fmt.Sprintf("calculation parameter must be %s or a numeric factor, got %q", CalcDateDiffToNow, rule.Params)}
			}
			rule.Factor = factor

		case RuleMapping:
			mapping, err := parseMappingParams(rule.Params)
			if err != nil {
				return nil, &ConfigError{Line: line, Column: "parameters", Message: err.Error()}
			}
			rule.Mapping = mapping

		default:
			return nil, &ConfigError{Line: line, Column: "transformation_type",
				Message: fmt.Sprintf("unknown transformation type %q", cell(record, "transformation_type"))}
		}

		rs.rules = append(rs.rules, rule)
	}

	return rs, nil
}

// parseMappingParams parses "HR:Human Resources, DEV:Development" into a map.
func parseMappingParams(params string) (map[string]string, error) {
	if strings.TrimSpace(params) == "" {
		return nil, fmt.Errorf("mapping parameters must not be empty")
	}

	mapping := make(map[string]string)
	for _, pair := range strings.Split(params, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, found := strings.Cut(pair, ":")
		if !found {
			return nil, fmt.Errorf("malformed mapping pair %q (want CODE:Value)", pair)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			return nil, fmt.Errorf("malformed mapping pair %q (want CODE:Value)", pair)
		}
		mapping[key] = value
	}

	if len(mapping) == 0 {
		return nil, fmt.Errorf("mapping parameters contain no pairs")
	}
	return mapping, nil
}
