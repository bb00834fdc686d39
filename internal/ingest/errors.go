package ingest

import "fmt"

// ConfigError reports a malformed transformation rules file. It is fatal to
// the job: rules load before any row is read, so no partial rows are ever
// attempted.
type ConfigError struct {
	Line    int    // 1-based line in the rules file, 0 if not line-scoped
	Column  string // offending column name, if known
	Message string
}

func (e *ConfigError) Error() string {
	switch {
	case e.Line > 0 && e.Column != "":
		return fmt.Sprintf("rules line %d, column %s: %s", e.Line, e.Column, e.Message)
	case e.Line > 0:
		return fmt.Sprintf("rules line %d: %s", e.Line, e.Message)
	default:
		return fmt.Sprintf("rules: %s", e.Message)
	}
}

// StructuralError reports an unusable workbook: unreadable file, invalid
// format, or a missing required sheet. Fatal to the job; no rows are counted.
type StructuralError struct {
	Sheet   string // sheet the error relates to, if any
	Message string
}

func (e *StructuralError) Error() string {
	if e.Sheet != "" {
		return fmt.Sprintf("sheet %q: %s", e.Sheet, e.Message)
	}
	return e.Message
}
