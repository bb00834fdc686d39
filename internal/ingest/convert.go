package ingest

// convert.go provides type conversion for raw cell text.
//
// Spreadsheet exports are messy: currency symbols and thousands separators
// in numbers, several date renderings depending on the cell style, stray
// whitespace. All Parse* functions accept the trimmed cell text and report
// failure with an error rather than a zero value so callers can attribute
// the offending input.

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// numericRegex validates a numeric format after cleanup.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// dateLayouts are the accepted date renderings, tried in order. Day-first
// layouts come before ISO since that is how the source workbooks format
// hire and start dates.
var dateLayouts = []string{
	"02/01/2006",
	"2/1/2006",
	"2006-01-02",
	"2006/01/02",
	"02-01-2006",
}

// ParseNumber converts raw cell text to a float64. It tolerates currency
// symbols, thousands separators, and accounting-style negatives "(123.45)".
func ParseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}

	isNegative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		isNegative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, "€", "") // Euro
	s = strings.ReplaceAll(s, "£", "") // Pound
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	if isNegative {
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return 0, fmt.Errorf("not a number: %q", s)
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return f, nil
}

// ParseDate converts raw cell text to a date, trying each accepted layout.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty value")
	}

	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("not a date: %q", s)
}

// Round2 rounds a converted amount to two decimal places, half away from
// zero. This is the fixed precision policy for currency conversion.
func Round2(f float64) float64 {
	return math.Round(f*100) / 100
}
