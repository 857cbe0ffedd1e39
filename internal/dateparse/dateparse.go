// Package dateparse turns the relative and absolute date strings accepted by
// filters and the CLI into ISO 8601 dates (YYYY-MM-DD).
package dateparse

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

const isoLayout = "2006-01-02"

// ParseDate parses a date input string and returns an ISO 8601 date (YYYY-MM-DD).
// Uses the current time as the reference point.
//
// Supported formats:
//   - Exact dates: "2026-03-01", "01/03/2026" (day first), "1 Mar 2026"
//   - Relative days: "+7d", "-30d"
//   - Relative weeks: "+2w"
//   - Relative months: "+1m", "-1m"
//   - Day names: "monday", "segunda", etc. (next occurrence)
//   - Keywords: "today"/"hoje", "tomorrow"/"amanha", "yesterday"/"ontem",
//     "next-week", "next-month", "month-start", "month-end"
func ParseDate(input string) (string, error) {
	return ParseDateFrom(input, time.Now())
}

// ParseDateFrom parses a date input string relative to the given reference time.
// This variant enables deterministic testing with a fixed "now".
func ParseDateFrom(input string, now time.Time) (string, error) {
	input = strings.TrimSpace(strings.ToLower(input))
	if input == "" {
		return "", fmt.Errorf("empty date input")
	}

	// Exact date: YYYY-MM-DD
	if t, err := time.Parse(isoLayout, input); err == nil {
		return t.Format(isoLayout), nil
	}

	year, month, _ := now.Date()
	switch input {
	case "today", "hoje":
		return formatDate(now), nil
	case "tomorrow", "amanha", "amanhã":
		return formatDate(now.AddDate(0, 0, 1)), nil
	case "yesterday", "ontem":
		return formatDate(now.AddDate(0, 0, -1)), nil
	case "next-week":
		// Next Monday
		daysUntilMonday := (int(time.Monday) - int(now.Weekday()) + 7) % 7
		if daysUntilMonday == 0 {
			daysUntilMonday = 7
		}
		return formatDate(now.AddDate(0, 0, daysUntilMonday)), nil
	case "next-month":
		return formatDate(time.Date(year, month+1, 1, 0, 0, 0, 0, now.Location())), nil
	case "month-start":
		return formatDate(time.Date(year, month, 1, 0, 0, 0, 0, now.Location())), nil
	case "month-end":
		return formatDate(time.Date(year, month+1, 0, 0, 0, 0, 0, now.Location())), nil
	}

	// Relative offsets: ±Nd, ±Nw, ±Nm
	if (input[0] == '+' || input[0] == '-') && len(input) >= 3 {
		sign := 1
		if input[0] == '-' {
			sign = -1
		}
		suffix := input[len(input)-1]
		n, err := strconv.Atoi(input[1 : len(input)-1])
		if err == nil && n >= 0 {
			n *= sign
			switch suffix {
			case 'd':
				return formatDate(now.AddDate(0, 0, n)), nil
			case 'w':
				return formatDate(now.AddDate(0, 0, n*7)), nil
			case 'm':
				return formatDate(now.AddDate(0, n, 0)), nil
			default:
				return "", fmt.Errorf("unknown relative unit %q in %q (use d, w, or m)", string(suffix), input)
			}
		}
	}

	// Day names: next occurrence of that weekday
	if target, ok := weekdays[input]; ok {
		daysAhead := (int(target) - int(now.Weekday()) + 7) % 7
		if daysAhead == 0 {
			daysAhead = 7 // always advance to next occurrence
		}
		return formatDate(now.AddDate(0, 0, daysAhead)), nil
	}

	// Anything else goes to the general parser; slashed dates are day first.
	if t, err := dateparse.ParseIn(input, now.Location(), dateparse.PreferMonthFirst(false)); err == nil {
		return formatDate(t), nil
	}

	return "", fmt.Errorf("unrecognized date format: %q", input)
}

// ParseTime parses a timestamp: RFC 3339, or any layout the general parser
// knows, interpreted in loc when it carries no zone. Slashed dates are day first.
func ParseTime(input string, loc *time.Location) (time.Time, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return time.Time{}, fmt.Errorf("empty time input")
	}
	if t, err := time.Parse(time.RFC3339, input); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	t, err := dateparse.ParseIn(input, loc, dateparse.PreferMonthFirst(false))
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized time format: %q", input)
	}
	return t, nil
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"domingo":   time.Sunday,
	"segunda":   time.Monday,
	"terca":     time.Tuesday,
	"terça":     time.Tuesday,
	"quarta":    time.Wednesday,
	"quinta":    time.Thursday,
	"sexta":     time.Friday,
	"sabado":    time.Saturday,
	"sábado":    time.Saturday,
}

func formatDate(t time.Time) string {
	return t.Format(isoLayout)
}
