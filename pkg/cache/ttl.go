package cache

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	str2duration "github.com/xhit/go-str2duration/v2"
)

const (
	day   = 24 * time.Hour
	week  = 7 * day
	month = 30 * day
	year  = 365 * day
)

// unitDurations maps the spelled-out unit words accepted in TTL expressions.
var unitDurations = map[string]time.Duration{
	"s": time.Second, "sec": time.Second, "secs": time.Second, "second": time.Second, "seconds": time.Second,
	"m": time.Minute, "min": time.Minute, "mins": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hr": time.Hour, "hrs": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"d": day, "day": day, "days": day,
	"w": week, "wk": week, "wks": week, "week": week, "weeks": week,
	"mo": month, "month": month, "months": month,
	"y": year, "yr": year, "yrs": year, "year": year, "years": year,
}

var (
	errEmptyDuration    = errors.New("empty expression")
	errMissingUnit      = errors.New("number without unit")
	errNonPositiveValue = errors.New("duration must be positive")
	errOverflow         = errors.New("duration out of range")
)

// ResolveTTL converts a relative duration expression into an absolute expiry.
// An empty expression returns the zero time, meaning the entry never expires
// on its own.
func ResolveTTL(expr string, now time.Time) (time.Time, error) {
	if strings.TrimSpace(expr) == "" {
		return time.Time{}, nil
	}

	d, err := ParseDuration(expr)
	if err != nil {
		return time.Time{}, err
	}
	return now.Add(d), nil
}

// ParseDuration parses human TTL expressions such as "10 minutes",
// "1 hour and 30 minutes" or compact forms like "90s", "1h30m" and "2d".
func ParseDuration(expr string) (time.Duration, error) {
	normalized := strings.ToLower(strings.TrimSpace(expr))
	normalized = strings.TrimPrefix(normalized, "+")
	if normalized == "" {
		return 0, &InvalidDurationError{Expr: expr, Err: errEmptyDuration}
	}

	var (
		total time.Duration
		err   error
	)
	if !strings.ContainsAny(normalized, " ,") {
		total, err = str2duration.ParseDuration(normalized)
		if err != nil {
			// "10minutes" and friends fall through to the word grammar
			total, err = parseWords(splitNumberUnit(normalized))
		}
	} else {
		total, err = parseWords(normalized)
	}
	if err != nil {
		return 0, &InvalidDurationError{Expr: expr, Err: err}
	}
	if total <= 0 {
		return 0, &InvalidDurationError{Expr: expr, Err: errNonPositiveValue}
	}
	return total, nil
}

// parseWords handles "<number> <unit>" terms joined by spaces, commas or "and".
func parseWords(s string) (time.Duration, error) {
	fields := strings.Fields(strings.ReplaceAll(s, ",", " "))

	var tokens []string
	for _, f := range fields {
		if f == "and" {
			continue
		}
		tokens = append(tokens, f)
	}
	if len(tokens) == 0 {
		return 0, errEmptyDuration
	}
	if len(tokens)%2 != 0 {
		return 0, errMissingUnit
	}

	var total time.Duration
	for i := 0; i < len(tokens); i += 2 {
		n, err := strconv.ParseFloat(tokens[i], 64)
		if err != nil {
			return 0, err
		}
		unit, ok := unitDurations[tokens[i+1]]
		if !ok {
			return 0, errors.New("unknown unit " + strconv.Quote(tokens[i+1]))
		}
		if math.IsNaN(n) || math.IsInf(n, 0) || n <= 0 {
			return 0, errNonPositiveValue
		}
		term := n * float64(unit)
		if term >= math.MaxInt64 {
			return 0, errOverflow
		}
		d := time.Duration(term)
		if total > math.MaxInt64-d {
			return 0, errOverflow
		}
		total += d
	}
	return total, nil
}

// splitNumberUnit inserts a space between a leading number and its unit.
func splitNumberUnit(s string) string {
	i := strings.IndexFunc(s, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.'
	})
	if i <= 0 {
		return s
	}
	return s[:i] + " " + s[i:]
}
