package utils

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseIndex parses a row index. Integral floats such as "12.0", which
// dataframe exports produce for integer columns holding nulls, are accepted.
func ParseIndex(s string) (int64, error) {
	s = strings.TrimSpace(s)

	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	return int64(f), nil
}

// ParseFloat parses a trimmed decimal value and rejects NaN and infinities.
func ParseFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a finite number: %q", s)
	}
	return f, nil
}
