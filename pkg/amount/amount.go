// Package amount implements the canonical gold-gram amount encoding used
// throughout the DGC protocol: a decimal string with up to four fractional
// digits, stored internally as an integer scaled by 10,000 so that every
// arithmetic operation is exact.
package amount

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Scale is the fixed-point scale applied to every canonical amount.
const Scale = 10000

var canonicalPattern = regexp.MustCompile(`^\d+(\.\d{1,4})?$`)

// ErrInvalidAmount is returned when a string does not match the canonical
// amount grammar ^\d+(\.\d{1,4})?$.
var ErrInvalidAmount = errors.New("invalid_amount")

// Parse validates s against the canonical amount grammar and returns its
// value scaled by Scale as an exact integer.
func Parse(s string) (int64, error) {
	if !canonicalPattern.MatchString(s) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	parts := strings.SplitN(s, ".", 2)
	whole, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	var frac int64
	if len(parts) == 2 {
		digits := parts[1] + strings.Repeat("0", 4-len(parts[1]))
		frac, err = strconv.ParseInt(digits, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
		}
	}
	return whole*Scale + frac, nil
}

// Format renders a scaled integer back to its canonical four-decimal string.
func Format(scaled int64) string {
	sign := ""
	if scaled < 0 {
		sign = "-"
		scaled = -scaled
	}
	return fmt.Sprintf("%s%d.%04d", sign, scaled/Scale, scaled%Scale)
}

// MustParse is a test/bootstrap helper that panics on malformed input.
func MustParse(s string) int64 {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}
