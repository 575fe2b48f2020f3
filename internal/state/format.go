package state

import (
	"math"
	"strconv"
	"strings"
)

func formatInt(v int64) string { return strconv.FormatInt(v, 10) }

// FormatFloat renders a float the way Kotlin does: plain notation with at
// least one fractional digit for magnitudes in [1e-3, 1e7), scientific
// notation with an upper-case E otherwise.
func FormatFloat(f float64, bitSize int) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		if math.Signbit(f) {
			return "-0.0"
		}
		return "0.0"
	}
	abs := math.Abs(f)
	if abs >= 1e-3 && abs < 1e7 {
		s := strconv.FormatFloat(f, 'f', -1, bitSize)
		if !strings.ContainsRune(s, '.') {
			s += ".0"
		}
		return s
	}
	s := strconv.FormatFloat(f, 'E', -1, bitSize)
	mantissa, exp, _ := strings.Cut(s, "E")
	if !strings.ContainsRune(mantissa, '.') {
		mantissa += ".0"
	}
	n, _ := strconv.Atoi(exp)
	return mantissa + "E" + strconv.Itoa(n)
}

// Quote renders a string or char literal for diagnostics.
func Quote(v any) string {
	switch x := v.(type) {
	case string:
		return strconv.Quote(x)
	case Char:
		return strconv.QuoteRune(rune(x))
	}
	return Render(v)
}
