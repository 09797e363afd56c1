package output

import (
	"math"
	"strconv"
	"strings"
)

// FormatFloat renders f the way the benchmark has always printed sums: the
// shortest round-tripping representation, positional for decimal exponents
// in [-4, 16) with at least one fractional digit, scientific otherwise, and
// inf, -inf or nan for non-finite values.
func FormatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}

	sci := strconv.FormatFloat(f, 'e', -1, 64)
	exp, err := strconv.Atoi(sci[strings.IndexByte(sci, 'e')+1:])
	if err != nil || exp < -4 || exp >= 16 {
		return sci
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}

// Float is a float64 that encodes to JSON using FormatFloat. Non-finite
// values, which JSON numbers cannot carry, encode as strings.
type Float float64

// MarshalJSON implements json.Marshaler.
func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte(strconv.Quote(FormatFloat(v))), nil
	}
	return []byte(FormatFloat(v)), nil
}
