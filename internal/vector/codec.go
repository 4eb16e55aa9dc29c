// Package vector owns every piece of text that is ever interpolated into a
// raw SQL statement touching the pgvector column. The vector literal cannot
// be passed as a bound parameter because the driver wraps parameters in
// quotes, which breaks the vector type, so the encoder below is the single
// place allowed to produce an unquoted literal, and the query builders in
// query.go are the single place allowed to splice it into SQL.
package vector

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var ErrInvalidVector = errors.New("invalid vector")

// Encode formats a vector as the canonical pgvector literal [v1,v2,...]:
// comma-separated, no whitespace, never in scientific notation. It fails
// with ErrInvalidVector on an empty vector, on NaN/Inf components, and on
// any formatting result containing characters outside 0-9 , . - [ ].
func Encode(vec []float64) (string, error) {
	if len(vec) == 0 {
		return "", fmt.Errorf("%w: empty embedding", ErrInvalidVector)
	}

	parts := make([]string, len(vec))
	for i, v := range vec {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", fmt.Errorf("%w: non-finite value at index %d", ErrInvalidVector, i)
		}
		parts[i] = formatComponent(v)
	}

	literal := "[" + strings.Join(parts, ",") + "]"
	if !validLiteral(literal) {
		return "", fmt.Errorf("%w: literal contains invalid characters", ErrInvalidVector)
	}
	return literal, nil
}

// formatComponent renders one finite float without an exponent marker.
// Very small and very large magnitudes are forced into fixed-point notation
// because their default formatting would use scientific notation, which the
// vector type does not parse reliably.
func formatComponent(v float64) string {
	if v == 0 {
		return "0"
	}

	s := strconv.FormatFloat(v, 'g', -1, 64)
	abs := math.Abs(v)
	if abs >= 1e-5 && abs <= 1e10 && !strings.ContainsAny(s, "eE") {
		return s
	}

	fixed := strconv.FormatFloat(v, 'f', 20, 64)
	if strings.Contains(fixed, ".") {
		fixed = strings.TrimRight(fixed, "0")
		fixed = strings.TrimRight(fixed, ".")
	}
	if fixed == "" || fixed == "-" {
		return "0"
	}
	return fixed
}

func validLiteral(literal string) bool {
	for i := 0; i < len(literal); i++ {
		c := literal[i]
		switch {
		case c >= '0' && c <= '9':
		case c == ',' || c == '.' || c == '-' || c == '[' || c == ']':
		default:
			return false
		}
	}
	return true
}

// EscapeLiteral doubles single quotes for interpolation into a quoted SQL
// string. Every non-vector value (owner id, chunk id) placed into a raw
// query goes through here, independently of vector encoding.
func EscapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
