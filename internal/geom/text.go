package geom

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrVectorSyntax is returned by ParseVector for text that is not a bracketed,
// comma separated list of finite numbers.
var ErrVectorSyntax = errors.New("invalid vector syntax")

// FormatVector renders values as a bracketed list, e.g. "[0.5, -0.1, 0.2]".
// Floats use the shortest representation that round-trips.
func FormatVector(values []float64) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range values {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	sb.WriteByte(']')
	return sb.String()
}

// FormatVec renders v as "[x, y, z]".
func FormatVec(v Vec3) string {
	return FormatVector(v.Slice())
}

// ParseVector parses a bracketed list of exactly arity finite numbers.
// Nothing but numbers, commas, brackets and surrounding spaces is accepted.
func ParseVector(s string, arity int) ([]float64, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, fmt.Errorf("%w: %q is not bracketed", ErrVectorSyntax, s)
	}
	inner := strings.TrimSpace(s[1 : len(s)-1])
	if inner == "" {
		return nil, fmt.Errorf("%w: empty list", ErrVectorSyntax)
	}

	parts := strings.Split(inner, ",")
	if len(parts) != arity {
		return nil, fmt.Errorf("%w: got %d components, want %d", ErrVectorSyntax, len(parts), arity)
	}

	out := make([]float64, arity)
	for i, p := range parts {
		v, err := ParseNumber(p)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// ParseVec parses "[x, y, z]".
func ParseVec(s string) (Vec3, error) {
	vals, err := ParseVector(s, 3)
	if err != nil {
		return Vec3{}, err
	}
	return Vec3{X: vals[0], Y: vals[1], Z: vals[2]}, nil
}

// ParseNumber parses one finite float, rejecting NaN and infinities.
func ParseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrVectorSyntax, s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q is not finite", ErrVectorSyntax, s)
	}
	return v, nil
}
