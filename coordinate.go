package odkwkt

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// ParseError reports a coordinate token that cannot be decoded.
type ParseError struct {
	Token  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("odkwkt: malformed coordinate %q: %s", e.Token, e.Reason)
}

// Unwrap makes ParseError match ErrMalformedToken.
func (e *ParseError) Unwrap() error {
	return ErrMalformedToken
}

// ParseCoordinate decodes a "lat lon [alt acc]" token into a longitude-first
// point. Fields after the second are ignored, even when they are not numbers.
func ParseCoordinate(token string) (orb.Point, error) {
	fields := strings.Fields(token)
	if len(fields) < 2 {
		return orb.Point{}, &ParseError{
			Token:  token,
			Reason: fmt.Sprintf("expected at least 2 fields, got %d", len(fields)),
		}
	}

	lat, err := parseDecimal(fields[0])
	if err != nil {
		return orb.Point{}, &ParseError{Token: token, Reason: "latitude: " + err.Error()}
	}

	lon, err := parseDecimal(fields[1])
	if err != nil {
		return orb.Point{}, &ParseError{Token: token, Reason: "longitude: " + err.Error()}
	}

	return orb.Point{lon, lat}, nil
}

// parseDecimal accepts finite base-10 numbers only; strconv.ParseFloat alone
// also takes NaN, Inf, hex floats and digit separators.
func parseDecimal(s string) (float64, error) {
	if strings.ContainsAny(s, "xX_") {
		return 0, fmt.Errorf("%q is not a decimal number", s)
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a decimal number", s)
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%q is not finite", s)
	}

	return v, nil
}
