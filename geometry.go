package odkwkt

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkt"
)

// CoordinateError reports a token inside a cell that failed to parse.
// Index is the 0-based position of the token among the non-blank segments.
type CoordinateError struct {
	Token string
	Index int
	Err   error
}

func (e *CoordinateError) Error() string {
	return fmt.Sprintf("odkwkt: invalid coordinate %q at index %d: %v", e.Token, e.Index, e.Err)
}

// Unwrap returns the underlying parse error.
func (e *CoordinateError) Unwrap() error {
	return e.Err
}

// Is makes CoordinateError match ErrInvalidCoordinate.
func (e *CoordinateError) Is(target error) bool {
	return target == ErrInvalidCoordinate
}

// InsufficientPointsError reports a cell with fewer pairs than its kind needs.
type InsufficientPointsError struct {
	Kind     Kind
	Got      int
	Required int
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("odkwkt: %s needs at least %d points, got %d", e.Kind, e.Required, e.Got)
}

// Unwrap makes InsufficientPointsError match ErrInsufficientPoints.
func (e *InsufficientPointsError) Unwrap() error {
	return ErrInsufficientPoints
}

// Build converts a raw cell into WKT for the given kind.
// An empty or blank cell returns "" and a nil error: there is no value to write.
func Build(raw string, kind Kind) (string, error) {
	g, err := BuildGeometry(raw, kind)
	if err != nil || g == nil {
		return "", err
	}
	return MarshalWKT(g)
}

// BuildGeometry parses a raw cell and assembles an orb.Point, orb.LineString
// or orb.Polygon. It returns a nil geometry for cells with no usable tokens.
// Polygon rings are closed by repeating the first point when needed.
func BuildGeometry(raw string, kind Kind) (orb.Geometry, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(kind))
	}

	tokens := splitCell(raw)
	if len(tokens) == 0 {
		return nil, nil
	}

	points := make([]orb.Point, 0, len(tokens)+1)
	for i, tok := range tokens {
		p, err := ParseCoordinate(tok)
		if err != nil {
			return nil, &CoordinateError{Token: tok, Index: i, Err: err}
		}
		points = append(points, p)
	}

	if len(points) < kind.MinPoints() {
		return nil, &InsufficientPointsError{
			Kind:     kind,
			Got:      len(points),
			Required: kind.MinPoints(),
		}
	}

	switch kind {
	case KindPoint:
		return points[0], nil

	case KindLine:
		return orb.LineString(points), nil

	default:
		ring := orb.Ring(points)
		if ring[0] != ring[len(ring)-1] {
			ring = append(ring, ring[0])
		}
		return orb.Polygon{ring}, nil
	}
}

// splitCell splits a cell on ";" and drops blank segments.
func splitCell(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ";")
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tokens = append(tokens, p)
		}
	}
	return tokens
}

// MarshalWKT serializes a point, line string, ring or polygon as WKT, e.g.
// "POINT (1 2)" or "POLYGON ((0 0, 1 0, 1 1, 0 0))". Coordinates use the
// shortest fixed-point decimal form that round-trips a float64; there is no
// exponent notation, so values far outside the coordinate range produce very
// long strings (1.7976931348623157e308 is written with 309 integer digits).
func MarshalWKT(g orb.Geometry) (string, error) {
	t, err := orbToGeom(g)
	if err != nil {
		return "", err
	}
	return wkt.Marshal(t)
}

// orbToGeom converts an orb geometry into its go-geom equivalent.
func orbToGeom(g orb.Geometry) (geom.T, error) {
	switch v := g.(type) {
	case orb.Point:
		return geom.NewPointFlat(geom.XY, []float64{v[0], v[1]}), nil

	case orb.LineString:
		return geom.NewLineStringFlat(geom.XY, pointsToFlat(v)), nil

	case orb.Ring:
		flat := pointsToFlat(v)
		return geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)}), nil

	case orb.Polygon:
		var flat []float64
		ends := make([]int, 0, len(v))
		for _, ring := range v {
			flat = append(flat, pointsToFlat(ring)...)
			ends = append(ends, len(flat))
		}
		return geom.NewPolygonFlat(geom.XY, flat, ends), nil

	case nil:
		return nil, ErrUnsupportedType

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, g.GeoJSONType())
	}
}

func pointsToFlat[P ~[]orb.Point](pts P) []float64 {
	flat := make([]float64, 0, len(pts)*2)
	for _, p := range pts {
		flat = append(flat, p[0], p[1])
	}
	return flat
}
