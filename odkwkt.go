// Package odkwkt converts coordinate strings recorded by ODK-style field data
// collection tools into well-known text geometries for desktop GIS.
//
// Input coordinates are latitude-first "lat lon [alt acc]" tokens; lines and
// polygons are stored as ";"-separated token lists inside a single cell.
// Output is longitude-first WKT (POINT, LINESTRING, POLYGON) written back into
// columns of the same table, plus optional FlatGeobuf or GeoJSON layers.
package odkwkt

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
)

// Common errors returned by this package.
var (
	ErrMalformedToken     = errors.New("odkwkt: malformed coordinate token")
	ErrInvalidCoordinate  = errors.New("odkwkt: invalid coordinate")
	ErrInsufficientPoints = errors.New("odkwkt: insufficient points")
	ErrUnknownKind        = errors.New("odkwkt: unknown geometry kind")
	ErrUnsupportedType    = errors.New("odkwkt: unsupported geometry type")
	ErrAmbiguousHeader    = errors.New("odkwkt: ambiguous header")
	ErrEmptyHeader        = errors.New("odkwkt: empty header name")
	ErrUnknownColumn      = errors.New("odkwkt: unknown column")
	ErrColumnConflict     = errors.New("odkwkt: column conflict")
	ErrNoGeometries       = errors.New("odkwkt: no geometries")
	ErrNoIndex            = errors.New("odkwkt: layer has no spatial index")
)

// Kind is the geometry kind a cell is converted to.
type Kind int

// Supported geometry kinds.
const (
	KindPoint Kind = iota + 1
	KindLine
	KindPolygon
)

// Kinds lists every supported kind in processing order.
var Kinds = []Kind{KindPoint, KindLine, KindPolygon}

// String returns the lower-case kind name.
func (k Kind) String() string {
	switch k {
	case KindPoint:
		return "point"
	case KindLine:
		return "line"
	case KindPolygon:
		return "polygon"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Valid reports whether k is one of the supported kinds.
func (k Kind) Valid() bool {
	return k >= KindPoint && k <= KindPolygon
}

// MinPoints is the minimum number of coordinate pairs the kind needs.
func (k Kind) MinPoints() int {
	switch k {
	case KindPoint:
		return 1
	case KindLine:
		return 2
	case KindPolygon:
		return 3
	default:
		return 0
	}
}

// DefaultColumn is the output column name used when no override is given.
func (k Kind) DefaultColumn() string {
	switch k {
	case KindPoint:
		return "QGIS Point WKT"
	case KindLine:
		return "QGIS Trace WKT"
	case KindPolygon:
		return "QGIS Polygon WKT"
	default:
		return ""
	}
}

// ParseKind maps a kind name to a Kind. ODK names (geopoint, geotrace,
// geoshape) are accepted as aliases.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "point", "geopoint":
		return KindPoint, nil
	case "line", "trace", "linestring", "geotrace":
		return KindLine, nil
	case "polygon", "shape", "geoshape":
		return KindPolygon, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// DuplicatePolicy decides what happens when the header row repeats a name.
type DuplicatePolicy int

const (
	// RejectDuplicates fails column resolution with ErrAmbiguousHeader.
	RejectDuplicates DuplicatePolicy = iota
	// FirstOccurrenceWins uses the lowest position of a repeated name.
	FirstOccurrenceWins
)

// Options configures a conversion run.
type Options struct {
	Workers        int             // Row conversion workers (default: GOMAXPROCS)
	Duplicates     DuplicatePolicy // Duplicate header handling (default: reject)
	KeepGeometries bool            // Keep built geometries in the report for export
	Logger         *zerolog.Logger // Optional run logger
}

// DefaultOptions returns default options for a conversion run.
func DefaultOptions() *Options {
	return &Options{
		Workers: runtime.GOMAXPROCS(0),
	}
}

func (o *Options) logger() *zerolog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	nop := zerolog.Nop()
	return &nop
}
