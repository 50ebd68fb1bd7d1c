package odkwkt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// RowProperty is the feature property holding the source data row number.
const RowProperty = "row"

// CRS represents a coordinate reference system.
type CRS struct {
	Code int    // EPSG code (e.g., 4326 for WGS84)
	Name string // CRS name
}

// WGS84 returns the standard WGS84 CRS (EPSG:4326).
func WGS84() *CRS {
	return &CRS{
		Code: 4326,
		Name: "WGS 84",
	}
}

// LayerOptions configures FlatGeobuf layer export.
type LayerOptions struct {
	Name         string // Layer name
	Description  string // Layer description
	IncludeIndex bool   // Include spatial index (default: true)
	CRS          *CRS   // Coordinate reference system (default: WGS84)
}

// DefaultLayerOptions returns default options for writing layers.
func DefaultLayerOptions() *LayerOptions {
	return &LayerOptions{
		IncludeIndex: true,
		CRS:          WGS84(),
	}
}

// FeatureCollection turns the geometries of one kind kept in a report into
// features. Each feature carries its row number plus the named columns.
func FeatureCollection(t Table, r *Report, kind Kind, properties []string) (*geojson.FeatureCollection, error) {
	positions := make(map[string]int, len(properties))
	for _, h := range t.Headers() {
		if _, ok := positions[h.Name]; !ok {
			positions[h.Name] = h.Position
		}
	}

	cols := make([]int, len(properties))
	for i, name := range properties {
		pos, ok := positions[name]
		if !ok {
			return nil, fmt.Errorf("%w: property %q", ErrUnknownColumn, name)
		}
		cols[i] = pos
	}

	fc := geojson.NewFeatureCollection()
	for _, rg := range r.Geometries {
		if rg.Kind != kind || rg.Geometry == nil {
			continue
		}
		f := geojson.NewFeature(rg.Geometry)
		f.Properties[RowProperty] = rg.Row
		for i, name := range properties {
			f.Properties[name] = t.Cell(rg.Row, cols[i])
		}
		fc.Append(f)
	}

	return fc, nil
}

// WriteGeoJSON writes a feature collection as GeoJSON.
func WriteGeoJSON(w io.Writer, fc *geojson.FeatureCollection) error {
	if fc == nil {
		return ErrNoGeometries
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return err
	}

	_, err = w.Write(data)
	return err
}

// WriteFlatGeobuf writes a feature collection as a FlatGeobuf layer.
// Integer properties become Int columns; everything else is stored as String.
func WriteFlatGeobuf(w io.Writer, fc *geojson.FeatureCollection, opts *LayerOptions) error {
	if opts == nil {
		opts = DefaultLayerOptions()
	}

	if fc == nil || len(fc.Features) == 0 {
		return ErrNoGeometries
	}

	// Determine geometry type from the first feature
	geomType := orbToFGBGeometryType(fc.Features[0].Geometry)
	for _, f := range fc.Features[1:] {
		if orbToFGBGeometryType(f.Geometry) != geomType {
			geomType = flattypes.GeometryTypeUnknown
			break
		}
	}

	builder := flatbuffers.NewBuilder(4096)

	header := writer.NewHeader(builder)
	header.SetGeometryType(geomType)
	if opts.Name != "" {
		header.SetName(opts.Name)
	}
	if opts.Description != "" {
		header.SetDescription(opts.Description)
	}

	schema := inferSchema(fc.Features)
	if len(schema) > 0 {
		columns := make([]*writer.Column, 0, len(schema))
		for _, c := range schema {
			col := writer.NewColumn(builder)
			col.SetName(c.name)
			col.SetTitle(c.name)
			col.SetType(c.typ)
			col.SetNullable(true)
			columns = append(columns, col)
		}
		header.SetColumns(columns)
	}

	if opts.CRS != nil {
		crs := writer.NewCrs(builder)
		crs.SetOrg("EPSG")
		if opts.CRS.Code > 0 {
			crs.SetCode(int32(opts.CRS.Code))
		}
		if opts.CRS.Name != "" {
			crs.SetName(opts.CRS.Name)
		}
		header.SetCrs(crs)
	}

	gen := &featureGenerator{
		features: fc.Features,
		schema:   schema,
	}

	fgbWriter := writer.NewWriter(header, opts.IncludeIndex, gen, nil)
	_, err := fgbWriter.Write(w)
	return err
}

// column is a property column of a layer.
type column struct {
	name string
	typ  flattypes.ColumnType
}

// inferSchema lists property columns with the row column first and the rest
// sorted by name, so layers are stable across runs.
func inferSchema(features []*geojson.Feature) []column {
	types := make(map[string]flattypes.ColumnType)
	for _, f := range features {
		for name, value := range f.Properties {
			typ := flattypes.ColumnTypeString
			if _, ok := value.(int); ok {
				typ = flattypes.ColumnTypeInt
			}
			if existing, ok := types[name]; ok && existing != typ {
				typ = flattypes.ColumnTypeString
			}
			types[name] = typ
		}
	}

	names := make([]string, 0, len(types))
	for name := range types {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if (names[i] == RowProperty) != (names[j] == RowProperty) {
			return names[i] == RowProperty
		}
		return names[i] < names[j]
	})

	schema := make([]column, len(names))
	for i, name := range names {
		schema[i] = column{name: name, typ: types[name]}
	}
	return schema
}

// featureGenerator feeds features to the FlatGeobuf writer.
type featureGenerator struct {
	features []*geojson.Feature
	schema   []column
	index    int
}

func (g *featureGenerator) Generate() *writer.Feature {
	for g.index < len(g.features) {
		f := g.features[g.index]
		g.index++

		if f == nil || f.Geometry == nil {
			continue
		}

		builder := flatbuffers.NewBuilder(1024)
		fgbGeom := geometryToFGB(f.Geometry, builder)
		if fgbGeom == nil {
			continue
		}

		feature := writer.NewFeature(builder)
		feature.SetGeometry(fgbGeom)
		if props := encodeProperties(f.Properties, g.schema); len(props) > 0 {
			feature.SetProperties(props)
		}
		return feature
	}

	return nil
}

// encodeProperties writes [uint16 column index][value] pairs. Int values are
// little-endian int32; strings are a uint32 byte length followed by UTF-8.
func encodeProperties(props geojson.Properties, schema []column) []byte {
	var buf bytes.Buffer
	for i, col := range schema {
		value, ok := props[col.name]
		if !ok || value == nil {
			continue
		}

		_ = binary.Write(&buf, binary.LittleEndian, uint16(i))

		switch col.typ {
		case flattypes.ColumnTypeInt:
			_ = binary.Write(&buf, binary.LittleEndian, int32(value.(int)))
		default:
			s := propertyString(value)
			_ = binary.Write(&buf, binary.LittleEndian, uint32(len(s)))
			buf.WriteString(s)
		}
	}
	return buf.Bytes()
}

func propertyString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	default:
		return fmt.Sprint(val)
	}
}

// orbToFGBGeometryType converts an orb.Geometry to its FlatGeobuf GeometryType.
func orbToFGBGeometryType(geom orb.Geometry) flattypes.GeometryType {
	switch geom.(type) {
	case orb.Point:
		return flattypes.GeometryTypePoint
	case orb.LineString:
		return flattypes.GeometryTypeLineString
	case orb.Ring, orb.Polygon:
		return flattypes.GeometryTypePolygon
	default:
		return flattypes.GeometryTypeUnknown
	}
}

// geometryToFGB converts the geometries this package builds to a FlatGeobuf
// writer.Geometry. Other types return nil.
func geometryToFGB(geom orb.Geometry, builder *flatbuffers.Builder) *writer.Geometry {
	g := writer.NewGeometry(builder)

	switch v := geom.(type) {
	case orb.Point:
		g.SetType(flattypes.GeometryTypePoint)
		g.SetXY([]float64{v[0], v[1]})

	case orb.LineString:
		g.SetType(flattypes.GeometryTypeLineString)
		g.SetXY(pointsToFlat(v))

	case orb.Ring:
		g.SetType(flattypes.GeometryTypePolygon)
		g.SetXY(pointsToFlat(v))
		g.SetEnds([]uint32{uint32(len(v))})

	case orb.Polygon:
		g.SetType(flattypes.GeometryTypePolygon)
		var xy []float64
		ends := make([]uint32, 0, len(v))
		cumulative := uint32(0)
		for _, ring := range v {
			xy = append(xy, pointsToFlat(ring)...)
			cumulative += uint32(len(ring))
			ends = append(ends, cumulative)
		}
		g.SetXY(xy)
		g.SetEnds(ends)

	default:
		return nil
	}

	return g
}
