package odkwkt

import (
	"encoding/binary"

	flatgeobuf "github.com/flatgeobuf/flatgeobuf/src/go"
	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ReadFlatGeobuf reads a layer written by WriteFlatGeobuf back into a feature
// collection. The official Go reader can only iterate through the spatial
// index, so the layer must have been written with IncludeIndex.
func ReadFlatGeobuf(data []byte) (*geojson.FeatureCollection, error) {
	fgb, err := flatgeobuf.NewWithData(data)
	if err != nil {
		return nil, err
	}

	h := fgb.Header()
	if h.IndexNodeSize() == 0 {
		return nil, ErrNoIndex
	}

	fc := geojson.NewFeatureCollection()
	if h.FeaturesCount() == 0 || h.EnvelopeLength() < 4 {
		return fc, nil
	}

	features, err := fgb.Search(h.Envelope(0), h.Envelope(1), h.Envelope(2), h.Envelope(3))
	if err != nil {
		return nil, err
	}

	for _, fgbFeature := range features {
		if feature := convertFeature(fgbFeature, h); feature != nil {
			fc.Append(feature)
		}
	}

	return fc, nil
}

// convertFeature converts a FlatGeobuf feature to a geojson.Feature.
func convertFeature(fgbFeature *flattypes.Feature, header *flattypes.Header) *geojson.Feature {
	if fgbFeature == nil {
		return nil
	}

	var geomObj flattypes.Geometry
	geom := fgbFeature.Geometry(&geomObj)
	if geom == nil {
		return nil
	}

	orbGeom := geometryFromFGB(geom)
	if orbGeom == nil {
		return nil
	}

	feature := geojson.NewFeature(orbGeom)

	propsLen := fgbFeature.PropertiesLength()
	if propsLen > 0 && header.ColumnsLength() > 0 {
		data := make([]byte, propsLen)
		for i := 0; i < propsLen; i++ {
			data[i] = byte(fgbFeature.Properties(i))
		}
		decodeProperties(data, header, feature.Properties)
	}

	return feature
}

// decodeProperties reads the Int and String columns written by encodeProperties.
func decodeProperties(data []byte, header *flattypes.Header, props geojson.Properties) {
	offset := 0
	for offset+2 <= len(data) {
		idx := int(binary.LittleEndian.Uint16(data[offset:]))
		offset += 2

		var col flattypes.Column
		if idx >= header.ColumnsLength() || !header.Columns(&col, idx) {
			return
		}
		name := string(col.Name())

		switch col.Type() {
		case flattypes.ColumnTypeInt:
			if offset+4 > len(data) {
				return
			}
			props[name] = int(int32(binary.LittleEndian.Uint32(data[offset:])))
			offset += 4

		case flattypes.ColumnTypeString:
			if offset+4 > len(data) {
				return
			}
			n := int(binary.LittleEndian.Uint32(data[offset:]))
			offset += 4
			if offset+n > len(data) {
				return
			}
			props[name] = string(data[offset : offset+n])
			offset += n

		default:
			return
		}
	}
}

// geometryFromFGB converts a FlatGeobuf point, line string or polygon to orb.
func geometryFromFGB(fgbGeom *flattypes.Geometry) orb.Geometry {
	xyLen := fgbGeom.XyLength()
	if xyLen < 2 {
		return nil
	}

	points := make([]orb.Point, 0, xyLen/2)
	for i := 0; i+1 < xyLen; i += 2 {
		points = append(points, orb.Point{fgbGeom.Xy(i), fgbGeom.Xy(i + 1)})
	}

	switch fgbGeom.Type() {
	case flattypes.GeometryTypePoint:
		return points[0]

	case flattypes.GeometryTypeLineString:
		return orb.LineString(points)

	case flattypes.GeometryTypePolygon:
		endsLen := fgbGeom.EndsLength()
		if endsLen == 0 {
			return orb.Polygon{orb.Ring(points)}
		}

		poly := make(orb.Polygon, 0, endsLen)
		start := uint32(0)
		for i := 0; i < endsLen; i++ {
			end := fgbGeom.Ends(i)
			if int(end) > len(points) || end < start {
				break
			}
			poly = append(poly, orb.Ring(points[start:end]))
			start = end
		}
		return poly

	default:
		return nil
	}
}
