package odkwkt

import (
	"errors"
	"testing"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		input    string
		expected Kind
	}{
		{"point", KindPoint},
		{"geopoint", KindPoint},
		{"Line", KindLine},
		{"trace", KindLine},
		{"geotrace", KindLine},
		{"linestring", KindLine},
		{" polygon ", KindPolygon},
		{"SHAPE", KindPolygon},
		{"geoshape", KindPolygon},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseKind(tt.input)
			if err != nil {
				t.Fatalf("ParseKind failed: %v", err)
			}
			if got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}

	if _, err := ParseKind("circle"); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		kind      Kind
		name      string
		minPoints int
		column    string
	}{
		{KindPoint, "point", 1, "QGIS Point WKT"},
		{KindLine, "line", 2, "QGIS Trace WKT"},
		{KindPolygon, "polygon", 3, "QGIS Polygon WKT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.kind.Valid() {
				t.Error("expected valid kind")
			}
			if tt.kind.String() != tt.name {
				t.Errorf("expected name %q, got %q", tt.name, tt.kind.String())
			}
			if tt.kind.MinPoints() != tt.minPoints {
				t.Errorf("expected %d min points, got %d", tt.minPoints, tt.kind.MinPoints())
			}
			if tt.kind.DefaultColumn() != tt.column {
				t.Errorf("expected column %q, got %q", tt.column, tt.kind.DefaultColumn())
			}
		})
	}

	if Kind(0).Valid() || Kind(7).Valid() {
		t.Error("expected out-of-range kinds to be invalid")
	}
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	if opts.Workers < 1 {
		t.Errorf("expected at least one worker, got %d", opts.Workers)
	}
	if opts.Duplicates != RejectDuplicates {
		t.Errorf("expected duplicates to be rejected by default")
	}
	if opts.logger() == nil {
		t.Error("expected a no-op logger")
	}
}
