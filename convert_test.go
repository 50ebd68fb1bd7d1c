package odkwkt

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

func sampleTable() *MemTable {
	return NewMemTable(
		[]string{"Name", "Location", "Route", "Boundary"},
		[][]string{
			{"well", "12.5 77.25 450.0 3.2", "", ""},
			{"road", "", "12.5 77.25;12.6 77.30", ""},
			{"field", "", "", "0 0;0 1;1 1"},
			{"broken", "abc 77.25", "12.5 77.25;12.6 77.30", "0 0;0 1"},
			{"short"},
		},
	)
}

func allTargets() []Target {
	return []Target{
		{Kind: KindPoint, Source: "Location"},
		{Kind: KindLine, Source: "Route"},
		{Kind: KindPolygon, Source: "Boundary"},
	}
}

func TestRun(t *testing.T) {
	table := sampleTable()

	report, err := Run(table, allTargets(), &Options{Workers: 3})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	header := table.HeaderRow()
	expectedHeader := []string{"Name", "Location", "Route", "Boundary", "QGIS Point WKT", "QGIS Trace WKT", "QGIS Polygon WKT"}
	if strings.Join(header, "|") != strings.Join(expectedHeader, "|") {
		t.Errorf("expected header %v, got %v", expectedHeader, header)
	}

	cells := []struct {
		row, col int
		expected string
	}{
		{1, 5, "POINT (77.25 12.5)"},
		{2, 6, "LINESTRING (77.25 12.5, 77.3 12.6)"},
		{3, 7, "POLYGON ((0 0, 1 0, 1 1, 0 0))"},
		{1, 6, ""},
		{4, 5, ""},
		{4, 7, ""},
		{5, 5, ""},
	}
	for _, c := range cells {
		if got := table.Cell(c.row, c.col); got != c.expected {
			t.Errorf("cell (%d, %d): expected %q, got %q", c.row, c.col, c.expected, got)
		}
	}

	if report.Rows != 5 {
		t.Errorf("expected 5 rows, got %d", report.Rows)
	}
	if report.Converted != 4 {
		t.Errorf("expected 4 converted cells, got %d", report.Converted)
	}
	if report.Empty != 9 {
		t.Errorf("expected 9 empty cells, got %d", report.Empty)
	}
	if len(report.Columns) != 7 {
		t.Errorf("expected 7 columns, got %d", len(report.Columns))
	}
}

func TestRun_RowFailuresDoNotAbort(t *testing.T) {
	table := sampleTable()

	report, err := Run(table, allTargets(), &Options{Workers: 2})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !report.Failed() {
		t.Fatal("expected failures")
	}
	if len(report.Failures) != 2 {
		t.Fatalf("expected 2 failures, got %d: %v", len(report.Failures), report.Err())
	}

	first := report.Failures[0]
	if first.Row != 4 || first.Kind != KindPoint || first.Column != "Location" {
		t.Errorf("unexpected first failure: %+v", first)
	}
	if !errors.Is(first, ErrMalformedToken) {
		t.Errorf("expected ErrMalformedToken, got %v", first.Err)
	}

	second := report.Failures[1]
	if second.Row != 4 || second.Kind != KindPolygon {
		t.Errorf("unexpected second failure: %+v", second)
	}
	if !errors.Is(second, ErrInsufficientPoints) {
		t.Errorf("expected ErrInsufficientPoints, got %v", second.Err)
	}

	// The line in the same row still converts.
	if got := table.Cell(4, 6); got != "LINESTRING (77.25 12.5, 77.3 12.6)" {
		t.Errorf("unexpected line cell %q", got)
	}

	if !errors.Is(report.Err(), ErrInsufficientPoints) {
		t.Errorf("expected joined error to contain ErrInsufficientPoints")
	}
}

func TestRun_RerunReusesColumns(t *testing.T) {
	table := sampleTable()

	if _, err := Run(table, allTargets(), nil); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	width := table.Width()

	table.SetCell(1, 2, "1 2")
	report, err := Run(table, allTargets(), nil)
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}

	if table.Width() != width {
		t.Errorf("expected width %d after rerun, got %d", width, table.Width())
	}
	if len(report.Columns) != width {
		t.Errorf("expected %d columns, got %d", width, len(report.Columns))
	}
	if got := table.Cell(1, 5); got != "POINT (2 1)" {
		t.Errorf("expected rewritten point, got %q", got)
	}
}

func TestRun_RerunKeepsPreviousValueOnFailure(t *testing.T) {
	table := sampleTable()

	if _, err := Run(table, allTargets(), nil); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}

	table.SetCell(1, 2, "not a coordinate")
	table.SetCell(3, 4, "")
	report, err := Run(table, allTargets(), nil)
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}

	if got := table.Cell(1, 5); got != "POINT (77.25 12.5)" {
		t.Errorf("expected previous point WKT kept for failed row, got %q", got)
	}
	if got := table.Cell(3, 7); got != "POLYGON ((0 0, 1 0, 1 1, 0 0))" {
		t.Errorf("expected previous polygon WKT kept for emptied row, got %q", got)
	}

	var failedRow1 bool
	for _, f := range report.Failures {
		if f.Row == 1 && f.Kind == KindPoint {
			failedRow1 = true
		}
	}
	if !failedRow1 {
		t.Errorf("expected row 1 point failure, got %v", report.Failures)
	}
}

// readOrderTable records whether any source cell is read after the first write.
type readOrderTable struct {
	*MemTable
	mu        sync.Mutex
	written   bool
	lateReads int
	rowsRead  []int
}

func (t *readOrderTable) Cell(row, col int) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.written {
		t.lateReads++
	}
	t.rowsRead = append(t.rowsRead, row)
	return t.MemTable.Cell(row, col)
}

func (t *readOrderTable) SetCell(row, col int, value string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.written = true
	t.MemTable.SetCell(row, col, value)
}

func TestRun_ReadsSourcesBeforeWriting(t *testing.T) {
	rows := make([][]string, 200)
	for i := range rows {
		rows[i] = []string{fmt.Sprintf("%d 1", i%90)}
	}
	table := &readOrderTable{MemTable: NewMemTable([]string{"Location"}, rows)}

	report, err := Run(table, []Target{{Kind: KindPoint, Source: "Location"}}, &Options{Workers: 4})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Converted != len(rows) {
		t.Errorf("expected %d conversions, got %d", len(rows), report.Converted)
	}
	if table.lateReads != 0 {
		t.Errorf("expected no reads after the first write, got %d", table.lateReads)
	}
	if len(table.rowsRead) != len(rows) {
		t.Fatalf("expected %d reads, got %d", len(rows), len(table.rowsRead))
	}
	for i, row := range table.rowsRead {
		if row != i+1 {
			t.Fatalf("read %d: expected row %d, got %d", i, i+1, row)
		}
	}
}

func TestRun_CustomOutputColumn(t *testing.T) {
	table := NewMemTable(
		[]string{"Location", "Geom"},
		[][]string{{"1 2", "stale"}},
	)

	_, err := Run(table, []Target{{Kind: KindPoint, Source: "Location", Output: "Geom"}}, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := table.Cell(1, 2); got != "POINT (2 1)" {
		t.Errorf("expected overwrite in place, got %q", got)
	}
	if table.Width() != 2 {
		t.Errorf("expected no new column, got width %d", table.Width())
	}
}

func TestRun_PlanningErrors(t *testing.T) {
	tests := []struct {
		name    string
		header  []string
		targets []Target
		opts    *Options
		want    error
	}{
		{
			"UnknownSource",
			[]string{"A"},
			[]Target{{Kind: KindPoint, Source: "Missing"}},
			nil,
			ErrUnknownColumn,
		},
		{
			"UnknownKind",
			[]string{"A"},
			[]Target{{Kind: Kind(9), Source: "A"}},
			nil,
			ErrUnknownKind,
		},
		{
			"OutputIsSource",
			[]string{"A", "B"},
			[]Target{{Kind: KindPoint, Source: "A"}, {Kind: KindLine, Source: "B", Output: "A"}},
			nil,
			ErrColumnConflict,
		},
		{
			"SharedOutput",
			[]string{"A", "B"},
			[]Target{{Kind: KindPoint, Source: "A", Output: "WKT"}, {Kind: KindLine, Source: "B", Output: "WKT"}},
			nil,
			ErrColumnConflict,
		},
		{
			"DuplicateHeaders",
			[]string{"A", "A"},
			[]Target{{Kind: KindPoint, Source: "A"}},
			nil,
			ErrAmbiguousHeader,
		},
		{
			"BlankHeader",
			[]string{"A", "", "B"},
			[]Target{{Kind: KindPoint, Source: "A"}},
			nil,
			ErrEmptyHeader,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := []string{"1 2", "3 4", "5 6"}[:len(tt.header)]
			table := NewMemTable(tt.header, [][]string{row})
			_, err := Run(table, tt.targets, tt.opts)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if len(table.Dirty()) != 0 {
				t.Errorf("expected table untouched, got dirty cells %v", table.Dirty())
			}
		})
	}
}

func TestRun_UnnamedDataColumn(t *testing.T) {
	table := NewMemTable(
		[]string{"Point"},
		[][]string{
			{"1 2", "field note"},
			{"3 4"},
		},
	)

	_, err := Run(table, []Target{{Kind: KindPoint, Source: "Point"}}, nil)
	if !errors.Is(err, ErrEmptyHeader) {
		t.Fatalf("expected ErrEmptyHeader, got %v", err)
	}
	if got := table.Cell(1, 2); got != "field note" {
		t.Errorf("expected unnamed cell untouched, got %q", got)
	}
	if len(table.Dirty()) != 0 {
		t.Errorf("expected table untouched, got dirty cells %v", table.Dirty())
	}
}

func TestRun_TrailingEmptyCellsIgnored(t *testing.T) {
	table := NewMemTable(
		[]string{"Point", ""},
		[][]string{{"1 2", "", ""}},
	)

	report, err := Run(table, []Target{{Kind: KindPoint, Source: "Point"}}, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Converted != 1 {
		t.Errorf("expected 1 conversion, got %d", report.Converted)
	}
	if got := table.Cell(1, 2); got != "POINT (2 1)" {
		t.Errorf("expected WKT in column 2, got %q", got)
	}
}

func TestRun_NoTargets(t *testing.T) {
	if _, err := Run(NewMemTable([]string{"A"}, nil), nil, nil); err == nil {
		t.Error("expected error for empty target list")
	}
}

func TestRun_DuplicateHeadersFirstWins(t *testing.T) {
	table := NewMemTable(
		[]string{"Location", "Location"},
		[][]string{{"1 2", "3 4"}},
	)

	_, err := Run(table, []Target{{Kind: KindPoint, Source: "Location"}}, &Options{Duplicates: FirstOccurrenceWins})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := table.Cell(1, 3); got != "POINT (2 1)" {
		t.Errorf("expected first Location column to be used, got %q", got)
	}
}

func TestRun_KeepGeometries(t *testing.T) {
	table := sampleTable()

	report, err := Run(table, allTargets(), &Options{KeepGeometries: true})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(report.Geometries) != report.Converted {
		t.Fatalf("expected %d geometries, got %d", report.Converted, len(report.Geometries))
	}
	for i := 1; i < len(report.Geometries); i++ {
		if report.Geometries[i].Row < report.Geometries[i-1].Row {
			t.Errorf("geometries not ordered by row: %d before %d",
				report.Geometries[i-1].Row, report.Geometries[i].Row)
		}
	}
	if report.Geometries[0].Kind != KindPoint || report.Geometries[0].Row != 1 {
		t.Errorf("unexpected first geometry %+v", report.Geometries[0])
	}
}

func TestRun_ManyRowsParallel(t *testing.T) {
	rows := make([][]string, 500)
	for i := range rows {
		rows[i] = []string{fmt.Sprintf("%d 1;%d 2", i, i)}
	}
	table := NewMemTable([]string{"Route"}, rows)

	var logs bytes.Buffer
	logger := zerolog.New(&logs).Level(zerolog.DebugLevel)

	report, err := Run(table, []Target{{Kind: KindLine, Source: "Route"}}, &Options{Workers: 8, Logger: &logger})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Converted != 500 {
		t.Fatalf("expected 500 conversions, got %d", report.Converted)
	}

	for i := range rows {
		expected := fmt.Sprintf("LINESTRING (1 %d, 2 %d)", i, i)
		if got := table.Cell(i+1, 2); got != expected {
			t.Fatalf("row %d: expected %q, got %q", i+1, expected, got)
		}
	}

	if !strings.Contains(logs.String(), "Conversion finished") {
		t.Errorf("expected debug log output, got %q", logs.String())
	}
}
