package odkwkt

// Table is a row-oriented sheet with a header row.
// Columns and data rows are 1-indexed; the header row is not a data row.
type Table interface {
	Headers() []Header
	Len() int
	Cell(row, col int) string
	SetCell(row, col int, value string)
	SetHeader(col int, name string)
}

// CellRef addresses a cell. Row 0 is the header row.
type CellRef struct {
	Row int
	Col int
}

// MemTable is an in-memory Table. It grows on write and remembers which
// cells were written so adapters can persist only what changed.
type MemTable struct {
	header []string
	rows   [][]string
	dirty  map[CellRef]struct{}
	order  []CellRef
}

// NewMemTable creates a table from a header row and data rows.
// The slices are copied.
func NewMemTable(header []string, rows [][]string) *MemTable {
	t := &MemTable{
		header: append([]string(nil), header...),
		rows:   make([][]string, len(rows)),
		dirty:  make(map[CellRef]struct{}),
	}
	for i, r := range rows {
		t.rows[i] = append([]string(nil), r...)
	}
	return t
}

// Headers returns the header cells with their positions, out to the last
// column that has a name or holds data. Blank cells in that range are
// reported too so callers can reject them.
func (t *MemTable) Headers() []Header {
	last := len(t.header)
	for last > 0 && t.header[last-1] == "" {
		last--
	}
	for _, r := range t.rows {
		for c := len(r); c > last; c-- {
			if r[c-1] != "" {
				last = c
				break
			}
		}
	}

	headers := make([]Header, 0, last)
	for i := 0; i < last; i++ {
		var name string
		if i < len(t.header) {
			name = t.header[i]
		}
		headers = append(headers, Header{Name: name, Position: i + 1})
	}
	return headers
}

// Len returns the number of data rows.
func (t *MemTable) Len() int {
	return len(t.rows)
}

// Width returns the number of columns, including written ones.
func (t *MemTable) Width() int {
	w := len(t.header)
	for _, r := range t.rows {
		if len(r) > w {
			w = len(r)
		}
	}
	return w
}

// Cell returns the value at a data row and column, or "" when out of range.
func (t *MemTable) Cell(row, col int) string {
	if row < 1 || row > len(t.rows) || col < 1 {
		return ""
	}
	r := t.rows[row-1]
	if col > len(r) {
		return ""
	}
	return r[col-1]
}

// SetCell writes a data cell, appending rows and columns as needed.
func (t *MemTable) SetCell(row, col int, value string) {
	if row < 1 || col < 1 {
		return
	}
	for len(t.rows) < row {
		t.rows = append(t.rows, nil)
	}
	t.rows[row-1] = grow(t.rows[row-1], col)
	t.rows[row-1][col-1] = value
	t.markDirty(CellRef{Row: row, Col: col})
}

// SetHeader writes a header cell.
func (t *MemTable) SetHeader(col int, name string) {
	if col < 1 {
		return
	}
	t.header = grow(t.header, col)
	t.header[col-1] = name
	t.markDirty(CellRef{Row: 0, Col: col})
}

// HeaderRow returns a copy of the header row.
func (t *MemTable) HeaderRow() []string {
	return append([]string(nil), t.header...)
}

// Row returns a copy of a data row padded to Width.
func (t *MemTable) Row(row int) []string {
	out := make([]string, t.Width())
	if row >= 1 && row <= len(t.rows) {
		copy(out, t.rows[row-1])
	}
	return out
}

// Dirty returns the written cells in write order.
func (t *MemTable) Dirty() []CellRef {
	return append([]CellRef(nil), t.order...)
}

func (t *MemTable) markDirty(ref CellRef) {
	if _, ok := t.dirty[ref]; ok {
		return
	}
	t.dirty[ref] = struct{}{}
	t.order = append(t.order, ref)
}

func grow(s []string, n int) []string {
	for len(s) < n {
		s = append(s, "")
	}
	return s
}
