package odkwkt

import (
	"fmt"
	"sort"
	"strings"
)

// Header is a named column at a 1-indexed position.
type Header struct {
	Name     string
	Position int
}

// AmbiguousHeaderError reports a header name that appears more than once.
type AmbiguousHeaderError struct {
	Name      string
	Positions []int
}

func (e *AmbiguousHeaderError) Error() string {
	return fmt.Sprintf("odkwkt: ambiguous header %q at positions %v", e.Name, e.Positions)
}

// Unwrap makes AmbiguousHeaderError match ErrAmbiguousHeader.
func (e *AmbiguousHeaderError) Unwrap() error {
	return ErrAmbiguousHeader
}

// ColumnResolver maps output column names to positions in a table, reusing
// existing headers and appending new ones to the right edge.
//
// A resolver is built once per run; after planning it is only read.
type ColumnResolver struct {
	positions map[string]int
	layout    []Header
	next      int
}

// NewColumnResolver indexes the existing headers. Blank names are rejected.
// Repeated names fail with an *AmbiguousHeaderError unless policy is
// FirstOccurrenceWins, in which case the lowest position is used.
func NewColumnResolver(existing []Header, policy DuplicatePolicy) (*ColumnResolver, error) {
	sorted := make([]Header, len(existing))
	copy(sorted, existing)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Position < sorted[j].Position
	})

	r := &ColumnResolver{
		positions: make(map[string]int, len(sorted)),
		layout:    make([]Header, 0, len(sorted)),
		next:      1,
	}

	duplicates := make(map[string][]int)
	for _, h := range sorted {
		if h.Position < 1 {
			return nil, fmt.Errorf("odkwkt: header %q has invalid position %d", h.Name, h.Position)
		}
		if strings.TrimSpace(h.Name) == "" {
			return nil, fmt.Errorf("%w at position %d", ErrEmptyHeader, h.Position)
		}

		if first, ok := r.positions[h.Name]; ok {
			if len(duplicates[h.Name]) == 0 {
				duplicates[h.Name] = []int{first}
			}
			duplicates[h.Name] = append(duplicates[h.Name], h.Position)
		} else {
			r.positions[h.Name] = h.Position
		}

		r.layout = append(r.layout, h)
		if h.Position >= r.next {
			r.next = h.Position + 1
		}
	}

	if len(duplicates) > 0 && policy != FirstOccurrenceWins {
		// Report the left-most duplicated name for a stable message.
		var worst *AmbiguousHeaderError
		for name, positions := range duplicates {
			if worst == nil || positions[0] < worst.Positions[0] {
				worst = &AmbiguousHeaderError{Name: name, Positions: positions}
			}
		}
		return nil, worst
	}

	return r, nil
}

// Resolve returns the position for name. Existing names keep their position
// and created is false. A new name is assigned the next free position and
// created is true; the caller writes that header once before any data row.
func (r *ColumnResolver) Resolve(name string) (position int, created bool, err error) {
	if strings.TrimSpace(name) == "" {
		return 0, false, ErrEmptyHeader
	}

	if pos, ok := r.positions[name]; ok {
		return pos, false, nil
	}

	pos := r.next
	r.next++
	r.positions[name] = pos
	r.layout = append(r.layout, Header{Name: name, Position: pos})

	return pos, true, nil
}

// Lookup returns the position of an existing or already resolved name.
func (r *ColumnResolver) Lookup(name string) (int, bool) {
	pos, ok := r.positions[name]
	return pos, ok
}

// Layout returns the final header layout ordered by position.
func (r *ColumnResolver) Layout() []Header {
	out := make([]Header, len(r.layout))
	copy(out, r.layout)
	return out
}
