package odkwkt

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/paulmach/orb"
)

// Target selects a source column to convert and the column that receives
// the WKT. An empty Output uses Kind.DefaultColumn.
type Target struct {
	Kind   Kind
	Source string
	Output string
}

// OutputName returns the output column name with the default applied.
func (t Target) OutputName() string {
	if t.Output != "" {
		return t.Output
	}
	return t.Kind.DefaultColumn()
}

// RowError is a per-cell conversion failure. It never aborts the run.
type RowError struct {
	Row    int
	Kind   Kind
	Column string
	Err    error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d, %s column %q: %v", e.Row, e.Kind, e.Column, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// RowGeometry is a converted geometry kept for layer export.
type RowGeometry struct {
	Row      int
	Kind     Kind
	Geometry orb.Geometry
}

// Report summarizes a conversion run.
type Report struct {
	Rows       int           // Data rows visited
	Converted  int           // Cells written
	Empty      int           // Cells skipped because the source was empty
	Failures   []*RowError   // Per-cell failures ordered by row, then target
	Columns    []Header      // Final header layout
	Geometries []RowGeometry // Built geometries, only with Options.KeepGeometries
}

// Failed reports whether any cell failed to convert.
func (r *Report) Failed() bool {
	return len(r.Failures) > 0
}

// Err joins every row failure into one error, or returns nil.
func (r *Report) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// plan is a target with its resolved column positions.
type plan struct {
	Target
	source int
	output int
}

type rowJob struct {
	row    int
	values []string
}

type cellResult struct {
	wkt  string
	geom orb.Geometry
	err  error
}

type rowResult struct {
	row   int
	cells []cellResult
}

// Run converts every data row of t for each target.
//
// Column positions are resolved and new headers written before any row is
// processed; a resolution failure returns an error and leaves t untouched.
// Rows are converted concurrently and written back by a single goroutine.
// Empty source cells are skipped and failed cells are reported, not written.
// When an existing output column is reused, those rows keep whatever value
// the column already held, which may be WKT from an earlier run.
//
// Every position up to the last column holding a name or data must carry a
// header name; a blank one fails with ErrEmptyHeader, so new output columns
// never land on unnamed data.
func Run(t Table, targets []Target, opts *Options) (*Report, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	log := opts.logger()

	plans, resolver, err := planTargets(t, targets, opts.Duplicates)
	if err != nil {
		return nil, err
	}

	layout := resolver.Layout()
	existing := make(map[int]string, len(layout))
	for _, h := range t.Headers() {
		existing[h.Position] = h.Name
	}
	for _, h := range layout {
		if existing[h.Position] != h.Name {
			t.SetHeader(h.Position, h.Name)
			log.Debug().
				Str("column", h.Name).
				Int("position", h.Position).
				Msg("Added output column")
		}
	}

	for _, p := range plans {
		log.Debug().
			Str("kind", p.Kind.String()).
			Str("source", p.Source).
			Int("source_col", p.source).
			Str("output", p.OutputName()).
			Int("output_col", p.output).
			Msg("Planned conversion target")
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	// Source values are read before any worker starts; workers never touch the table.
	rows := t.Len()
	pendingJobs := make([]rowJob, rows)
	for row := 1; row <= rows; row++ {
		values := make([]string, len(plans))
		for i, p := range plans {
			values[i] = t.Cell(row, p.source)
		}
		pendingJobs[row-1] = rowJob{row: row, values: values}
	}

	jobs := make(chan rowJob, workers)
	results := make(chan rowResult, workers)

	go func() {
		defer close(jobs)
		for _, job := range pendingJobs {
			jobs <- job
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				results <- convertRow(job, plans)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	report := &Report{Rows: rows}
	pending := make([]rowResult, 0, rows)
	for res := range results {
		pending = append(pending, res)
	}

	// Writes happen after all workers finished, so Table needs no locking.
	sort.Slice(pending, func(i, j int) bool { return pending[i].row < pending[j].row })
	for _, res := range pending {
		for i, c := range res.cells {
			p := plans[i]
			switch {
			case c.err != nil:
				report.Failures = append(report.Failures, &RowError{
					Row:    res.row,
					Kind:   p.Kind,
					Column: p.Source,
					Err:    c.err,
				})
			case c.wkt == "":
				report.Empty++
			default:
				t.SetCell(res.row, p.output, c.wkt)
				report.Converted++
				if opts.KeepGeometries {
					report.Geometries = append(report.Geometries, RowGeometry{
						Row:      res.row,
						Kind:     p.Kind,
						Geometry: c.geom,
					})
				}
			}
		}
	}

	report.Columns = layout

	log.Debug().
		Int("rows", report.Rows).
		Int("converted", report.Converted).
		Int("empty", report.Empty).
		Int("failed", len(report.Failures)).
		Msg("Conversion finished")

	return report, nil
}

// planTargets validates targets and resolves their source and output columns.
func planTargets(t Table, targets []Target, policy DuplicatePolicy) ([]plan, *ColumnResolver, error) {
	if len(targets) == 0 {
		return nil, nil, errors.New("odkwkt: no conversion targets")
	}

	resolver, err := NewColumnResolver(t.Headers(), policy)
	if err != nil {
		return nil, nil, err
	}

	plans := make([]plan, 0, len(targets))
	sources := make(map[int]bool, len(targets))
	for _, tg := range targets {
		if !tg.Kind.Valid() {
			return nil, nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(tg.Kind))
		}
		pos, ok := resolver.Lookup(tg.Source)
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s source %q", ErrUnknownColumn, tg.Kind, tg.Source)
		}
		sources[pos] = true
		plans = append(plans, plan{Target: tg, source: pos})
	}

	outputs := make(map[int]Kind, len(plans))
	for i := range plans {
		name := plans[i].OutputName()
		pos, _, err := resolver.Resolve(name)
		if err != nil {
			return nil, nil, fmt.Errorf("%s output: %w", plans[i].Kind, err)
		}
		if sources[pos] {
			return nil, nil, fmt.Errorf("%w: %s output %q is a source column", ErrColumnConflict, plans[i].Kind, name)
		}
		if other, ok := outputs[pos]; ok {
			return nil, nil, fmt.Errorf("%w: %s and %s both write %q", ErrColumnConflict, other, plans[i].Kind, name)
		}
		outputs[pos] = plans[i].Kind
		plans[i].output = pos
	}

	return plans, resolver, nil
}

func convertRow(job rowJob, plans []plan) rowResult {
	res := rowResult{row: job.row, cells: make([]cellResult, len(plans))}
	for i, p := range plans {
		g, err := BuildGeometry(job.values[i], p.Kind)
		if err != nil {
			res.cells[i].err = err
			continue
		}
		if g == nil {
			continue
		}
		wkt, err := MarshalWKT(g)
		if err != nil {
			res.cells[i].err = err
			continue
		}
		res.cells[i] = cellResult{wkt: wkt, geom: g}
	}
	return res
}
