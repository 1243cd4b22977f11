package ingest

import (
	"context"
	"runtime"
	"sort"

	"github.com/turtacn/rid-registry/internal/domain/registry"
	"github.com/turtacn/rid-registry/internal/infrastructure/monitoring/logging"
)

// Processing modes reported in SnapshotReport.Mode.
const (
	ModeWhole  = "whole"
	ModeByYear = "by_year"
)

// PartitionOptions selects and trims the years of a partitioned pass.
// Zero values mean "not set".
type PartitionOptions struct {
	ByYear    bool `json:"by_year"`
	MinYear   int  `json:"min_year,omitempty"`
	MaxYear   int  `json:"max_year,omitempty"`
	StartYear int  `json:"start_year,omitempty"`
	// SkipYearFilter ignores MinYear, MaxYear and StartYear.
	SkipYearFilter bool `json:"skip_year_filter,omitempty"`
	// Stride processes every Nth remaining year.
	Stride     int  `json:"stride,omitempty"`
	OnlyActive bool `json:"only_active,omitempty"`
	// Limit caps the rows handed to the engine per year, or in whole mode.
	Limit int `json:"limit,omitempty"`
}

type phase string

const (
	phaseIdle             phase = "idle"
	phaseDeterminingYears phase = "determining_years"
	phasePerYear          phase = "per_year"
	phaseDone             phase = "done"
)

// Partitioner drives an Engine over a snapshot, either whole or one
// registration year at a time.
type Partitioner struct {
	engine *Engine
	logger logging.Logger
	phase  phase
	// gc runs between years
	gc func()
}

// NewPartitioner builds a Partitioner around engine.
func NewPartitioner(engine *Engine, logger logging.Logger) *Partitioner {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Partitioner{engine: engine, logger: logger.Named("partition"), phase: phaseIdle, gc: runtime.GC}
}

// Run processes pass according to opts and returns the accumulated result,
// the mode actually used and the years visited.  Partitioned mode falls back
// to whole mode when no row carries a parseable registration date.
//
// In partitioned mode duplicate registration numbers are resolved over the
// whole table before bucketing (first row wins), and rows without a
// registration date are processed last unless a year filter or stride
// narrows the pass, in which case they are counted as skipped.
func (p *Partitioner) Run(ctx context.Context, pass Pass, opts PartitionOptions) (*PassResult, string, []int, error) {
	defer p.enter(phaseDone)
	if !opts.ByYear || pass.Adapter == nil || pass.Table == nil {
		res, err := p.whole(ctx, pass, opts)
		return res, ModeWhole, nil, err
	}

	p.enter(phaseDeterminingYears)
	rows, duplicates := firstByKey(pass.Adapter, pass.Table.Rows)
	byYear, undated := groupByYear(rows)
	if len(byYear) == 0 {
		p.logger.Info("no registration years found, processing whole snapshot")
		res, err := p.whole(ctx, pass, opts)
		return res, ModeWhole, nil, err
	}
	years := selectYears(byYear, opts)

	total := &PassResult{}
	if duplicates > 0 {
		total.Stats.RecordsSeen += duplicates
		total.Stats.Skipped += duplicates
		p.logger.Info("duplicate registration numbers skipped", logging.Int("rows", duplicates))
	}

	buckets := make([][]registry.Row, 0, len(years)+1)
	for _, year := range years {
		buckets = append(buckets, byYear[year])
	}
	if len(undated) > 0 {
		if narrowsYears(opts) {
			total.Stats.RecordsSeen += len(undated)
			total.Stats.Skipped += len(undated)
			p.logger.Warn("rows without registration date skipped by the year filter",
				logging.Int("rows", len(undated)))
		} else {
			buckets = append(buckets, undated)
		}
	}

	p.enter(phasePerYear)
	for i, bucket := range buckets {
		slice := pass
		slice.Table = pass.Table.Slice(trimRows(bucket, opts))
		if i < len(years) {
			p.logger.Info("processing year", logging.Int("year", years[i]), logging.Int("rows", len(slice.Table.Rows)))
		} else {
			p.logger.Info("processing rows without registration date", logging.Int("rows", len(slice.Table.Rows)))
		}

		res, err := p.engine.Process(ctx, slice)
		if res != nil {
			total.add(res)
		}
		if err != nil {
			return total, ModeByYear, years[:min(i+1, len(years))], err
		}
		if i < len(buckets)-1 {
			p.gc()
		}
	}
	return total, ModeByYear, years, nil
}

func (p *Partitioner) whole(ctx context.Context, pass Pass, opts PartitionOptions) (*PassResult, error) {
	whole := pass
	whole.Table = pass.Table.Slice(trimRows(pass.Table.Rows, opts))
	return p.engine.Process(ctx, whole)
}

func (p *Partitioner) enter(next phase) {
	p.logger.Debug("partition phase", logging.String("from", string(p.phase)), logging.String("to", string(next)))
	p.phase = next
}

// firstByKey drops every row whose registration number already appeared
// earlier in rows and returns how many were dropped.  Rows without a key
// are kept for the engine to count.
func firstByKey(a *registry.Adapter, rows []registry.Row) ([]registry.Row, int) {
	out := make([]registry.Row, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		key := a.Key(row)
		if key != "" {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		out = append(out, row)
	}
	return out, len(rows) - len(out)
}

// groupByYear buckets rows by the year of their registration date and
// returns the undated rows in table order.
func groupByYear(rows []registry.Row) (map[int][]registry.Row, []registry.Row) {
	out := make(map[int][]registry.Row)
	var undated []registry.Row
	for _, row := range rows {
		year, ok := registry.ExtractYear(row[registry.ColRegistrationDate])
		if !ok {
			undated = append(undated, row)
			continue
		}
		out[year] = append(out[year], row)
	}
	return out, undated
}

// narrowsYears reports whether opts visit only some of the years.
func narrowsYears(opts PartitionOptions) bool {
	if opts.Stride > 1 {
		return true
	}
	return !opts.SkipYearFilter && (opts.MinYear > 0 || opts.MaxYear > 0 || opts.StartYear > 0)
}

// selectYears sorts the distinct years, applies the min, max and start
// filters unless skipped, then the stride.
func selectYears(byYear map[int][]registry.Row, opts PartitionOptions) []int {
	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Ints(years)

	if !opts.SkipYearFilter {
		filtered := years[:0]
		for _, y := range years {
			if opts.MinYear > 0 && y < opts.MinYear {
				continue
			}
			if opts.MaxYear > 0 && y > opts.MaxYear {
				continue
			}
			if opts.StartYear > 0 && y < opts.StartYear {
				continue
			}
			filtered = append(filtered, y)
		}
		years = filtered
	}

	if opts.Stride > 1 {
		strided := make([]int, 0, len(years)/opts.Stride+1)
		for i := 0; i < len(years); i += opts.Stride {
			strided = append(strided, years[i])
		}
		years = strided
	}
	return years
}

// trimRows applies the only-active filter and the row cap.
func trimRows(rows []registry.Row, opts PartitionOptions) []registry.Row {
	if opts.OnlyActive {
		active := make([]registry.Row, 0, len(rows))
		for _, row := range rows {
			if registry.ParseBool(row[registry.ColActual]) {
				active = append(active, row)
			}
		}
		rows = active
	}
	if opts.Limit > 0 && len(rows) > opts.Limit {
		rows = rows[:opts.Limit]
	}
	return rows
}
