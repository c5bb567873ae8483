// Package grid reassembles per-unit pricing results into the dense
// two-dimensional structure indexed by the strike and volatility axes.
package grid

import (
	"fmt"

	"github.com/montegrid/montegrid/pkg/sched"
	"github.com/montegrid/montegrid/pkg/types"
)

// Grid is the dense result of a sweep: Cells[i][j] holds the price quote
// for Strikes[i] and Sigmas[j].
type Grid struct {
	Strikes []float64
	Sigmas  []float64
	Cells   [][]types.PriceQuote

	// Failed lists cells without a successful result. Non-empty only when
	// the grid was assembled with WithPartial.
	Failed []CellError
}

// Cell returns the quote at (strikeIndex, sigmaIndex).
func (g *Grid) Cell(strikeIndex, sigmaIndex int) types.PriceQuote {
	return g.Cells[strikeIndex][sigmaIndex]
}

// Complete reports whether every cell holds a successful result.
func (g *Grid) Complete() bool {
	return len(g.Failed) == 0
}

// CellError identifies a failed or missing grid cell.
type CellError struct {
	Row    int
	Col    int
	UnitID int64
	Err    error
}

// IncompleteGridError reports failed or missing cells during assembly
// without the partial-result opt-in.
type IncompleteGridError struct {
	Cells []CellError
	Total int
}

// Error implements the error interface
func (e *IncompleteGridError) Error() string {
	return fmt.Sprintf("grid assembly incomplete: %d of %d cells failed", len(e.Cells), e.Total)
}

type options struct {
	partial bool
}

// Option configures grid assembly
type Option func(*options)

// WithPartial makes Assemble tolerate failed cells: they are listed in
// Grid.Failed and left zero-valued instead of aborting assembly.
func WithPartial() Option {
	return func(o *options) {
		o.partial = true
	}
}

// Assemble projects the result table back onto the (strike, sigma) grid
// using each unit's originating coordinates. The outcome is independent of
// the order results arrived in. Without WithPartial, any failed or missing
// cell aborts with IncompleteGridError.
func Assemble(strikes, sigmas []float64, units []*sched.WorkUnit, table sched.Table, opts ...Option) (*Grid, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	rows, cols := len(strikes), len(sigmas)
	if rows == 0 || cols == 0 {
		return nil, fmt.Errorf("empty axes: %d strikes, %d sigmas", rows, cols)
	}
	if len(units) != rows*cols {
		return nil, fmt.Errorf("unit count %d does not match grid size %dx%d", len(units), rows, cols)
	}

	cells := make([][]types.PriceQuote, rows)
	seen := make([][]bool, rows)
	for i := range cells {
		cells[i] = make([]types.PriceQuote, cols)
		seen[i] = make([]bool, cols)
	}

	var failed []CellError
	for _, u := range units {
		i, j := u.Row(), u.Col()
		if i < 0 || i >= rows || j < 0 || j >= cols {
			return nil, fmt.Errorf("unit %d has coordinates (%d,%d) outside %dx%d grid", u.ID(), i, j, rows, cols)
		}
		if seen[i][j] {
			return nil, fmt.Errorf("duplicate unit for cell (%d,%d)", i, j)
		}
		seen[i][j] = true

		res, ok := table[u.ID()]
		switch {
		case !ok:
			failed = append(failed, CellError{Row: i, Col: j, UnitID: u.ID(), Err: types.ErrNoResult})
		case res.Err != nil:
			failed = append(failed, CellError{Row: i, Col: j, UnitID: u.ID(), Err: res.Err})
		default:
			cells[i][j] = res.Quote
		}
	}

	if len(failed) > 0 && !o.partial {
		return nil, &IncompleteGridError{Cells: failed, Total: rows * cols}
	}

	return &Grid{
		Strikes: strikes,
		Sigmas:  sigmas,
		Cells:   cells,
		Failed:  failed,
	}, nil
}
