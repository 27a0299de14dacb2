package contour

import (
	"context"
	"fmt"

	"github.com/DmitriyVTitov/size"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/janelia-flyem/acseg/acseg"
	"github.com/janelia-flyem/acseg/voxels"
)

// Options configure an Engine beyond the evolution parameters.
type Options struct {
	// Progress, if non-nil, receives the percentage of rounds completed.
	Progress func(percent int)

	// Interrupt is polled between rounds.
	Interrupt acseg.InterruptFunc

	// Movie selects an optional per-round recording of seed perimeters.
	Movie MovieSpec

	// TrackGrowth records every seed's volume after each round.
	TrackGrowth bool

	// Workers bounds the number of seeds processed concurrently.  Zero uses
	// acseg.NumCPU.
	Workers int
}

// Result holds the final segmentation of one seed.
type Result struct {
	Index float32
	Full  acseg.Coords
	Perim acseg.Coords
}

// Engine evolves a set of seeds in lockstep rounds over a shared Arbiter.
type Engine struct {
	params  Parameters
	arbiter *Arbiter
	seeds   []*Seed
	opts    Options
	tMax    int
	round   int
	movie   *Movie
	growth  [][]int
}

// NewEngine constructs one Seed per spec in parallel.  The guidance field and
// arbiter must have identical dimensions.
func NewEngine(ctx context.Context, guidance *voxels.Grid, arbiter *Arbiter, specs []SeedSpec,
	params Parameters, opts Options) (*Engine, error) {

	if err := params.Validate(); err != nil {
		return nil, err
	}
	if guidance.Size() != arbiter.Size() {
		return nil, fmt.Errorf("%w: guidance field %s, arbiter %s", acseg.ErrSizeMismatch, guidance.Size(), arbiter.Size())
	}
	if opts.Workers <= 0 {
		opts.Workers = acseg.NumCPU
	}
	e := &Engine{
		params:  params,
		arbiter: arbiter,
		seeds:   make([]*Seed, len(specs)),
		opts:    opts,
	}

	timedLog := acseg.NewTimeLog()
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(opts.Workers)
	for i, spec := range specs {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			seed, err := NewSeed(spec, params, guidance, arbiter)
			if err != nil {
				return fmt.Errorf("seed %d: %w", i, err)
			}
			e.seeds[i] = seed
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	for _, seed := range e.seeds {
		e.tMax = max(e.tMax, seed.TMax())
	}
	if acseg.Verbose {
		acseg.Debugf("Seed state for %d seeds uses %s\n", len(e.seeds), humanize.Bytes(uint64(size.Of(e.seeds))))
	}
	timedLog.Debugf("Initialized %d active contour seeds", len(e.seeds))

	if opts.Movie.Enabled() {
		nx, ny, nz := arbiter.Dims()
		movie, err := NewMovie(opts.Movie, nx, ny, nz, e.tMax)
		if err != nil {
			return nil, err
		}
		e.movie = movie
	}
	return e, nil
}

// Seeds returns the evolving seeds in spec order.
func (e *Engine) Seeds() []*Seed {
	return e.seeds
}

// Arbiter returns the shared label field.
func (e *Engine) Arbiter() *Arbiter {
	return e.arbiter
}

// TMax returns the number of rounds Run executes, the largest seed budget.
func (e *Engine) TMax() int {
	return e.tMax
}

// Rounds returns the number of completed rounds.
func (e *Engine) Rounds() int {
	return e.round
}

// Movie returns the recorded movie or nil if recording is off.
func (e *Engine) Movie() *Movie {
	return e.movie
}

// Growth returns the volume of each seed after each round when TrackGrowth is set.
func (e *Engine) Growth() [][]int {
	return e.growth
}

func (e *Engine) forEachSeed(ctx context.Context, f func(*Seed) error) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(e.opts.Workers)
	for _, seed := range e.seeds {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return f(seed)
		})
	}
	return eg.Wait()
}

// Round executes one step for every seed: all seeds compute candidates, then
// all seeds commit, so no seed observes another's partial commit in the same
// round.
func (e *Engine) Round(ctx context.Context) error {
	if err := e.forEachSeed(ctx, func(s *Seed) error {
		s.Step()
		return nil
	}); err != nil {
		return err
	}
	if err := e.forEachSeed(ctx, func(s *Seed) error {
		s.Update()
		return nil
	}); err != nil {
		return err
	}
	if e.movie != nil {
		if err := e.movie.Record(e.round, e.seeds); err != nil {
			return err
		}
	}
	if e.opts.TrackGrowth {
		volumes := make([]int, len(e.seeds))
		for i, seed := range e.seeds {
			volumes[i] = seed.Volume()
		}
		e.growth = append(e.growth, volumes)
	}
	e.round++
	return nil
}

// Run executes rounds until every seed has used its time budget.  The interrupt
// function and context are checked before each round.  On interruption the seeds
// keep their partially evolved state and acseg.ErrInterrupted is returned.
func (e *Engine) Run(ctx context.Context) error {
	acseg.Infof("Starting active contour run: %d seeds, %d rounds\n", len(e.seeds), e.tMax)
	timedLog := acseg.NewTimeLog()
	for e.round < e.tMax {
		if e.opts.Progress != nil {
			e.opts.Progress(e.round * 100 / e.tMax)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.opts.Interrupt.Interrupted() {
			acseg.Warningf("Active contour run interrupted after %d of %d rounds\n", e.round, e.tMax)
			return acseg.ErrInterrupted
		}
		if err := e.Round(ctx); err != nil {
			return err
		}
		if acseg.Verbose {
			acseg.Debugf("Round %d: %s\n", e.round, e.arbiter)
		}
	}
	if e.opts.Progress != nil {
		e.opts.Progress(100)
	}
	timedLog.Infof("Finished active contour run of %d seeds", len(e.seeds))
	return nil
}

// Results extracts the full and perimeter coordinates of every seed in parallel.
func (e *Engine) Results(ctx context.Context) ([]Result, error) {
	results := make([]Result, len(e.seeds))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(e.opts.Workers)
	for i, seed := range e.seeds {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			perim, err := seed.SparsePerim()
			if err != nil {
				return err
			}
			results[i] = Result{Index: seed.Index(), Full: seed.SparseFull(), Perim: perim}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
