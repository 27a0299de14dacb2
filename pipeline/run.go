package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang/groupcache/lru"
	"github.com/twinj/uuid"

	"github.com/janelia-flyem/acseg/acseg"
	"github.com/janelia-flyem/acseg/contour"
	"github.com/janelia-flyem/acseg/records"
	"github.com/janelia-flyem/acseg/storage"
	"github.com/janelia-flyem/acseg/voxels"
	"github.com/janelia-flyem/acseg/volio"
)

// NoPrevious names the absence of prior segmentations in a Job.
const NoPrevious = "0"

// Job names the stored inputs and outputs of one run.
type Job struct {
	// Guidance is the name of the stored guidance grid.
	Guidance string

	// Previous is the name of a stored directory of earlier segmentations
	// that new seeds must not overlap.  Empty or NoPrevious for none.
	Previous string

	// Seeds is the name of the stored directory of seeds to run.  Seeds may
	// carry an initial segmentation in their full coordinates.
	Seeds string

	// Output names the stored result directory and the prefix of result grids.
	Output string

	Params      contour.Parameters
	UseSpecific bool
	Movie       contour.MovieSpec
}

func (job Job) hasPrevious() bool {
	return job.Previous != "" && job.Previous != NoPrevious
}

// Names of result grids relative to Job.Output.
const (
	PerimeterGrid = "perimeter"
	MovieGrid     = "movie"
)

// GridName returns the store name of a result grid of the job.
func (job Job) GridName(kind string) string {
	return job.Output + "/" + kind
}

// Report summarizes a run.
type Report struct {
	RunID     string
	Rounds    int
	Collided  int
	Records   *records.Directory
	Perimeter *voxels.Grid
	Movie     *voxels.Grid
}

// guidanceCacheSize is the number of decoded guidance grids a driver keeps
// between jobs.
const guidanceCacheSize = 2

// Driver runs jobs against one store.  A driver runs one job at a time.
type Driver struct {
	config *Config
	store  storage.Store

	// decoded guidance grids by name; jobs only read them
	guidance *lru.Cache

	// Progress, if non-nil, receives the percentage of rounds completed.
	Progress func(percent int)

	// Interrupt is polled between rounds.
	Interrupt acseg.InterruptFunc

	// Activity, if non-nil, receives a summary of every finished run.
	Activity *storage.Publisher
}

// NewDriver returns a driver using the output settings of config.
func NewDriver(config *Config, store storage.Store) *Driver {
	return &Driver{config: config, store: store, guidance: lru.New(guidanceCacheSize)}
}

// guidanceGrid returns the named guidance grid, decoding it only on first use.
func (d *Driver) guidanceGrid(ctx context.Context, name string) (*voxels.Grid, error) {
	if g, found := d.guidance.Get(name); found {
		return g.(*voxels.Grid), nil
	}
	g, err := storage.GetGrid(ctx, d.store, name)
	if err != nil {
		return nil, err
	}
	d.guidance.Add(name, g)
	return g, nil
}

// JobDefaults returns a job with the configured parameters and run settings.
func (d *Driver) JobDefaults() Job {
	return Job{
		Params:      d.config.Contour,
		UseSpecific: d.config.Run.UseSpecific,
		Movie:       d.config.Run.Movie,
	}
}

// Run executes a job.  If the run is interrupted, the partially evolved
// segmentation is still written and acseg.ErrInterrupted is returned with the
// report.
func (d *Driver) Run(ctx context.Context, job Job) (*Report, error) {
	report := &Report{RunID: uuid.NewV4().String()}
	timedLog := acseg.NewTimeLog()
	acseg.Infof("Run %s: seeds %q, guidance %q, previous %q -> %q\n", report.RunID,
		job.Seeds, job.Guidance, job.Previous, job.Output)

	compress, err := d.config.compression()
	if err != nil {
		return nil, err
	}
	if job.Output == "" {
		return nil, fmt.Errorf("no output name given for run of seeds %q", job.Seeds)
	}
	g, err := d.guidanceGrid(ctx, job.Guidance)
	if err != nil {
		return nil, err
	}
	nx, ny, nz := g.Dims()

	arbiter := contour.NewArbiter(nx, ny, nz)
	var seedIndexStart int
	if job.hasPrevious() {
		previous, err := storage.GetDirectory(ctx, d.store, job.Previous)
		if err != nil {
			return nil, err
		}
		if arbiter, err = drawPrevious(previous, nx, ny, nz); err != nil {
			return nil, err
		}
		seedIndexStart = int(previous.MaxIdx())
	}

	seeds, err := storage.GetDirectory(ctx, d.store, job.Seeds)
	if err != nil {
		return nil, err
	}
	if err := seeds.ThresholdByPosition(nx, ny, nz); err != nil {
		return nil, err
	}
	seeds.Reorder(seedIndexStart)
	specs, err := SeedSpecs(seeds, job.UseSpecific)
	if err != nil {
		return nil, err
	}

	opts := contour.Options{
		Progress:    d.Progress,
		Interrupt:   d.Interrupt,
		Movie:       job.Movie,
		TrackGrowth: d.config.Output.Plot != "",
		Workers:     d.config.Run.Workers,
	}
	engine, err := contour.NewEngine(ctx, g, arbiter, specs, job.Params, opts)
	if err != nil {
		return nil, err
	}
	runErr := engine.Run(ctx)
	if runErr != nil && !errors.Is(runErr, acseg.ErrInterrupted) {
		return nil, runErr
	}
	report.Rounds = engine.Rounds()
	report.Collided = arbiter.Count(contour.Collided)

	results, err := engine.Results(ctx)
	if err != nil {
		return nil, err
	}
	for i, result := range results {
		if err := seeds.SetSparse(i, records.Full, result.Full); err != nil {
			return nil, err
		}
		if err := seeds.SetSparse(i, records.Perimeter, result.Perim); err != nil {
			return nil, err
		}
	}
	seeds.SetDims(nx, ny, nz)
	report.Records = seeds

	colors, err := seeds.GetList(records.FieldIdx)
	if err != nil {
		return nil, err
	}
	report.Perimeter = voxels.NewGrid(0, 0, 0)
	if err := seeds.DrawSegmentationImage(records.Perimeter, colors, report.Perimeter); err != nil {
		return nil, err
	}
	if movie := engine.Movie(); movie != nil {
		report.Movie = movie.Frames()
	}

	if err := d.write(ctx, job, report, compress); err != nil {
		return report, err
	}
	if growth := engine.Growth(); d.config.Output.Plot != "" && len(growth) != 0 {
		if err := contour.PlotGrowth(growth, colors, d.config.Output.Plot); err != nil {
			return report, err
		}
	}
	timedLog.Infof("Run %s segmented %d seeds in %d rounds, %d collided voxels", report.RunID,
		seeds.Len(), report.Rounds, report.Collided)
	activity := map[string]interface{}{
		"run_id":      report.RunID,
		"seeds":       job.Seeds,
		"guidance":    job.Guidance,
		"output":      job.Output,
		"num_seeds":   seeds.Len(),
		"rounds":      report.Rounds,
		"collided":    report.Collided,
		"interrupted": runErr != nil,
		"elapsed_ms":  timedLog.Elapsed().Milliseconds(),
	}
	if err := d.Activity.LogActivity(activity); err != nil {
		acseg.Errorf("unable to publish run %s: %v\n", report.RunID, err)
	}
	return report, runErr
}

// write stores the records and result grids, then writes any configured files.
func (d *Driver) write(ctx context.Context, job Job, report *Report, compress acseg.Compression) error {
	if err := storage.PutDirectory(ctx, d.store, job.Output, report.Records, compress); err != nil {
		return err
	}
	if err := storage.PutGrid(ctx, d.store, job.GridName(PerimeterGrid), report.Perimeter, compress); err != nil {
		return err
	}
	if report.Movie != nil {
		if err := storage.PutGrid(ctx, d.store, job.GridName(MovieGrid), report.Movie, compress); err != nil {
			return err
		}
	}
	out := d.config.Output
	if out.Stack != "" {
		format, err := volio.ParseFormat(out.Format)
		if err != nil {
			return err
		}
		stack := &volio.Stack{Dir: out.Stack, Prefix: PerimeterGrid + "_", Format: format}
		if err := volio.WriteStack(stack, report.Perimeter, nil); err != nil {
			return err
		}
		if report.Movie != nil {
			stack := &volio.Stack{Dir: filepath.Join(out.Stack, MovieGrid), Prefix: MovieGrid + "_", Format: format}
			if err := volio.WriteStack(stack, report.Movie, nil); err != nil {
				return err
			}
		}
	}
	if out.Arrow != "" {
		f, err := os.Create(out.Arrow)
		if err != nil {
			return err
		}
		if err := report.Records.ExportArrow(f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}

// drawPrevious returns an arbiter with every earlier segmentation drawn in its
// seed index.
func drawPrevious(previous *records.Directory, nx, ny, nz int) (*contour.Arbiter, error) {
	if pnx, pny, pnz := previous.Dims(); pnx != nx || pny != ny || pnz != nz {
		acseg.Warningf("Previous segmentation dimensions %d x %d x %d differ from guidance %d x %d x %d; using guidance dimensions\n",
			pnx, pny, pnz, nx, ny, nz)
		previous.SetDims(nx, ny, nz)
	}
	colors, err := previous.GetList(records.FieldIdx)
	if err != nil {
		return nil, err
	}
	labels := voxels.NewGrid(nx, ny, nz)
	if err := previous.DrawSegmentationImage(records.Full, colors, labels); err != nil {
		return nil, err
	}
	return contour.NewArbiterFromGrid(labels), nil
}

// SeedSpecs converts records into seed specifications.  Each record's full
// segmentation, if any, becomes the seed's initial mask.  With useSpecific set,
// numeric columns named in contour.OverrideNames replace run parameters per
// seed, and the seed_hsz field stands in for a missing hsz column.
func SeedSpecs(dir *records.Directory, useSpecific bool) ([]contour.SeedSpec, error) {
	columns := make(map[string][]float32)
	if useSpecific {
		for _, name := range contour.OverrideNames {
			if !dir.HasField(name) {
				continue
			}
			values, err := dir.GetList(name)
			if err != nil {
				return nil, err
			}
			columns[name] = values
		}
		if _, found := columns["hsz"]; !found {
			values, err := dir.GetList(records.FieldSeedHsz)
			if err != nil {
				return nil, err
			}
			columns["hsz"] = values
		}
	}
	specs := make([]contour.SeedSpec, dir.Len())
	for i := range specs {
		r, err := dir.Record(i)
		if err != nil {
			return nil, err
		}
		specs[i] = contour.SeedSpec{Index: r.Index(), Center: r.Center(), Prior: r.Full}
		if len(columns) != 0 {
			specs[i].Overrides = make(map[string]float32, len(columns))
			for name, values := range columns {
				specs[i].Overrides[name] = values[i]
			}
		}
	}
	return specs, nil
}
