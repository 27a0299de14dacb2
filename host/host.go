/*
	Package host connects the segmentation driver to the process supplying
	work.  A Host hands out work item strings, receives progress, signals
	interruption, and may redirect log messages for the duration of a run.
*/
package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/janelia-flyem/acseg/acseg"
	"github.com/janelia-flyem/acseg/contour"
	"github.com/janelia-flyem/acseg/pipeline"
)

// Host is the environment a segmentation process runs in.
type Host interface {
	// GetMoreWork returns the next work item.  It returns io.EOF when no work remains.
	GetMoreWork() (string, error)

	// Progress receives the percentage of the current run completed.
	Progress(percent int)

	// ShouldInterrupt returns true when the current run should stop.
	ShouldInterrupt() bool

	// Logger returns the destination of log messages during processing, or nil
	// to keep the current logger.
	Logger() acseg.Logger
}

// WorkItemPrompt describes the fields of a work item.  The first two fields
// are placeholders and ignored.
const WorkItemPrompt = "0 0 SEEDS HSZ TMAX DT SUSSMAN C D EPS R USE_SPECIFIC NARROWBAND RESX RESY RESZ MOVIE MOVIESLICE"

const workItemFields = 18

// OutputSuffix is appended to the seed directory name to name the output of a
// work item when no output name is given.
const OutputSuffix = "-seg"

// WorkItem is one parsed request to segment a directory of seeds.
type WorkItem struct {
	Seeds       string
	Params      contour.Parameters
	UseSpecific bool
	Movie       contour.MovieSpec
}

// ParseWorkItem parses a whitespace-separated work item as described by
// WorkItemPrompt.  Every parameter is given by the item; defaults supplies
// only fields a work item cannot express.
func ParseWorkItem(item string, defaults contour.Parameters) (WorkItem, error) {
	fields := strings.Fields(item)
	if len(fields) != workItemFields {
		return WorkItem{}, fmt.Errorf("work item has %d fields, expected %d: %s", len(fields), workItemFields, WorkItemPrompt)
	}
	w := WorkItem{Seeds: fields[2], Params: defaults}
	floats := []struct {
		name string
		pos  int
		dst  *float32
	}{
		{"HSZ", 3, &w.Params.HalfWindow},
		{"DT", 5, &w.Params.Dt},
		{"C", 7, &w.Params.C},
		{"D", 8, &w.Params.D},
		{"EPS", 9, &w.Params.Epsilon},
		{"R", 10, &w.Params.R},
		{"NARROWBAND", 12, &w.Params.NarrowBand},
		{"RESX", 13, &w.Params.Resolution[0]},
		{"RESY", 14, &w.Params.Resolution[1]},
		{"RESZ", 15, &w.Params.Resolution[2]},
	}
	for _, f := range floats {
		v, err := strconv.ParseFloat(fields[f.pos], 32)
		if err != nil {
			return WorkItem{}, fmt.Errorf("bad %s in work item: %w", f.name, err)
		}
		*f.dst = float32(v)
	}
	// TMAX may be written as a real number.
	tMax, err := strconv.ParseFloat(fields[4], 32)
	if err != nil {
		return WorkItem{}, fmt.Errorf("bad TMAX in work item: %w", err)
	}
	w.Params.TMax = int(tMax)
	ints := []struct {
		name string
		pos  int
		dst  *int
	}{
		{"SUSSMAN", 6, &w.Params.SussmanInterval},
		{"MOVIE", 16, &w.Movie.Option},
	}
	for _, f := range ints {
		if *f.dst, err = strconv.Atoi(fields[f.pos]); err != nil {
			return WorkItem{}, fmt.Errorf("bad %s in work item: %w", f.name, err)
		}
	}
	slice, err := strconv.ParseInt(fields[17], 10, 32)
	if err != nil {
		return WorkItem{}, fmt.Errorf("bad MOVIESLICE in work item: %w", err)
	}
	w.Movie.Slice = int32(slice)
	w.UseSpecific = fields[11] == "true"

	if err := w.Params.Validate(); err != nil {
		return WorkItem{}, fmt.Errorf("work item %q: %w", item, err)
	}
	if w.Movie.Option != contour.MovieOff && !w.Movie.Enabled() {
		return WorkItem{}, fmt.Errorf("bad MOVIE option %d in work item", w.Movie.Option)
	}
	return w, nil
}

// Process runs every work item supplied by h.  Each item's job is a copy of
// template with the item's seeds, parameters, and movie; an empty output name
// becomes the seed directory name plus OutputSuffix.  Processing stops at the
// first failed or interrupted run.
func Process(ctx context.Context, h Host, d *pipeline.Driver, template pipeline.Job) ([]*pipeline.Report, error) {
	if l := h.Logger(); l != nil {
		previous := acseg.SetLogger(l)
		defer acseg.SetLogger(previous)
	}
	d.Progress = h.Progress
	d.Interrupt = h.ShouldInterrupt

	acseg.Debugf("Prompt: %s\n", WorkItemPrompt)
	var reports []*pipeline.Report
	for {
		item, err := h.GetMoreWork()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return reports, err
		}
		work, err := ParseWorkItem(item, template.Params)
		if err != nil {
			return reports, err
		}
		job := template
		job.Seeds = work.Seeds
		job.Params = work.Params
		job.UseSpecific = work.UseSpecific
		job.Movie = work.Movie
		if job.Output == "" {
			job.Output = work.Seeds + OutputSuffix
		}
		report, err := d.Run(ctx, job)
		if report != nil {
			reports = append(reports, report)
		}
		if err != nil {
			return reports, err
		}
	}
	acseg.Infof("Processed %d work items\n", len(reports))
	return reports, nil
}
