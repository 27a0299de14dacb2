package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/zenazn/goji/web"

	"github.com/janelia-flyem/acseg/acseg"
	"github.com/janelia-flyem/acseg/records"
	"github.com/janelia-flyem/acseg/storage"
	"github.com/janelia-flyem/acseg/volio"
)

type seedSummary struct {
	Idx    float32    `json:"idx"`
	Center [3]float32 `json:"center"`
	Volume int        `json:"volume"`
}

type directorySummary struct {
	Name       string        `json:"name"`
	Dims       [3]int        `json:"dims"`
	Properties []string      `json:"properties"`
	Categories []string      `json:"categories"`
	Seeds      []seedSummary `json:"seeds"`
}

type seedVoxels struct {
	Idx    float32 `json:"idx"`
	Select string  `json:"select"`
	X      []int32 `json:"x"`
	Y      []int32 `json:"y"`
	Z      []int32 `json:"z"`
}

type gridSummary struct {
	Name       string     `json:"name"`
	Dims       [3]int     `json:"dims"`
	Resolution [3]float32 `json:"resolution"`
	Min        float32    `json:"min"`
	Max        float32    `json:"max"`
}

// storeError maps missing keys to 404 and anything else to 500.
func storeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		httpError(w, r, http.StatusNotFound, "%v", err)
		return
	}
	httpError(w, r, http.StatusInternalServerError, "%v", err)
}

func (s *Server) serverInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, map[string]string{
		"version": acseg.Version,
		"engines": storage.EnginesAvailable(),
		"store":   s.store.String(),
	})
}

func (s *Server) listDirectories(w http.ResponseWriter, r *http.Request) {
	s.list(w, r, storage.DirectoryPrefix)
}

func (s *Server) listGrids(w http.ResponseWriter, r *http.Request) {
	s.list(w, r, storage.GridPrefix)
}

func (s *Server) list(w http.ResponseWriter, r *http.Request, prefix string) {
	names, err := storage.List(r.Context(), s.store, prefix)
	if err != nil {
		storeError(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, r, names)
}

func (s *Server) directoryInfo(c web.C, w http.ResponseWriter, r *http.Request) {
	name := c.URLParams["name"]
	dir, err := storage.GetDirectory(r.Context(), s.store, name)
	if err != nil {
		storeError(w, r, err)
		return
	}
	nx, ny, nz := dir.Dims()
	summary := directorySummary{
		Name:       name,
		Dims:       [3]int{nx, ny, nz},
		Properties: dir.PropertyNames(),
		Categories: dir.CategoryNames(),
		Seeds:      make([]seedSummary, dir.Len()),
	}
	volumes := dir.Volume()
	for i := range summary.Seeds {
		rec, err := dir.Record(i)
		if err != nil {
			storeError(w, r, err)
			return
		}
		summary.Seeds[i] = seedSummary{Idx: rec.Index(), Center: rec.Center(), Volume: int(volumes[i])}
	}
	writeJSON(w, r, summary)
}

// seedVoxels returns the sparse voxels of one seed, selected by the "select"
// query parameter (full or perimeter, default full).
func (s *Server) seedVoxels(c web.C, w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.ParseFloat(c.URLParams["idx"], 32)
	if err != nil {
		BadRequest(w, r, "bad seed index %q", c.URLParams["idx"])
		return
	}
	sel := records.Full
	if selStr := r.URL.Query().Get("select"); selStr != "" {
		if sel, err = records.ParseSelector(selStr); err != nil {
			BadRequest(w, r, "%v", err)
			return
		}
	}
	dir, err := storage.GetDirectory(r.Context(), s.store, c.URLParams["name"])
	if err != nil {
		storeError(w, r, err)
		return
	}
	for i := 0; i < dir.Len(); i++ {
		rec, err := dir.Record(i)
		if err != nil {
			storeError(w, r, err)
			return
		}
		if rec.Index() != float32(idx) {
			continue
		}
		coords, err := dir.GetSparse(i, sel)
		if err != nil {
			storeError(w, r, err)
			return
		}
		writeJSON(w, r, seedVoxels{Idx: rec.Index(), Select: sel.String(), X: coords.X, Y: coords.Y, Z: coords.Z})
		return
	}
	httpError(w, r, http.StatusNotFound, "no seed with index %g in directory %q", idx, c.URLParams["name"])
}

func (s *Server) gridInfo(c web.C, w http.ResponseWriter, r *http.Request) {
	name := c.URLParams["name"]
	g, err := storage.GetGrid(r.Context(), s.store, name)
	if err != nil {
		storeError(w, r, err)
		return
	}
	nx, ny, nz := g.Dims()
	writeJSON(w, r, gridSummary{
		Name:       name,
		Dims:       [3]int{nx, ny, nz},
		Resolution: g.Resolution(),
		Min:        g.Min(),
		Max:        g.Max(),
	})
}

// gridSlice returns one XY slice as a 16-bit image.  Query parameters:
// format (png or tif, default png) and scale (default 1).
func (s *Server) gridSlice(c web.C, w http.ResponseWriter, r *http.Request) {
	z, err := strconv.Atoi(c.URLParams["z"])
	if err != nil {
		BadRequest(w, r, "bad z %q", c.URLParams["z"])
		return
	}
	query := r.URL.Query()
	format := volio.PNG
	if f := query.Get("format"); f != "" {
		if format, err = volio.ParseFormat(f); err != nil {
			BadRequest(w, r, "%v", err)
			return
		}
	}
	scale := float32(1)
	if sc := query.Get("scale"); sc != "" {
		v, err := strconv.ParseFloat(sc, 32)
		if err != nil {
			BadRequest(w, r, "bad scale %q", sc)
			return
		}
		scale = float32(v)
	}
	g, err := storage.GetGrid(r.Context(), s.store, c.URLParams["name"])
	if err != nil {
		storeError(w, r, err)
		return
	}
	nx, ny, nz := g.Dims()
	if z < 0 || z >= nz {
		BadRequest(w, r, "z %d outside grid with %d slices", z, nz)
		return
	}
	img := volio.GrayImage(nx, ny, g.Slice(z), scale)
	if format == volio.TIFF {
		w.Header().Set("Content-Type", "image/tiff")
	} else {
		w.Header().Set("Content-Type", "image/png")
	}
	if err := volio.Encode(w, img, format); err != nil {
		acseg.Errorf("unable to encode slice %d of grid %q: %v\n", z, c.URLParams["name"], err)
	}
}
