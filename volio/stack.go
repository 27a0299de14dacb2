/*
	Package volio reads and writes volumes as stacks of 2d images, one file per
	z slice, so guidance fields and segmentations can be exchanged with image
	tools.  Pixel values are unsigned integers; a scale maps them to and from
	the float32 values of a voxel grid.
*/
package volio

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/image/tiff"

	"github.com/janelia-flyem/acseg/acseg"
	"github.com/janelia-flyem/acseg/voxels"
)

// Format is an image file format for slices.
type Format string

const (
	TIFF Format = "tif"
	PNG  Format = "png"
)

// ParseFormat accepts a format name or file extension, e.g., "tiff" or ".png".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "tif", "tiff":
		return TIFF, nil
	case "png":
		return PNG, nil
	default:
		return "", fmt.Errorf("illegal slice image format %q: must be tif or png", s)
	}
}

func (f Format) matches(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	switch f {
	case TIFF:
		return ext == ".tif" || ext == ".tiff"
	default:
		return ext == "."+string(f)
	}
}

// Stack is a directory of slice images.  Reading uses every file with the
// format's extension in lexical order.  Writing names slices
// <Prefix><zzzzz>.<format>.
type Stack struct {
	Dir    string
	Prefix string
	Format Format

	// Scale converts grid values to pixel values on write and back on read.
	// Zero is treated as 1.  Written pixels are rounded and clamped to the
	// 16-bit range.
	Scale float32

	files []string
	nx    int
	ny    int
}

func (s *Stack) scale() float32 {
	if s.Scale == 0 {
		return 1
	}
	return s.Scale
}

func (s *Stack) list() error {
	if s.files != nil {
		return nil
	}
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), s.Prefix) && s.Format.matches(e.Name()) {
			s.files = append(s.files, filepath.Join(s.Dir, e.Name()))
		}
	}
	sort.Strings(s.files)
	if len(s.files) == 0 {
		return fmt.Errorf("no %s slices with prefix %q in %s", s.Format, s.Prefix, s.Dir)
	}
	img, _, err := imageFromFile(s.files[0])
	if err != nil {
		return err
	}
	bounds := img.Bounds()
	s.nx, s.ny = bounds.Dx(), bounds.Dy()
	return nil
}

// Dimensions returns the slice size and number of slices.
func (s *Stack) Dimensions() (nx, ny, nz int, err error) {
	if err = s.list(); err != nil {
		return
	}
	return s.nx, s.ny, len(s.files), nil
}

// ReadSlice decodes slice z into dst.
func (s *Stack) ReadSlice(z int, dst []float32) error {
	if err := s.list(); err != nil {
		return err
	}
	if z < 0 || z >= len(s.files) {
		return fmt.Errorf("slice %d outside stack of %d slices", z, len(s.files))
	}
	img, _, err := imageFromFile(s.files[z])
	if err != nil {
		return err
	}
	bounds := img.Bounds()
	if bounds.Dx() != s.nx || bounds.Dy() != s.ny {
		return fmt.Errorf("%w: slice %s is %d x %d, stack is %d x %d", acseg.ErrSizeMismatch,
			s.files[z], bounds.Dx(), bounds.Dy(), s.nx, s.ny)
	}
	if len(dst) != s.nx*s.ny {
		return fmt.Errorf("%w: %d values for %d x %d slice", acseg.ErrSizeMismatch, len(dst), s.nx, s.ny)
	}
	scale := s.scale()
	for y := 0; y < s.ny; y++ {
		for x := 0; x < s.nx; x++ {
			dst[x+s.nx*y] = float32(pixelValue(img, bounds.Min.X+x, bounds.Min.Y+y)) / scale
		}
	}
	return nil
}

// pixelValue returns the raw integer value of a pixel, keeping 8-bit images in
// their 0-255 range.
func pixelValue(img image.Image, x, y int) uint16 {
	switch t := img.(type) {
	case *image.Gray:
		return uint16(t.GrayAt(x, y).Y)
	case *image.Gray16:
		return t.Gray16At(x, y).Y
	default:
		return color.Gray16Model.Convert(img.At(x, y)).(color.Gray16).Y
	}
}

// WriteSlice encodes slice z as a 16-bit grayscale image.
func (s *Stack) WriteSlice(z, nx, ny int, src []float32) error {
	if len(src) != nx*ny {
		return fmt.Errorf("%w: %d values for %d x %d slice", acseg.ErrSizeMismatch, len(src), nx, ny)
	}
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return err
	}
	img := GrayImage(nx, ny, src, s.scale())
	filename := filepath.Join(s.Dir, fmt.Sprintf("%s%05d.%s", s.Prefix, z, s.Format))
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := Encode(f, img, s.Format); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", filename, err)
	}
	return f.Close()
}

// GrayImage converts an x-fastest slice to 16-bit gray.  Values are multiplied
// by scale, rounded, and clamped to [0, 65535].
func GrayImage(nx, ny int, src []float32, scale float32) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, nx, ny))
	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			v := math.Round(float64(src[x+nx*y] * scale))
			v = math.Max(0, math.Min(v, math.MaxUint16))
			img.SetGray16(x, y, color.Gray16{Y: uint16(v)})
		}
	}
	return img
}

// ReadStack reads a whole stack into a grid with the given resolution in microns per voxel.
func ReadStack(s *Stack, res [3]float32, interrupt acseg.InterruptFunc) (*voxels.Grid, error) {
	timedLog := acseg.NewTimeLog()
	g, err := voxels.ReadGrid(s, interrupt)
	if err != nil {
		return g, err
	}
	if err := g.SetResolution(res[0], res[1], res[2]); err != nil {
		return nil, err
	}
	timedLog.Debugf("Read %s from %d %s slices in %s", g, len(s.files), s.Format, s.Dir)
	return g, nil
}

// WriteStack writes every slice of g.
func WriteStack(s *Stack, g *voxels.Grid, interrupt acseg.InterruptFunc) error {
	timedLog := acseg.NewTimeLog()
	if err := voxels.WriteGrid(s, g, interrupt); err != nil {
		return err
	}
	timedLog.Debugf("Wrote %s as %s slices to %s", g, s.Format, s.Dir)
	return nil
}

func imageFromFile(filename string) (img image.Image, format string, err error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, "", fmt.Errorf("unable to open slice image: %w", err)
	}
	defer f.Close()
	img, format, err = image.Decode(f)
	if err != nil {
		err = fmt.Errorf("decode %s: %w", filename, err)
	}
	return
}

// Encode writes img in the given format.
func Encode(w io.Writer, img image.Image, format Format) error {
	switch format {
	case TIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	case PNG:
		return png.Encode(w, img)
	default:
		return fmt.Errorf("illegal slice image format %q", format)
	}
}
