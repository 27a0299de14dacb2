/*
	Package pipeline runs active contour segmentation jobs end to end: it loads
	the guidance field and seed records from a store, draws prior segmentations
	into the collision arbiter, evolves the seeds, and writes the segmentation,
	perimeter image, and optional movie, growth plot, and attribute table.
*/
package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/janelia-flyem/acseg/acseg"
	"github.com/janelia-flyem/acseg/contour"
	"github.com/janelia-flyem/acseg/server"
	"github.com/janelia-flyem/acseg/storage"
	"github.com/janelia-flyem/acseg/volio"
)

// Config is the TOML configuration of a segmentation run.
type Config struct {
	Logging acseg.LogConfig
	Contour contour.Parameters
	Run     RunConfig
	Store   storage.Config
	Cache   storage.CacheConfig
	Kafka   storage.KafkaConfig
	Output  OutputConfig
	Server  server.Config
}

// RunConfig holds settings of the driver that are not evolution parameters.
type RunConfig struct {
	// UseSpecific applies per-seed parameter columns named in contour.OverrideNames.
	UseSpecific bool `toml:"use_specific"`

	// Workers bounds concurrently processed seeds.  Zero uses all CPUs.
	Workers int `toml:"workers"`

	Movie contour.MovieSpec `toml:"movie"`
}

// OutputConfig selects what a run writes besides the segmented records.
type OutputConfig struct {
	// Compression of stored records and grids: "none", "snappy", or "zstd".
	Compression string `toml:"compression"`

	// Stack, if set, is a directory that receives the perimeter image as a
	// slice stack.  The movie, if recorded, goes to a "movie" subdirectory.
	Stack string `toml:"stack"`

	// Format of slice images: "tif" or "png".
	Format string `toml:"format"`

	// Plot, if set, is a file receiving a chart of seed growth per round.
	Plot string `toml:"plot"`

	// Arrow, if set, is a file receiving the record attributes as an Arrow IPC stream.
	Arrow string `toml:"arrow"`
}

// DefaultConfig returns the configuration used for settings absent from a TOML file.
func DefaultConfig() Config {
	return Config{
		Contour: contour.DefaultParameters(),
		Store:   storage.Config{Engine: "badger", Path: "acseg.db"},
		Output:  OutputConfig{Compression: "snappy", Format: string(volio.TIFF)},
		Server:  server.Config{HTTPAddress: server.DefaultWebAddress},
	}
}

// compression returns the parsed output compression.
func (c *Config) compression() (acseg.Compression, error) {
	return acseg.ParseCompression(c.Output.Compression)
}

// Validate checks settings that can be checked before a run.
func (c *Config) Validate() error {
	if _, err := c.compression(); err != nil {
		return err
	}
	if _, err := volio.ParseFormat(c.Output.Format); err != nil {
		return err
	}
	if c.Run.Movie.Option != contour.MovieOff && !c.Run.Movie.Enabled() {
		return fmt.Errorf("bad movie option %d: must be 0 (off), 1 (yz), 2 (xz), or 3 (xy)", c.Run.Movie.Option)
	}
	return c.Contour.Validate()
}

// Some settings can be given as relative paths.  They are converted in place
// to absolute paths relative to the directory of the TOML file.
func (c *Config) convertPathsToAbsolute(configPath string) error {
	configDir := filepath.Dir(configPath)
	paths := []struct {
		name string
		p    *string
	}{
		{"logging.logfile", &c.Logging.Logfile},
		{"output.stack", &c.Output.Stack},
		{"output.plot", &c.Output.Plot},
		{"output.arrow", &c.Output.Arrow},
		{"server.auth_file", &c.Server.AuthFile},
	}
	// [store].path is a local directory only for badger and scheme-less blob
	// paths.  Swift containers and Bigtable tables are plain names.
	local := c.Store.Engine == "badger" || (c.Store.Engine == "blob" && !strings.Contains(c.Store.Path, "://"))
	if local {
		paths = append(paths, struct {
			name string
			p    *string
		}{"store.path", &c.Store.Path})
	}
	for _, setting := range paths {
		abs, err := acseg.ConvertToAbsolute(*setting.p, configDir)
		if err != nil {
			return fmt.Errorf("error converting %s to absolute path: %w", setting.name, err)
		}
		*setting.p = abs
	}
	return nil
}

// LoadConfig decodes a TOML file over the default configuration.
func LoadConfig(filename string) (*Config, error) {
	if filename == "" {
		return nil, fmt.Errorf("no TOML configuration file provided")
	}
	c := DefaultConfig()
	if _, err := toml.DecodeFile(filename, &c); err != nil {
		return nil, fmt.Errorf("could not decode TOML config: %w", err)
	}
	if err := c.convertPathsToAbsolute(filename); err != nil {
		return nil, fmt.Errorf("could not convert relative paths to absolute paths in TOML config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	acseg.Debugf("Loaded configuration %s: %+v\n", filename, c)
	return &c, nil
}
