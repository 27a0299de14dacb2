package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"

	"github.com/janelia-flyem/acseg/acseg"
	"github.com/janelia-flyem/acseg/host"
	"github.com/janelia-flyem/acseg/pipeline"
	"github.com/janelia-flyem/acseg/records"
	"github.com/janelia-flyem/acseg/server"
	"github.com/janelia-flyem/acseg/storage"
	_ "github.com/janelia-flyem/acseg/storage/badger"
	_ "github.com/janelia-flyem/acseg/storage/bigtable"
	_ "github.com/janelia-flyem/acseg/storage/blobstore"
	_ "github.com/janelia-flyem/acseg/storage/swift"
	"github.com/janelia-flyem/acseg/voxels"
	"github.com/janelia-flyem/acseg/volio"
)

// DoCommand serves as a switchboard for commands.
func DoCommand(cmd host.Command) error {
	if len(cmd) == 0 {
		return fmt.Errorf("blank command")
	}
	if cmd.Name() == "version" {
		fmt.Printf("acseg %s\nstorage engines: %s\n", acseg.Version, storage.EnginesAvailable())
		return nil
	}

	var configFile string
	args := cmd.CommandArgs(&configFile)
	config, err := pipeline.LoadConfig(configFile)
	if err != nil {
		return err
	}
	if err := config.Logging.SetLogger(); err != nil {
		return err
	}
	if *runDebug {
		acseg.SetLevel(acseg.LevelDebug)
	}
	store, err := storage.Open(config.Store)
	if err != nil {
		return err
	}
	store = storage.WithCache(store, config.Cache)
	defer store.Close()

	ctx := context.Background()
	switch cmd.Name() {
	case "run":
		return doRun(ctx, cmd, args, config, store)
	case "import":
		return doImport(ctx, cmd, args, config, store)
	case "export":
		return doExport(ctx, cmd, args, store)
	case "draw":
		return doDraw(ctx, cmd, args, config, store)
	case "guidance":
		return doGuidance(ctx, args, config, store)
	case "info":
		return doInfo(ctx, args, store)
	case "serve":
		return doServe(ctx, cmd, config, store)
	case "token":
		return doToken(cmd, args, config, store)
	default:
		return fmt.Errorf("unknown command %q; try 'acseg help'", cmd.Name())
	}
}

func needArgs(cmd host.Command, args []string, n int, usage string) error {
	if len(args) < n {
		return fmt.Errorf("%s command must be followed by %s", cmd.Name(), usage)
	}
	return nil
}

func doRun(ctx context.Context, cmd host.Command, items []string, config *pipeline.Config, store storage.Store) error {
	d := pipeline.NewDriver(config, store)
	hostID, err := os.Hostname()
	if err != nil {
		hostID = "localhost"
	}
	if d.Activity, err = config.Kafka.Connect(hostID, store); err != nil {
		return fmt.Errorf("unable to connect to kafka: %w", err)
	}
	defer func() {
		if err := d.Activity.Close(); err != nil {
			acseg.Errorf("%v\n", err)
		}
	}()
	template := d.JobDefaults()
	var found bool
	if template.Guidance, found = cmd.Setting(host.KeyGuidance); !found {
		return fmt.Errorf("run command needs a guidance=<grid> setting")
	}
	template.Previous = cmd.SettingOr(host.KeyPrevious, pipeline.NoPrevious)
	template.Output = cmd.SettingOr(host.KeyOutput, "")

	cli := host.NewCLI(items, os.Stdin, os.Stdout)
	stop := cli.HandleSignals()
	defer stop()
	reports, err := host.Process(ctx, cli, d, template)
	for _, r := range reports {
		fmt.Printf("Run %s: %d seeds, %d rounds, %d collided voxels\n", r.RunID, r.Records.Len(), r.Rounds, r.Collided)
	}
	return err
}

func compression(config *pipeline.Config) (acseg.Compression, error) {
	return acseg.ParseCompression(config.Output.Compression)
}

func sliceStack(cmd host.Command, dir, prefix string) (*volio.Stack, error) {
	format, err := volio.ParseFormat(cmd.SettingOr(host.KeyFormat, string(volio.TIFF)))
	if err != nil {
		return nil, err
	}
	scale, err := cmd.FloatSetting(host.KeyScale, 1)
	if err != nil {
		return nil, err
	}
	return &volio.Stack{Dir: dir, Prefix: prefix, Format: format, Scale: scale}, nil
}

func doImport(ctx context.Context, cmd host.Command, args []string, config *pipeline.Config, store storage.Store) error {
	if err := needArgs(cmd, args, 3, "seeds|grid, a source, and a name"); err != nil {
		return err
	}
	kind, src, name := args[0], args[1], args[2]
	compress, err := compression(config)
	if err != nil {
		return err
	}
	switch kind {
	case "seeds":
		f, err := os.Open(src)
		if err != nil {
			return err
		}
		defer f.Close()
		dir, err := records.ImportSeedsJSON(f)
		if err != nil {
			return fmt.Errorf("import %s: %w", src, err)
		}
		if err := storage.PutDirectory(ctx, store, name, dir, compress); err != nil {
			return err
		}
		fmt.Printf("Imported %s as %q\n", dir, name)
	case "grid":
		stack, err := sliceStack(cmd, src, "")
		if err != nil {
			return err
		}
		g, err := volio.ReadStack(stack, config.Contour.Resolution, nil)
		if err != nil {
			return err
		}
		if err := storage.PutGrid(ctx, store, name, g, compress); err != nil {
			return err
		}
		fmt.Printf("Imported %s as %q\n", g, name)
	default:
		return fmt.Errorf("cannot import %q: must be seeds or grid", kind)
	}
	return nil
}

func doExport(ctx context.Context, cmd host.Command, args []string, store storage.Store) error {
	if err := needArgs(cmd, args, 3, "grid|arrow, a name, and a destination"); err != nil {
		return err
	}
	kind, name, dst := args[0], args[1], args[2]
	switch kind {
	case "grid":
		g, err := storage.GetGrid(ctx, store, name)
		if err != nil {
			return err
		}
		stack, err := sliceStack(cmd, dst, name+"_")
		if err != nil {
			return err
		}
		return volio.WriteStack(stack, g, nil)
	case "arrow":
		dir, err := storage.GetDirectory(ctx, store, name)
		if err != nil {
			return err
		}
		f, err := os.Create(dst)
		if err != nil {
			return err
		}
		if err := dir.ExportArrow(f); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	default:
		return fmt.Errorf("cannot export %q: must be grid or arrow", kind)
	}
}

func doDraw(ctx context.Context, cmd host.Command, args []string, config *pipeline.Config, store storage.Store) error {
	if err := needArgs(cmd, args, 2, "a directory and a grid name"); err != nil {
		return err
	}
	sel, err := records.ParseSelector(cmd.SettingOr(host.KeySelect, "full"))
	if err != nil {
		return err
	}
	dir, err := storage.GetDirectory(ctx, store, args[0])
	if err != nil {
		return err
	}
	colors, err := dir.GetList(records.FieldIdx)
	if err != nil {
		return err
	}
	g := voxels.NewGrid(0, 0, 0)
	if err := dir.DrawSegmentationImage(sel, colors, g); err != nil {
		return err
	}
	compress, err := compression(config)
	if err != nil {
		return err
	}
	return storage.PutGrid(ctx, store, args[1], g, compress)
}

func doGuidance(ctx context.Context, args []string, config *pipeline.Config, store storage.Store) error {
	if len(args) < 2 {
		return fmt.Errorf("guidance command must be followed by an image grid and an output grid name")
	}
	img, err := storage.GetGrid(ctx, store, args[0])
	if err != nil {
		return err
	}
	timedLog := acseg.NewTimeLog()
	g := voxels.NewGrid(0, 0, 0)
	if err := img.PrincipalCurvatureGrid(g, nil); err != nil {
		return err
	}
	if m := g.Max(); m > 0 {
		g.DivScalar(m)
	}
	timedLog.Infof("Computed guidance field %s from %q", g, args[0])
	compress, err := compression(config)
	if err != nil {
		return err
	}
	return storage.PutGrid(ctx, store, args[1], g, compress)
}

func doInfo(ctx context.Context, args []string, store storage.Store) error {
	if len(args) > 0 {
		dir, err := storage.GetDirectory(ctx, store, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s\n", dir)
		fmt.Printf("properties: %s\n", strings.Join(dir.PropertyNames(), ", "))
		fmt.Printf("categories: %s\n", strings.Join(dir.CategoryNames(), ", "))
		indices, err := dir.GetList(records.FieldIdx)
		if err != nil {
			return err
		}
		for i, v := range dir.Volume() {
			fmt.Printf("  seed %g: %s voxels\n", indices[i], humanize.Comma(int64(v)))
		}
		return nil
	}
	fmt.Printf("%s\n", store)
	dirs, err := storage.List(ctx, store, storage.DirectoryPrefix)
	if err != nil {
		return err
	}
	for _, name := range dirs {
		dir, err := storage.GetDirectory(ctx, store, name)
		if err != nil {
			return err
		}
		fmt.Printf("directory %q: %s\n", name, dir)
	}
	grids, err := storage.List(ctx, store, storage.GridPrefix)
	if err != nil {
		return err
	}
	for _, name := range grids {
		g, err := storage.GetGrid(ctx, store, name)
		if err != nil {
			return err
		}
		fmt.Printf("grid %q: %s at %v microns per voxel\n", name, g, g.Resolution())
	}
	return nil
}

func doServe(ctx context.Context, cmd host.Command, config *pipeline.Config, store storage.Store) error {
	config.Server.HTTPAddress = cmd.SettingOr(host.KeyHTTP, config.Server.HTTPAddress)
	s, err := server.New(config.Server, store)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := s.Serve(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func doToken(cmd host.Command, args []string, config *pipeline.Config, store storage.Store) error {
	if err := needArgs(cmd, args, 1, "<user>"); err != nil {
		return err
	}
	s, err := server.New(config.Server, store)
	if err != nil {
		return err
	}
	token, err := s.GenerateJWT(args[0])
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
