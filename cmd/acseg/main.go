// Command-line interface to active contour segmentation.

package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"strings"

	"github.com/janelia-flyem/acseg/acseg"
	"github.com/janelia-flyem/acseg/host"
)

var (
	// Display usage if true.
	showHelp = flag.Bool("help", false, "")

	// Run in verbose mode if true.
	runVerbose = flag.Bool("verbose", false, "")

	// Log at debug level if true.
	runDebug = flag.Bool("debug", false, "")

	// Profile CPU usage using standard gotest system.
	cpuprofile = flag.String("cpuprofile", "", "")

	// Number of logical CPUs to use.
	useCPU = flag.Int("numcpu", 0, "")
)

const helpMessage = `
acseg segments cells in 3d microscopy volumes by evolving competing active contours

Usage: acseg [options] <command>

      -cpuprofile =string   Write CPU profile to this file.
      -numcpu     =number   Number of logical CPUs to use.
      -debug      (flag)    Log debug messages.
      -verbose    (flag)    Run in verbose mode.
  -h, -help       (flag)    Show help message

Every command except version reads a TOML configuration file that selects
the store holding guidance grids and seed directories.

Commands:

	run      <config> [work item ...] guidance=<grid> [previous=<dir>] [output=<dir>]
	         Segment the seeds named by each work item.  Without work items on
	         the command line, items are read one per line from stdin.
	         Work item: ` + host.WorkItemPrompt + `

	import   <config> seeds <json file> <dir>
	import   <config> grid <slice stack dir> <grid> [format=tif|png] [scale=<f>]
	export   <config> grid <grid> <slice stack dir> [format=tif|png] [scale=<f>]
	export   <config> arrow <dir> <file>
	draw     <config> <dir> <grid> [select=full|perimeter]
	guidance <config> <image grid> <grid>
	         Compute a membrane guidance field from principal curvature.
	info     <config> [dir]
	serve    <config> [http=<address>]
	         Serve stored directories and grids read-only over HTTP.
	token    <config> <user>
	         Print a JWT for the user signed with the [server] secret_key.
	version
`

func main() {
	flag.BoolVar(showHelp, "h", false, "Show help message")
	flag.Usage = func() { fmt.Print(helpMessage) }
	flag.Parse()

	if flag.NArg() >= 1 && strings.ToLower(flag.Args()[0]) == "help" {
		*showHelp = true
	}
	if *showHelp || flag.NArg() == 0 {
		flag.Usage()
		os.Exit(0)
	}
	if *runVerbose {
		acseg.Verbose = true
	}
	if *runDebug {
		acseg.SetLevel(acseg.LevelDebug)
	}

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	if *useCPU != 0 {
		acseg.NumCPU = *useCPU
		runtime.GOMAXPROCS(acseg.NumCPU)
	}

	err := DoCommand(host.Command(flag.Args()))
	acseg.Shutdown()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		pprof.StopCPUProfile()
		os.Exit(1)
	}
}
