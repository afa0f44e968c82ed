// Package main is a small inspection harness for the mod configuration
// runtime: it loads a demo module (plus an optional Lua manifest), prints
// the entries the scan materialized, and persists them on exit.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/JMC2002/JmcModLib-sub001/internal/module"
	"github.com/JMC2002/JmcModLib-sub001/internal/runtime"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

// demoSettings is the tagged holder the harness scans. Each tagged field
// becomes a persisted configuration entry.
type demoSettings struct {
	Volume    float64 `mod:"config,group=Audio,name=Volume,desc=Master output volume;ui.slider,min=0,max=1"`
	Muted     bool    `mod:"config,group=Audio,name=Muted;ui.toggle"`
	Theme     string  `mod:"config,group=Display,name=Theme;ui.choice,options=light|dark"`
	FrameRate int     `mod:"config,group=Display,name=FrameRate,desc=Target frames per second"`
}

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath   string
		storePath    string
		manifestPath string
		showVersion  bool
	)
	flag.StringVar(&configPath, "config", "", "Path to runtime options file")
	flag.StringVar(&configPath, "c", "", "Path to runtime options file (shorthand)")
	flag.StringVar(&storePath, "store", "", "Override the entry store path")
	flag.StringVar(&manifestPath, "manifest", "", "Lua manifest declaring extra entries")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "modlib - mod configuration runtime harness\n\n")
		fmt.Fprintf(os.Stderr, "Usage: modlib [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if showVersion {
		fmt.Printf("modlib %s (%s)\n", version, commit)
		return 0
	}

	opts, err := runtime.LoadOptions(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if storePath != "" {
		opts.StorePath = storePath
	}

	rt, err := runtime.New(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer func() {
		if cerr := rt.Close(); cerr != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", cerr)
		}
	}()

	mod := module.New("demo")
	settings := &demoSettings{
		Volume:    0.8,
		Theme:     "dark",
		FrameRate: 60,
	}
	if err := mod.RegisterHolder(settings); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	rt.LoadModule(mod)

	if manifestPath != "" {
		if err := rt.LoadManifest(mod.Name(), manifestPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}

	for _, e := range rt.Factory().Entries(mod.Name()) {
		fmt.Printf("%-24s = %v (default %v)\n", e.Key(), e.ValueAny(), e.DefaultAny())
	}
	return 0
}
