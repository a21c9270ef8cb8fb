// Command meshpassdump runs one frame of the toon mesh passes over a glTF
// scene and prints what the passes sent to the stream.
//
// Usage:
//
//	meshpassdump -scene character.gltf [-config frame.yaml] [-backend trace|hal] [-v]
//
// Without -config a single view of -width x -height is rendered.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"slices"

	"github.com/gogpu/meshpass"
	"github.com/gogpu/meshpass/config"
	"github.com/gogpu/meshpass/scene"
	"github.com/gogpu/meshpass/toon"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		log.Fatal(err)
	}
}

// defaultConfig renders one view into color handle 1 and depth handle 2.
const defaultConfig = `
views:
  - id: 1
    viewport: {width: %d, height: %d}
    color: [{handle: 1, format: RGBA8Unorm, load: Clear}]
    depth: {handle: 2, format: Depth32Float, load: Clear, clear: 1}
`

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("meshpassdump", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		scenePath  = fs.String("scene", "", "glTF scene (.gltf or .glb)")
		configPath = fs.String("config", "", "frame configuration (YAML)")
		backend    = fs.String("backend", "", "stream backend: trace or hal (default: trace)")
		width      = fs.Uint("width", 1280, "viewport width without -config")
		height     = fs.Uint("height", 720, "viewport height without -config")
		verbose    = fs.Bool("v", false, "log debug output to stderr")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *scenePath == "" {
		fs.Usage()
		return errors.New("missing -scene")
	}

	if *verbose {
		meshpass.SetLogger(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
		defer meshpass.SetLogger(nil)
	}

	s, err := scene.Load(*scenePath)
	if err != nil {
		return err
	}

	var cfg *config.Config
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.Parse([]byte(fmt.Sprintf(defaultConfig, *width, *height)))
	}
	if err != nil {
		return err
	}
	for _, l := range s.Layouts() {
		if !slices.Contains(cfg.Layouts, string(l)) {
			cfg.Layouts = append(cfg.Layouts, string(l))
		}
	}

	table := meshpass.NewShaderTable()
	reg := meshpass.NewRegistry(table, cfg.Options()...)
	if err := cfg.Register(reg, table); err != nil {
		return err
	}

	b, err := openBackend(*backend)
	if err != nil {
		return err
	}
	defer b.Close()
	if err := b.Open(s); err != nil {
		return err
	}
	views, err := cfg.FrameViews(b.Stream)
	if err != nil {
		return err
	}

	var post []meshpass.ViewPass
	var lighting *toon.Lighting
	if len(cfg.Lights) > 0 {
		lights, err := cfg.LightSet()
		if err != nil {
			return err
		}
		lighting = toon.NewLighting(lights)
		post = append(post, lighting)
	}

	frame := meshpass.NewFrame(reg, post...)
	defer frame.Close()
	report, err := frame.Run(ctx, s, views)
	if err != nil {
		return err
	}

	writeReport(stdout, report)
	if lighting != nil {
		st := lighting.Stats()
		fmt.Fprintf(stdout, "lights: %d issued, %d culled, %d skipped\n", st.Issued, st.Culled, st.Skipped)
	}
	return b.Dump(stdout)
}

func writeReport(w io.Writer, r *meshpass.FrameReport) {
	fmt.Fprintf(w, "frame %d\n", r.Frame)
	for _, v := range r.Views {
		if v.Skipped {
			fmt.Fprintf(w, "view %d: hidden\n", v.View)
			continue
		}
		for _, p := range v.Passes {
			st := p.Processor
			fmt.Fprintf(w, "view %d %s: %d accepted, %d rejected (nil %d, feature %d, variant %d, empty %d), %d draws",
				v.View, p.Pass, st.Accepted, st.Rejected(), st.NilMaterial, st.MissingFeature, st.NoVariant, st.EmptyMask, p.Exec.Draws)
			if p.Err != nil {
				fmt.Fprintf(w, ", error: %v", p.Err)
			}
			fmt.Fprintln(w)
		}
		if v.LightErr != nil {
			fmt.Fprintf(w, "view %d lighting error: %v\n", v.View, v.LightErr)
		}
	}
}
