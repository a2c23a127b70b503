// usdflat flattens USD stages into renderer-ready triangle meshes and
// per-instance world transforms.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/usdflat/internal/config"
	"github.com/Faultbox/usdflat/internal/logger"
	"github.com/Faultbox/usdflat/internal/report"
	"github.com/Faultbox/usdflat/internal/scene"
	"github.com/Faultbox/usdflat/internal/tessellate"
	"github.com/Faultbox/usdflat/pkg/usd"
)

var errUsage = errors.New("invalid arguments")

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var run func(*config.Config, []string) error
	switch command {
	case "info":
		run = cmdInfo
	case "flatten":
		run = cmdFlatten
	case "mesh":
		run = cmdMesh
	case "package", "pkg":
		run = cmdPackage
	case "config":
		run = cmdConfig
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	cfg, rest, err := setup(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, rest); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			printUsage()
		} else {
			logger.Error(command+" failed", zap.Error(err))
		}
		logger.Sync()
		os.Exit(1)
	}
}

// setup parses the command's flags, loads the configuration and starts the
// logger. It returns the remaining positional arguments.
func setup(args []string) (*config.Config, []string, error) {
	if err := config.ParseArgs(args); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	logger.Sugar.Debugf("Config: %+v", cfg)
	return cfg, config.Args(), nil
}

func printUsage() {
	fmt.Println(`usdflat - USD scene flattener and mesh tessellator

Usage:
  usdflat <command> [flags] [args]

Commands:
  info <stage>                 Show stage metadata and prim counts
  flatten <stage>              Flatten and tessellate, then write a report
  mesh <stage> <index>         Print the triangle streams of one mesh
  package <file.usdz>          List the entries of a usdz package
  config [path]                Write the effective configuration as YAML

Flags:
  -config <file>     Config file (default ./usdflat.yaml or user config dir)
  -debug             Debug logging
  -format yaml|text  Report format
  -out <file>        Write the report to a file
  -max-depth <n>     Traversal depth limit, 0 = unlimited
  -no-cycle-check    Do not fail on cyclic instancing
  -skip-invalid      Report corrupt meshes instead of failing

Stages may be .usda, .usd (text) or .usdz files. When no stage argument is
given, stage.path from the configuration is used.

Examples:
  usdflat info scene.usda
  usdflat flatten -format text scene.usdz
  usdflat mesh scene.usda 0`)
}

// stagePath picks the stage from the first argument or the configuration.
func stagePath(cfg *config.Config, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if cfg.Stage.Path != "" {
		return cfg.Stage.Path, nil
	}
	return "", fmt.Errorf("%w: no stage given", errUsage)
}

func flattenOptions(cfg *config.Config) scene.Options {
	return scene.Options{
		MaxDepth:     cfg.Flatten.MaxDepth,
		DetectCycles: cfg.Flatten.DetectCycles,
	}
}

func cmdInfo(cfg *config.Config, args []string) error {
	path, err := stagePath(cfg, args)
	if err != nil {
		return err
	}
	stage, err := usd.Open(path)
	if err != nil {
		return err
	}

	md := stage.Metadata
	fmt.Printf("Stage:     %s\n", path)
	if md.DefaultPrim != "" {
		fmt.Printf("Default:   %s\n", md.DefaultPrim)
	}
	fmt.Printf("Up axis:   %s\n", md.UpAxis)
	fmt.Printf("Units:     %g m\n", md.MetersPerUnit)
	if md.Doc != "" {
		fmt.Printf("Doc:       %s\n", md.Doc)
	}
	if md.EndTimeCode > md.StartTimeCode {
		fmt.Printf("Time:      %g .. %g\n", md.StartTimeCode, md.EndTimeCode)
	}
	fmt.Println()
	fmt.Println("Prims by type:")

	type typeStat struct {
		name  string
		count int
	}
	var stats []typeStat
	for name, count := range stage.CountByType() {
		if name == "" {
			name = "(typeless)"
		}
		stats = append(stats, typeStat{name, count})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].count != stats[j].count {
			return stats[i].count > stats[j].count
		}
		return stats[i].name < stats[j].name
	})
	for _, s := range stats {
		fmt.Printf("  %-16s %d\n", s.name, s.count)
	}
	return nil
}

func cmdFlatten(cfg *config.Config, args []string) error {
	path, err := stagePath(cfg, args)
	if err != nil {
		return err
	}
	stage, err := usd.Open(path)
	if err != nil {
		return err
	}

	s, err := scene.Flatten(stage, flattenOptions(cfg))
	if err != nil {
		return fmt.Errorf("flattening %s: %w", path, err)
	}

	buffers, err := tessellate.All(s)
	failures := multierr.Errors(err)
	if len(failures) > 0 {
		if !cfg.Tessellate.SkipInvalid {
			return err
		}
		for _, f := range failures {
			logger.Warn("skipping mesh", zap.Error(f))
		}
	}

	st := s.Stats()
	logger.Info("flattened stage",
		zap.String("stage", path),
		zap.Int("meshes", st.Meshes),
		zap.Int("instances", st.Instances),
		zap.Int("triangles", st.InstancedTriangles),
		zap.Int("failed", len(failures)),
	)

	r := report.Build(path, stage, s, buffers, failures, report.Options{
		IncludeInstances: cfg.Output.IncludeInstances,
	})
	return writeOutput(cfg.Output.Path, func(w io.Writer) error {
		return report.Write(w, r, cfg.Output.Format)
	})
}

func cmdMesh(cfg *config.Config, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("%w: usage: usdflat mesh <stage> <index>", errUsage)
	}
	index, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("%w: mesh index %q", errUsage, args[1])
	}

	s, err := scene.FetchStage(args[0], flattenOptions(cfg))
	if err != nil {
		return err
	}
	if index < 0 || index >= len(s.Meshes) {
		return fmt.Errorf("%w: mesh index %d, stage has %d meshes", errUsage, index, len(s.Meshes))
	}

	m := &s.Meshes[index]
	b, err := tessellate.Tessellate(m)
	if err != nil {
		return err
	}

	return writeOutput(cfg.Output.Path, func(w io.Writer) error {
		fmt.Fprintf(w, "Mesh:      %s\n", m.Path)
		fmt.Fprintf(w, "Triangles: %d\n", b.TriangleCount())
		fmt.Fprintf(w, "Sided:     %s\n", sidedness(b.DoubleSided))
		fmt.Fprintln(w)
		for i, idx := range b.Indices {
			if i%3 == 0 {
				fmt.Fprintf(w, "tri %d\n", i/3)
			}
			_, err := fmt.Fprintf(w, "  %4d  p=%v n=%v uv=%v\n", idx, b.Positions[idx], b.Normals[idx], b.UVs[idx])
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func sidedness(doubleSided bool) string {
	if doubleSided {
		return "double"
	}
	return "single"
}

func cmdPackage(_ *config.Config, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: usage: usdflat package <file.usdz>", errUsage)
	}
	pkg, err := usd.OpenPackage(args[0])
	if err != nil {
		return err
	}
	defer pkg.Close()

	root, err := pkg.RootLayer()
	if err != nil {
		logger.Warn("package has no root layer", zap.String("package", args[0]), zap.Error(err))
	}
	files := pkg.List()
	for _, f := range files {
		marker := " "
		if f == root {
			marker = "*"
		}
		fmt.Printf("%s %s\n", marker, f)
	}
	fmt.Fprintf(os.Stderr, "\n(%d entries)\n", len(files))
	return nil
}

func cmdConfig(cfg *config.Config, args []string) error {
	if len(args) > 0 {
		if err := cfg.SaveTo(args[0]); err != nil {
			return err
		}
		logger.Info("wrote config", zap.String("path", args[0]))
		return nil
	}
	if err := cfg.Save(); err != nil {
		return err
	}
	logger.Info("wrote config", zap.String("dir", config.ConfigDir()))
	return nil
}

// writeOutput runs fn against the output file, or stdout when path is empty.
func writeOutput(path string, fn func(io.Writer) error) error {
	if path == "" {
		return fn(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
