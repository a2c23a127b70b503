package config

import "flag"

var (
	flagConfig       = flag.String("config", "", "Path to config file")
	flagDebug        = flag.Bool("debug", false, "Enable debug logging")
	flagFormat       = flag.String("format", "", "Report format: yaml or text")
	flagOut          = flag.String("out", "", "Write the report to this file instead of stdout")
	flagMaxDepth     = flag.Int("max-depth", -1, "Maximum traversal depth (0 = unlimited)")
	flagNoCycleCheck = flag.Bool("no-cycle-check", false, "Disable cyclic instancing detection")
	flagSkipInvalid  = flag.Bool("skip-invalid", false, "Skip meshes with corrupt topology instead of failing")
)

// ParseArgs parses flags from args instead of os.Args. Subcommands use it
// to accept flags after the command name.
func ParseArgs(args []string) error {
	return flag.CommandLine.Parse(args)
}

// Args returns the positional arguments left after flag parsing.
func Args() []string {
	return flag.Args()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagFormat != "" {
		cfg.Output.Format = *flagFormat
	}
	if *flagOut != "" {
		cfg.Output.Path = *flagOut
	}
	if *flagMaxDepth >= 0 {
		cfg.Flatten.MaxDepth = *flagMaxDepth
	}
	if *flagNoCycleCheck {
		cfg.Flatten.DetectCycles = false
	}
	if *flagSkipInvalid {
		cfg.Tessellate.SkipInvalid = true
	}
}
