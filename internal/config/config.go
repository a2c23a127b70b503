// Package config handles usdflat configuration loading and management.
package config

// Config holds all converter settings.
type Config struct {
	Stage      StageConfig      `yaml:"stage"`
	Flatten    FlattenConfig    `yaml:"flatten"`
	Tessellate TessellateConfig `yaml:"tessellate"`
	Output     OutputConfig     `yaml:"output"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// StageConfig selects the document to convert.
type StageConfig struct {
	Path string `yaml:"path"` // Used when no stage argument is given on the command line
}

// FlattenConfig holds traversal guards.
type FlattenConfig struct {
	MaxDepth     int  `yaml:"max_depth"`     // 0 disables the depth limit
	DetectCycles bool `yaml:"detect_cycles"` // Abort on an instancer expanding its own ancestor
}

// TessellateConfig holds triangulation settings.
type TessellateConfig struct {
	SkipInvalid bool `yaml:"skip_invalid"` // Report corrupt meshes instead of aborting
}

// OutputConfig holds report settings.
type OutputConfig struct {
	Format           string `yaml:"format"` // "yaml" or "text"
	Path             string `yaml:"path"`   // Empty writes to stdout
	IncludeInstances bool   `yaml:"include_instances"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Flatten: FlattenConfig{
			MaxDepth:     256,
			DetectCycles: true,
		},
		Tessellate: TessellateConfig{
			SkipInvalid: false,
		},
		Output: OutputConfig{
			Format:           "yaml",
			IncludeInstances: true,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}
