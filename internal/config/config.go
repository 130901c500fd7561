// Package config loads phpconsistent settings from YAML, .env files and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = ".phpconsistent.yml"

// Sink names accepted by log_sink.
const (
	SinkNone    = "none"
	SinkFile    = "file"
	SinkConsole = "console"
	SinkSQLite  = "sqlite"
)

// Environment variables that override file settings.
const (
	EnvDepth       = "PHPCONSISTENT_DEPTH"
	EnvIgnoreNull  = "PHPCONSISTENT_IGNORE_NULL"
	EnvLogSink     = "PHPCONSISTENT_LOG_SINK"
	EnvLogLocation = "PHPCONSISTENT_LOG_LOCATION"
	EnvSourceRoot  = "PHPCONSISTENT_SOURCE_ROOT"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Config holds the settings of one analysis run. It is treated as immutable
// once loaded.
type Config struct {
	Depth                   int      `yaml:"depth"`
	IgnoreNull              bool     `yaml:"ignore_null"`
	LogSink                 string   `yaml:"log_sink"`
	LogLocation             string   `yaml:"log_location"`
	IgnoredFilePatterns     []string `yaml:"ignored_file_patterns"`
	IgnoredTargetPatterns   []string `yaml:"ignored_target_patterns"`
	IgnoredFunctionPatterns []string `yaml:"ignored_function_patterns"`
	SourceRoot              string   `yaml:"source_root"`
	RemoveTrace             bool     `yaml:"remove_trace"`
	Workers                 int      `yaml:"workers"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Depth:      10,
		LogSink:    SinkNone,
		SourceRoot: ".",
		Workers:    4,
	}
}

// Load builds a Config from defaults, the YAML file at path, a .env file in
// the working directory and PHPCONSISTENT_* environment variables, in that
// order of increasing precedence. A missing config or .env file is not an
// error; a malformed .env file is.
func Load(path string) (Config, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("%w: .env: %w", ErrInvalid, err)
	}

	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("reading config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvDepth); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a number", ErrInvalid, EnvDepth, v)
		}
		c.Depth = n
	}
	if v, ok := lookup(EnvIgnoreNull); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalid, EnvIgnoreNull, v)
		}
		c.IgnoreNull = b
	}
	if v, ok := lookup(EnvLogSink); ok && v != "" {
		c.LogSink = strings.ToLower(v)
	}
	if v, ok := lookup(EnvLogLocation); ok && v != "" {
		c.LogLocation = v
	}
	if v, ok := lookup(EnvSourceRoot); ok && v != "" {
		c.SourceRoot = v
	}
	return nil
}

// Validate reports the first setting that cannot be used.
func (c Config) Validate() error {
	if c.Depth < 0 {
		return fmt.Errorf("%w: depth must not be negative, got %d", ErrInvalid, c.Depth)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalid, c.Workers)
	}
	switch c.LogSink {
	case SinkNone, SinkConsole:
	case SinkFile, SinkSQLite:
		if c.LogLocation == "" {
			return fmt.Errorf("%w: log_sink %q needs log_location", ErrInvalid, c.LogSink)
		}
	default:
		return fmt.Errorf("%w: unknown log_sink %q", ErrInvalid, c.LogSink)
	}
	return nil
}

// Template is the commented default configuration written by "phpconsistent init".
const Template = `# phpconsistent configuration
#
# Maximum call nesting below the trace entry point that is checked.
depth: 10

# Treat a null argument or return value as matching any declared type.
ignore_null: false

# Where failures go: none, file, console or sqlite.
log_sink: console
# File path for the file sink, database path for the sqlite sink.
log_location: ""

# Substrings of file paths, class names and function names to skip.
ignored_file_patterns:
  - /vendor/
ignored_target_patterns: []
ignored_function_patterns: []

# PHP sources whose docblocks describe the traced code.
source_root: .

# Delete each trace file after it has been analyzed.
remove_trace: false

# Trace files analyzed concurrently.
workers: 4
`
