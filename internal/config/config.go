// Package config loads the optional .runmeta YAML file and its .env
// overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/deixis/runmeta/internal/metadata"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up from the working directory upward.
const FileName = ".runmeta"

// Default values.
const (
	DefaultTimeout     = 30 * time.Minute
	DefaultMaxOutput   = 1 << 20 // 1 MB per stream
	DefaultOutput      = "metadata.xml"
	DefaultStdoutLevel = metadata.LevelInfo
	DefaultStderrLevel = metadata.LevelWarning
)

// Environment variables that override file values.
const (
	EnvOperator   = "RUNMETA_OPERATOR"
	EnvGISVersion = "RUNMETA_GIS_VERSION"
	EnvOutput     = "RUNMETA_OUTPUT"
	EnvHistoryDir = "RUNMETA_HISTORY_DIR"
)

// Config holds the parsed .runmeta configuration.
// All fields are optional; zero values represent defaults.
type Config struct {
	Version      int           `yaml:"version"`
	Tool         ToolConfig    `yaml:"tool"`
	Operator     string        `yaml:"operator"`    // empty: resolve current user
	GISVersion   string        `yaml:"gis_version"` // e.g. "ArcGIS 10.4"
	Output       string        `yaml:"output"`      // metadata document path
	RawLayout    string        `yaml:"layout"`      // legacy or symmetric
	Indent       bool          `yaml:"indent"`
	RawTimeout   string        `yaml:"timeout"`    // e.g. "30m"
	RawMaxOutput int           `yaml:"max_output"` // bytes
	RawHistory   string        `yaml:"history_dir"`
	Capture      CaptureConfig `yaml:"capture"`
}

// ToolConfig names the wrapped tool.
type ToolConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// CaptureConfig maps captured streams to message levels.
// The literal "none" disables capture for a stream.
type CaptureConfig struct {
	Stdout string `yaml:"stdout"`
	Stderr string `yaml:"stderr"`
}

// Timeout returns the configured timeout or the default.
func (c *Config) Timeout() time.Duration {
	if c.RawTimeout != "" {
		d, err := time.ParseDuration(c.RawTimeout)
		if err == nil && d > 0 {
			return d
		}
	}
	return DefaultTimeout
}

// MaxOutputBytes returns the configured max output size or the default.
func (c *Config) MaxOutputBytes() int {
	if c.RawMaxOutput > 0 {
		return c.RawMaxOutput
	}
	return DefaultMaxOutput
}

// OutputPath returns the configured document path or the default.
func (c *Config) OutputPath() string {
	if c.Output != "" {
		return c.Output
	}
	return DefaultOutput
}

// Layout returns the configured document layout. Unknown values are
// rejected by Load, so this only falls back for hand-built configs.
func (c *Config) Layout() metadata.Layout {
	l, err := metadata.ParseLayout(c.RawLayout)
	if err != nil {
		return metadata.LayoutLegacy
	}
	return l
}

// StdoutLevel returns the message level for captured stdout lines, or ""
// when capture is disabled.
func (c *Config) StdoutLevel() string {
	return captureLevel(c.Capture.Stdout, DefaultStdoutLevel)
}

// StderrLevel returns the message level for captured stderr lines, or ""
// when capture is disabled.
func (c *Config) StderrLevel() string {
	return captureLevel(c.Capture.Stderr, DefaultStderrLevel)
}

func captureLevel(raw, def string) string {
	switch raw {
	case "":
		return def
	case "none":
		return ""
	default:
		return raw
	}
}

// HistoryDir returns the directory holding stored sessions. It defaults
// to a runmeta directory under the user cache dir, or the temp dir when
// no cache dir is available.
func (c *Config) HistoryDir() string {
	if c.RawHistory != "" {
		return c.RawHistory
	}
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "runmeta")
	}
	return filepath.Join(os.TempDir(), "runmeta")
}

// WriterOptions returns the metadata options implied by the config.
func (c *Config) WriterOptions() []metadata.Option {
	return []metadata.Option{
		metadata.WithOperator(c.Operator),
		metadata.WithGISVersion(c.GISVersion),
		metadata.WithLayout(c.Layout()),
		metadata.WithIndent(c.Indent),
	}
}

// LoadResult holds the parsed config and the directory it was found in.
type LoadResult struct {
	Config *Config
	Root   string // directory containing .runmeta; falls back to workspace
	Path   string // config file path, empty if none was found
}

// Load reads the nearest .runmeta file at or above workspace. A .env file
// in the same directory is loaded into the process environment without
// overriding variables already set, then RUNMETA_* variables override the
// file values. If no .runmeta file exists, a default Config is returned.
func Load(workspace string) (*LoadResult, error) {
	root, err := findConfigRoot(workspace)
	if err != nil {
		root, err = filepath.Abs(workspace)
		if err != nil {
			return nil, fmt.Errorf("resolving workspace: %w", err)
		}
	}

	envPath := filepath.Join(root, ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("loading %s: %w", envPath, err)
		}
	}

	res := &LoadResult{Config: &Config{}, Root: root}
	path := filepath.Join(root, FileName)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, res.Config); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", FileName, err)
		}
		res.Path = path
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("reading %s: %w", FileName, err)
	}

	res.Config.applyEnv(os.LookupEnv)
	if _, err := metadata.ParseLayout(res.Config.RawLayout); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FileName, err)
	}
	return res, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(EnvOperator, &c.Operator)
	set(EnvGISVersion, &c.GISVersion)
	set(EnvOutput, &c.Output)
	set(EnvHistoryDir, &c.RawHistory)
}

// findConfigRoot walks upward from dir looking for a .runmeta file.
func findConfigRoot(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, FileName)); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%s not found", FileName)
		}
		dir = parent
	}
}
