// Package config loads the typesensei-gen configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up in the working directory.
const FileName = "typesensei.yaml"

// Config holds the generator configuration.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Targets []Target      `yaml:"targets"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error (default: info)
	Format string `yaml:"format"` // console, json (default: console)
}

// Target is one package to generate companions for.
type Target struct {
	Dir    string   `yaml:"dir"`
	Types  []string `yaml:"types"`  // empty selects every tagged struct
	Output string   `yaml:"output"` // file name inside Dir
}

// Load reads the configuration from path. Relative target directories are
// resolved against the directory holding the file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()
	base := filepath.Dir(path)
	for i := range cfg.Targets {
		if !filepath.IsAbs(cfg.Targets[i].Dir) {
			cfg.Targets[i].Dir = filepath.Join(base, cfg.Targets[i].Dir)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Find returns the path of the configuration file in dir, if there is one.
func Find(dir string) (string, bool) {
	path := filepath.Join(dir, FileName)
	if fileExists(path) {
		return path, true
	}
	return "", false
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	for i := range c.Targets {
		if c.Targets[i].Dir == "" {
			c.Targets[i].Dir = "."
		}
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be \"console\" or \"json\", got %q", c.Logging.Format)
	}
	if len(c.Targets) == 0 {
		return errors.New("targets: at least one target is required")
	}
	seen := make(map[string]int, len(c.Targets))
	for i, t := range c.Targets {
		if t.Output != "" {
			if filepath.Base(t.Output) != t.Output || !strings.HasSuffix(t.Output, ".go") ||
				strings.HasSuffix(t.Output, "_test.go") {
				return fmt.Errorf("targets[%d].output must be a non-test .go file name, got %q", i, t.Output)
			}
		}
		key := filepath.Join(filepath.Clean(t.Dir), t.Output)
		if j, ok := seen[key]; ok {
			return fmt.Errorf("targets[%d] writes the same file as targets[%d]", i, j)
		}
		seen[key] = i
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
