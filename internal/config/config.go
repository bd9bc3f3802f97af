// Package config loads pybundle settings from defaults, a YAML file, a .env
// file and PYBUNDLE_* environment variables, in increasing precedence.
// Command-line flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/odvcencio/pybundle/pkg/ignore"
	"github.com/odvcencio/pybundle/pkg/source"
)

const (
	// FileName is the config file looked up in the working directory.
	FileName = ".pybundle.yaml"
	// EnvFile is the dotenv file looked up in the working directory.
	EnvFile = ".env"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "PYBUNDLE_"
)

type Config struct {
	Root       string   `yaml:"root" json:"root"`
	Output     string   `yaml:"output" json:"output"`
	IgnoreFile string   `yaml:"ignore_file" json:"ignore_file"`
	Encodings  []string `yaml:"encodings" json:"encodings"`
	SliceLines bool     `yaml:"slice_lines" json:"slice_lines"`
	ChainDepth int      `yaml:"chain_depth" json:"chain_depth"`
	CacheSize  int      `yaml:"cache_size" json:"cache_size"`
	TokenModel string   `yaml:"token_model" json:"token_model"`
	LogLevel   string   `yaml:"log_level" json:"log_level"`
	LogFormat  string   `yaml:"log_format" json:"log_format"`
}

func Default() Config {
	return Config{
		Root:       ".",
		Output:     "output.txt",
		IgnoreFile: ignore.FileName,
		Encodings:  append([]string(nil), source.DefaultEncodings...),
		CacheSize:  512,
		TokenModel: "gpt-4",
		LogLevel:   "info",
		LogFormat:  "auto",
	}
}

// LoadOptions locates the config sources.
type LoadOptions struct {
	// ConfigPath is the YAML file. When empty FileName is used if it exists;
	// an explicit path must exist.
	ConfigPath string
	// EnvFile is the dotenv file, EnvFile when empty. A missing file is ignored.
	EnvFile string
	// Lookup reads the process environment; os.LookupEnv when nil.
	Lookup func(string) (string, bool)
}

// Load builds the configuration from every source except flags.
func Load(opts LoadOptions) (Config, error) {
	cfg := Default()

	path := opts.ConfigPath
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = FileName
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = EnvFile
	}
	dotenv, err := godotenv.Read(envFile)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("read env file %s: %w", envFile, err)
	}

	lookup := opts.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	merged := func(key string) (string, bool) {
		if value, ok := lookup(key); ok {
			return value, true
		}
		value, ok := dotenv[key]
		return value, ok
	}
	if err := cfg.ApplyEnv(merged); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from PYBUNDLE_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		value, ok := lookup(EnvPrefix + name)
		if !ok {
			return "", false
		}
		return strings.TrimSpace(value), true
	}

	strs := map[string]*string{
		"ROOT":        &c.Root,
		"OUTPUT":      &c.Output,
		"IGNORE_FILE": &c.IgnoreFile,
		"TOKEN_MODEL": &c.TokenModel,
		"LOG_LEVEL":   &c.LogLevel,
		"LOG_FORMAT":  &c.LogFormat,
	}
	for name, field := range strs {
		if value, ok := get(name); ok && value != "" {
			*field = value
		}
	}

	ints := map[string]*int{
		"CHAIN_DEPTH": &c.ChainDepth,
		"CACHE_SIZE":  &c.CacheSize,
	}
	for name, field := range ints {
		value, ok := get(name)
		if !ok || value == "" {
			continue
		}
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*field = parsed
	}

	if value, ok := get("SLICE_LINES"); ok && value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%sSLICE_LINES: %w", EnvPrefix, err)
		}
		c.SliceLines = parsed
	}

	if value, ok := get("ENCODINGS"); ok && value != "" {
		var encodings []string
		for _, name := range strings.Split(value, ",") {
			if name = strings.TrimSpace(name); name != "" {
				encodings = append(encodings, name)
			}
		}
		c.Encodings = encodings
	}
	return nil
}

// Validate reports settings no run could use.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Output) == "" {
		return errors.New("output path must not be empty")
	}
	if c.ChainDepth < 0 {
		return fmt.Errorf("chain_depth must be >= 0, got %d", c.ChainDepth)
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache_size must be >= 0, got %d", c.CacheSize)
	}
	if len(c.Encodings) == 0 {
		return errors.New("encodings must list at least one encoding")
	}
	if err := source.ValidateEncodings(c.Encodings); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "auto", "text", "json":
	default:
		return fmt.Errorf("unsupported log_format %q", c.LogFormat)
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(c.LogLevel) == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unsupported log_level %q", c.LogLevel)
	}
	return level, nil
}
