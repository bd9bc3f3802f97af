package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/odvcencio/pybundle/internal/bundle"
	"github.com/odvcencio/pybundle/internal/config"
	"github.com/odvcencio/pybundle/internal/tokens"
	"github.com/odvcencio/pybundle/pkg/ignore"
	"github.com/odvcencio/pybundle/pkg/index"
)

type exitCodeError struct {
	code int
	err  error
}

func (e exitCodeError) Error() string {
	if e.err == nil {
		return "command failed"
	}
	return e.err.Error()
}

func (e exitCodeError) ExitCode() int {
	if e.code <= 0 {
		return 1
	}
	return e.code
}

func (e exitCodeError) Unwrap() error {
	return e.err
}

func emitJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath string
	envFile    string
	root       string
	ignoreFile string
	encodings  []string
	logLevel   string
	logFormat  string
}

func (g *globalFlags) register(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&g.configPath, "config", "", "config file (default "+config.FileName+" when present)")
	flags.StringVar(&g.envFile, "env-file", config.EnvFile, "dotenv file read for "+config.EnvPrefix+"* overrides")
	flags.StringVar(&g.root, "root", ".", "project root to scan")
	flags.StringVar(&g.ignoreFile, "ignore-file", ignore.FileName, "ignore file, relative to the root unless absolute")
	flags.StringSliceVar(&g.encodings, "encodings", nil, "source encodings tried in order")
	flags.StringVar(&g.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	flags.StringVar(&g.logFormat, "log-format", "auto", "log format: auto, text or json")
}

// loadConfig merges config sources and then the flags the user set.
func (g *globalFlags) loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{ConfigPath: g.configPath, EnvFile: g.envFile})
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("root") {
		cfg.Root = g.root
	}
	if flags.Changed("ignore-file") {
		cfg.IgnoreFile = g.ignoreFile
	}
	if flags.Changed("encodings") {
		cfg.Encodings = g.encodings
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = g.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = g.logFormat
	}
	return cfg, nil
}

// newLogger writes to w, as text on a terminal and as JSON otherwise unless
// the format is fixed.
func newLogger(cfg config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	format := strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	if format == "" || format == "auto" {
		format = "json"
		if file, ok := w.(*os.File); ok && (isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())) {
			format = "text"
		}
	}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(w, opts)), nil
}

// session is everything one command needs to analyse the configured root.
type session struct {
	cfg     config.Config
	logger  *slog.Logger
	builder *index.Builder
	runner  *bundle.Runner
}

func newSession(cmd *cobra.Command, cfg config.Config) (*session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	cache, err := index.NewCache(cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	loader, err := index.NewLoader(cfg.Root, index.LoaderOptions{
		Encodings: cfg.Encodings,
		Cache:     cache,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	builder := index.NewBuilder(loader, logger)

	s := &session{cfg: cfg, logger: logger, builder: builder}
	if err := s.reloadIgnore(); err != nil {
		return nil, err
	}

	counter, err := tokens.New(cfg.TokenModel)
	if err != nil {
		logger.Warn("token encoder unavailable, estimating",
			slog.String("model", cfg.TokenModel),
			slog.String("error", err.Error()),
		)
	}
	s.runner = bundle.NewRunner(builder, counter, logger)
	return s, nil
}

func (s *session) ignorePath() string {
	path := s.cfg.IgnoreFile
	if strings.TrimSpace(path) == "" {
		path = ignore.FileName
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.builder.Loader().Root(), path)
}

// reloadIgnore re-reads the ignore file; a missing file means the defaults.
func (s *session) reloadIgnore() error {
	matcher, err := ignore.LoadOrDefault(s.ignorePath())
	if err != nil {
		return err
	}
	s.builder.SetIgnore(matcher)
	return nil
}
