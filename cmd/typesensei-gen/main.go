// Command typesensei-gen writes the Model and Query companions of Go
// structs tagged for Typesense.
//
// Run it from go:generate with no arguments to generate every tagged struct
// of the current package:
//
//	//go:generate go run github.com/kailas-cloud/typesensei/cmd/typesensei-gen
//
// With a typesensei.yaml in the working directory, or one named by
// --config, every target listed in the file is generated instead. Flags
// override the file.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/typesensei/internal/config"
	"github.com/kailas-cloud/typesensei/internal/gen"
	logpkg "github.com/kailas-cloud/typesensei/internal/logger"
	"github.com/kailas-cloud/typesensei/internal/version"
)

type flags struct {
	configPath string
	dir        string
	types      []string
	output     string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:           "typesensei-gen",
		Short:         "Generate typed Typesense models and queries",
		Version:       version.String(),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolve(cmd, f)
			if err != nil {
				return err
			}
			logger, err := logpkg.NewLogger(cfg.Logging.Format, cfg.Logging.Level)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			return run(logpkg.ContextWithLogger(cmd.Context(), logger), cfg.Targets)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.configPath, "config", "c", "", "path to "+config.FileName+" (default: look up in the working directory)")
	fl.StringVarP(&f.dir, "dir", "d", ".", "package directory")
	fl.StringSliceVarP(&f.types, "type", "t", nil, "types to generate (default: every tagged struct)")
	fl.StringVarP(&f.output, "output", "o", gen.DefaultOutput, "output file name inside the package directory")
	fl.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")
	fl.StringVar(&f.logFormat, "log-format", "", "log format: console, json")
	return cmd
}

// resolve merges the configuration file, if any, with the flags.
func resolve(cmd *cobra.Command, f flags) (config.Config, error) {
	path := f.configPath
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return config.Config{}, fmt.Errorf("working directory: %w", err)
		}
		path, _ = config.Find(wd)
	}

	fl := cmd.Flags()
	targetFlags := fl.Changed("dir") || fl.Changed("type") || fl.Changed("output")

	var cfg config.Config
	if path != "" && !targetFlags {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	} else {
		cfg.Targets = []config.Target{{Dir: f.dir, Types: f.types, Output: f.output}}
		cfg.ApplyDefaults()
	}

	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Logging.Format = f.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// run generates every target and reports all failures together.
func run(ctx context.Context, targets []config.Target) error {
	var errs []error
	for _, t := range targets {
		logger := logpkg.FromContext(logpkg.WithFields(ctx, zap.String("dir", t.Dir)))
		start := time.Now()
		file, err := gen.Generate(gen.Options{Dir: t.Dir, Types: t.Types, Output: t.Output})
		if err != nil {
			logger.Error("Generation failed", zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", t.Dir, err))
			continue
		}
		logger.Info("Generated",
			zap.String("file", file),
			zap.Strings("types", t.Types),
			zap.Duration("took", time.Since(start)),
		)
	}
	return errors.Join(errs...)
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
