// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sam-fredrickson/deepmerge/internal/logging"
)

var version = "dev"

// envPrefix is prepended to flag names, upper-cased with dashes as underscores,
// to form the environment variables that can supply them.
const envPrefix = "DEEPMERGE"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := options{logLevel: "warn"}
	cmd := &cobra.Command{
		Use:   "deepmerge [flags] FILE...",
		Short: "Deep merge configuration files (YAML, JSON, TOML)",
		Long: `Merges configuration files left to right. Mappings are merged key by key,
lists are combined by the selected array mode, and any other value in a later
file replaces the earlier one.`,
		Example: `  # merge env-specific overlay into common base
  deepmerge --out config.yaml base.yaml env.yaml

  # match list items by their "name" field instead of concatenating
  deepmerge --keys name base.yaml prod.yaml env.yaml

  # show what the overlays change
  deepmerge --diff base.yaml env.yaml`,
		Version:       version,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return bindViper(cmd, os.Getenv(envPrefix+"_CONFIG"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(opts.logLevel, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if opts.out == "" {
				return Run(opts, args, cmd.OutOrStdout(), logger)
			}

			// Buffer so a failed merge leaves an existing output file untouched.
			var buf bytes.Buffer
			if err := Run(opts, args, &buf, logger); err != nil {
				return err
			}
			return writeOutput(opts.out, buf.Bytes())
		},
	}
	cmd.SetVersionTemplate("{{.Version}}\n")

	flags := cmd.Flags()
	flags.BoolVar(&opts.clone, "clone", false, "deep copy values taken from the inputs")
	flags.Var(&opts.array, "array", `array mode [concat, union, replace, index] (default "concat")`)
	flags.StringSliceVar(&opts.keys, "keys", nil, "match list items by these primary key fields (first one present wins)")
	flags.StringVar(&opts.out, "out", "", "output file path (defaults to stdout)")
	flags.Var(&opts.format, "format", "output format [json, yaml, toml] (defaults to first file's format)")
	flags.BoolVar(&opts.diff, "diff", false, "print a unified diff of the first file against the merged result")
	flags.StringVar(&opts.logLevel, "log-level", opts.logLevel, "log level (debug, info, warn, error)")

	return cmd
}

// bindViper lets environment variables and an optional config file supply any
// flag the command line did not set.
func bindViper(cmd *cobra.Command, configFile string) error {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config %s: %w", configFile, err)
		}
	}

	var errs []error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed || !v.IsSet(f.Name) {
			return
		}
		var val string
		if f.Value.Type() == "stringSlice" {
			val = strings.Join(v.GetStringSlice(f.Name), ",")
		} else {
			val = v.GetString(f.Name)
		}
		if val == "" {
			return
		}
		if err := f.Value.Set(val); err != nil {
			errs = append(errs, fmt.Errorf("invalid value %q for %s: %w", val, f.Name, err))
		}
	})
	return errors.Join(errs...)
}

func writeOutput(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}
