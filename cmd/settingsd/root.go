package main

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-settings/internal/config"
)

// app carries state shared by every subcommand once the root has loaded
// configuration.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	overrides  overrides

	cfg    config.Config
	logger *slog.Logger
}

// overrides are the flags that win over the config file and environment.
type overrides struct {
	addr        string
	driver      string
	dsn         string
	path        string
	definitions string
	watch       bool
	logLevel    string
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "settingsd",
		Short:         "Scoped settings service with optimistic versioning",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", os.Getenv("SETTINGS_CONFIG"), "path to a YAML config file")
	flags.StringVar(&a.overrides.definitions, "definitions", "", "YAML file with setting definitions")
	flags.StringVar(&a.overrides.logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(
		newServeCommand(a),
		newGetCommand(a),
		newSetCommand(a),
		newResetCommand(a),
		newSchemaCommand(a),
	)
	return root
}

func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath, os.LookupEnv)
	if err != nil {
		return err
	}
	a.apply(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = cfg.Log.NewLogger(a.stderr)
	slog.SetDefault(a.logger)
	return nil
}

func (a *app) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := func(name string) bool {
		flag := cmd.Flags().Lookup(name)
		return flag != nil && flag.Changed
	}
	if changed("addr") {
		cfg.HTTP.Addr = a.overrides.addr
	}
	if changed("storage") {
		cfg.Storage.Driver = strings.ToLower(a.overrides.driver)
	}
	if changed("dsn") {
		cfg.Storage.DSN = a.overrides.dsn
	}
	if changed("path") {
		cfg.Storage.Path = a.overrides.path
	}
	if changed("definitions") {
		cfg.Definitions.File = a.overrides.definitions
	}
	if changed("watch-definitions") {
		cfg.Definitions.Watch = a.overrides.watch
	}
	if changed("log-level") {
		cfg.Log.Level = a.overrides.logLevel
	}
}
