// Package cmd implements the dap4dump command tree.
package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/robert-malhotra/go-dap4/internal/config"
)

// app carries state shared by the subcommands of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	log     *logrus.Logger
}

const longRootDescription = `dap4dump opens datasets through the first backend that claims them
and prints their DMR schema, their data and the DAP4 checksums.

Settings come from an optional config file, DAP4_* environment variables
and flags.`

// NewRootCommand returns the dap4dump command with every subcommand.
func NewRootCommand() *cobra.Command {
	a := &app{v: config.New()}
	root := &cobra.Command{
		Use:           "dap4dump",
		Short:         "Dump DAP4 datasets",
		Long:          longRootDescription,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (YAML, TOML or JSON)")
	flags.String(config.KeyLogLevel, "info", "log level")
	flags.String(config.KeyLogFormat, "text", "log format, text or json")
	flags.String(config.KeyChecksum, "dap", "checksum mode: null, none, ignore, dmr, dap or all")
	flags.String(config.KeyAlgorithm, "crc32", "checksum algorithm: crc32, fletcher32 or lookup3")
	flags.StringSlice(config.KeyBackends, nil, "backends in match order (default mem,netcdf,nc4)")
	flags.StringSlice(config.KeyFixtures, nil, "YAML fixture files for the mem backend")
	flags.Int(config.KeyConcurrency, 4, "locations dumped at once")
	for _, key := range []string{
		config.KeyLogLevel, config.KeyLogFormat, config.KeyChecksum, config.KeyAlgorithm,
		config.KeyBackends, config.KeyFixtures, config.KeyConcurrency,
	} {
		if err := a.v.BindPFlag(key, flags.Lookup(key)); err != nil {
			panic(err)
		}
	}

	root.AddCommand(newDumpCommand(a), newLsCommand(a), newBackendsCommand(a))
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	log, err := cfg.Logger()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = log
	return nil
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		logrus.Errorf("dap4dump: %v", err)
		os.Exit(1)
	}
}
