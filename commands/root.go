package commands

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"nester/config"
	"nester/coordinator"
	"nester/logging"
	"nester/query"
	"nester/store"
)

type app struct {
	configPath string
	logLevel   string
	logFormat  string

	conf *config.Config
	log  zerolog.Logger
}

func Execute() error {
	return newRootCommand().Execute()
}

func newRootCommand() *cobra.Command {
	a := &app{}

	com := &cobra.Command{
		Use:           "nester",
		Short:         "Collects scan results pushed by harvesters",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			conf, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				conf.Log.Level = a.logLevel
			}
			if cmd.Flags().Changed("log-format") {
				conf.Log.Format = a.logFormat
			}
			a.conf = conf
			return nil
		},
	}

	fl := com.PersistentFlags()
	cfgFlags := pflag.NewFlagSet("Configuration", pflag.ExitOnError)
	cfgFlags.StringVar(&a.configPath, "config", "", "Path to YAML configuration file")
	cfgFlags.StringVar(&a.logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	cfgFlags.StringVar(&a.logFormat, "log-format", "console", "Log format (console, json)")
	fl.AddFlagSet(cfgFlags)

	com.AddCommand(
		serveCommand(a),
		pushCommand(a),
		resultsCommand(a),
	)
	return com
}

// setupLogger builds the logger once flags have been applied. When quiet
// is set and no log file is configured, logs are dropped so they do not
// tear through a full-screen display.
func (a *app) setupLogger(quiet bool) (func(), error) {
	var out io.Writer = os.Stderr
	closer := func() {}

	switch {
	case a.conf.Log.File != "":
		f, err := os.OpenFile(a.conf.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open log file %s", a.conf.Log.File)
		}
		out = f
		closer = func() { _ = f.Close() }
	case quiet:
		out = io.Discard
	}

	log, err := logging.New(a.conf.Log, out)
	if err != nil {
		closer()
		return nil, err
	}
	a.log = log
	return closer, nil
}

// openCollector opens the store, makes sure the table exists and wires the
// query engine and coordinator over it.
func (a *app) openCollector(cmd *cobra.Command) (*store.Store, *coordinator.Coordinator, error) {
	st, err := store.Open(a.conf.Database, a.log)
	if err != nil {
		return nil, nil, err
	}
	if err := st.EnsureSchema(cmd.Context()); err != nil {
		_ = st.Close()
		return nil, nil, errors.Wrap(err, "failed to initialize schema")
	}

	engine, err := query.New(st, query.WithCache(a.conf.CacheSize(), a.conf.Cache.TTL))
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	coord, err := coordinator.New(st, engine, a.log)
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	return st, coord, nil
}
