package cli

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/warp/stock-engine/config"
)

// RootOptions holds global flags for all commands. Flags that were set on
// the command line override the environment.
type RootOptions struct {
	Config config.Config
	Log    *logrus.Logger

	driver      string
	dbPath      string
	databaseURL string
	redisAddr   string
	logLevel    string
	logFormat   string

	// env overrides config.Load in tests.
	env func(string) (string, bool)
}

// NewRootCommand creates the root command for the stock engine CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stock",
		Short: "Warehouse stock engine",
		Long: `Warehouse stock engine: reference data, receipts, shipments and
the balance ledger behind them.

Settings come from the environment (and .env); flags override them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.driver, "driver", "", "database driver (sqlite|postgres|memory)")
	cmd.PersistentFlags().StringVar(&opts.dbPath, "db", "", "SQLite database path, \":memory:\" for in-memory")
	cmd.PersistentFlags().StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection string")
	cmd.PersistentFlags().StringVar(&opts.redisAddr, "redis", "", "Redis address for cross-instance balance locks")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format (json|text)")

	// Add subcommands
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewReconcileCommand(opts))

	return cmd
}

// load resolves the configuration and builds the logger.
func (o *RootOptions) load(cmd *cobra.Command) error {
	var (
		cfg config.Config
		err error
	)
	if o.env != nil {
		cfg, err = config.FromEnv(o.env)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	for name, dst := range map[string]*string{
		"driver":       &cfg.DBDriver,
		"db":           &cfg.DBPath,
		"database-url": &cfg.DatabaseURL,
		"redis":        &cfg.RedisAddr,
		"log-level":    &cfg.LogLevel,
		"log-format":   &cfg.LogFormat,
	} {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	if flags.Lookup("port") != nil && flags.Changed("port") {
		cfg.Port, _ = flags.GetInt("port")
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	o.Config = cfg
	o.Log = config.NewLogger(cfg.LogLevel, cfg.LogFormat)
	o.Log.SetOutput(cmd.ErrOrStderr())
	return nil
}
