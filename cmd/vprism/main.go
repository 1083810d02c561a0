// Command vprism is the CLI surface over the core: data fetch, symbol
// resolution, drift reporting, and reconciliation runs (spec §6).
package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/wxxb789/vprism-core/internal/config"
)

const appName = "vprism"

// globalFlags holds the output-rendering and persistence flags shared by
// every subcommand.
type globalFlags struct {
	format   string
	output   string
	logLevel string
	noColor  bool

	configPath          string
	storageDSN          string
	storageThreads      int
	storageQueryTimeout time.Duration

	redisAddr string
	redisDB   int
	redisTTL  time.Duration

	cfg config.Config
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           appName,
		Short:         "Unified market-data access platform",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if flags.noColor {
				log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen, NoColor: true})
			}
			if err := applyLogLevel(flags.logLevel); err != nil {
				return err
			}
			return flags.loadConfig(cmd)
		},
	}
	rootCmd.PersistentFlags().StringVar(&flags.format, "format", "table", "output format: table|jsonl")
	rootCmd.PersistentFlags().StringVar(&flags.output, "output", "", "output file path (stdout if empty)")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "log level: debug|info|warn|error")
	rootCmd.PersistentFlags().BoolVar(&flags.noColor, "no-color", false, "disable colored console output")
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "YAML config file; its storage section seeds the flags below")
	rootCmd.PersistentFlags().StringVar(&flags.storageDSN, "storage-dsn", "", "embedded DuckDB DSN; empty disables drift/reconcile/symbol persistence")
	rootCmd.PersistentFlags().IntVar(&flags.storageThreads, "storage-threads", 1, "embedded store PRAGMA threads")
	rootCmd.PersistentFlags().DurationVar(&flags.storageQueryTimeout, "storage-query-timeout", 30*time.Second, "embedded store per-query timeout")
	rootCmd.PersistentFlags().StringVar(&flags.redisAddr, "redis-addr", "", "redis address for the cache slow path; empty disables it")
	rootCmd.PersistentFlags().IntVar(&flags.redisDB, "redis-db", 0, "redis logical DB index")
	rootCmd.PersistentFlags().DurationVar(&flags.redisTTL, "redis-ttl", 5*time.Minute, "fallback TTL for cache slow-path entries")

	rootCmd.AddCommand(newDataCmd(flags))
	rootCmd.AddCommand(newSymbolCmd(flags))
	rootCmd.AddCommand(newDriftCmd(flags))
	rootCmd.AddCommand(newReconcileCmd(flags))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(emitError(err))
	}
}

func applyLogLevel(level string) error {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(parsed)
	return nil
}

// loadConfig reads --config, if given, and uses its storage section as the
// default DSN/threads/timeout for any of those three flags the invocation
// didn't set explicitly, making internal/config's StorageSpec reachable
// from the running CLI rather than just its own package tests.
func (f *globalFlags) loadConfig(cmd *cobra.Command) error {
	if f.configPath == "" {
		f.cfg = config.Default()
		return nil
	}
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	f.cfg = cfg

	flags := cmd.Flags()
	if !flags.Changed("storage-dsn") && cfg.Storage.DSN != "" {
		f.storageDSN = cfg.Storage.DSN
	}
	if !flags.Changed("storage-threads") && cfg.Storage.Threads != 0 {
		f.storageThreads = cfg.Storage.Threads
	}
	if !flags.Changed("storage-query-timeout") && cfg.Storage.QueryTimeout != 0 {
		f.storageQueryTimeout = cfg.Storage.QueryTimeout
	}
	return nil
}
