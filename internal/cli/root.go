// Package cli is the tokilityd command tree.
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tokility/tokilityd/internal/config"
	"github.com/tokility/tokilityd/internal/core/ledger"
	"github.com/tokility/tokilityd/internal/storage/keyvalue/pebbledb"
)

var (
	configFile string
	verbose    bool
	quiet      bool
)

var rootCmd = &cobra.Command{
	Use:   "tokilityd",
	Short: "tokilityd - non-custodial ticket marketplace daemon",
	Long: `tokilityd runs a non-custodial ticket resale marketplace: tickets are
unique escrow-controlled assets whose economics (primary price, resale
ceiling, fee split, resale window, gifting) are fixed at mint time and
enforced by the settlement substrate on every transfer.`,
	Version: "0.1.0-dev",
}

// Execute runs the command tree. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "conf", "", "configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "errors only")
}

func loadConfig() (*config.Config, error) {
	return config.Load(configFile)
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if verbose {
		level = zerolog.DebugLevel
	}
	if quiet {
		level = zerolog.ErrorLevel
	}

	var out = os.Stderr
	logger := zerolog.New(out).With().Timestamp().Logger().Level(level)
	if cfg.Log.Pretty {
		logger = logger.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly})
	}
	return logger
}

// openLedger opens the pebble-backed ledger named by the configuration.
// The caller owns the returned store and must close it.
func openLedger(cfg *config.Config) (*ledger.Ledger, *pebbledb.DB, error) {
	store, err := pebbledb.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, nil, err
	}
	l, err := ledger.Open(store, nil)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return l, store, nil
}
