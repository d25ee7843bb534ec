// Command corestore runs the storage engine: serve starts the metrics
// exporter and the buffer pool inspector, bench drives concurrent
// transactions against a table to exercise locking, deadlock detection, and
// eviction.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"corestore/pkg/config"
)

var (
	flagConfig      string
	flagDataDir     string
	flagCapacity    int
	flagLogLevel    string
	flagMetricsAddr string
)

func addConfigFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&flagConfig, "config", "c", "", "path to an HCL config file")
	fs.StringVar(&flagDataDir, "data-dir", "", "directory holding table files")
	fs.IntVar(&flagCapacity, "capacity", 0, "buffer pool capacity in pages")
	fs.StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")
	fs.StringVar(&flagMetricsAddr, "metrics-addr", "", "Prometheus exporter listen address")
}

// loadConfig reads the config file and lets explicitly set flags win.
func loadConfig(fs *pflag.FlagSet) (config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return cfg, err
	}
	if fs.Changed("data-dir") {
		cfg.DataDir = flagDataDir
	}
	if fs.Changed("capacity") {
		cfg.Capacity = flagCapacity
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}
	if fs.Changed("metrics-addr") {
		cfg.MetricsAddr = flagMetricsAddr
	}
	return cfg, cfg.Validate()
}

func main() {
	root := &cobra.Command{
		Use:           "corestore",
		Short:         "A small transactional storage engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	addConfigFlags(root.PersistentFlags())

	root.AddCommand(newServeCmd())
	root.AddCommand(newBenchCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "corestore:", err)
		os.Exit(1)
	}
}
