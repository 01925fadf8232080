// Package cmd implements the cansim CLI using cobra.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cansim/cansim/internal/config"
)

const version = "0.1.0"

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "cansim",
	Short: "cansim — virtual CAN bus simulator",
	Long: "cansim simulates a shared CAN-style bus: attach nodes, broadcast frames,\n" +
		"and watch every delivery, scripted or interactive.",
}

// Execute runs the root command and exits on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = version

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(shellCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(checkCmd)
}

// setupLogging routes slog to stderr at debug or warn level. Trace lines go
// to stdout separately; slog carries only operational chatter.
func setupLogging(verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// scenarioPath resolves arg against the configured scenario directory when
// it is neither absolute nor present relative to the working directory.
func scenarioPath(cfg *config.Config, arg string) string {
	if filepath.IsAbs(arg) {
		return arg
	}
	if _, err := os.Stat(arg); err == nil {
		return arg
	}
	return filepath.Join(cfg.ScenarioDir, arg)
}
