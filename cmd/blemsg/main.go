package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sgrd/blemsg/internal/gatt"
	"github.com/sgrd/blemsg/internal/goble"
	"github.com/sgrd/blemsg/pkg/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "blemsg",
	Short: "Send messages to BLE devices",
	Long: `Bluetooth Low Energy (BLE) messaging tool:

- Scan and discover nearby BLE devices
- Probe which discovered devices actually accept connections
- Send text, hex, or raw payloads to writable characteristics
- Read characteristic values back
- Listen for notifications

Device names are resolved against the Bluetooth SIG assigned numbers
where known.`,
	Version: formatVersion(version),
}

// newAdapter builds the radio adapter; swapped out in command tests.
var newAdapter = func(logger *logrus.Logger) gatt.Adapter {
	return goble.New(logger)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}

var configPath string

// loadConfig reads the config file named by --config, or the default
// location when the flag is unset.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	return config.Load(path)
}

func init() {
	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(subscribeCmd)

	// Global flags
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.blemsg.yaml)")

	// Add -v as a short flag for --version
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}
