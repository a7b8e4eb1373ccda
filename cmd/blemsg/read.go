package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sgrd/blemsg/internal/gatt"
	"github.com/sgrd/blemsg/session"
)

// readCmd represents the read command
var readCmd = &cobra.Command{
	Use:   "read <device-address> [uuid]",
	Short: "Read a characteristic value",
	Long: `Connects to a BLE device and reads a characteristic value.

Without a UUID the first readable characteristic is used; pass the UUID
(optionally with --service) to target a specific one.

Examples:
  # Read the first readable characteristic
  blemsg read AA:BB:CC:DD:EE:FF

  # Read the battery level
  blemsg read AA:BB:CC:DD:EE:FF 2a19

  # Output as hex
  blemsg read AA:BB:CC:DD:EE:FF 2a19 --hex`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runRead,
}

var (
	readServiceUUID string
	readHex         bool
	readTimeout     time.Duration
)

func init() {
	readCmd.Flags().StringVar(&readServiceUUID, "service", "", "Service UUID (narrows characteristic selection)")
	readCmd.Flags().BoolVar(&readHex, "hex", false, "Output as hex string; text by default")
	readCmd.Flags().DurationVar(&readTimeout, "timeout", 0, "Connection timeout (default from config)")
}

func runRead(cmd *cobra.Command, args []string) error {
	address := args[0]
	charUUID := ""
	if len(args) == 2 {
		charUUID = args[1]
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	timeout := cfg.ConnectTimeout
	if readTimeout > 0 {
		timeout = readTimeout
	}

	ctx, cancel := signalContext(context.Background())
	defer cancel()

	progress := NewProgressPrinter(
		fmt.Sprintf("Reading from %s", address), "Connecting", "Done")
	progress.Start()
	defer progress.Stop()

	sess := session.New(newAdapter(logger), logger)
	if err := sess.Open(ctx, address, timeout); err != nil {
		return err
	}
	defer sess.Close()

	progress.Callback()("Resolving services")
	services, err := sess.Resolve(ctx)
	if err != nil {
		return err
	}
	progress.Stop()

	char, err := chooseCharacteristic(services, readServiceUUID, charUUID,
		[]gatt.Capability{gatt.CapRead})
	if err != nil {
		return err
	}

	value, err := sess.Read(ctx, char)
	if err != nil {
		return err
	}

	fmt.Printf("%s: %s\n", describeCharacteristic(char), formatValue(value, readHex))
	return nil
}
