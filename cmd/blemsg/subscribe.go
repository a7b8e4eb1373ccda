package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sgrd/blemsg/internal/gatt"
	"github.com/sgrd/blemsg/session"
)

// subscribeCmd represents the subscribe command
var subscribeCmd = &cobra.Command{
	Use:   "subscribe <device-address> [uuid]",
	Short: "Stream characteristic notifications",
	Long: `Subscribes to a BLE characteristic and prints each notification as it
arrives. Frames are delivered in arrival order; a slow terminal delays
but never drops them.

Without a UUID the first notifying characteristic is used. The stream
runs until Ctrl+C or until --duration elapses.

Examples:
  # Stream heart-rate measurements
  blemsg subscribe AA:BB:CC:DD:EE:FF 2a37

  # Stream for 30 seconds, output as hex
  blemsg subscribe AA:BB:CC:DD:EE:FF 2a37 --duration 30s --hex`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSubscribe,
}

var (
	subscribeServiceUUID string
	subscribeHex         bool
	subscribeDuration    time.Duration
	subscribeTimeout     time.Duration
)

func init() {
	subscribeCmd.Flags().StringVar(&subscribeServiceUUID, "service", "", "Service UUID (narrows characteristic selection)")
	subscribeCmd.Flags().BoolVar(&subscribeHex, "hex", false, "Output as hex string; text by default")
	subscribeCmd.Flags().DurationVarP(&subscribeDuration, "duration", "d", 0, "Stop after this long (0 runs until Ctrl+C)")
	subscribeCmd.Flags().DurationVar(&subscribeTimeout, "timeout", 0, "Connection timeout (default from config)")
}

func runSubscribe(cmd *cobra.Command, args []string) error {
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
	if subscribeTimeout > 0 {
		timeout = subscribeTimeout
	}

	ctx, cancel := signalContext(context.Background())
	defer cancel()

	progress := NewProgressPrinter(
		fmt.Sprintf("Subscribing to %s", address), "Connecting", "Done")
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

	char, err := chooseCharacteristic(services, subscribeServiceUUID, charUUID,
		[]gatt.Capability{gatt.CapNotify, gatt.CapIndicate})
	if err != nil {
		return err
	}

	sub, err := sess.Subscribe(ctx, char)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	fmt.Printf("Subscribed to %s; press Ctrl+C to stop\n", describeCharacteristic(char))

	var deadline <-chan time.Time
	if subscribeDuration > 0 {
		deadline = time.After(subscribeDuration)
	}

	for {
		select {
		case n, open := <-sub.Updates():
			if !open {
				return sub.Err()
			}
			fmt.Printf("[%s] #%d %s\n",
				n.At.Format("15:04:05.000"), n.Seq, formatValue(n.Data, subscribeHex))
		case <-deadline:
			return nil
		case <-ctx.Done():
			// Ctrl+C ends the stream cleanly.
			return nil
		}
	}
}
