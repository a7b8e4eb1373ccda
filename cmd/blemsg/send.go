package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sgrd/blemsg/internal/gatt"
	"github.com/sgrd/blemsg/pkg/config"
	"github.com/sgrd/blemsg/prober"
	"github.com/sgrd/blemsg/scanner"
	"github.com/sgrd/blemsg/session"
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send [device-address] <data>",
	Short: "Send a payload to a device",
	Long: `Connects to a BLE device and writes a payload to a writable
characteristic. Acknowledged writes are preferred; when the device only
offers write-without-response, that is used instead.

Without an address, nearby devices are discovered and probed for
connectability first; a single connectable device is picked
automatically, several prompt for a choice.

Examples:
  # Send a text message
  blemsg send AA:BB:CC:DD:EE:FF "hello"

  # Discover, probe, and pick the target interactively
  blemsg send "hello"

  # Send hex data (separators and 0x prefixes are tolerated)
  blemsg send AA:BB:CC:DD:EE:FF "01:02:0a" --hex

  # Target a specific characteristic
  blemsg send AA:BB:CC:DD:EE:FF "hello" --service ff30 --char ff31

  # Read the characteristic back after writing
  blemsg send AA:BB:CC:DD:EE:FF "hello" --read-back

  # Stay subscribed for replies for 15 seconds after sending
  blemsg send AA:BB:CC:DD:EE:FF "hello" --listen 15s`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSend,
}

var (
	sendServiceUUID string
	sendCharUUID    string
	sendHex         bool
	sendNoResponse  bool
	sendReadBack    bool
	sendListen      time.Duration
	sendTimeout     time.Duration
)

func init() {
	sendCmd.Flags().StringVar(&sendServiceUUID, "service", "", "Service UUID (narrows characteristic selection)")
	sendCmd.Flags().StringVar(&sendCharUUID, "char", "", "Characteristic UUID (skips automatic selection)")
	sendCmd.Flags().BoolVar(&sendHex, "hex", false, "Parse input as hex string (e.g., 'FF01'); text by default")
	sendCmd.Flags().BoolVar(&sendNoResponse, "without-response", false, "Write without response (no ACK)")
	sendCmd.Flags().BoolVar(&sendReadBack, "read-back", false, "Read the characteristic after writing")
	sendCmd.Flags().DurationVar(&sendListen, "listen", 0, "Keep listening for notifications after sending (0 uses listen_window from config)")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 0, "Connection timeout (default from config)")
}

// buildPayload wraps the raw argument per the --hex flag.
func buildPayload(data string, asHex bool) session.Payload {
	if asHex {
		return session.HexPayload(data)
	}
	return session.TextPayload(data)
}

func runSend(cmd *cobra.Command, args []string) error {
	address := ""
	dataArg := args[0]
	if len(args) == 2 {
		address = args[0]
		dataArg = args[1]
	}
	payload := buildPayload(dataArg, sendHex)

	// Reject malformed payloads before touching the radio.
	data, err := payload.Bytes()
	if err != nil {
		return err
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
	if sendTimeout > 0 {
		timeout = sendTimeout
	}

	ctx, cancel := signalContext(context.Background())
	defer cancel()

	adapter := newAdapter(logger)

	if address == "" {
		target, err := findSendTarget(ctx, adapter, cfg, logger)
		if err != nil {
			return err
		}
		address = target.Address
		fmt.Printf("Sending to %s (%s)\n", target.DisplayName(), target.Address)
	}

	progress := NewProgressPrinter(
		fmt.Sprintf("Sending %d byte(s) to %s", len(data), address),
		"Connecting", "Done")
	progress.Start()
	defer progress.Stop()

	sess := session.New(adapter, logger)
	if err := sess.Open(ctx, address, timeout); err != nil {
		return err
	}
	defer sess.Close()

	progress.Callback()("Resolving services")
	services, err := sess.Resolve(ctx)
	if err != nil {
		return err
	}

	prefs := []gatt.Capability{gatt.CapWrite, gatt.CapWriteNoResponse}
	if sendNoResponse {
		prefs = []gatt.Capability{gatt.CapWriteNoResponse, gatt.CapWrite}
	}
	progress.Stop()

	char, err := chooseCharacteristic(services, sendServiceUUID, sendCharUUID, prefs)
	if err != nil {
		return err
	}

	withResponse := char.Capabilities.Has(gatt.CapWrite) && !sendNoResponse
	if err := sess.Write(ctx, char, payload, withResponse); err != nil {
		return err
	}
	fmt.Printf("Sent %d byte(s) to %s\n", len(data), describeCharacteristic(char))

	if sendReadBack {
		value, err := sess.Read(ctx, char)
		if err != nil {
			return err
		}
		fmt.Printf("Read back: %s\n", formatValue(value, sendHex))
	}

	window := effectiveListenWindow(cmd.Flags().Changed("listen"), sendListen, cfg.ListenWindow)
	if window > 0 {
		if err := listenForReplies(ctx, sess, services, window); err != nil {
			return err
		}
	}
	return nil
}

// findSendTarget runs the address-less send flow: discover nearby
// devices, probe which accept connections, then pick one.
func findSendTarget(ctx context.Context, adapter gatt.Adapter, cfg *config.Config, logger *logrus.Logger) (gatt.Device, error) {
	registry := scanner.New(adapter, logger)
	opts := scanner.DefaultDiscoverOptions()
	opts.Window = cfg.ScanWindow

	scanProgress := NewCountdownProgressPrinter("Scanning for BLE devices", "Scanning", opts.Window, "Processing results")
	scanProgress.Start()
	devices, err := registry.Discover(ctx, opts, scanProgress.Callback())
	scanProgress.Stop()
	if err != nil && !errors.Is(err, context.Canceled) {
		return gatt.Device{}, err
	}
	if len(devices) == 0 {
		return gatt.Device{}, fmt.Errorf("no devices discovered")
	}

	probeProgress := NewProgressPrinter(
		fmt.Sprintf("Probing %d device(s)", len(devices)), "Connecting")
	probeProgress.Start()
	connectable, _ := prober.Probe(ctx, adapter, devices, cfg.ProbeTimeout, logger)
	probeProgress.Stop()

	return chooseDevice(connectable)
}

// effectiveListenWindow resolves --listen against the configured default:
// an unset flag disables listening, an explicit zero selects the config's
// listen_window, anything else is taken as given.
func effectiveListenWindow(changed bool, flagValue, configured time.Duration) time.Duration {
	if !changed {
		return 0
	}
	if flagValue > 0 {
		return flagValue
	}
	return configured
}

// listenForReplies subscribes to the first notifying characteristic and
// prints frames until the window closes.
func listenForReplies(ctx context.Context, sess *session.Session, services []*gatt.Service, window time.Duration) error {
	char, _, err := session.SelectWithFallback(services,
		[]gatt.Capability{gatt.CapNotify, gatt.CapIndicate})
	if err != nil {
		return err
	}

	sub, err := sess.Subscribe(ctx, char)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	fmt.Printf("Listening on %s for %s...\n", describeCharacteristic(char), window)

	deadline := time.After(window)
	for {
		select {
		case n, open := <-sub.Updates():
			if !open {
				if err := sub.Err(); err != nil {
					return err
				}
				return nil
			}
			fmt.Printf("[%s] %s\n", n.At.Format("15:04:05.000"), formatValue(n.Data, sendHex))
		case <-deadline:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// formatValue renders a value as hex or as text, mirroring the input
// encoding.
func formatValue(data []byte, asHex bool) string {
	if asHex {
		return hex.EncodeToString(data)
	}
	return string(data)
}
