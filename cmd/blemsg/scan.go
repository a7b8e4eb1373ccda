package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sgrd/blemsg/internal/bledb"
	"github.com/sgrd/blemsg/internal/gatt"
	"github.com/sgrd/blemsg/scanner"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for BLE devices",
	Long: `Scan for and display Bluetooth Low Energy devices in the vicinity.

Discovered devices are listed with their names, addresses, RSSI values,
and advertised services. Named devices sort first; unnamed ones go last.
Known service and manufacturer identifiers are resolved to their
assigned names.`,
	RunE: runScan,
}

var (
	scanDuration  time.Duration
	scanFormat    string
	scanServices  []string
	scanAllowList []string
	scanBlockList []string
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 0, "Scan duration (default from config)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "", "Output format (table, json)")
	scanCmd.Flags().StringSliceVarP(&scanServices, "services", "s", nil, "Filter by advertised service UUIDs")
	scanCmd.Flags().StringSliceVar(&scanAllowList, "allow", nil, "Only show devices with these addresses")
	scanCmd.Flags().StringSliceVar(&scanBlockList, "block", nil, "Hide devices with these addresses")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	format := cfg.OutputFormat
	if scanFormat != "" {
		format = scanFormat
	}
	switch format {
	case "table", "json":
	default:
		return fmt.Errorf("invalid format '%s': must be table or json", format)
	}

	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	opts := scanner.DefaultDiscoverOptions()
	opts.Window = cfg.ScanWindow
	if scanDuration > 0 {
		opts.Window = scanDuration
	}
	opts.ServiceUUIDs = scanServices
	opts.AllowList = scanAllowList
	opts.BlockList = scanBlockList

	registry := scanner.New(newAdapter(logger), logger)

	ctx, cancel := signalContext(context.Background())
	defer cancel()

	progress := NewCountdownProgressPrinter("Scanning for BLE devices", "Scanning", opts.Window, "Processing results")
	progress.Start()
	defer progress.Stop()

	devices, err := registry.Discover(ctx, opts, progress.Callback())
	progress.Stop()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if format == "json" {
		return displayDevicesJSON(os.Stdout, devices)
	}
	return displayDevicesTable(os.Stdout, devices)
}

// signalContext cancels the returned context on Ctrl+C or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Println("\nCtrl+C pressed, cancelling...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

var tableHeader = color.New(color.Bold)

func displayDevicesTable(out io.Writer, devices []gatt.Device) error {
	if len(devices) == 0 {
		fmt.Fprintln(out, "No devices discovered")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	tableHeader.Fprintln(w, "NAME\tADDRESS\tRSSI\tSERVICES\tLAST SEEN")
	fmt.Fprintln(w, strings.Repeat("-", 80))

	for _, dev := range devices {
		name := dev.DisplayName()
		if len(name) > 20 {
			name = name[:17] + "..."
		}

		services := describeServices(dev)
		if len(services) > 40 {
			services = services[:37] + "..."
		}

		lastSeen := time.Since(dev.LastSeen).Truncate(time.Second)

		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\t%s ago\n",
			name, dev.Address, dev.RSSI(), services, lastSeen)
	}

	return w.Flush()
}

// describeServices renders the advertised service UUIDs, substituting
// assigned names where known.
func describeServices(dev gatt.Device) string {
	if dev.Adv == nil {
		return ""
	}
	parts := make([]string, 0, len(dev.Adv.ServiceUUIDs))
	for _, uuid := range dev.Adv.ServiceUUIDs {
		if name := bledb.LookupService(uuid); name != "" {
			parts = append(parts, name)
		} else {
			parts = append(parts, uuid)
		}
	}
	return strings.Join(parts, ",")
}

type deviceJSON struct {
	Name         string   `json:"name,omitempty"`
	Address      string   `json:"address"`
	RSSI         int      `json:"rssi"`
	Connectable  bool     `json:"connectable"`
	ServiceUUIDs []string `json:"service_uuids,omitempty"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	LastSeen     string   `json:"last_seen"`
}

func displayDevicesJSON(out io.Writer, devices []gatt.Device) error {
	list := make([]deviceJSON, 0, len(devices))
	for _, dev := range devices {
		entry := deviceJSON{
			Name:     dev.Name,
			Address:  dev.Address,
			RSSI:     dev.RSSI(),
			LastSeen: dev.LastSeen.Format(time.RFC3339),
		}
		if dev.Adv != nil {
			entry.Connectable = dev.Adv.Connectable
			entry.ServiceUUIDs = dev.Adv.ServiceUUIDs
			for company := range dev.Adv.ManufacturerData {
				if name := bledb.LookupCompany(company); name != "" {
					entry.Manufacturer = name
					break
				}
			}
		}
		list = append(list, entry)
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(list)
}
