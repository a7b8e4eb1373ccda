package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sgrd/blemsg/prober"
	"github.com/sgrd/blemsg/scanner"
)

// probeCmd represents the probe command
var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Find devices that accept connections",
	Long: `Scans for BLE devices, then attempts a short connection to each one
to find out which are actually connectable. Many devices advertise
without accepting central connections; probing separates the two.

Each device is probed independently; one unreachable device never
blocks the rest.`,
	RunE: runProbe,
}

var (
	probeScanDuration time.Duration
	probeTimeout      time.Duration
	probeAllowList    []string
	probeBlockList    []string
	probeAll          bool
)

func init() {
	probeCmd.Flags().DurationVarP(&probeScanDuration, "duration", "d", 0, "Scan duration before probing (default from config)")
	probeCmd.Flags().DurationVar(&probeTimeout, "timeout", 0, "Per-device connection timeout (default from config)")
	probeCmd.Flags().StringSliceVar(&probeAllowList, "allow", nil, "Only probe devices with these addresses")
	probeCmd.Flags().StringSliceVar(&probeBlockList, "block", nil, "Skip devices with these addresses")
	probeCmd.Flags().BoolVarP(&probeAll, "all", "a", false, "Show failed devices too, with the failure reason")
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	adapter := newAdapter(logger)
	registry := scanner.New(adapter, logger)

	opts := scanner.DefaultDiscoverOptions()
	opts.Window = cfg.ScanWindow
	if probeScanDuration > 0 {
		opts.Window = probeScanDuration
	}
	opts.AllowList = probeAllowList
	opts.BlockList = probeBlockList

	timeout := cfg.ProbeTimeout
	if probeTimeout > 0 {
		timeout = probeTimeout
	}

	ctx, cancel := signalContext(context.Background())
	defer cancel()

	scanProgress := NewCountdownProgressPrinter("Scanning for BLE devices", "Scanning", opts.Window, "Processing results")
	scanProgress.Start()
	devices, err := registry.Discover(ctx, opts, scanProgress.Callback())
	scanProgress.Stop()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if len(devices) == 0 {
		fmt.Println("No devices discovered")
		return nil
	}

	probeProgress := NewProgressPrinter(
		fmt.Sprintf("Probing %d device(s)", len(devices)), "Connecting")
	probeProgress.Start()
	connectable, results := prober.Probe(ctx, adapter, devices, timeout, logger)
	probeProgress.Stop()

	if probeAll {
		return displayProbeReport(os.Stdout, results)
	}
	if len(connectable) == 0 {
		fmt.Println("No connectable devices found")
		return nil
	}
	return displayDevicesTable(os.Stdout, connectable)
}

var (
	okMark   = color.New(color.FgGreen)
	failMark = color.New(color.FgRed)
)

func displayProbeReport(out io.Writer, results []prober.Result) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	tableHeader.Fprintln(w, "NAME\tADDRESS\tCONNECTABLE\tDETAIL")
	fmt.Fprintln(w, strings.Repeat("-", 80))

	for _, res := range results {
		verdict := okMark.Sprint("yes")
		detail := ""
		if res.Err != nil {
			verdict = failMark.Sprint("no")
			detail = res.Err.Error()
			if len(detail) > 50 {
				detail = detail[:47] + "..."
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			res.Device.DisplayName(), res.Device.Address, verdict, detail)
	}

	return w.Flush()
}
