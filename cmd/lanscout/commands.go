package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lanscout/internal/config"
	"lanscout/internal/export"
	"lanscout/internal/logging"
	"lanscout/internal/scan"
)

type cli struct {
	configPath string
	logLevel   string
	cfg        config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "lanscout",
		Short: "Discover devices on the local Wi-Fi subnet",
		Long: `Lanscout sweeps the local /24, probes a fixed set of service ports on
every address and reports the hosts that answered, with a best-effort
vendor and device type.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load()
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(c.scanCmd(), c.vendorCmd(), versionCmd())
	return root
}

func (c *cli) load() error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	if err := logging.Initialize(cfg.LogLevel); err != nil {
		return err
	}
	c.cfg = cfg
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "lanscout %s (commit: %s)\n", version, commit)
		},
	}
}

type scanFlags struct {
	jsonOut       bool
	output        string
	anyAttachment bool
	iface         string
	timeoutMs     int
	offline       bool
	quiet         bool
}

func (c *cli) scanCmd() *cobra.Command {
	f := &scanFlags{}
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the local subnet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runScan(cmd, f)
		},
	}
	cmd.Flags().BoolVar(&f.jsonOut, "json", false, "print the device list as JSON")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "also write a JSON snapshot to this file")
	cmd.Flags().BoolVar(&f.anyAttachment, "any-attachment", false, "scan over wired or cellular links too")
	cmd.Flags().StringVar(&f.iface, "interface", "", "network interface to scan from")
	cmd.Flags().IntVar(&f.timeoutMs, "timeout-ms", 0, "scan-wide time budget in milliseconds")
	cmd.Flags().BoolVar(&f.offline, "offline", false, "skip the remote vendor service")
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "do not report progress")
	return cmd
}

func (c *cli) runScan(cmd *cobra.Command, f *scanFlags) error {
	cfg := c.cfg
	if f.anyAttachment {
		cfg.Discovery.RequireWiFi = false
	}
	if f.iface != "" {
		cfg.Discovery.Interface = f.iface
	}
	if f.timeoutMs != 0 {
		cfg.Settings.ScanTimeoutMs = f.timeoutMs
	}
	if f.offline {
		cfg.Vendor.Remote = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	opts, err := sessionOptions(cfg)
	if err != nil {
		return err
	}
	if !f.quiet && !f.jsonOut {
		stderr := cmd.ErrOrStderr()
		opts.Progress = func(p scan.Progress) {
			fmt.Fprintf(stderr, "batch %d/%d: %d/%d hosts scanned, %d found\n",
				p.Batch, p.Batches, p.Scanned, p.Total, p.Found)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report := scan.NewSession(opts).Run(ctx)
	if len(report.Devices) == 0 {
		logging.Warn("scan produced no devices", zap.Bool("require_wifi", cfg.Discovery.RequireWiFi))
	}

	if f.output != "" {
		if err := writeSnapshot(f.output, report); err != nil {
			return err
		}
	}
	if f.jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report.Devices)
	}
	printDevices(cmd.OutOrStdout(), report.Devices)
	return nil
}

// sessionOptions wires a scan session from the configuration.
func sessionOptions(cfg config.Config) (scan.Options, error) {
	logger := logging.GetLogger()

	vo := cfg.VendorOptions()
	vo.Logger = logger
	vendors, err := scan.NewVendorResolver(vo)
	if err != nil {
		return scan.Options{}, err
	}

	opts := scan.Options{
		Settings:      scan.StaticSettings(cfg.ScanSettings()),
		Connectivity:  scan.InterfaceConnectivity{Interface: cfg.Discovery.Interface},
		Vendors:       vendors,
		AnyAttachment: !cfg.Discovery.RequireWiFi,
		Logger:        logger,
	}
	if cfg.Discovery.ARPLookup {
		opts.Neighbors = scan.ARPTable{}
	}
	if cfg.Discovery.MDNS {
		opts.Hostnames = scan.MDNSBrowser{Window: cfg.Discovery.MDNSWindow}
	}
	if cfg.Discovery.AirPlay {
		opts.Models = scan.AirPlayInspector{Adverts: scan.MDNSBrowser{Window: cfg.Discovery.MDNSWindow}}
	}
	if cfg.Discovery.SMBNames {
		opts.Names = scan.SMBNamer{Timeout: cfg.Discovery.SMBTimeout}
	}
	if cfg.Discovery.Ping {
		opts.Latency = scan.ICMPPinger{}
	}
	return opts, nil
}

func writeSnapshot(path string, report scan.Report) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	if err := export.Save(file, report); err != nil {
		_ = file.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	logging.Info("snapshot written", zap.String("path", path), zap.Int("devices", len(report.Devices)))
	return file.Close()
}

func printDevices(w io.Writer, devices []scan.Device) {
	if len(devices) == 0 {
		fmt.Fprintln(w, "No devices found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "IP\tMAC\tVENDOR\tMODEL\tPORTS\tHOSTNAME")
	for _, d := range devices {
		mac := d.MAC
		if d.SyntheticMAC {
			mac += "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", d.IP, mac, d.Vendor, d.Model, formatPorts(d.OpenPorts), d.Hostname)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "\n%d device(s); * marks a synthesized hardware address\n", len(devices))
}

func formatPorts(ports scan.PortSet) string {
	if len(ports) == 0 {
		return "-"
	}
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = fmt.Sprintf("%d/%s", p, scan.ServiceName(p))
	}
	return strings.Join(parts, ",")
}

func (c *cli) vendorCmd() *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "vendor <mac>",
		Short: "Look up the manufacturer of a hardware address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vo := c.cfg.VendorOptions()
			vo.Logger = logging.GetLogger()
			if offline {
				vo.Remote = false
			}
			resolver, err := scan.NewVendorResolver(vo)
			if err != nil {
				return err
			}
			vendor := resolver.Resolve(context.Background(), args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", vendor, scan.Classify(vendor, nil))
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "skip the remote vendor service")
	return cmd
}
