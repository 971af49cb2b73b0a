package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lanscout/internal/scan"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRunWithoutArgsShowsUsage(t *testing.T) {
	out, err := execute(t)
	require.NoError(t, err)
	assert.Contains(t, out, "Usage:")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "lanscout "), out)
}

func TestRunUnknownCommand(t *testing.T) {
	require.Error(t, run([]string{"unknown"}))
}

func TestVendorCommandOffline(t *testing.T) {
	out, err := execute(t, "vendor", "--offline", "00:0C:42:11:22:33")
	require.NoError(t, err)
	assert.Equal(t, "Mikrotik\tRouterBOARD\n", out)
}

func TestVendorCommandRequiresAddress(t *testing.T) {
	_, err := execute(t, "vendor")
	require.Error(t, err)
}

func TestScanRejectsInvalidTimeout(t *testing.T) {
	_, err := execute(t, "scan", "--timeout-ms", "10")
	require.Error(t, err)
}

func TestBadConfigFileIsReported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("settings: [\n"), 0o600))
	_, err := execute(t, "--config", path, "vendor", "--offline", "00:0C:42:00:00:01")
	require.Error(t, err)
}

func TestSessionOptionsHonoursDiscoveryToggles(t *testing.T) {
	cli := &cli{}
	require.NoError(t, cli.load())
	cfg := cli.cfg
	cfg.Discovery.RequireWiFi = false
	cfg.Discovery.ARPLookup = true
	cfg.Discovery.MDNS = true
	cfg.Discovery.Ping = true
	cfg.Discovery.SMBNames = true
	cfg.Discovery.AirPlay = true

	opts, err := sessionOptions(cfg)
	require.NoError(t, err)
	assert.True(t, opts.AnyAttachment)
	assert.NotNil(t, opts.Neighbors)
	assert.NotNil(t, opts.Hostnames)
	assert.NotNil(t, opts.Latency)
	assert.Equal(t, scan.SMBNamer{Timeout: 3 * time.Second}, opts.Names)
	assert.Equal(t, scan.AirPlayInspector{Adverts: scan.MDNSBrowser{Window: 2 * time.Second}}, opts.Models)
	assert.NotNil(t, opts.Vendors)
}

func TestPrintDevices(t *testing.T) {
	var buf bytes.Buffer
	printDevices(&buf, []scan.Device{{
		IP:           "192.168.1.50",
		MAC:          "02:00:00:00:00:01",
		SyntheticMAC: true,
		Vendor:       scan.UnknownVendor,
		Model:        "Linux/SSH device",
		OpenPorts:    scan.NewPortSet(22),
	}})
	out := buf.String()
	assert.Contains(t, out, "192.168.1.50")
	assert.Contains(t, out, "02:00:00:00:00:01*")
	assert.Contains(t, out, "22/SSH")
	assert.Contains(t, out, "1 device(s)")

	buf.Reset()
	printDevices(&buf, nil)
	assert.Equal(t, "No devices found.\n", buf.String())
}
