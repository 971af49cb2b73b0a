package scan

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

const (
	selfMAC    = "00:00:00:00:00:01"
	gatewayMAC = "00:00:00:00:00:00"

	defaultARPPath = "/proc/net/arp"
)

// MACSource fabricates a hardware address for a host whose real address is
// unknown.
type MACSource func() string

// RandomMAC returns a random locally administered unicast address. Such
// addresses are never assigned to a vendor, so a fabricated address cannot be
// mistaken for a real manufacturer.
func RandomMAC() string {
	var b [6]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "02:00:00:00:00:00"
	}
	b[0] = (b[0] | 0x02) &^ 0x01
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", b[0], b[1], b[2], b[3], b[4], b[5])
}

// NeighborTable maps an IPv4 address to the hardware address the operating
// system learned for it. An empty string means unknown.
type NeighborTable interface {
	Lookup(ctx context.Context, ip string) string
}

// ARPTable reads the kernel neighbour cache, falling back to the arp command.
type ARPTable struct {
	// Path overrides /proc/net/arp.
	Path string
	// NoCommand disables the arp command fallback.
	NoCommand bool
}

// Lookup implements NeighborTable.
func (t ARPTable) Lookup(ctx context.Context, ip string) string {
	path := t.Path
	if path == "" {
		path = defaultARPPath
	}
	if data, err := os.ReadFile(path); err == nil {
		if mac := parseProcARP(data, ip); mac != "" {
			return mac
		}
	}
	if t.NoCommand {
		return ""
	}
	return lookupMACViaARPCommand(ctx, ip)
}

func parseProcARP(data []byte, host string) string {
	lines := strings.Split(string(data), "\n")
	if len(lines) < 2 {
		return ""
	}
	for _, line := range lines[1:] {
		fields := whitespacePattern.Split(strings.TrimSpace(line), -1)
		if len(fields) < 4 {
			continue
		}
		if fields[0] == host {
			if mac := normaliseMAC(fields[3]); mac != "" && mac != gatewayMAC {
				return mac
			}
		}
	}
	return ""
}

func lookupMACViaARPCommand(ctx context.Context, host string) string {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "arp", "-a", host)
	} else {
		cmd = exec.CommandContext(ctx, "arp", "-n", host)
	}
	output, err := cmd.Output()
	if err != nil {
		return ""
	}
	mac := normaliseMAC(macLinePattern.FindString(string(output)))
	if mac == gatewayMAC {
		return ""
	}
	return mac
}
