package scan

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
)

// AttachmentType is the kind of link the host is attached through.
type AttachmentType string

const (
	AttachmentWiFi     AttachmentType = "wifi"
	AttachmentEthernet AttachmentType = "ethernet"
	AttachmentCellular AttachmentType = "cellular"
	AttachmentNone     AttachmentType = "none"
)

// Attachment describes the current network attachment.
type Attachment struct {
	Type      AttachmentType
	Interface string
	IPv4      string
}

// Connectivity reports the current attachment and local address.
type Connectivity interface {
	Current(ctx context.Context) (Attachment, error)
}

// PermissionGate is asked once per session for the permission needed to read
// Wi-Fi details. A refusal does not abort the scan.
type PermissionGate interface {
	Request(ctx context.Context) bool
}

// AllowAll grants every permission request.
type AllowAll struct{}

// Request implements PermissionGate.
func (AllowAll) Request(context.Context) bool { return true }

// InterfaceConnectivity inspects the host's network interfaces. Wireless
// interfaces are preferred; on Linux they are recognised through sysfs.
type InterfaceConnectivity struct {
	// Interface pins the lookup to one interface name.
	Interface string
	// SysClassNet overrides /sys/class/net.
	SysClassNet string
}

// Current implements Connectivity.
func (c InterfaceConnectivity) Current(ctx context.Context) (Attachment, error) {
	if err := ctx.Err(); err != nil {
		return Attachment{}, err
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return Attachment{}, fmt.Errorf("list interfaces: %w", err)
	}

	var best Attachment
	for _, iface := range ifaces {
		if c.Interface != "" && iface.Name != c.Interface {
			continue
		}
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		ip := firstIPv4(iface)
		if ip == "" {
			continue
		}
		att := Attachment{Type: c.classify(iface.Name), Interface: iface.Name, IPv4: ip}
		if att.Type == AttachmentWiFi {
			return att, nil
		}
		if best.IPv4 == "" {
			best = att
		}
	}
	if best.IPv4 == "" {
		return Attachment{Type: AttachmentNone}, nil
	}
	return best, nil
}

func (c InterfaceConnectivity) classify(name string) AttachmentType {
	root := c.SysClassNet
	if root == "" {
		root = "/sys/class/net"
	}
	if _, err := os.Stat(filepath.Join(root, name, "wireless")); err == nil {
		return AttachmentWiFi
	}
	if _, err := os.Stat(filepath.Join(root, name, "phy80211")); err == nil {
		return AttachmentWiFi
	}
	switch {
	case strings.HasPrefix(name, "wl"), strings.HasPrefix(name, "wifi"), strings.HasPrefix(name, "ath"):
		return AttachmentWiFi
	case strings.HasPrefix(name, "rmnet"), strings.HasPrefix(name, "wwan"), strings.HasPrefix(name, "ccmni"):
		return AttachmentCellular
	default:
		return AttachmentEthernet
	}
}

func firstIPv4(iface net.Interface) string {
	addrs, err := iface.Addrs()
	if err != nil {
		return ""
	}
	for _, a := range addrs {
		if ipnet, ok := a.(*net.IPNet); ok {
			if ip4 := ipnet.IP.To4(); ip4 != nil && !ip4.IsLoopback() {
				return ip4.String()
			}
		}
	}
	return ""
}

// newNetworkContext validates an attachment and derives the session snapshot.
func newNetworkContext(att Attachment, requireWiFi bool, settings Settings) (NetworkContext, error) {
	if requireWiFi && att.Type != AttachmentWiFi {
		return NetworkContext{}, fmt.Errorf("%w: attachment is %q", ErrNotWiFi, att.Type)
	}
	if strings.TrimSpace(att.IPv4) == "" {
		return NetworkContext{}, ErrNoAddress
	}
	ip, err := parseDottedQuad(att.IPv4)
	if err != nil {
		return NetworkContext{}, err
	}
	return NetworkContext{
		Prefix:  fmt.Sprintf("%d.%d.%d", ip[0], ip[1], ip[2]),
		SelfIP:  ip.String(),
		Timeout: settings.Timeout(),
	}, nil
}

// parseDottedQuad accepts only a plain a.b.c.d IPv4 literal.
func parseDottedQuad(raw string) (net.IP, error) {
	raw = strings.TrimSpace(raw)
	if strings.Count(raw, ".") != 3 || strings.Contains(raw, ":") {
		return nil, fmt.Errorf("%w: %q", ErrMalformedAddress, raw)
	}
	ip := net.ParseIP(raw).To4()
	if ip == nil {
		return nil, fmt.Errorf("%w: %q", ErrMalformedAddress, raw)
	}
	return ip, nil
}

// parsePrefix validates a three-octet prefix such as 192.168.1.
func parsePrefix(prefix string) (string, error) {
	ip, err := parseDottedQuad(strings.TrimSuffix(prefix, ".") + ".0")
	if err != nil {
		return "", fmt.Errorf("invalid network prefix %q", prefix)
	}
	return fmt.Sprintf("%d.%d.%d", ip[0], ip[1], ip[2]), nil
}
