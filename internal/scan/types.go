package scan

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// UnknownVendor is reported when no lookup path knows the hardware address.
	UnknownVendor = "Unknown"
	// UnknownModel is reported when neither the vendor nor the open ports suggest a model.
	UnknownModel = "Unknown"

	// MinScanTimeoutMs and MaxScanTimeoutMs bound the scan-wide time budget.
	MinScanTimeoutMs = 1000
	MaxScanTimeoutMs = 30000

	// DefaultNetworkPrefix and DefaultScanTimeoutMs seed fresh settings.
	DefaultNetworkPrefix = "192.168.0"
	DefaultScanTimeoutMs = 5000
)

// Status describes whether a device answered during the session.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// Role tells how a device entered the result list.
type Role string

const (
	RoleSelf    Role = "self"
	RoleGateway Role = "gateway"
	RoleHost    Role = "host"
)

// PortSet is an ascending set of TCP ports. It serialises as comma separated
// text ("22,80") so it round-trips through JSON as a plain string.
type PortSet []int

// NewPortSet returns the sorted, de-duplicated set of the given ports.
func NewPortSet(ports ...int) PortSet {
	if len(ports) == 0 {
		return nil
	}
	out := make(PortSet, 0, len(ports))
	seen := make(map[int]struct{}, len(ports))
	for _, p := range ports {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

// Contains reports whether port is in the set.
func (p PortSet) Contains(port int) bool {
	for _, v := range p {
		if v == port {
			return true
		}
	}
	return false
}

func (p PortSet) String() string {
	parts := make([]string, len(p))
	for i, v := range p {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

// MarshalText implements encoding.TextMarshaler.
func (p PortSet) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *PortSet) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*p = nil
		return nil
	}
	fields := strings.Split(raw, ",")
	ports := make([]int, 0, len(fields))
	for _, f := range fields {
		port, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("invalid port %q", f)
		}
		ports = append(ports, port)
	}
	*p = NewPortSet(ports...)
	return nil
}

// Device is one entry of a scan result list.
type Device struct {
	ID           string  `json:"id"`
	IP           string  `json:"ip"`
	MAC          string  `json:"mac"`
	SyntheticMAC bool    `json:"syntheticMac"`
	Vendor       string  `json:"vendor"`
	Model        string  `json:"model,omitempty"`
	Status       Status  `json:"status"`
	OpenPorts    PortSet `json:"openPorts"`
	Role         Role    `json:"role"`
	Hostname     string  `json:"hostname,omitempty"`
	LatencyMs    float64 `json:"latencyMs,omitempty"`
}

// ProbeResult is the outcome of probing every catalog port of one host.
// Alive is true exactly when at least one port was reported open.
type ProbeResult struct {
	Alive     bool    `json:"alive"`
	OpenPorts PortSet `json:"openPorts"`
}

func newProbeResult(open PortSet) ProbeResult {
	return ProbeResult{Alive: len(open) > 0, OpenPorts: open}
}

// NetworkContext is the per-session snapshot of the local attachment. It is
// captured once and passed by value; nothing mutates it during a scan.
type NetworkContext struct {
	Prefix  string        `json:"prefix"`
	SelfIP  string        `json:"selfIp"`
	Timeout time.Duration `json:"-"`
}

// Host returns the address of suffix inside the context's /24.
func (n NetworkContext) Host(suffix int) string {
	return n.Prefix + "." + strconv.Itoa(suffix)
}

// GatewayIP returns the conventional gateway address, prefix.1.
func (n NetworkContext) GatewayIP() string {
	return n.Host(gatewaySuffix)
}

// Settings are the caller-owned knobs read once at session start.
type Settings struct {
	NetworkPrefix string `json:"networkPrefix"`
	ScanTimeoutMs int    `json:"scanTimeoutMs"`
}

// DefaultSettings returns the settings of a fresh installation.
func DefaultSettings() Settings {
	return Settings{NetworkPrefix: DefaultNetworkPrefix, ScanTimeoutMs: DefaultScanTimeoutMs}
}

// Validate checks that the settings are usable.
func (s Settings) Validate() error {
	if s.NetworkPrefix != "" {
		if _, err := parsePrefix(s.NetworkPrefix); err != nil {
			return err
		}
	}
	if s.ScanTimeoutMs < MinScanTimeoutMs || s.ScanTimeoutMs > MaxScanTimeoutMs {
		return fmt.Errorf("scanTimeoutMs must be within [%d,%d], got %d", MinScanTimeoutMs, MaxScanTimeoutMs, s.ScanTimeoutMs)
	}
	return nil
}

// Timeout returns the scan budget clamped to the accepted range.
func (s Settings) Timeout() time.Duration {
	ms := s.ScanTimeoutMs
	if ms < MinScanTimeoutMs {
		ms = MinScanTimeoutMs
	}
	if ms > MaxScanTimeoutMs {
		ms = MaxScanTimeoutMs
	}
	return time.Duration(ms) * time.Millisecond
}

// Progress summarises the sweep after each batch.
type Progress struct {
	Batch   int `json:"batch"`
	Batches int `json:"batches"`
	Scanned int `json:"scanned"`
	Total   int `json:"total"`
	Found   int `json:"found"`
}

// Report is a completed session: the context it ran in and the devices found.
type Report struct {
	Session  string         `json:"session"`
	Context  NetworkContext `json:"context"`
	Devices  []Device       `json:"devices"`
	Started  time.Time      `json:"started"`
	Finished time.Time      `json:"finished"`
}

var (
	// ErrNotWiFi indicates the device is not attached to a Wi-Fi network.
	ErrNotWiFi = errors.New("not attached to a wi-fi network")
	// ErrNoAddress indicates no local IPv4 address is available.
	ErrNoAddress = errors.New("no local ipv4 address")
	// ErrMalformedAddress indicates the local address is not a dotted-quad IPv4.
	ErrMalformedAddress = errors.New("malformed local address")
)
