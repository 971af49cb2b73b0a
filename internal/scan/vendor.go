package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/endobit/oui"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

const (
	// DefaultVendorLookupURL is the plain-text MAC vendor service.
	DefaultVendorLookupURL = "https://api.macvendors.com"
	// DefaultVendorLookupTimeout bounds one remote lookup.
	DefaultVendorLookupTimeout = 3 * time.Second
	// DefaultVendorCacheSize is the number of memoised addresses.
	DefaultVendorCacheSize = 512

	maxVendorResponseSize = 1 << 10
)

// VendorLookup resolves a hardware address to a manufacturer name.
type VendorLookup interface {
	Resolve(ctx context.Context, mac string) string
}

// VendorEntry maps a hex prefix of a hardware address to a vendor.
type VendorEntry struct {
	Prefix string
	Vendor string
}

// VendorTable is a static prefix table. Lookups return the longest entry
// that prefixes the queried key, so overlapping entries resolve the same way
// regardless of insertion order.
type VendorTable struct {
	entries []VendorEntry
}

// NewVendorTable builds a table from prefix→vendor pairs. Prefixes are
// normalised to uppercase hex; invalid ones are dropped.
func NewVendorTable(pairs map[string]string) *VendorTable {
	entries := make([]VendorEntry, 0, len(pairs))
	for prefix, vendor := range pairs {
		key := hexDigits(prefix)
		if key == "" || vendor == "" {
			continue
		}
		entries = append(entries, VendorEntry{Prefix: key, Vendor: vendor})
	}
	sort.Slice(entries, func(i, j int) bool {
		if len(entries[i].Prefix) != len(entries[j].Prefix) {
			return len(entries[i].Prefix) > len(entries[j].Prefix)
		}
		return entries[i].Prefix < entries[j].Prefix
	})
	return &VendorTable{entries: entries}
}

// Lookup returns the vendor for key, which may be a full address or any
// hex prefix of one.
func (t *VendorTable) Lookup(key string) (string, bool) {
	if t == nil {
		return "", false
	}
	key = hexDigits(key)
	if key == "" {
		return "", false
	}
	for _, e := range t.entries {
		if strings.HasPrefix(key, e.Prefix) {
			return e.Vendor, true
		}
	}
	return "", false
}

// Len reports the number of entries.
func (t *VendorTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// DefaultVendorTable returns the built-in fallback table of common home and
// small-office network vendors.
func DefaultVendorTable() *VendorTable {
	return NewVendorTable(map[string]string{
		// Routers and network gear
		"000C42": "Mikrotik",
		"000C43": "Ralink Technology",
		"001122": "Cimsys",
		"001A79": "Ubiquiti Networks",
		"002722": "Ubiquiti Networks",
		"00156D": "Ubiquiti Networks",
		"00E04C": "Realtek Semiconductor",
		"5C514F": "Intel Corporate",
		"8C8813": "TP-Link Technologies",
		"E4AB89": "TP-Link Technologies",
		"A0F3C1": "TP-Link Technologies",
		"AABBCC": "Intelbras",
		"B40247": "Intelbras",
		"FCECDA": "Ubiquiti Networks",
		"DC9FDB": "Ubiquiti Networks",
		"0418D6": "Ubiquiti Networks",
		"245A4C": "Ubiquiti Networks",

		// Phones and computers
		"D46AA8": "Xiaomi Communications",
		"586AB1": "Xiaomi Communications",
		"28E31F": "Xiaomi Communications",
		"7451BA": "Xiaomi Communications",
		"606BBD": "Samsung Electronics",
		"001632": "Samsung Electronics",
		"5C497D": "Samsung Electronics",
		"94350A": "Samsung Electronics",
		"001DE1": "Apple",
		"001124": "Apple",
		"000A27": "Apple",
		"000393": "Apple",
		"0C5415": "Apple",
		"980021": "Dell",
		"002170": "Dell",
		"00219B": "Dell",

		// Carriers and providers
		"58696C": "Vivo/Telefônica",
		"9C431E": "NET/Claro",
		"F8E71E": "Ruckus Wireless",
		"001293": "GE Energy",

		"78C2C0": "IEEE Registration Authority",
		"70B3D5": "IEEE Registration Authority",
	})
}

// VendorKey returns the uppercase hex of the upper 24 bits of mac, or ""
// when mac carries fewer than six hex digits.
func VendorKey(mac string) string {
	digits := hexDigits(mac)
	if len(digits) < 6 {
		return ""
	}
	return digits[:6]
}

// hexDigits strips separators and uppercases; any non-hex rune yields "".
func hexDigits(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(raw)) {
		switch {
		case r == ':' || r == '-' || r == '.':
			continue
		case (r >= '0' && r <= '9') || (r >= 'A' && r <= 'F'):
			b.WriteRune(r)
		default:
			return ""
		}
	}
	return b.String()
}

// VendorOptions configure a VendorResolver.
type VendorOptions struct {
	// LookupURL is the base URL of the remote service; the address is
	// appended as the last path segment.
	LookupURL string
	Timeout   time.Duration
	// Remote enables the remote service.
	Remote bool
	// Registry enables the embedded IEEE OUI registry after the static table.
	Registry bool
	// CacheSize is the LRU capacity; zero or less disables memoisation.
	CacheSize int
	Table     *VendorTable
	Client    *http.Client
	Logger    *zap.Logger
}

// DefaultVendorOptions enables every lookup path.
func DefaultVendorOptions() VendorOptions {
	return VendorOptions{
		LookupURL: DefaultVendorLookupURL,
		Timeout:   DefaultVendorLookupTimeout,
		Remote:    true,
		Registry:  true,
		CacheSize: DefaultVendorCacheSize,
	}
}

// VendorResolver asks the remote service first and falls back to the static
// table, then the OUI registry. It never fails: unresolvable addresses map
// to UnknownVendor.
type VendorResolver struct {
	lookupURL string
	timeout   time.Duration
	remote    bool
	registry  bool
	table     *VendorTable
	client    *http.Client
	cache     *lru.Cache[string, string]
	logger    *zap.Logger
}

// NewVendorResolver builds a resolver from opts.
func NewVendorResolver(opts VendorOptions) (*VendorResolver, error) {
	r := &VendorResolver{
		lookupURL: strings.TrimRight(opts.LookupURL, "/"),
		timeout:   opts.Timeout,
		remote:    opts.Remote,
		registry:  opts.Registry,
		table:     opts.Table,
		client:    opts.Client,
		logger:    opts.Logger,
	}
	if r.lookupURL == "" {
		r.lookupURL = DefaultVendorLookupURL
	}
	if _, err := url.Parse(r.lookupURL); err != nil {
		return nil, fmt.Errorf("invalid vendor lookup url: %w", err)
	}
	if r.timeout <= 0 {
		r.timeout = DefaultVendorLookupTimeout
	}
	if r.table == nil {
		r.table = DefaultVendorTable()
	}
	if r.client == nil {
		r.client = &http.Client{}
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if opts.CacheSize > 0 {
		cache, err := lru.New[string, string](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("vendor cache: %w", err)
		}
		r.cache = cache
	}
	return r, nil
}

// Resolve implements VendorLookup. Only definitive answers are memoised: a
// remote hit, a remote "not found", or any answer while the remote service is
// disabled. Fallbacks after transient remote failures are retried next time.
func (r *VendorResolver) Resolve(ctx context.Context, mac string) string {
	key := normaliseMAC(mac)
	if key == "" {
		key = strings.ToUpper(strings.TrimSpace(mac))
	}
	if r.cache != nil {
		if vendor, ok := r.cache.Get(key); ok {
			return vendor
		}
	}

	vendor, definitive := r.resolve(ctx, key)
	if r.cache != nil && definitive {
		r.cache.Add(key, vendor)
	}
	return vendor
}

func (r *VendorResolver) resolve(ctx context.Context, mac string) (string, bool) {
	if !r.remote {
		return r.lookupLocal(mac), true
	}
	vendor, err := r.lookupRemote(ctx, mac)
	if err == nil {
		return vendor, true
	}
	r.logger.Debug("remote vendor lookup failed, using local table",
		zap.String("mac", mac),
		zap.Error(err),
	)
	return r.lookupLocal(mac), errors.Is(err, errVendorNotFound)
}

// lookupLocal consults the static table and then, if enabled, the registry.
func (r *VendorResolver) lookupLocal(mac string) string {
	if vendor, ok := r.table.Lookup(VendorKey(mac)); ok {
		return vendor
	}
	if r.registry && VendorKey(mac) != "" {
		if vendor := oui.Vendor(strings.ToLower(mac)); vendor != "" {
			return vendor
		}
	}
	return UnknownVendor
}

var (
	errEmptyVendor    = errors.New("empty vendor response")
	errVendorNotFound = errors.New("vendor not registered")
)

func (r *VendorResolver) lookupRemote(ctx context.Context, mac string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	endpoint := r.lookupURL + "/" + url.PathEscape(mac)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/plain")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", errVendorNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("vendor service returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxVendorResponseSize))
	if err != nil {
		return "", fmt.Errorf("read vendor response: %w", err)
	}
	vendor := strings.TrimSpace(string(data))
	if vendor == "" {
		return "", errEmptyVendor
	}
	return vendor, nil
}
