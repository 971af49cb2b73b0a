package scan

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
	"howett.net/plist"
)

const (
	airPlayService         = "_airplay._tcp"
	defaultAirPlayPort     = 7000
	defaultAirPlayTimeout  = 1500 * time.Millisecond
	maxAirPlayResponseSize = 1 << 20
)

// airPlayEndpoints are tried in order; older receivers only serve server-info.
var airPlayEndpoints = []string{"info", "server-info"}

// airPlayFamilies maps hardware identifier prefixes to product names. More
// specific prefixes come first.
var airPlayFamilies = []struct {
	prefix string
	name   string
}{
	{"AppleTV", "Apple TV"},
	{"AudioAccessory", "HomePod"},
	{"iPhone", "iPhone"},
	{"iPad", "iPad"},
	{"MacBook", "MacBook"},
	{"Macmini", "Mac mini"},
	{"iMac", "iMac"},
	{"Mac", "Mac"},
}

// ModelRefiner sharpens device models after vendor classification.
type ModelRefiner interface {
	RefineModels(ctx context.Context, devices []Device)
}

// AirPlayInspector asks hosts that advertise AirPlay for their hardware
// model. Only devices whose vendor is Apple, or is unresolved, are refined.
type AirPlayInspector struct {
	Adverts AdvertSource
	Timeout time.Duration
	Client  *http.Client
}

// RefineModels implements ModelRefiner.
func (a AirPlayInspector) RefineModels(ctx context.Context, devices []Device) {
	if a.Adverts == nil {
		return
	}
	adverts := a.Adverts.Advertisers(ctx, airPlayService)
	if len(adverts) == 0 {
		return
	}

	timeout := a.Timeout
	if timeout <= 0 {
		timeout = defaultAirPlayTimeout
	}
	client := a.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	g := new(errgroup.Group)
	g.SetLimit(enrichConcurrency)
	for i := range devices {
		d := &devices[i]
		port, ok := adverts[d.IP]
		if !ok || !refinesAirPlay(*d) {
			continue
		}
		g.Go(func() error {
			fields := fetchAirPlayInfo(ctx, client, timeout, d.IP, port)
			if model := airPlayModel(fields); model != "" {
				d.Model = model
			}
			return nil
		})
	}
	_ = g.Wait()
}

func refinesAirPlay(d Device) bool {
	if d.Role == RoleSelf {
		return false
	}
	if d.Vendor == "" || d.Vendor == UnknownVendor {
		return true
	}
	return strings.Contains(strings.ToLower(d.Vendor), "apple")
}

// fetchAirPlayInfo returns the decoded property list of the first endpoint
// that answers with one, or nil.
func fetchAirPlayInfo(ctx context.Context, client *http.Client, timeout time.Duration, host string, port int) map[string]string {
	if port <= 0 {
		port = defaultAirPlayPort
	}
	base := "http://" + net.JoinHostPort(host, strconv.Itoa(port)) + "/"

	for _, endpoint := range airPlayEndpoints {
		if fields := fetchAirPlayEndpoint(ctx, client, timeout, base+endpoint); len(fields) > 0 {
			return fields
		}
	}
	return nil
}

func fetchAirPlayEndpoint(ctx context.Context, client *http.Client, timeout time.Duration, url string) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAirPlayResponseSize))
	if err != nil {
		return nil
	}
	return parseAirPlayResponse(data)
}

// parseAirPlayResponse flattens a property list dictionary into strings.
func parseAirPlayResponse(data []byte) map[string]string {
	if len(data) == 0 {
		return nil
	}
	var payload map[string]any
	if _, err := plist.Unmarshal(data, &payload); err != nil {
		return nil
	}

	fields := make(map[string]string, len(payload))
	for key, value := range payload {
		if v := plistString(value); v != "" {
			fields[key] = v
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

func plistString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case []byte:
		if utf8.Valid(v) && printable(v) {
			return strings.TrimSpace(string(v))
		}
		return strings.ToUpper(hex.EncodeToString(v))
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if part := plistString(item); part != "" {
				parts = append(parts, part)
			}
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, key := range keys {
			if part := plistString(v[key]); part != "" {
				parts = append(parts, key+"="+part)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(v)
	}
}

func printable(data []byte) bool {
	for _, r := range string(data) {
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			return false
		}
	}
	return true
}

// airPlayModel turns the advertised hardware identifier into a model label,
// e.g. "AppleTV6,2" becomes "Apple TV (AppleTV6,2)".
func airPlayModel(fields map[string]string) string {
	id := strings.TrimSpace(fields["model"])
	if id == "" {
		return ""
	}
	for _, f := range airPlayFamilies {
		if strings.HasPrefix(id, f.prefix) {
			return f.name + " (" + id + ")"
		}
	}
	return id
}
