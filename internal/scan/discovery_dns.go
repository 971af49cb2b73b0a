package scan

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"golang.org/x/sync/errgroup"
)

const defaultMDNSWindow = 2 * time.Second

// defaultMDNSServices are the service types most home devices advertise.
var defaultMDNSServices = []string{
	"_workstation._tcp",
	"_device-info._tcp",
	"_http._tcp",
	"_ssh._tcp",
	"_smb._tcp",
	"_ipp._tcp",
	"_printer._tcp",
	"_airplay._tcp",
	"_googlecast._tcp",
	"_rtsp._tcp",
}

// HostnameSource returns names advertised on the local link, keyed by IPv4.
type HostnameSource interface {
	Hostnames(ctx context.Context) map[string]string
}

// AdvertSource lists the hosts advertising one DNS-SD service type, keyed by
// IPv4, with the port each one advertised.
type AdvertSource interface {
	Advertisers(ctx context.Context, service string) map[string]int
}

// MDNSBrowser collects multicast DNS advertisements for a fixed window.
type MDNSBrowser struct {
	Window   time.Duration
	Services []string
}

// Hostnames implements HostnameSource. Browse failures simply yield fewer names.
func (b MDNSBrowser) Hostnames(ctx context.Context) map[string]string {
	services := b.Services
	if len(services) == 0 {
		services = defaultMDNSServices
	}

	var mu sync.Mutex
	names := make(map[string][]string)
	b.browse(ctx, services, func(entry *zeroconf.ServiceEntry) {
		mu.Lock()
		defer mu.Unlock()
		addEntryNames(names, entry)
	})

	mu.Lock()
	defer mu.Unlock()
	return pickNames(names)
}

// Advertisers implements AdvertSource.
func (b MDNSBrowser) Advertisers(ctx context.Context, service string) map[string]int {
	var mu sync.Mutex
	ports := make(map[string]int)
	b.browse(ctx, []string{service}, func(entry *zeroconf.ServiceEntry) {
		mu.Lock()
		defer mu.Unlock()
		addEntryPorts(ports, entry)
	})

	mu.Lock()
	defer mu.Unlock()
	return ports
}

// browse runs one resolver per service type for the browse window.
func (b MDNSBrowser) browse(ctx context.Context, services []string, fn func(*zeroconf.ServiceEntry)) {
	window := b.Window
	if window <= 0 {
		window = defaultMDNSWindow
	}
	ctx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	var g errgroup.Group
	for _, service := range services {
		g.Go(func() error {
			browseService(ctx, service, fn)
			return nil
		})
	}
	_ = g.Wait()
}

func browseService(ctx context.Context, service string, fn func(*zeroconf.ServiceEntry)) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return
	}

	entries := make(chan *zeroconf.ServiceEntry, 16)
	if err := resolver.Browse(ctx, service, "local.", entries); err != nil {
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for entry := range entries {
			fn(entry)
		}
	}()
	<-ctx.Done()

	// The resolver closes entries once ctx ends; don't hang if it doesn't.
	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
	}
}

// addEntryNames records the entry's name under each of its IPv4 addresses.
func addEntryNames(names map[string][]string, entry *zeroconf.ServiceEntry) {
	name := entryName(entry)
	if name == "" {
		return
	}
	for _, ip := range entry.AddrIPv4 {
		names[ip.String()] = append(names[ip.String()], name)
	}
}

// addEntryPorts records the advertised port under each IPv4 address.
func addEntryPorts(ports map[string]int, entry *zeroconf.ServiceEntry) {
	if entry == nil || entry.Port <= 0 {
		return
	}
	for _, ip := range entry.AddrIPv4 {
		ports[ip.String()] = entry.Port
	}
}

// pickNames settles on one name per address: the first in sorted order.
func pickNames(names map[string][]string) map[string]string {
	out := make(map[string]string, len(names))
	for ip, list := range names {
		if unique := uniqueStrings(list); len(unique) > 0 {
			out[ip] = unique[0]
		}
	}
	return out
}

// entryName prefers the advertised host name over the instance label.
func entryName(entry *zeroconf.ServiceEntry) string {
	if entry == nil {
		return ""
	}
	if host := strings.TrimSuffix(entry.HostName, "."); host != "" {
		return host
	}
	return strings.TrimSpace(entry.Instance)
}

func uniqueStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		normalized := strings.TrimSpace(v)
		normalized = strings.TrimSuffix(normalized, ".")
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	sort.Strings(out)
	return out
}
