package scan

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"lanscout/internal/logging"
)

const (
	// DefaultGatewayBudget is the probe budget for prefix.1.
	DefaultGatewayBudget = 2 * time.Second

	selfVendor    = "This device"
	selfModel     = "Mobile"
	gatewayVendor = "Gateway"
	gatewayModel  = "Router"

	enrichConcurrency = BatchSize
)

// SettingsSource hands out the caller's settings. It is read once per session.
type SettingsSource interface {
	Settings() Settings
}

// StaticSettings is a SettingsSource that always returns the same value.
type StaticSettings Settings

// Settings implements SettingsSource.
func (s StaticSettings) Settings() Settings { return Settings(s) }

// Options wire a Session to its collaborators. Zero values select the
// production implementation; the optional enrichers stay disabled when nil.
type Options struct {
	Settings     SettingsSource
	Connectivity Connectivity
	Permissions  PermissionGate
	Prober       HostProber
	Vendors      VendorLookup

	// Neighbors, when set, supplies genuine hardware addresses.
	Neighbors NeighborTable
	// Hostnames, when set, names devices from mDNS advertisements.
	Hostnames HostnameSource
	// Names, when set, asks devices still unnamed for their own name.
	Names NameLookup
	// Models, when set, refines models after vendor classification.
	Models ModelRefiner
	// Latency, when set, measures round-trip time to every found device.
	Latency LatencySource

	NewMAC   MACSource
	NewToken func() string

	// AnyAttachment accepts wired and cellular attachments as well as Wi-Fi.
	AnyAttachment bool
	GatewayBudget time.Duration
	Progress      func(Progress)
	Logger        *zap.Logger
}

// Session discovers devices on the local /24. A Session may be reused; each
// Scan is independent and shares nothing with earlier ones.
type Session struct {
	settings      SettingsSource
	connectivity  Connectivity
	permissions   PermissionGate
	prober        HostProber
	vendors       VendorLookup
	neighbors     NeighborTable
	hostnames     HostnameSource
	names         NameLookup
	models        ModelRefiner
	latency       LatencySource
	newMAC        MACSource
	newToken      func() string
	anyAttachment bool
	gatewayBudget time.Duration
	progress      func(Progress)
	logger        *zap.Logger
}

// NewSession creates a Session from opts.
func NewSession(opts Options) *Session {
	s := &Session{
		settings:      opts.Settings,
		connectivity:  opts.Connectivity,
		permissions:   opts.Permissions,
		prober:        opts.Prober,
		vendors:       opts.Vendors,
		neighbors:     opts.Neighbors,
		hostnames:     opts.Hostnames,
		names:         opts.Names,
		models:        opts.Models,
		latency:       opts.Latency,
		newMAC:        opts.NewMAC,
		newToken:      opts.NewToken,
		anyAttachment: opts.AnyAttachment,
		gatewayBudget: opts.GatewayBudget,
		progress:      opts.Progress,
		logger:        opts.Logger,
	}
	if s.logger == nil {
		s.logger = logging.GetLogger()
	}
	if s.settings == nil {
		s.settings = StaticSettings(DefaultSettings())
	}
	if s.connectivity == nil {
		s.connectivity = InterfaceConnectivity{}
	}
	if s.permissions == nil {
		s.permissions = AllowAll{}
	}
	if s.prober == nil {
		s.prober = NewProber(NewHTTPChecker(), s.logger)
	}
	if s.vendors == nil {
		vo := DefaultVendorOptions()
		vo.Logger = s.logger
		resolver, err := NewVendorResolver(vo)
		if err != nil {
			vo.CacheSize = 0
			resolver, _ = NewVendorResolver(vo)
		}
		s.vendors = resolver
	}
	if s.newMAC == nil {
		s.newMAC = RandomMAC
	}
	if s.newToken == nil {
		s.newToken = uuid.NewString
	}
	if s.gatewayBudget <= 0 {
		s.gatewayBudget = DefaultGatewayBudget
	}
	return s
}

// Scan runs one discovery session and returns the devices found. It never
// fails: when the network context cannot be established the list is empty.
func (s *Session) Scan(ctx context.Context) []Device {
	return s.Run(ctx).Devices
}

// Run is Scan with the session metadata attached.
func (s *Session) Run(ctx context.Context) Report {
	report := Report{Session: s.newToken(), Started: time.Now().UTC(), Devices: []Device{}}
	logger := s.logger.With(zap.String("session", report.Session))

	netCtx, err := s.resolveContext(ctx, logger)
	if err != nil {
		logger.Warn("network context unavailable", zap.Error(err))
		report.Finished = time.Now().UTC()
		return report
	}
	report.Context = netCtx
	logger.Info("scan started",
		zap.String("prefix", netCtx.Prefix),
		zap.String("self", netCtx.SelfIP),
		zap.Duration("timeout", netCtx.Timeout),
	)

	devices := s.seedKnownHosts(ctx, netCtx)
	devices = append(devices, s.sweepSubnet(ctx, netCtx, devices, logger)...)
	s.enrich(ctx, devices, logger)
	assignIDs(devices, report.Session)

	report.Devices = devices
	report.Finished = time.Now().UTC()
	logger.Info("scan finished",
		zap.Int("devices", len(devices)),
		zap.Duration("elapsed", report.Finished.Sub(report.Started)),
	)
	return report
}

func (s *Session) resolveContext(ctx context.Context, logger *zap.Logger) (NetworkContext, error) {
	settings := s.settings.Settings()
	if !s.permissions.Request(ctx) {
		logger.Warn("network permission not granted, scan may be limited")
	}

	att, err := s.connectivity.Current(ctx)
	if err != nil {
		return NetworkContext{}, err
	}
	netCtx, err := newNetworkContext(att, !s.anyAttachment, settings)
	if err != nil {
		return NetworkContext{}, err
	}
	if settings.NetworkPrefix != "" && settings.NetworkPrefix != netCtx.Prefix {
		logger.Debug("detected prefix overrides configured prefix",
			zap.String("configured", settings.NetworkPrefix),
			zap.String("detected", netCtx.Prefix),
		)
	}
	return netCtx, nil
}

func (s *Session) seedKnownHosts(ctx context.Context, netCtx NetworkContext) []Device {
	devices := []Device{{
		IP:           netCtx.SelfIP,
		MAC:          selfMAC,
		SyntheticMAC: true,
		Vendor:       selfVendor,
		Model:        selfModel,
		Status:       StatusOnline,
		Role:         RoleSelf,
	}}

	gateway := netCtx.GatewayIP()
	if gateway == netCtx.SelfIP {
		return devices
	}
	result := probeSafely(ctx, s.prober, gateway, s.gatewayBudget)
	if !result.Alive {
		return devices
	}
	return append(devices, Device{
		IP:           gateway,
		MAC:          gatewayMAC,
		SyntheticMAC: true,
		Vendor:       gatewayVendor,
		Model:        gatewayModel,
		Status:       StatusOnline,
		OpenPorts:    result.OpenPorts,
		Role:         RoleGateway,
	})
}

func (s *Session) sweepSubnet(ctx context.Context, netCtx NetworkContext, seeded []Device, logger *zap.Logger) []Device {
	exclude := map[string]struct{}{
		netCtx.SelfIP:      {},
		netCtx.GatewayIP(): {},
	}
	for _, d := range seeded {
		exclude[d.IP] = struct{}{}
	}

	results := Sweep(ctx, netCtx, s.prober, SweepOptions{
		Budget:   netCtx.Timeout / 10,
		Exclude:  exclude,
		Progress: s.progress,
		Logger:   logger,
	})

	var devices []Device
	for _, r := range results {
		if !r.Result.Alive {
			continue
		}
		mac, synthetic := s.hardwareAddress(ctx, r.IP)
		devices = append(devices, Device{
			IP:           r.IP,
			MAC:          mac,
			SyntheticMAC: synthetic,
			Status:       StatusOnline,
			OpenPorts:    r.Result.OpenPorts,
			Role:         RoleHost,
		})
	}
	return devices
}

func (s *Session) hardwareAddress(ctx context.Context, ip string) (string, bool) {
	if s.neighbors != nil {
		if mac := normaliseMAC(s.neighbors.Lookup(ctx, ip)); mac != "" {
			return mac, false
		}
	}
	return s.newMAC(), true
}

func (s *Session) enrich(ctx context.Context, devices []Device, logger *zap.Logger) {
	g := new(errgroup.Group)
	g.SetLimit(enrichConcurrency)
	for i := range devices {
		d := &devices[i]
		if d.Vendor != "" && d.Vendor != UnknownVendor && d.Model != "" {
			continue
		}
		g.Go(func() error {
			d.Vendor = s.vendors.Resolve(ctx, d.MAC)
			d.Model = Classify(d.Vendor, d.OpenPorts)
			return nil
		})
	}
	_ = g.Wait()

	if s.models != nil {
		s.models.RefineModels(ctx, devices)
	}

	if s.hostnames != nil {
		names := s.hostnames.Hostnames(ctx)
		for i := range devices {
			if devices[i].Role == RoleSelf {
				continue
			}
			if name, ok := names[devices[i].IP]; ok {
				devices[i].Hostname = name
			}
		}
		logger.Debug("mdns names collected", zap.Int("names", len(names)))
	}

	if s.names != nil {
		g := new(errgroup.Group)
		g.SetLimit(enrichConcurrency)
		for i := range devices {
			d := &devices[i]
			if d.Role == RoleSelf || d.Hostname != "" || !s.names.Applies(d.OpenPorts) {
				continue
			}
			g.Go(func() error {
				if name, ok := s.names.LookupName(ctx, d.IP); ok {
					d.Hostname = name
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	if s.latency != nil {
		g := new(errgroup.Group)
		g.SetLimit(enrichConcurrency)
		for i := range devices {
			d := &devices[i]
			if d.Role == RoleSelf {
				continue
			}
			g.Go(func() error {
				if rtt, ok := s.latency.Latency(ctx, d.IP); ok {
					d.LatencyMs = durationToMillis(rtt)
				}
				return nil
			})
		}
		_ = g.Wait()
	}
}

// assignIDs gives every device an identifier unique within the session.
func assignIDs(devices []Device, token string) {
	for i := range devices {
		kind := "device"
		if devices[i].Role == RoleGateway {
			kind = "gateway"
		}
		devices[i].ID = kind + "-" + dashedIP(devices[i].IP) + "-" + token
	}
}
