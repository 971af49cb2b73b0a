package scan

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// HostProber probes one host and reports which catalog ports are open.
type HostProber interface {
	Probe(ctx context.Context, host string, budget time.Duration) ProbeResult
}

// Prober fans a Checker out over the port catalog. Every port gets half of
// the host budget and every check runs to completion; one check failing never
// cancels its siblings.
type Prober struct {
	checker Checker
	ports   []int
	logger  *zap.Logger
}

// NewProber creates a Prober over the fixed catalog.
func NewProber(checker Checker, logger *zap.Logger) *Prober {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prober{checker: checker, ports: PortCatalog(), logger: logger}
}

// Probe implements HostProber.
func (p *Prober) Probe(ctx context.Context, host string, budget time.Duration) ProbeResult {
	perPort := budget / 2
	open := make([]bool, len(p.ports))

	// Plain Group: a failing check must not cancel the others.
	var g errgroup.Group
	for i, port := range p.ports {
		g.Go(func() error {
			open[i] = p.check(ctx, host, port, perPort)
			return nil
		})
	}
	_ = g.Wait()

	var ports []int
	for i, ok := range open {
		if ok {
			ports = append(ports, p.ports[i])
		}
	}
	return newProbeResult(NewPortSet(ports...))
}

func (p *Prober) check(ctx context.Context, host string, port int, timeout time.Duration) (open bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Debug("port check panicked",
				zap.String("host", host),
				zap.Int("port", port),
				zap.Any("panic", r),
			)
			open = false
		}
	}()
	return p.checker.Check(ctx, host, port, timeout)
}
