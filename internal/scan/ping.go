package scan

import (
	"context"
	"runtime"
	"time"

	ping "github.com/go-ping/ping"
)

// LatencySource measures round-trip time to a host.
type LatencySource interface {
	Latency(ctx context.Context, host string) (time.Duration, bool)
}

// ICMPPinger measures latency with ICMP echo requests.
type ICMPPinger struct {
	Count   int
	Timeout time.Duration
}

// Latency implements LatencySource. Hosts that do not answer, or systems
// that refuse unprivileged ICMP, report false.
func (p ICMPPinger) Latency(ctx context.Context, host string) (time.Duration, bool) {
	if ctx.Err() != nil {
		return 0, false
	}
	pinger, err := ping.NewPinger(host)
	if err != nil {
		return 0, false
	}

	if runtime.GOOS == "windows" {
		pinger.SetPrivileged(true)
	} else {
		pinger.SetPrivileged(false)
	}

	count := p.Count
	if count <= 0 {
		count = 2
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	pinger.Count = count
	pinger.Timeout = timeout

	errCh := make(chan error, 1)
	go func() {
		errCh <- pinger.Run()
	}()

	select {
	case <-ctx.Done():
		pinger.Stop()
		<-errCh
		return 0, false
	case err := <-errCh:
		if err != nil {
			return 0, false
		}
	}

	stats := pinger.Statistics()
	if stats == nil || stats.PacketsRecv == 0 {
		return 0, false
	}
	return stats.AvgRtt, true
}
