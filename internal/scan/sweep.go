package scan

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// BatchSize is the number of hosts probed at once. With the 14-port
	// catalog this caps the sweep at 140 concurrent connection attempts.
	BatchSize = 10

	gatewaySuffix = 1
	firstSuffix   = 2
	lastSuffix    = 254
)

// HostResult is the probe outcome of one swept address.
type HostResult struct {
	IP     string
	Suffix int
	Result ProbeResult
}

// SweepOptions tune a sweep.
type SweepOptions struct {
	// Budget is handed to the prober for every host.
	Budget time.Duration
	// Exclude lists addresses that were already classified.
	Exclude map[string]struct{}
	// Progress, when set, is called after every batch.
	Progress func(Progress)
	Logger   *zap.Logger
}

// Sweep probes prefix.2 through prefix.254 in sequential batches of
// BatchSize. Hosts inside a batch are probed concurrently and the sweep
// always waits for the whole batch. Every suffix is visited at most once.
// A cancelled ctx stops scheduling new batches; results so far are returned
// in suffix order.
func Sweep(ctx context.Context, netCtx NetworkContext, prober HostProber, opts SweepOptions) []HostResult {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	batches := planBatches(netCtx, opts.Exclude)
	total := 0
	for _, b := range batches {
		total += len(b)
	}

	results := make([]HostResult, 0, total)
	found := 0
	for idx, batch := range batches {
		if err := ctx.Err(); err != nil {
			logger.Debug("sweep stopped", zap.Int("batch", idx+1), zap.Error(err))
			break
		}

		out := make([]HostResult, len(batch))
		var g errgroup.Group
		for i, suffix := range batch {
			host := netCtx.Host(suffix)
			g.Go(func() error {
				out[i] = HostResult{IP: host, Suffix: suffix, Result: probeSafely(ctx, prober, host, opts.Budget)}
				return nil
			})
		}
		_ = g.Wait()

		for _, r := range out {
			if r.Result.Alive {
				found++
			}
		}
		results = append(results, out...)

		progress := Progress{
			Batch:   idx + 1,
			Batches: len(batches),
			Scanned: len(results),
			Total:   total,
			Found:   found,
		}
		logger.Debug("batch complete",
			zap.Int("batch", progress.Batch),
			zap.Int("scanned", progress.Scanned),
			zap.Int("total", progress.Total),
			zap.Int("found", progress.Found),
		)
		if opts.Progress != nil {
			opts.Progress(progress)
		}
	}
	return results
}

// planBatches splits 2..254 into consecutive windows of BatchSize suffixes,
// dropping excluded addresses from their window.
func planBatches(netCtx NetworkContext, exclude map[string]struct{}) [][]int {
	var batches [][]int
	for start := firstSuffix; start <= lastSuffix; start += BatchSize {
		var batch []int
		for s := start; s < start+BatchSize && s <= lastSuffix; s++ {
			if _, skip := exclude[netCtx.Host(s)]; skip {
				continue
			}
			batch = append(batch, s)
		}
		if len(batch) > 0 {
			batches = append(batches, batch)
		}
	}
	return batches
}

func probeSafely(ctx context.Context, prober HostProber, host string, budget time.Duration) (result ProbeResult) {
	defer func() {
		if recover() != nil {
			result = ProbeResult{}
		}
	}()
	result = prober.Probe(ctx, host, budget)
	// Keep the alive/open invariant even for sloppy probers.
	result.Alive = len(result.OpenPorts) > 0
	return result
}
