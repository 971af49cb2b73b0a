// Package export writes scan reports as versioned JSON snapshots.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"lanscout/internal/scan"
)

const snapshotVersion = 1

// ErrUnsupportedVersion is returned by Load for snapshots it cannot read.
var ErrUnsupportedVersion = errors.New("unsupported snapshot version")

// Snapshot is the serialisable form of a scan report.
type Snapshot struct {
	GeneratedAt time.Time     `json:"generated_at"`
	Session     string        `json:"session"`
	Network     NetworkInfo   `json:"network"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	Devices     []scan.Device `json:"devices"`
}

// NetworkInfo holds the network context of the exported session.
type NetworkInfo struct {
	Prefix        string `json:"prefix"`
	SelfIP        string `json:"self_ip"`
	TimeoutMillis int64  `json:"timeout_ms"`
}

// Save writes report to w as an indented JSON snapshot.
func Save(w io.Writer, report scan.Report) error {
	devices := report.Devices
	if devices == nil {
		devices = []scan.Device{}
	}
	snap := Snapshot{
		GeneratedAt: time.Now().UTC(),
		Session:     report.Session,
		Network: NetworkInfo{
			Prefix:        report.Context.Prefix,
			SelfIP:        report.Context.SelfIP,
			TimeoutMillis: report.Context.Timeout.Milliseconds(),
		},
		StartedAt:  report.Started,
		FinishedAt: report.Finished,
		Devices:    devices,
	}

	payload := struct {
		Version  int      `json:"version"`
		Snapshot Snapshot `json:"snapshot"`
	}{
		Version:  snapshotVersion,
		Snapshot: snap,
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}

// Load reads a snapshot written by Save and rebuilds the report.
func Load(r io.Reader) (scan.Report, error) {
	var payload struct {
		Version  int      `json:"version"`
		Snapshot Snapshot `json:"snapshot"`
	}
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&payload); err != nil {
		return scan.Report{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if payload.Version != snapshotVersion {
		return scan.Report{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, payload.Version)
	}

	snap := payload.Snapshot
	devices := snap.Devices
	if devices == nil {
		devices = []scan.Device{}
	}
	return scan.Report{
		Session: snap.Session,
		Context: scan.NetworkContext{
			Prefix:  snap.Network.Prefix,
			SelfIP:  snap.Network.SelfIP,
			Timeout: time.Duration(snap.Network.TimeoutMillis) * time.Millisecond,
		},
		Devices:  devices,
		Started:  snap.StartedAt,
		Finished: snap.FinishedAt,
	}, nil
}
