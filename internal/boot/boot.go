// Package boot tracks the BootNotification handshake: the persisted
// boot-success counter, detection of an unclean previous run, and the
// pending-gate that withholds transaction-bound messages until the CSMS
// has accepted this charge point (spec §4.3). Grounded on the teacher's
// internal/config bootstrap-file idiom, re-targeted at protocol state
// instead of process configuration.
package boot

import (
	"encoding/json"
	"fmt"

	"github.com/ruslanhut/ocpp-chargepoint/internal/persistence"
)

const statsFile = "bootstats.jsn"

// Status mirrors the RegistrationStatus the CSMS returns in
// BootNotification.conf.
type Status string

const (
	StatusAccepted Status = "Accepted"
	StatusPending  Status = "Pending"
	StatusRejected Status = "Rejected"
)

type stats struct {
	BootCount       int  `json:"bootCount"`
	LastAccepted    bool `json:"lastAccepted"`
	CrashedLastBoot bool `json:"crashedLastBoot"`
}

// Tracker owns the persisted boot counter and the current registration
// gate. A Tracker is created fresh each process start; Load reconciles it
// with what was on disk from the previous run.
type Tracker struct {
	fs     persistence.FS
	stats  stats
	status Status
	clean  bool // true once this boot's run has been marked as cleanly exited
}

// New creates a Tracker backed by fs.
func New(fs persistence.FS) *Tracker {
	return &Tracker{fs: fs, status: StatusPending}
}

// Load reads the persisted boot stats (if any) and advances the boot
// counter. If the previous run never cleared its "in progress" marker,
// CrashedLastBoot is set, which the host may use to decide whether to
// wipe volatile state (spec §4.3 crash-recovery policy). Load always
// leaves the tracker marked as "in progress" again until Accept is
// called, so a second unclean shutdown in a row is still detected.
func (t *Tracker) Load() error {
	data, err := t.fs.Read(statsFile)
	if err != nil {
		if err != persistence.ErrNotFound {
			return fmt.Errorf("boot: load %s: %w", statsFile, err)
		}
		t.stats = stats{}
	} else if jerr := json.Unmarshal(data, &t.stats); jerr != nil {
		return fmt.Errorf("boot: decode %s: %w", statsFile, jerr)
	}
	t.stats.CrashedLastBoot = !t.stats.LastAccepted && t.stats.BootCount > 0
	t.stats.BootCount++
	t.stats.LastAccepted = false
	return t.save()
}

// CrashedLastBoot reports whether the previous process run ended without
// a successful registration outcome being recorded.
func (t *Tracker) CrashedLastBoot() bool { return t.stats.CrashedLastBoot }

// BootCount is the number of times this charge point has started,
// including the current run.
func (t *Tracker) BootCount() int { return t.stats.BootCount }

// Accept records a BootNotification.conf with status Accepted and clears
// the boot-pending gate.
func (t *Tracker) Accept() error {
	t.status = StatusAccepted
	t.stats.LastAccepted = true
	return t.save()
}

// Reject records a BootNotification.conf with status Pending or
// Rejected; the gate remains (or returns to) closed.
func (t *Tracker) Reject(status Status) error {
	if status == StatusAccepted {
		return fmt.Errorf("boot: Reject called with Accepted status")
	}
	t.status = status
	return t.save()
}

// Status returns the current registration status.
func (t *Tracker) Status() Status { return t.status }

// Pending reports whether transaction-bound messages should currently be
// withheld (status is anything other than Accepted).
func (t *Tracker) Pending() bool { return t.status != StatusAccepted }

func (t *Tracker) save() error {
	data, err := json.Marshal(t.stats)
	if err != nil {
		return fmt.Errorf("boot: encode: %w", err)
	}
	if err := t.fs.Write(statsFile, data); err != nil {
		return fmt.Errorf("boot: save %s: %w", statsFile, err)
	}
	return nil
}
