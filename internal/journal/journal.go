package journal

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/ruslanhut/ocpp-chargepoint/internal/persistence"
)

// LoadError distinguishes a missing record from a corrupt one so the
// caller can apply the spec's corrupt-record-left-in-place policy: a
// corrupt record is never deleted, it is simply skipped and front is
// advanced past it.
type LoadError struct {
	EvseID  int
	TxNr    int
	Corrupt bool
}

func (e *LoadError) Error() string {
	if e.Corrupt {
		return fmt.Sprintf("journal: connector %d tx %d: corrupt record", e.EvseID, e.TxNr)
	}
	return fmt.Sprintf("journal: connector %d tx %d: not found", e.EvseID, e.TxNr)
}

// connector is one per-EVSE ring: [txNrBegin, txNrEnd) is the full set of
// slots ever allocated that have not been recycled; [txNrFront, txNrEnd)
// is the subset still pending delivery to the CSMS via the message queue.
// txNrBegin <= txNrFront <= txNrEnd, all modulo TxNrMax.
type connector struct {
	mu         sync.Mutex
	txNrBegin  int
	txNrFront  int
	txNrEnd    int
	capacity   int
	allocated  map[int]bool // txNr -> present in this ring generation
}

// Journal owns one connector ring per EVSE id and persists records/meter
// values through an FS. It is deliberately lock-coarse per connector: the
// engine only ever touches one connector's worth of state per call, and
// the single-threaded host loop (spec §5) means cross-connector
// concurrency never actually happens -- the mutexes exist so the type is
// safe to share with the ambient goroutines that merely read via Load.
type Journal struct {
	fs       persistence.FS
	capacity int

	mu         sync.Mutex
	connectors map[int]*connector
}

// New creates a Journal backed by fs, with capacity ring slots per
// connector (TXRECORD_SIZE; DefaultCapacity if zero).
func New(fs persistence.FS, capacity int) *Journal {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Journal{
		fs:         fs,
		capacity:   capacity,
		connectors: make(map[int]*connector),
	}
}

func (j *Journal) connectorFor(evseID int) *connector {
	j.mu.Lock()
	defer j.mu.Unlock()
	c, ok := j.connectors[evseID]
	if !ok {
		c = &connector{capacity: j.capacity, allocated: make(map[int]bool)}
		j.connectors[evseID] = c
	}
	return c
}

// Recover scans persisted records for evseID and rebuilds the ring
// indices from what is actually on disk, tolerating corrupt records by
// leaving them in place and keeping them in the allocated set (the slot
// still occupies ring space and is not reused) without letting them move
// txNrFront. This mirrors the source implementation's
// setup()-time ring-index recovery.
func (j *Journal) Recover(evseID int) error {
	c := j.connectorFor(evseID)
	c.mu.Lock()
	defer c.mu.Unlock()

	names, err := j.fs.List(fmt.Sprintf("tx-%d-", evseID))
	if err != nil {
		return fmt.Errorf("journal: recover connector %d: %w", evseID, err)
	}

	var txNrs []int
	for _, name := range names {
		n, ok := persistence.ParseSeq(name)
		if !ok {
			continue
		}
		txNrs = append(txNrs, n)
	}
	sort.Ints(txNrs)

	if len(txNrs) == 0 {
		c.txNrBegin, c.txNrFront, c.txNrEnd = 0, 0, 0
		c.allocated = make(map[int]bool)
		return nil
	}

	c.txNrBegin = txNrs[0]
	c.txNrEnd = txNrs[len(txNrs)-1] + 1
	c.allocated = make(map[int]bool, len(txNrs))
	front := c.txNrEnd
	for _, n := range txNrs {
		rec, lerr := j.load(evseID, n)
		if lerr != nil {
			// Corrupt: leave the slot allocated (it still occupies ring
			// space and must not be silently reused) but don't let it
			// regress front.
			c.allocated[n] = true
			continue
		}
		c.allocated[n] = true
		if !rec.Completed && !rec.Aborted {
			if n < front {
				front = n
			}
		}
	}
	if front == c.txNrEnd {
		front = c.txNrEnd
	}
	c.txNrFront = front
	return nil
}

// Allocate policy (spec §4.1 step 4): clean dangling silent/aborted tail
// entries first; if ring capacity is free, append a new slot; else try to
// replace the oldest history entry that is completed, aborted, or
// silent-and-stopped; else, if allowSilent is set (SilentOfflineTransactions),
// allocate a silent transaction anyway; otherwise fail with ErrQueueFull.
var ErrQueueFull = fmt.Errorf("journal: transaction queue full")

// Allocate reserves the next txNr for evseID and returns a fresh Record
// with EvseID/TxNr set and Active=true. allowSilent mirrors the
// SilentOfflineTransactions configuration knob.
func (j *Journal) Allocate(evseID int, allowSilent bool) (*Record, error) {
	c := j.connectorFor(evseID)
	c.mu.Lock()
	defer c.mu.Unlock()

	j.cleanDanglingLocked(evseID, c)

	if c.txNrEnd-c.txNrBegin < c.capacity {
		txNr := c.txNrEnd % TxNrMax
		c.txNrEnd++
		c.allocated[txNr] = true
		return &Record{EvseID: evseID, TxNr: txNr, Active: true, MeterStart: -1, MeterStop: -1}, nil
	}

	if replaced, ok := j.replaceOldestLocked(evseID, c); ok {
		return replaced, nil
	}

	if allowSilent {
		txNr := c.txNrEnd % TxNrMax
		c.txNrEnd++
		c.txNrBegin++
		c.allocated[txNr] = true
		return &Record{EvseID: evseID, TxNr: txNr, Active: true, Silent: true, MeterStart: -1, MeterStop: -1}, nil
	}

	return nil, ErrQueueFull
}

// cleanDanglingLocked removes (from the persistence layer and the ring)
// any tail entries at txNrBegin that are silent and already stopped, or
// aborted before ever starting -- history with nothing left to report.
func (j *Journal) cleanDanglingLocked(evseID int, c *connector) {
	for c.txNrBegin < c.txNrEnd {
		txNr := c.txNrBegin % TxNrMax
		if !c.allocated[txNr] {
			c.txNrBegin++
			continue
		}
		rec, err := j.load(evseID, txNr)
		if err != nil {
			break // corrupt or missing: leave in place, stop cleaning
		}
		dangling := (rec.Silent && rec.Completed) || (rec.Aborted && !rec.Started())
		if !dangling {
			break
		}
		_ = j.fs.Remove(persistence.RecordName("tx", evseID, txNr))
		delete(c.allocated, txNr)
		c.txNrBegin++
		if c.txNrFront < c.txNrBegin {
			c.txNrFront = c.txNrBegin
		}
	}
}

// replaceOldestLocked looks for the oldest ring slot whose record is
// completed, aborted, or silent-and-stopped, and recycles it in place.
func (j *Journal) replaceOldestLocked(evseID int, c *connector) (*Record, bool) {
	for txNr := c.txNrBegin; txNr < c.txNrEnd; txNr++ {
		n := txNr % TxNrMax
		if !c.allocated[n] {
			continue
		}
		rec, err := j.load(evseID, n)
		if err != nil {
			continue
		}
		if rec.Completed || rec.Aborted || (rec.Silent && rec.Stopped()) {
			fresh := &Record{EvseID: evseID, TxNr: n, Active: true, MeterStart: -1, MeterStop: -1}
			if err := j.commit(fresh); err != nil {
				return nil, false
			}
			if c.txNrFront == txNr {
				c.txNrFront++
			}
			return fresh, true
		}
	}
	return nil, false
}

// Commit persists rec. The caller owns rec's lifetime; Commit does not
// retain a reference.
func (j *Journal) Commit(rec *Record) error {
	return j.commit(rec)
}

func (j *Journal) commit(rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("journal: encode tx %d/%d: %w", rec.EvseID, rec.TxNr, err)
	}
	if err := j.fs.Write(persistence.RecordName("tx", rec.EvseID, rec.TxNr), data); err != nil {
		return fmt.Errorf("journal: commit tx %d/%d: %w", rec.EvseID, rec.TxNr, err)
	}
	return nil
}

// Load retrieves the record for (evseID, txNr). A missing file and a
// corrupt (unparsable) file are both reported via *LoadError so callers
// can tell them apart; per spec, a corrupt record is never deleted.
func (j *Journal) Load(evseID, txNr int) (*Record, error) {
	return j.load(evseID, txNr)
}

func (j *Journal) load(evseID, txNr int) (*Record, error) {
	data, err := j.fs.Read(persistence.RecordName("tx", evseID, txNr))
	if err != nil {
		if err == persistence.ErrNotFound {
			return nil, &LoadError{EvseID: evseID, TxNr: txNr}
		}
		return nil, &LoadError{EvseID: evseID, TxNr: txNr, Corrupt: true}
	}
	var rec Record
	if jerr := json.Unmarshal(data, &rec); jerr != nil {
		return nil, &LoadError{EvseID: evseID, TxNr: txNr, Corrupt: true}
	}
	return &rec, nil
}

// Remove deletes the persisted record and ring bookkeeping for
// (evseID, txNr). It is only valid to call once the record is terminal
// (Completed or Aborted) and no longer referenced by the message queue.
func (j *Journal) Remove(evseID, txNr int) error {
	c := j.connectorFor(evseID)
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := j.fs.Remove(persistence.RecordName("tx", evseID, txNr)); err != nil && err != persistence.ErrNotFound {
		return fmt.Errorf("journal: remove tx %d/%d: %w", evseID, txNr, err)
	}
	delete(c.allocated, txNr%TxNrMax)
	if txNr == c.txNrBegin%TxNrMax {
		c.txNrBegin++
		if c.txNrFront < c.txNrBegin {
			c.txNrFront = c.txNrBegin
		}
	}
	return nil
}

// Front returns the oldest non-terminal transaction's txNr for evseID and
// whether one exists. The message queue drains in this order, oldest
// first, per connector.
func (j *Journal) Front(evseID int) (int, bool) {
	c := j.connectorFor(evseID)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.txNrFront >= c.txNrEnd {
		return 0, false
	}
	return c.txNrFront % TxNrMax, true
}

// AdvanceFront moves the front pointer past txNr once its StartTx/StopTx
// exchange is fully confirmed, letting the next oldest transaction become
// front. It is a no-op if txNr is not the current front.
func (j *Journal) AdvanceFront(evseID, txNr int) {
	c := j.connectorFor(evseID)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.txNrFront%TxNrMax == txNr {
		c.txNrFront++
	}
}

// MeterValue records are stored free-standing, keyed by a monotonic
// sequence number per connector; they are not part of the tx ring because
// a connector can accumulate clock-aligned samples with no open
// transaction.
func (j *Journal) CommitMeterValue(mv *MeterValue, seq int) error {
	data, err := json.Marshal(mv)
	if err != nil {
		return fmt.Errorf("journal: encode meter value %d/%d: %w", mv.EvseID, seq, err)
	}
	if err := j.fs.Write(persistence.RecordName("mv", mv.EvseID, seq), data); err != nil {
		return fmt.Errorf("journal: commit meter value %d/%d: %w", mv.EvseID, seq, err)
	}
	return nil
}

func (j *Journal) LoadMeterValue(evseID, seq int) (*MeterValue, error) {
	data, err := j.fs.Read(persistence.RecordName("mv", evseID, seq))
	if err != nil {
		return nil, err
	}
	var mv MeterValue
	if err := json.Unmarshal(data, &mv); err != nil {
		return nil, fmt.Errorf("journal: decode meter value %d/%d: %w", evseID, seq, err)
	}
	return &mv, nil
}

func (j *Journal) RemoveMeterValue(evseID, seq int) error {
	if err := j.fs.Remove(persistence.RecordName("mv", evseID, seq)); err != nil && err != persistence.ErrNotFound {
		return fmt.Errorf("journal: remove meter value %d/%d: %w", evseID, seq, err)
	}
	return nil
}
