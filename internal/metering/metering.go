// Package metering builds meter-value samples from the measurand lists
// declared in internal/variables, grounded on the teacher's statistics
// aggregation idiom but re-aimed at the per-transaction sampling contract
// in spec §3/§4.
package metering

import (
	"sync"

	"github.com/ruslanhut/ocpp-chargepoint/internal/journal"
	"github.com/ruslanhut/ocpp-chargepoint/internal/variables"
)

// Context mirrors the OCPP ReadingContext values this engine emits.
type Context string

const (
	ContextTransactionBegin Context = "Transaction.Begin"
	ContextSamplePeriodic   Context = "Sample.Periodic"
	ContextSampleClock      Context = "Sample.Clock"
	ContextTransactionEnd   Context = "Transaction.End"
	ContextTrigger          Context = "Trigger"
)

// Reader is the host-supplied meter backend: given a measurand name, it
// returns the current reading, or ok=false if that measurand is not
// available on this hardware.
type Reader func(measurand string) (value, unit string, ok bool)

type txKey struct {
	evseID int
	txNr   int
}

// Sampler turns the configured measurand lists into journal.MeterValue
// records on demand. One Sampler is shared across all connectors; the
// per-transaction dedupe state below is what guarantees a
// Transaction.Begin sample fires exactly once per tx-start transition
// even if the engine calls TransactionBegin more than once for the same
// (evseID, txNr) while retrying the StartTransaction/TransactionEvent
// exchange.
type Sampler struct {
	vars *variables.Store
	read Reader

	mu      sync.Mutex
	beganTx map[txKey]bool
}

// New creates a Sampler reading measurand lists from vars and values
// through read. A nil read reports every measurand as unavailable.
func New(vars *variables.Store, read Reader) *Sampler {
	return &Sampler{vars: vars, read: read, beganTx: make(map[txKey]bool)}
}

func (s *Sampler) measurands(key string) []string {
	v, ok := s.vars.Get(key)
	if !ok {
		return nil
	}
	list, err := variables.ParseMeasurandList(v)
	if err != nil {
		return nil
	}
	return list
}

func (s *Sampler) sample(measurands []string, evseID, txNr int, unixTime int64, ctx Context) *journal.MeterValue {
	if s.read == nil {
		return nil
	}
	var samples []journal.Sample
	for _, m := range measurands {
		value, unit, ok := s.read(m)
		if !ok {
			continue
		}
		samples = append(samples, journal.Sample{Measurand: m, Unit: unit, Value: value})
	}
	if len(samples) == 0 {
		return nil
	}
	return &journal.MeterValue{EvseID: evseID, TxNr: txNr, UnixTime: unixTime, Context: string(ctx), Samples: samples}
}

// TransactionBegin returns the Transaction.Begin meter value for
// (evseID, txNr), sampled from MeterValuesSampledData, exactly once per
// transaction. Later calls for the same (evseID, txNr) return nil.
func (s *Sampler) TransactionBegin(evseID, txNr int, unixTime int64) *journal.MeterValue {
	s.mu.Lock()
	k := txKey{evseID, txNr}
	if s.beganTx[k] {
		s.mu.Unlock()
		return nil
	}
	s.beganTx[k] = true
	s.mu.Unlock()
	return s.sample(s.measurands("MeterValuesSampledData"), evseID, txNr, unixTime, ContextTransactionBegin)
}

// Periodic returns a Sample.Periodic meter value bound to an open
// transaction, sampled from MeterValuesSampledData.
func (s *Sampler) Periodic(evseID, txNr int, unixTime int64) *journal.MeterValue {
	return s.sample(s.measurands("MeterValuesSampledData"), evseID, txNr, unixTime, ContextSamplePeriodic)
}

// Clock returns a clock-aligned Sample.Clock meter value sampled from
// MeterValuesAlignedData. txNr is -1 when no transaction is open on the
// connector; a clock-aligned sample is still emitted in that case.
func (s *Sampler) Clock(evseID, txNr int, unixTime int64) *journal.MeterValue {
	return s.sample(s.measurands("MeterValuesAlignedData"), evseID, txNr, unixTime, ContextSampleClock)
}

// TransactionEnd returns the Transaction.End meter value sampled from
// StopTxnSampledData, and clears the dedupe state for (evseID, txNr) so a
// transaction later allocated onto the same recycled txNr gets its own
// Transaction.Begin.
func (s *Sampler) TransactionEnd(evseID, txNr int, unixTime int64) *journal.MeterValue {
	s.mu.Lock()
	delete(s.beganTx, txKey{evseID, txNr})
	s.mu.Unlock()
	return s.sample(s.measurands("StopTxnSampledData"), evseID, txNr, unixTime, ContextTransactionEnd)
}

// Trigger returns an on-demand meter value for TriggerMessage-style
// requests, sampled from MeterValuesSampledData.
func (s *Sampler) Trigger(evseID, txNr int, unixTime int64) *journal.MeterValue {
	return s.sample(s.measurands("MeterValuesSampledData"), evseID, txNr, unixTime, ContextTrigger)
}

var ctxRank = map[Context]int{
	ContextTransactionBegin: 0,
	ContextSamplePeriodic:   1,
	ContextSampleClock:      1,
	ContextTransactionEnd:   2,
}

// Ordering enforces the "Transaction.Begin before Sample.Periodic before
// Transaction.End" sequencing invariant (spec §8) for a connector's
// sample stream. It reports violations rather than panicking so callers
// can log and continue.
type Ordering struct {
	mu   sync.Mutex
	seen map[txKey]Context
}

// NewOrdering creates an empty Ordering tracker.
func NewOrdering() *Ordering {
	return &Ordering{seen: make(map[txKey]Context)}
}

// Record appends ctx to the sequence observed for (evseID, txNr) and
// reports whether the sequence remains in non-decreasing rank order.
func (o *Ordering) Record(evseID, txNr int, ctx Context) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	k := txKey{evseID, txNr}
	last, ok := o.seen[k]
	o.seen[k] = ctx
	if !ok {
		return true
	}
	return ctxRank[ctx] >= ctxRank[last]
}
