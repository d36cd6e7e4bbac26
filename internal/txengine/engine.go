// Package txengine is the per-connector transaction state machine (spec
// §4.1), the largest single component of this system. It owns the
// begin/authorize/start/stop protocol, evaluates the 2.0.1
// TxStartPoint/TxStopPoint condition sets (and the 1.6
// TxStartOnPowerPathClosed knob), derives connector Status rather than
// driving it through an imperative transition table, and exposes
// TxHandle values so callers can detect a transaction's replacement
// across an asynchronous gap without holding a pointer into the journal.
//
// Grounded on the teacher's internal/station package for the
// status-derivation and availability/fault bookkeeping idiom, generalized
// from a fixed transition table into a recomputed-each-call function, and
// on the source implementation's TransactionService16::loop()/beginTx()/
// startTx()/stopTx() sequencing for the protocol itself.
package txengine

import (
	"fmt"
	"sync"
	"time"

	"github.com/ruslanhut/ocpp-chargepoint/internal/clockwork"
	"github.com/ruslanhut/ocpp-chargepoint/internal/journal"
	"github.com/ruslanhut/ocpp-chargepoint/internal/metering"
	"github.com/ruslanhut/ocpp-chargepoint/internal/variables"
)

// Status is the OCPP connector status this engine derives every time
// connector state changes, rather than storing it as independently
// mutable state.
type Status string

const (
	StatusAvailable     Status = "Available"
	StatusPreparing     Status = "Preparing"
	StatusCharging      Status = "Charging"
	StatusSuspendedEVSE Status = "SuspendedEVSE"
	StatusSuspendedEV   Status = "SuspendedEV"
	StatusFinishing     Status = "Finishing"
	StatusReserved      Status = "Reserved"
	StatusUnavailable   Status = "Unavailable"
	StatusFaulted       Status = "Faulted"
)

// AuthDecision is the outcome of an authorization check, online or local.
type AuthDecision struct {
	Accepted    bool
	ParentIDTag string
}

// Authorizer performs the online Authorize.req round trip. Implementations
// are expected to be backed by the message queue in practice; txengine
// only needs the decision, not the wire exchange.
type Authorizer interface {
	Authorize(idTag string) (AuthDecision, error)
}

// LocalList is the subset of internal/authlist's store txengine needs for
// the local-whitelist and offline-authorization fallback paths.
type LocalList interface {
	Status(idTag string) (accepted bool, parentIDTag string, known bool)
}

// TxHandle identifies one transaction by value. Holding a TxHandle across
// an asynchronous gap (e.g. awaiting an Authorize.conf) and later calling
// Engine.Stale tells the caller whether the transaction it started out
// watching has since terminated and had its slot recycled by the journal
// -- the replacement for pointer-identity staleness checks (spec §9).
type TxHandle struct {
	EvseID          int
	TxNr            int
	BeginFingerprint int64
}

func fingerprint(rec *journal.Record) int64 {
	if rec.BeginIsAbsolute {
		return rec.BeginUnixTime
	}
	return -rec.BeginUptimeNs - 1 // negative range keeps absolute/uptime fingerprints disjoint
}

func stampToRecord(s clockwork.Stamp, rec *journal.Record) {
	rec.BeginIsAbsolute = s.IsAbsolute
	if s.IsAbsolute {
		rec.BeginUnixTime = s.Absolute.Unix()
	} else {
		rec.BeginUptimeNs = int64(s.Uptime)
	}
}

func stampToStartRecord(s clockwork.Stamp, rec *journal.Record) {
	rec.StartIsAbsolute = s.IsAbsolute
	if s.IsAbsolute {
		rec.StartUnixTime = s.Absolute.Unix()
	} else {
		rec.StartUptimeNs = int64(s.Uptime)
	}
}

func stampToStopRecord(s clockwork.Stamp, rec *journal.Record) {
	rec.StopIsAbsolute = s.IsAbsolute
	if s.IsAbsolute {
		rec.StopUnixTime = s.Absolute.Unix()
	} else {
		rec.StopUptimeNs = int64(s.Uptime)
	}
}

// ChargingLimiter resolves the charging limit in effect for a connector at
// an instant (spec §4.7); internal/smartcharging.Store implements it.
type ChargingLimiter interface {
	ActiveLimit(evseID, txNr int, now time.Time) (limitAmps float64, ok bool)
}

type connectorState struct {
	available    bool
	faulted      bool
	reservedFor  *int

	evConnected        Input
	powerPathClosed    Input
	parkingBayOccupied Input
	dataSigned         Input
	energyTransfer     Input

	current      *journal.Record
	authPending  bool
	authDeadline time.Time

	evConnectedPrev          bool
	connectionDeadlineSet    bool
	connectionDeadlineUptime time.Duration
}

// Engine is the transaction state machine for every connector of one
// charge point.
type Engine struct {
	mu sync.Mutex

	journal    *journal.Journal
	vars       *variables.Store
	clock      *clockwork.Clock
	sampler    *metering.Sampler
	protocol201 bool

	authorize Authorizer
	localList LocalList
	online    bool

	chargingLimiter ChargingLimiter
	limitNotify     func(evseID int, limitAmps float64, ok bool)

	notify func(evseID int, ev journal.Event)

	connectors map[int]*connectorState
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithProtocol201 selects 2.0.1 TxStartPoint/TxStopPoint evaluation
// instead of the 1.6 TxStartOnPowerPathClosed knob.
func WithProtocol201(v bool) Option { return func(e *Engine) { e.protocol201 = v } }

// WithAuthorizer wires the online Authorize.req path.
func WithAuthorizer(a Authorizer) Option { return func(e *Engine) { e.authorize = a } }

// WithLocalList wires the local whitelist used for offline/pre-authorization.
func WithLocalList(l LocalList) Option { return func(e *Engine) { e.localList = l } }

// WithNotify wires the event sink the engine calls for every
// txNotification-worthy transition (spec §4.1 Outputs).
func WithNotify(fn func(evseID int, ev journal.Event)) Option {
	return func(e *Engine) { e.notify = fn }
}

// WithChargingLimiter wires the smart-charging limit lookup Tick polls
// once per connector per tick (spec §4.7).
func WithChargingLimiter(l ChargingLimiter) Option {
	return func(e *Engine) { e.chargingLimiter = l }
}

// WithLimitNotify wires the sink Tick calls with each connector's resolved
// charging limit (spec §4.7's smartChargingLimit output).
func WithLimitNotify(fn func(evseID int, limitAmps float64, ok bool)) Option {
	return func(e *Engine) { e.limitNotify = fn }
}

// New creates an Engine over j, reading configuration from vars and
// timestamps from clock.
func New(j *journal.Journal, vars *variables.Store, clock *clockwork.Clock, sampler *metering.Sampler, opts ...Option) *Engine {
	e := &Engine{
		journal:    j,
		vars:       vars,
		clock:      clock,
		sampler:    sampler,
		connectors: make(map[int]*connectorState),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RegisterConnector declares evseID as present and initially available.
func (e *Engine) RegisterConnector(evseID int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.connectors[evseID]; !ok {
		e.connectors[evseID] = &connectorState{available: true}
	}
}

// SetOnline toggles whether the engine treats the CSMS connection as up,
// which governs whether Authorize goes online or falls back to the local
// list / offline policy.
func (e *Engine) SetOnline(online bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.online = online
}

// SetInputs wires the physical condition capabilities for evseID. Any
// Input left as NotSetInput() keeps its previous wiring.
func (e *Engine) SetInputs(evseID int, evConnected, powerPathClosed, parkingBayOccupied, dataSigned, energyTransfer Input) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.connectorLocked(evseID)
	if evConnected.IsSet() {
		c.evConnected = evConnected
	}
	if powerPathClosed.IsSet() {
		c.powerPathClosed = powerPathClosed
	}
	if parkingBayOccupied.IsSet() {
		c.parkingBayOccupied = parkingBayOccupied
	}
	if dataSigned.IsSet() {
		c.dataSigned = dataSigned
	}
	if energyTransfer.IsSet() {
		c.energyTransfer = energyTransfer
	}
}

func (e *Engine) connectorLocked(evseID int) *connectorState {
	c, ok := e.connectors[evseID]
	if !ok {
		c = &connectorState{available: true}
		e.connectors[evseID] = c
	}
	return c
}

func (e *Engine) emit(evseID int, ev journal.Event) {
	if e.notify != nil {
		e.notify(evseID, ev)
	}
}

// handleFor builds the TxHandle for a connector's current transaction.
func handleFor(evseID int, rec *journal.Record) TxHandle {
	return TxHandle{EvseID: evseID, TxNr: rec.TxNr, BeginFingerprint: fingerprint(rec)}
}

// CurrentHandle returns the TxHandle for evseID's active transaction, if
// any.
func (e *Engine) CurrentHandle(evseID int) (TxHandle, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.connectors[evseID]
	if !ok || c.current == nil {
		return TxHandle{}, false
	}
	return handleFor(evseID, c.current), true
}

// Stale reports whether h no longer refers to a live, non-terminal
// transaction on its connector -- it has since stopped, been recycled,
// or the connector has moved on to a different transaction entirely.
func (e *Engine) Stale(h TxHandle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.connectors[h.EvseID]
	if !ok || c.current == nil {
		return true
	}
	if handleFor(h.EvseID, c.current) != h {
		return true
	}
	return !c.current.NonTerminal()
}

// Begin starts the authorization/begin protocol for idTag presented at
// evseID: it allocates a transaction record in the journal, captures the
// begin timestamp, and runs the authorization subflow (online Authorize
// if connected, else FreeVend, the local whitelist, or the offline policy).
// It returns the handle for the (possibly already-terminal, if rejected)
// transaction plus the txNotification event to surface.
func (e *Engine) Begin(evseID int, idTag string) (TxHandle, journal.Event, error) {
	e.mu.Lock()
	c := e.connectorLocked(evseID)
	if c.current != nil && c.current.NonTerminal() {
		e.mu.Unlock()
		return TxHandle{}, journal.EventAuthorizationRejected, fmt.Errorf("txengine: connector %d already has an active transaction", evseID)
	}
	if c.faulted || !c.available {
		e.mu.Unlock()
		return TxHandle{}, journal.EventAuthorizationRejected, fmt.Errorf("txengine: connector %d not available", evseID)
	}
	if c.reservedFor != nil {
		// A reservation on the connector only the reservation's own idTag
		// may start against; the caller (dispatch layer, which knows the
		// reservation's idTag) is responsible for calling ClearReservation
		// first when the match succeeds. Here we just refuse blind.
		e.mu.Unlock()
		return TxHandle{}, journal.EventReservationConflict, fmt.Errorf("txengine: connector %d reserved", evseID)
	}
	e.mu.Unlock()

	allowSilent := e.vars.GetBool("SilentOfflineTransactions")
	rec, err := e.journal.Allocate(evseID, allowSilent)
	if err != nil {
		return TxHandle{}, journal.EventAuthorizationRejected, fmt.Errorf("txengine: begin connector %d: %w", evseID, err)
	}
	rec.IDTag = idTag
	stampToRecord(e.clock.Capture(), rec)

	decision, ev := e.authorizeSubflow(idTag)
	rec.Authorized = decision.Accepted
	rec.ParentIDTag = decision.ParentIDTag
	if !decision.Accepted {
		rec.Aborted = true
		rec.Active = false
	}
	if err := e.journal.Commit(rec); err != nil {
		return TxHandle{}, ev, fmt.Errorf("txengine: commit begin connector %d: %w", evseID, err)
	}

	e.mu.Lock()
	c = e.connectorLocked(evseID)
	if decision.Accepted {
		c.current = rec
		c.connectionDeadlineSet = false
	}
	e.mu.Unlock()

	if decision.Accepted {
		if mv := e.sampler.TransactionBegin(evseID, rec.TxNr, unixNow(e.clock)); mv != nil {
			_ = e.journal.CommitMeterValue(mv, rec.TxNr)
		}
		e.evaluateStart(evseID, rec)
		e.armConnectionTimeout(evseID, rec)
	}
	e.emit(evseID, ev)
	return handleFor(evseID, rec), ev, nil
}

// armConnectionTimeout starts the ConnectionTimeOut countdown (spec B07)
// the first time an authorized transaction is left waiting for its start
// condition -- e.g. the EV has not yet been plugged in. Tick checks it.
func (e *Engine) armConnectionTimeout(evseID int, rec *journal.Record) {
	if rec.Started() {
		return
	}
	timeout := e.vars.GetInt("ConnectionTimeOut")
	if timeout <= 0 {
		timeout = 60
	}
	e.mu.Lock()
	c := e.connectorLocked(evseID)
	if !c.connectionDeadlineSet {
		c.connectionDeadlineUptime = e.clock.Uptime() + time.Duration(timeout)*time.Second
		c.connectionDeadlineSet = true
	}
	e.mu.Unlock()
}

func unixNow(c *clockwork.Clock) int64 {
	if c.IsUnixTimeKnown() {
		return c.Now().Unix()
	}
	return 0
}

// authorizeSubflow implements the online/local/offline decision tree
// (spec §4.1): prefer the online Authorize exchange while connected; if
// that is unavailable or fails, accept any idTag under FreeVendActive;
// then consult the local whitelist, whose accepted entries count only while
// online or with LocalAuthorizeOffline or LocalPreAuthorize set; then
// accept offline under AllowOfflineTxForUnknownId; reject otherwise.
func (e *Engine) authorizeSubflow(idTag string) (AuthDecision, journal.Event) {
	e.mu.Lock()
	online := e.online
	e.mu.Unlock()

	if online && e.authorize != nil {
		decision, err := e.authorize.Authorize(idTag)
		if err == nil {
			if decision.Accepted {
				return decision, journal.EventAuthorized
			}
			return decision, journal.EventAuthorizationRejected
		}
		// fall through to offline handling on a failed exchange
	}

	if e.vars.GetBool("FreeVendActive") {
		return AuthDecision{Accepted: true}, journal.EventAuthorized
	}

	if e.localList != nil {
		if accepted, parent, known := e.localList.Status(idTag); known {
			if accepted && (online || e.vars.GetBool("LocalAuthorizeOffline") || e.vars.GetBool("LocalPreAuthorize")) {
				return AuthDecision{Accepted: true, ParentIDTag: parent}, journal.EventAuthorized
			}
			if !accepted {
				return AuthDecision{}, journal.EventAuthorizationRejected
			}
		}
	}

	if !online && e.vars.GetBool("AllowOfflineTxForUnknownId") {
		return AuthDecision{Accepted: true}, journal.EventAuthorized
	}

	return AuthDecision{}, journal.EventAuthorizationRejected
}

// evaluateStart checks whether the connector's current condition inputs
// satisfy the configured start trigger and, if so, marks the transaction
// started.
func (e *Engine) evaluateStart(evseID int, rec *journal.Record) {
	e.mu.Lock()
	c := e.connectors[evseID]
	e.mu.Unlock()
	if c == nil || rec.Started() {
		return
	}

	ready := e.startConditionMet(c)
	if !ready {
		return
	}

	e.mu.Lock()
	stampToStartRecord(e.clock.Capture(), rec)
	rec.StartSync.Requested = true
	rec.Active = true
	c.connectionDeadlineSet = false
	e.mu.Unlock()
	_ = e.journal.Commit(rec)
	e.emit(evseID, journal.EventStartTx)
}

func (e *Engine) startConditionMet(c *connectorState) bool {
	if !e.protocol201 {
		if e.vars.GetBool("TxStartOnPowerPathClosed") {
			return c.powerPathClosed.Read(true)
		}
		return true // 1.6 default: authorization alone starts the tx
	}
	value, _ := e.vars.Get("TxStartPoint")
	points, err := variables.ParseTxPointList(value)
	if err != nil || len(points) == 0 {
		return true
	}
	for _, p := range points {
		if !e.conditionHolds(c, p) {
			return false
		}
	}
	return true
}

func (e *Engine) conditionHolds(c *connectorState, p variables.TxPoint) bool {
	switch p {
	case variables.TxPointParkingBayOccupancy:
		return c.parkingBayOccupied.Read(true)
	case variables.TxPointEVConnected:
		return c.evConnected.Read(true)
	case variables.TxPointAuthorized:
		return true // only reached once authorization already succeeded
	case variables.TxPointDataSigned:
		return c.dataSigned.Read(true)
	case variables.TxPointPowerPathClosed:
		return c.powerPathClosed.Read(true)
	case variables.TxPointEnergyTransfer:
		return c.energyTransfer.Read(true)
	default:
		return true
	}
}

// Stop ends evseID's current transaction for reason. It is valid to call
// even if the transaction never started (e.g. it was aborted during
// authorization); in that case it simply marks the record terminal.
func (e *Engine) Stop(evseID int, reason journal.StopReason) (TxHandle, error) {
	e.mu.Lock()
	c, ok := e.connectors[evseID]
	if !ok || c.current == nil {
		e.mu.Unlock()
		return TxHandle{}, fmt.Errorf("txengine: connector %d has no active transaction", evseID)
	}
	rec := c.current
	e.mu.Unlock()

	rec.StopReason = reason
	stampToStopRecord(e.clock.Capture(), rec)
	rec.StopSync.Requested = true
	rec.Active = false
	rec.Completed = true

	e.mu.Lock()
	c.connectionDeadlineSet = false
	e.mu.Unlock()

	if mv := e.sampler.TransactionEnd(evseID, rec.TxNr, unixNow(e.clock)); mv != nil {
		_ = e.journal.CommitMeterValue(mv, rec.TxNr)
	}
	if err := e.journal.Commit(rec); err != nil {
		return handleFor(evseID, rec), fmt.Errorf("txengine: commit stop connector %d: %w", evseID, err)
	}
	e.emit(evseID, journal.EventStopTx)
	return handleFor(evseID, rec), nil
}

// Sample records a periodic meter reading for evseID's running
// transaction, if any.
func (e *Engine) Sample(evseID int) {
	e.mu.Lock()
	c, ok := e.connectors[evseID]
	e.mu.Unlock()
	if !ok || c.current == nil || !c.current.Started() {
		return
	}
	if mv := e.sampler.Periodic(evseID, c.current.TxNr, unixNow(e.clock)); mv != nil {
		_ = e.journal.CommitMeterValue(mv, c.current.TxNr)
	}
}

// Silence gives up on evseID's txNr after the message queue has exhausted
// TransactionMessageAttempts delivering its StartTransaction/
// StopTransaction/TransactionEvent: the record is marked Silent and
// terminal so it is never retried or reported again, its meter data is
// discarded, and the connector is freed back to Available (spec §4.2
// property 1, scenario S2).
func (e *Engine) Silence(evseID, txNr int) {
	e.mu.Lock()
	c, ok := e.connectors[evseID]
	if !ok || c.current == nil || c.current.TxNr != txNr {
		e.mu.Unlock()
		return
	}
	rec := c.current
	c.current = nil
	c.connectionDeadlineSet = false
	e.mu.Unlock()

	rec.Silent = true
	rec.Active = false
	rec.Completed = true
	_ = e.journal.Commit(rec)
	_ = e.journal.RemoveMeterValue(evseID, txNr)
	e.journal.AdvanceFront(evseID, txNr)
}

// Tick re-evaluates every registered connector's start condition and
// physical-input-driven triggers (spec §4.1, §4.6, §4.7). The host loop
// calls this once per tick; besides Begin, it is the only place a
// transaction can progress once its inputs change after authorization.
func (e *Engine) Tick() {
	e.mu.Lock()
	evseIDs := make([]int, 0, len(e.connectors))
	for id := range e.connectors {
		evseIDs = append(evseIDs, id)
	}
	e.mu.Unlock()
	for _, evseID := range evseIDs {
		e.tickConnector(evseID)
	}
}

func (e *Engine) tickConnector(evseID int) {
	e.mu.Lock()
	c, ok := e.connectors[evseID]
	if !ok {
		e.mu.Unlock()
		return
	}
	rec := c.current
	plugged := c.evConnected.Read(false)
	rose := plugged && !c.evConnectedPrev
	fell := !plugged && c.evConnectedPrev
	c.evConnectedPrev = plugged
	freeVendActive := e.vars.GetBool("FreeVendActive")
	stopOnDisconnect := e.vars.GetBool("StopTransactionOnEVSideDisconnect")
	stopOnInvalidID := e.vars.GetBool("StopTransactionOnInvalidId")
	deadlineSet := c.connectionDeadlineSet
	deadline := c.connectionDeadlineUptime
	uptime := e.clock.Uptime()
	e.mu.Unlock()

	if rec != nil && rec.NonTerminal() {
		if !rec.Started() {
			e.evaluateStart(evseID, rec)
			if !rec.Started() && deadlineSet && uptime >= deadline {
				if _, err := e.Stop(evseID, journal.StopReasonConnectionTimeout); err == nil {
					e.emit(evseID, journal.EventConnectionTimeout)
				}
				rec = nil
			}
		} else {
			switch {
			case fell && stopOnDisconnect:
				if _, err := e.Stop(evseID, journal.StopReasonEVDisconnected); err == nil {
					e.emit(evseID, journal.EventStopTx)
				}
				rec = nil
			case rec.IDTagDeauthorized && stopOnInvalidID:
				if _, err := e.Stop(evseID, journal.StopReasonDeAuthorized); err == nil {
					e.emit(evseID, journal.EventDeAuthorized)
				}
				rec = nil
			default:
				e.Sample(evseID)
			}
		}
	} else if rec == nil && rose && freeVendActive {
		freeTag, _ := e.vars.Get("FreeVendIdTag")
		_, _, _ = e.Begin(evseID, freeTag)
	}

	e.pollChargingLimit(evseID, rec)
}

func (e *Engine) pollChargingLimit(evseID int, rec *journal.Record) {
	if e.chargingLimiter == nil || e.limitNotify == nil {
		return
	}
	txNr := -1
	if rec != nil {
		txNr = rec.TxNr
	}
	limit, ok := e.chargingLimiter.ActiveLimit(evseID, txNr, e.clock.Now())
	e.limitNotify(evseID, limit, ok)
}

// Resume reattaches evseID's persisted front transaction after a process
// restart (spec's PreBootTransactions). A transaction whose begin
// timestamp was only ever uptime-relative belongs to the previous
// process's clock epoch and can never be resolved to wall-clock now, so
// it is discarded silently (scenario S6) instead of being resumed with a
// fabricated timestamp; one stamped with an absolute begin time (the
// clock was already synced before the restart) is reattached as the
// connector's current transaction so delivery can continue (scenario S1).
func (e *Engine) Resume(evseID int) error {
	txNr, ok := e.journal.Front(evseID)
	if !ok {
		return nil
	}
	rec, err := e.journal.Load(evseID, txNr)
	if err != nil {
		return err
	}
	if !rec.NonTerminal() {
		return nil
	}
	if !rec.BeginIsAbsolute {
		rec.Silent = true
		rec.Active = false
		rec.Completed = true
		if err := e.journal.Commit(rec); err != nil {
			return err
		}
		e.journal.AdvanceFront(evseID, txNr)
		return nil
	}
	e.mu.Lock()
	c := e.connectorLocked(evseID)
	c.current = rec
	e.mu.Unlock()
	return nil
}

// ResyncClock re-stamps every connector's uptime-only Begin/Start/Stop
// timestamps with resolved wall-clock values once the clock has learned
// an absolute time from the CSMS or NTP (spec §4.2 scenarios S1/S5) -- a
// transaction that began or ran entirely offline is still reported with a
// real timestamp instead of the process's uptime origin.
func (e *Engine) ResyncClock() {
	if !e.clock.IsUnixTimeKnown() {
		return
	}
	e.mu.Lock()
	var recs []*journal.Record
	for _, c := range e.connectors {
		if c.current != nil {
			recs = append(recs, c.current)
		}
	}
	e.mu.Unlock()
	for _, rec := range recs {
		e.resyncRecord(rec)
	}
}

func (e *Engine) resyncRecord(rec *journal.Record) {
	changed := false
	if !rec.BeginIsAbsolute {
		if t, ok := e.clock.Resolve(time.Duration(rec.BeginUptimeNs)); ok {
			rec.BeginUnixTime = t.Unix()
			rec.BeginIsAbsolute = true
			changed = true
		}
	}
	if rec.Started() && !rec.StartIsAbsolute {
		if t, ok := e.clock.Resolve(time.Duration(rec.StartUptimeNs)); ok {
			rec.StartUnixTime = t.Unix()
			rec.StartIsAbsolute = true
			changed = true
		}
	}
	if rec.Stopped() && !rec.StopIsAbsolute {
		if t, ok := e.clock.Resolve(time.Duration(rec.StopUptimeNs)); ok {
			rec.StopUnixTime = t.Unix()
			rec.StopIsAbsolute = true
			changed = true
		}
	}
	if changed {
		_ = e.journal.Commit(rec)
	}
}

// RemoteStart attempts to start a transaction for idTag on evseID on the
// CSMS's behalf, as if the idTag had been presented locally.
func (e *Engine) RemoteStart(evseID int, idTag string) (TxHandle, error) {
	h, ev, err := e.Begin(evseID, idTag)
	if err != nil {
		return h, err
	}
	if ev != journal.EventAuthorized && ev != journal.EventStartTx {
		return h, fmt.Errorf("txengine: remote start rejected for connector %d", evseID)
	}
	return h, nil
}

// RemoteStop stops evseID's current transaction on the CSMS's behalf.
func (e *Engine) RemoteStop(evseID int) (TxHandle, error) {
	return e.Stop(evseID, journal.StopReasonRemote)
}

// SetAvailable toggles administrative availability for evseID.
func (e *Engine) SetAvailable(evseID int, available bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.connectorLocked(evseID).available = available
}

// SetFaulted marks evseID as faulted or clears a fault.
func (e *Engine) SetFaulted(evseID int, faulted bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.connectorLocked(evseID).faulted = faulted
}

// Reserve marks evseID reserved under reservationID, refusing if a
// transaction is already in progress.
func (e *Engine) Reserve(evseID, reservationID int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.connectorLocked(evseID)
	if c.current != nil && c.current.NonTerminal() {
		return fmt.Errorf("txengine: connector %d busy, cannot reserve", evseID)
	}
	id := reservationID
	c.reservedFor = &id
	return nil
}

// ClearReservation removes any reservation on evseID.
func (e *Engine) ClearReservation(evseID int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.connectorLocked(evseID).reservedFor = nil
}

// Status derives the connector's current OCPP status from its
// availability, fault, reservation, and transaction state -- it is never
// stored independently, only computed (spec's redesign away from an
// imperative transition table).
func (e *Engine) Status(evseID int) Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.connectors[evseID]
	if !ok {
		return StatusAvailable
	}
	switch {
	case c.faulted:
		return StatusFaulted
	case !c.available:
		return StatusUnavailable
	case c.reservedFor != nil:
		return StatusReserved
	case c.current == nil:
		return StatusAvailable
	case c.current.Completed || c.current.Aborted:
		return StatusFinishing
	case !c.current.Started():
		return StatusPreparing
	case !c.energyTransfer.Read(true):
		return StatusSuspendedEVSE
	case !c.evConnected.Read(true):
		return StatusSuspendedEV
	default:
		return StatusCharging
	}
}
