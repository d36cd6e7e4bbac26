package txengine

import (
	"testing"
	"time"

	"github.com/ruslanhut/ocpp-chargepoint/internal/clockwork"
	"github.com/ruslanhut/ocpp-chargepoint/internal/journal"
	"github.com/ruslanhut/ocpp-chargepoint/internal/metering"
	"github.com/ruslanhut/ocpp-chargepoint/internal/persistence"
	"github.com/ruslanhut/ocpp-chargepoint/internal/variables"
)

type fakeAuthorizer struct {
	decision AuthDecision
	err      error
}

func (f fakeAuthorizer) Authorize(idTag string) (AuthDecision, error) { return f.decision, f.err }

type fakeLocalList struct {
	entries map[string]struct {
		accepted bool
		parent   string
	}
}

func (f fakeLocalList) Status(idTag string) (bool, string, bool) {
	e, ok := f.entries[idTag]
	return e.accepted, e.parent, ok
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *journal.Journal, *variables.Store) {
	t.Helper()
	fs, err := persistence.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	j := journal.New(fs, journal.DefaultCapacity)
	vars := variables.New(fs, "")
	variables.Declare1_6(vars)
	clock := clockwork.New(time.Unix(1000, 0), func() time.Time { return time.Unix(1000, 0) })
	clock.Set(time.Unix(1000, 0))
	sampler := metering.New(vars, func(m string) (string, string, bool) { return "1", "Wh", true })

	e := New(j, vars, clock, sampler, opts...)
	e.RegisterConnector(1)
	return e, j, vars
}

func TestBeginAcceptedOnlineStartsImmediately16(t *testing.T) {
	e, _, _ := newTestEngine(t, WithAuthorizer(fakeAuthorizer{decision: AuthDecision{Accepted: true}}))
	e.SetOnline(true)

	h, ev, err := e.Begin(1, "ABC123")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if ev != journal.EventStartTx && ev != journal.EventAuthorized {
		t.Fatalf("event = %v, want Authorized/StartTx", ev)
	}
	if e.Stale(h) {
		t.Fatal("freshly begun transaction handle should not be stale")
	}
	if status := e.Status(1); status != StatusCharging && status != StatusPreparing {
		t.Fatalf("status = %v, want Preparing or Charging", status)
	}
}

func TestBeginRejectedWhenOfflineAndUnknown(t *testing.T) {
	e, _, _ := newTestEngine(t)
	e.SetOnline(false)

	_, ev, err := e.Begin(1, "UNKNOWN")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if ev != journal.EventAuthorizationRejected {
		t.Fatalf("event = %v, want AuthorizationRejected", ev)
	}
	if status := e.Status(1); status != StatusAvailable {
		t.Fatalf("status after rejected begin = %v, want Available", status)
	}
}

func TestFreeVendAcceptsAnyTag(t *testing.T) {
	e, _, vars := newTestEngine(t)
	e.SetOnline(false)
	if got := vars.Set("FreeVendActive", "true", false); got != variables.StatusAccepted {
		t.Fatalf("Set FreeVendActive: %v", got)
	}

	_, ev, err := e.Begin(1, "ANY-TAG")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if ev != journal.EventAuthorized {
		t.Fatalf("event = %v, want Authorized under FreeVend", ev)
	}
}

func TestLocalListOfflineFallback(t *testing.T) {
	localList := fakeLocalList{entries: map[string]struct {
		accepted bool
		parent   string
	}{
		"LOCAL1": {accepted: true, parent: "PARENT1"},
	}}
	e, _, vars := newTestEngine(t, WithLocalList(localList))
	e.SetOnline(false)
	if got := vars.Set("LocalAuthorizeOffline", "true", false); got != variables.StatusAccepted {
		t.Fatalf("Set LocalAuthorizeOffline: %v", got)
	}

	_, ev, err := e.Begin(1, "LOCAL1")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if ev != journal.EventAuthorized {
		t.Fatalf("event = %v, want Authorized via local list", ev)
	}
}

func TestTxStartPointGatesStartUntilAllConditionsHold201(t *testing.T) {
	e, j, vars := newTestEngine(t, WithProtocol201(true), WithAuthorizer(fakeAuthorizer{decision: AuthDecision{Accepted: true}}))
	variables.Declare2_0_1(vars) // newTestEngine declares only the 1.6 catalog
	e.SetOnline(true)
	if got := vars.Set("TxStartPoint", "EVConnected,PowerPathClosed", false); got != variables.StatusAccepted {
		t.Fatalf("Set TxStartPoint: %v", got)
	}
	e.SetInputs(1, ConstantInput(false), ConstantInput(false), NotSetInput(), NotSetInput(), NotSetInput())

	h, _, err := e.Begin(1, "ABC123")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	rec, err := j.Load(1, h.TxNr)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rec.Started() {
		t.Fatal("transaction should not have started: EVConnected/PowerPathClosed both false")
	}

	e.SetInputs(1, ConstantInput(true), ConstantInput(true), NotSetInput(), NotSetInput(), NotSetInput())
	e.evaluateStart(1, rec)
	if !rec.Started() {
		t.Fatal("transaction should start once both TxStartPoint conditions hold")
	}
}

func TestStopMarksTerminalAndHandleGoesStale(t *testing.T) {
	e, _, _ := newTestEngine(t, WithAuthorizer(fakeAuthorizer{decision: AuthDecision{Accepted: true}}))
	e.SetOnline(true)

	h, _, err := e.Begin(1, "ABC123")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := e.Stop(1, journal.StopReasonLocal); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !e.Stale(h) {
		t.Fatal("handle to a stopped transaction should be stale")
	}
	if status := e.Status(1); status != StatusFinishing {
		t.Fatalf("status after stop = %v, want Finishing", status)
	}
}

func TestReserveBlocksBeginAndClearReservationUnblocks(t *testing.T) {
	e, _, _ := newTestEngine(t)
	if err := e.Reserve(1, 42); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if status := e.Status(1); status != StatusReserved {
		t.Fatalf("status = %v, want Reserved", status)
	}
	if _, _, err := e.Begin(1, "ANY"); err == nil {
		t.Fatal("expected Begin to fail on a reserved connector")
	}
	e.ClearReservation(1)
	if status := e.Status(1); status != StatusAvailable {
		t.Fatalf("status after clear = %v, want Available", status)
	}
}

func TestSilenceDiscardsRecordAndFreesConnector(t *testing.T) {
	e, j, _ := newTestEngine(t, WithAuthorizer(fakeAuthorizer{decision: AuthDecision{Accepted: true}}))
	e.SetOnline(true)

	h, _, err := e.Begin(1, "ABC123")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	e.Silence(1, h.TxNr)

	if status := e.Status(1); status != StatusAvailable {
		t.Fatalf("status after silence = %v, want Available", status)
	}
	rec, err := j.Load(1, h.TxNr)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !rec.Silent || !rec.Completed {
		t.Fatalf("record = %+v, want Silent and Completed", rec)
	}
	if _, ok := j.Front(1); ok {
		t.Fatal("front should have advanced past the silenced transaction")
	}
	if _, err := j.LoadMeterValue(1, h.TxNr); err == nil {
		t.Fatal("expected the silenced transaction's meter value to be discarded")
	}
}

func TestTickFreeVendRisingEdgeAutoBegins(t *testing.T) {
	e, _, vars := newTestEngine(t)
	if got := vars.Set("FreeVendActive", "true", false); got != variables.StatusAccepted {
		t.Fatalf("Set FreeVendActive: %v", got)
	}
	e.SetInputs(1, ConstantInput(false), NotSetInput(), NotSetInput(), NotSetInput(), NotSetInput())

	e.Tick()
	if _, ok := e.CurrentHandle(1); ok {
		t.Fatal("no transaction expected before the plug-in edge")
	}

	e.SetInputs(1, ConstantInput(true), NotSetInput(), NotSetInput(), NotSetInput(), NotSetInput())
	e.Tick()
	if _, ok := e.CurrentHandle(1); !ok {
		t.Fatal("expected FreeVend to auto-begin a transaction on the plug-in rising edge")
	}
}

func TestTickStopsOnEVSideDisconnect(t *testing.T) {
	e, _, vars := newTestEngine(t, WithAuthorizer(fakeAuthorizer{decision: AuthDecision{Accepted: true}}))
	e.SetOnline(true)
	vars.Set("StopTransactionOnEVSideDisconnect", "true", false)
	e.SetInputs(1, ConstantInput(true), NotSetInput(), NotSetInput(), NotSetInput(), NotSetInput())

	h, _, err := e.Begin(1, "ABC123")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	e.Tick() // establish the plugged-in baseline edge

	e.SetInputs(1, ConstantInput(false), NotSetInput(), NotSetInput(), NotSetInput(), NotSetInput())
	e.Tick()

	if !e.Stale(h) {
		t.Fatal("expected the transaction to stop once the EV disconnects")
	}
}

func TestResumeDiscardsUptimeOnlyTransactionAcrossRestart(t *testing.T) {
	e, j, _ := newTestEngine(t)
	rec, err := j.Allocate(1, false)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	rec.Active = true
	rec.BeginIsAbsolute = false
	rec.BeginUptimeNs = int64(5 * time.Second)
	if err := j.Commit(rec); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if err := e.Resume(1); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if _, ok := e.CurrentHandle(1); ok {
		t.Fatal("an uptime-only transaction must not be resumed after a restart")
	}
	reloaded, err := j.Load(1, rec.TxNr)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reloaded.Silent || !reloaded.Completed {
		t.Fatalf("record = %+v, want Silent and Completed after Resume discards it", reloaded)
	}
}

func TestResumeReattachesAbsoluteTransactionAcrossRestart(t *testing.T) {
	e, j, _ := newTestEngine(t)
	rec, err := j.Allocate(1, false)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	rec.Active = true
	rec.BeginIsAbsolute = true
	rec.BeginUnixTime = 1000
	if err := j.Commit(rec); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if err := e.Resume(1); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	h, ok := e.CurrentHandle(1)
	if !ok || h.TxNr != rec.TxNr {
		t.Fatalf("expected the absolute-timestamped transaction to be reattached, got %+v, ok=%v", h, ok)
	}
}

func TestResyncClockResolvesUptimeStamps(t *testing.T) {
	fs, err := persistence.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	j := journal.New(fs, journal.DefaultCapacity)
	vars := variables.New(fs, "")
	variables.Declare1_6(vars)
	clock := clockwork.New(time.Unix(1000, 0), func() time.Time { return time.Unix(1030, 0) })
	sampler := metering.New(vars, func(m string) (string, string, bool) { return "1", "Wh", true })
	e := New(j, vars, clock, sampler, WithAuthorizer(fakeAuthorizer{decision: AuthDecision{Accepted: true}}))
	e.RegisterConnector(1)
	e.SetOnline(true)

	h, _, err := e.Begin(1, "ABC123")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	rec, err := j.Load(1, h.TxNr)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rec.BeginIsAbsolute {
		t.Fatal("begin stamp should be uptime-relative before the clock syncs")
	}

	clock.Set(time.Unix(2000, 0)) // CSMS supplies wall-clock at uptime 30s
	e.ResyncClock()

	resynced, err := j.Load(1, h.TxNr)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !resynced.BeginIsAbsolute {
		t.Fatal("expected BeginIsAbsolute=true after ResyncClock")
	}
	// now() is a constant fake (time.Unix(1030, 0)), so the uptime at
	// capture equals the uptime at Set and Resolve introduces no offset.
	want := time.Unix(2000, 0).Unix()
	if resynced.BeginUnixTime != want {
		t.Fatalf("BeginUnixTime = %d, want %d", resynced.BeginUnixTime, want)
	}
}

func TestFaultedConnectorRefusesBegin(t *testing.T) {
	e, _, _ := newTestEngine(t)
	e.SetFaulted(1, true)
	if status := e.Status(1); status != StatusFaulted {
		t.Fatalf("status = %v, want Faulted", status)
	}
	if _, _, err := e.Begin(1, "ANY"); err == nil {
		t.Fatal("expected Begin to fail on a faulted connector")
	}
}
