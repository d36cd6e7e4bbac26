package runtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ruslanhut/ocpp-chargepoint/internal/analytics"
	"github.com/ruslanhut/ocpp-chargepoint/internal/clockwork"
	"github.com/ruslanhut/ocpp-chargepoint/internal/dispatch"
	"github.com/ruslanhut/ocpp-chargepoint/internal/journal"
	"github.com/ruslanhut/ocpp-chargepoint/internal/metering"
	"github.com/ruslanhut/ocpp-chargepoint/internal/persistence"
	"github.com/ruslanhut/ocpp-chargepoint/internal/txengine"
	"github.com/ruslanhut/ocpp-chargepoint/internal/variables"
)

type stubAuthorizer struct{ accepted bool }

func (s stubAuthorizer) Authorize(idTag string) (txengine.AuthDecision, error) {
	return txengine.AuthDecision{Accepted: s.accepted}, nil
}

// newTestEngine builds a connector-1 engine over a fresh journal/vars/clock,
// accepting every Authorize as idTag "TAG1" (the fixture used throughout
// these tests).
func newTestEngine(t *testing.T) (*txengine.Engine, *journal.Journal, *variables.Store, *clockwork.Clock) {
	t.Helper()
	fs, err := persistence.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	j := journal.New(fs, journal.DefaultCapacity)
	vars := variables.New(fs, "")
	variables.Declare1_6(vars)
	clock := clockwork.New(time.Unix(1000, 0), func() time.Time { return time.Unix(1000, 0) })
	sampler := metering.New(vars, func(m string) (string, string, bool) { return "1", "Wh", true })
	e := txengine.New(j, vars, clock, sampler, txengine.WithAuthorizer(stubAuthorizer{accepted: true}))
	e.RegisterConnector(1)
	e.SetOnline(true)
	return e, j, vars, clock
}

func newTestJournal(t *testing.T) *journal.Journal {
	t.Helper()
	fs, err := persistence.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	return journal.New(fs, journal.DefaultCapacity)
}

func TestNotifierEnqueuesStartTransactionOnStartTx(t *testing.T) {
	j := newTestJournal(t)
	rec, err := j.Allocate(1, false)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	rec.IDTag = "TAG1"
	rec.StartSync.Requested = true
	rec.StartUnixTime = time.Now().Unix()
	rec.MeterStart = 100
	if err := j.Commit(rec); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	l := New(nil)
	l.Journal = j
	l.Queue = dispatch.New()

	l.NewNotifier()(1, journal.EventStartTx)

	call, ok := l.Queue.Next(time.Now())
	if !ok {
		t.Fatal("expected a pending StartTransaction call")
	}
	if call.Action != "StartTransaction" {
		t.Fatalf("Action = %q, want StartTransaction", call.Action)
	}
	if !call.TxBound {
		t.Fatal("expected the call to be tx-bound")
	}
}

func TestNotifierEnqueuesStopTransactionAndMirrorsAnalytics(t *testing.T) {
	j := newTestJournal(t)
	rec, err := j.Allocate(1, false)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	rec.IDTag = "TAG1"
	start := time.Now().Add(-time.Hour)
	rec.StartSync.Requested = true
	rec.StartUnixTime = start.Unix()
	rec.MeterStart = 100
	rec.StopSync.Requested = true
	rec.StopUnixTime = start.Add(30 * time.Minute).Unix()
	rec.MeterStop = 2100
	rec.Completed = true
	rec.StopReason = journal.StopReasonLocal
	if err := j.Commit(rec); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	l := New(nil)
	l.Journal = j
	l.Queue = dispatch.New()
	l.Mirror = analytics.NewMirror(nil, nil, analytics.Config{FlushInterval: time.Hour})
	l.Mirror.Start()
	defer l.Mirror.Shutdown()

	l.NewNotifier()(1, journal.EventStopTx)

	call, ok := l.Queue.Next(time.Now())
	if !ok {
		t.Fatal("expected a pending StopTransaction call")
	}
	if call.Action != "StopTransaction" {
		t.Fatalf("Action = %q, want StopTransaction", call.Action)
	}

	stats := l.Mirror.Stats()
	if stats.Count != 1 {
		t.Fatalf("mirrored session count = %d, want 1", stats.Count)
	}
	if stats.MeanEnergyWh != 2000 {
		t.Fatalf("MeanEnergyWh = %v, want 2000", stats.MeanEnergyWh)
	}
}

func TestTxRetryPolicyFallsBackToDefaultsWithoutVars(t *testing.T) {
	l := New(nil)
	maxAttempts, interval := l.txRetryPolicy()
	if maxAttempts != defaultTxMaxAttempts || interval != defaultTxRetryInterval {
		t.Fatalf("txRetryPolicy() = (%d, %v), want defaults (%d, %v)", maxAttempts, interval, defaultTxMaxAttempts, defaultTxRetryInterval)
	}
}

func TestTxRetryPolicyReadsConfiguredVariables(t *testing.T) {
	fs, err := persistence.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	vars := variables.New(fs, "")
	variables.Declare1_6(vars)
	vars.Set("TransactionMessageAttempts", "5", false)
	vars.Set("TransactionMessageRetryInterval", "120", false)

	l := New(nil)
	l.Vars = vars
	maxAttempts, interval := l.txRetryPolicy()
	if maxAttempts != 5 || interval != 120*time.Second {
		t.Fatalf("txRetryPolicy() = (%d, %v), want (5, 120s)", maxAttempts, interval)
	}
}

func TestHandleDispatchFailureSilencesTxOnceAttemptsExhausted(t *testing.T) {
	engine, j, _, _ := newTestEngine(t)
	h, _, err := engine.Begin(1, "TAG1")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	l := New(nil)
	l.Engine = engine
	l.Journal = j
	l.Queue = dispatch.New()

	call := l.Queue.Enqueue(1, "StartTransaction", nil, true, 1, time.Hour)
	l.handleDispatchFailure(1, call.OpNr, "StartTransaction", time.Now())

	if status := engine.Status(1); status != txengine.StatusAvailable {
		t.Fatalf("status after silence = %v, want Available", status)
	}
	rec, err := j.Load(1, h.TxNr)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !rec.Silent {
		t.Fatal("expected the transaction to be marked Silent once delivery attempts are exhausted")
	}
	if l.Queue.Len(1) != 0 {
		t.Fatalf("Queue.Len(1) = %d, want 0 after giving up", l.Queue.Len(1))
	}
}

func TestHandleDispatchFailureDoesNotSilenceBeforeMaxAttempts(t *testing.T) {
	engine, j, _, _ := newTestEngine(t)
	if _, _, err := engine.Begin(1, "TAG1"); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	l := New(nil)
	l.Engine = engine
	l.Journal = j
	l.Queue = dispatch.New()

	call := l.Queue.Enqueue(1, "StartTransaction", nil, true, 3, time.Hour)
	l.handleDispatchFailure(1, call.OpNr, "StartTransaction", time.Now())

	if status := engine.Status(1); status == txengine.StatusAvailable {
		t.Fatal("transaction should not be silenced before MaxAttempts is reached")
	}
}

func TestRecordClockSyncAppliesCurrentTimeAndResyncsEngine(t *testing.T) {
	engine, j, _, clock := newTestEngine(t)
	h, _, err := engine.Begin(1, "TAG1")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	before, err := j.Load(1, h.TxNr)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if before.BeginIsAbsolute {
		t.Fatal("begin stamp should be uptime-relative before any clock sync arrives")
	}

	l := New(nil)
	l.Engine = engine
	l.Clock = clock

	payload, err := json.Marshal(map[string]string{"currentTime": "2026-07-30T12:00:00Z"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	l.recordClockSync(pendingCorrelation{action: "BootNotification"}, payload)

	if !clock.IsUnixTimeKnown() {
		t.Fatal("expected Clock.Set to have been applied")
	}
	after, err := j.Load(1, h.TxNr)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !after.BeginIsAbsolute {
		t.Fatal("expected ResyncClock to resolve the uptime-only begin stamp")
	}
	want, _ := time.Parse(time.RFC3339, "2026-07-30T12:00:00Z")
	if after.BeginUnixTime != want.Unix() {
		t.Fatalf("BeginUnixTime = %d, want %d", after.BeginUnixTime, want.Unix())
	}
}
