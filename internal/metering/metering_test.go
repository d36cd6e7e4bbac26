package metering

import (
	"testing"

	"github.com/ruslanhut/ocpp-chargepoint/internal/persistence"
	"github.com/ruslanhut/ocpp-chargepoint/internal/variables"
)

func newTestSampler(t *testing.T, readings map[string]string) *Sampler {
	t.Helper()
	fs, err := persistence.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	vars := variables.New(fs, "")
	variables.Declare1_6(vars)

	read := func(measurand string) (string, string, bool) {
		v, ok := readings[measurand]
		return v, "Wh", ok
	}
	return New(vars, read)
}

func TestTransactionBeginFiresExactlyOnce(t *testing.T) {
	s := newTestSampler(t, map[string]string{"Energy.Active.Import.Register": "100"})

	first := s.TransactionBegin(1, 7, 1000)
	if first == nil {
		t.Fatal("expected first TransactionBegin sample")
	}
	if first.Context != string(ContextTransactionBegin) {
		t.Fatalf("context = %q", first.Context)
	}

	second := s.TransactionBegin(1, 7, 1010)
	if second != nil {
		t.Fatalf("expected nil on repeated TransactionBegin for same tx, got %+v", second)
	}
}

func TestTransactionEndClearsDedupeForReusedTxNr(t *testing.T) {
	s := newTestSampler(t, map[string]string{"Energy.Active.Import.Register": "100"})

	if s.TransactionBegin(1, 7, 1000) == nil {
		t.Fatal("expected first begin sample")
	}
	if s.TransactionEnd(1, 7, 2000) == nil {
		t.Fatal("expected end sample")
	}
	if s.TransactionBegin(1, 7, 3000) == nil {
		t.Fatal("expected a new begin sample once txNr 7 is reused by a later transaction")
	}
}

func TestClockSampleUnboundWithNoOpenTransaction(t *testing.T) {
	s := newTestSampler(t, map[string]string{"Energy.Active.Import.Register": "200"})
	mv := s.Clock(1, -1, 5000)
	if mv == nil {
		t.Fatal("expected clock-aligned sample with no open transaction")
	}
	if mv.TxNr != -1 {
		t.Fatalf("TxNr = %d, want -1 (unbound)", mv.TxNr)
	}
}

func TestSampleNilWhenNoMeasurandsRead(t *testing.T) {
	s := newTestSampler(t, map[string]string{})
	if mv := s.Periodic(1, 1, 100); mv != nil {
		t.Fatalf("expected nil meter value with no readable measurands, got %+v", mv)
	}
}

func TestOrderingDetectsBeginAfterEnd(t *testing.T) {
	o := NewOrdering()
	if !o.Record(1, 7, ContextTransactionBegin) {
		t.Fatal("first record should always pass")
	}
	if !o.Record(1, 7, ContextSamplePeriodic) {
		t.Fatal("periodic after begin should pass")
	}
	if !o.Record(1, 7, ContextTransactionEnd) {
		t.Fatal("end after periodic should pass")
	}
	if o.Record(1, 7, ContextTransactionBegin) {
		t.Fatal("begin after end should violate ordering")
	}
}
