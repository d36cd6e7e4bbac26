package variables

import (
	"testing"

	"github.com/ruslanhut/ocpp-chargepoint/internal/persistence"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	fs, err := persistence.NewDir(dir)
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	s := New(fs, "ocpp-config.jsn")
	Declare1_6(s)
	return s, dir
}

func TestSetRejectsBadType(t *testing.T) {
	s, _ := newTestStore(t)
	if got := s.Set("ConnectionTimeOut", "not-a-number", false); got != StatusRejected {
		t.Fatalf("Set = %v, want Rejected", got)
	}
	v, _ := s.Get("ConnectionTimeOut")
	if v != "60" {
		t.Fatalf("value changed after rejected set: %v", v)
	}
}

func TestSetUnknownKeyByProtocol(t *testing.T) {
	s, _ := newTestStore(t)
	if got := s.Set("NoSuchKey", "x", false); got != StatusNotSupported {
		t.Fatalf("1.6 unknown key = %v, want NotSupported", got)
	}
	if got := s.Set("NoSuchKey", "x", true); got != StatusUnknownVariable {
		t.Fatalf("2.0.1 unknown key = %v, want UnknownVariable", got)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s, dir := newTestStore(t)
	if got := s.Set("ConnectionTimeOut", "45", false); got != StatusAccepted {
		t.Fatalf("Set = %v", got)
	}
	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	fs2, err := persistence.NewDir(dir)
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	s2 := New(fs2, "ocpp-config.jsn")
	Declare1_6(s2)
	if err := s2.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if v := s2.GetInt("ConnectionTimeOut"); v != 45 {
		t.Fatalf("reloaded ConnectionTimeOut = %d, want 45", v)
	}
}

func TestMeasurandListRejectsWholeUpdateAtomically(t *testing.T) {
	s, _ := newTestStore(t)
	if got := s.Set("MeterValuesSampledData", "Energy.Active.Import.Register, ,Voltage", false); got != StatusRejected {
		t.Fatalf("Set = %v, want Rejected", got)
	}
	v, _ := s.Get("MeterValuesSampledData")
	if v != "Energy.Active.Import.Register" {
		t.Fatalf("value changed after rejected atomic update: %v", v)
	}
}

func TestParseTxPointListRejectsFirstUnknownPreservesOrder(t *testing.T) {
	_, err := ParseTxPointList("PowerPathClosed,Bogus,EVConnected")
	if err == nil {
		t.Fatal("expected error on unknown token")
	}

	list, err := ParseTxPointList("EVConnected, PowerPathClosed")
	if err != nil {
		t.Fatalf("ParseTxPointList: %v", err)
	}
	if len(list) != 2 || list[0] != TxPointEVConnected || list[1] != TxPointPowerPathClosed {
		t.Fatalf("ParseTxPointList order not preserved: %v", list)
	}
}
