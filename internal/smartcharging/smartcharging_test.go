package smartcharging

import (
	"testing"
	"time"

	"github.com/ruslanhut/ocpp-chargepoint/internal/persistence"
)

func TestTxProfileOutranksTxDefaultAndMax(t *testing.T) {
	fs, err := persistence.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	s := New(fs)
	now := time.Now()

	_ = s.Set(Profile{ID: 1, EvseID: 0, Purpose: PurposeChargePointMaxProfile, StackLevel: 0, Periods: []Period{{LimitAmps: 32}}})
	_ = s.Set(Profile{ID: 2, EvseID: 1, Purpose: PurposeTxDefaultProfile, StackLevel: 0, Periods: []Period{{LimitAmps: 16}}})
	_ = s.Set(Profile{ID: 3, EvseID: 1, Purpose: PurposeTxProfile, TxNr: 7, StackLevel: 0, Periods: []Period{{LimitAmps: 6}}})

	limit, ok := s.ActiveLimit(1, 7, now)
	if !ok {
		t.Fatal("expected an active limit")
	}
	if limit != 6 {
		t.Fatalf("limit = %v, want 6 (TxProfile takes precedence)", limit)
	}
}

func TestTxProfileIgnoredForDifferentTxNr(t *testing.T) {
	fs, err := persistence.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	s := New(fs)
	now := time.Now()
	_ = s.Set(Profile{ID: 1, EvseID: 1, Purpose: PurposeTxDefaultProfile, Periods: []Period{{LimitAmps: 16}}})
	_ = s.Set(Profile{ID: 2, EvseID: 1, Purpose: PurposeTxProfile, TxNr: 7, Periods: []Period{{LimitAmps: 6}}})

	limit, ok := s.ActiveLimit(1, 9, now)
	if !ok {
		t.Fatal("expected TxDefaultProfile to apply for unrelated txNr")
	}
	if limit != 16 {
		t.Fatalf("limit = %v, want 16", limit)
	}
}

func TestHigherStackLevelWinsWithinSamePurpose(t *testing.T) {
	fs, err := persistence.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	s := New(fs)
	now := time.Now()
	_ = s.Set(Profile{ID: 1, EvseID: 1, Purpose: PurposeTxDefaultProfile, StackLevel: 0, Periods: []Period{{LimitAmps: 16}}})
	_ = s.Set(Profile{ID: 2, EvseID: 1, Purpose: PurposeTxDefaultProfile, StackLevel: 5, Periods: []Period{{LimitAmps: 10}}})

	limit, ok := s.ActiveLimit(1, -1, now)
	if !ok || limit != 10 {
		t.Fatalf("limit = %v, ok=%v, want 10 from the higher stack level", limit, ok)
	}
}

func TestClearByPurposeRemovesMatchingProfiles(t *testing.T) {
	fs, err := persistence.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	s := New(fs)
	_ = s.Set(Profile{ID: 1, EvseID: 1, Purpose: PurposeTxDefaultProfile, Periods: []Period{{LimitAmps: 16}}})
	_ = s.Set(Profile{ID: 2, EvseID: 1, Purpose: PurposeTxProfile, TxNr: 1, Periods: []Period{{LimitAmps: 6}}})

	removed := s.Clear(ClearFilter{HasPurpose: true, Purpose: PurposeTxProfile})
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, ok := s.ActiveLimit(1, 1, time.Now()); !ok {
		t.Fatal("TxDefaultProfile should remain after clearing only TxProfile")
	}
}

func TestNoActiveProfileReportsNotOK(t *testing.T) {
	fs, err := persistence.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	s := New(fs)
	if _, ok := s.ActiveLimit(1, -1, time.Now()); ok {
		t.Fatal("expected no active limit with no profiles installed")
	}
}
