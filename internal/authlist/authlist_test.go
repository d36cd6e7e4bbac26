package authlist

import (
	"testing"
	"time"

	"github.com/ruslanhut/ocpp-chargepoint/internal/persistence"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	fs, err := persistence.NewDir(dir)
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	return New(fs), dir
}

func TestFullUpdateRejectsStaleVersion(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.FullUpdate(2, []Entry{{IDTag: "A", Status: StatusAccepted}}); err != nil {
		t.Fatalf("FullUpdate: %v", err)
	}
	if err := s.FullUpdate(2, []Entry{{IDTag: "B", Status: StatusAccepted}}); err == nil {
		t.Fatal("expected version mismatch error for non-increasing version")
	}
	if s.Version() != 2 {
		t.Fatalf("Version = %d, want 2 (unchanged after rejected update)", s.Version())
	}
}

func TestDifferentialUpdateRemovesOnEmptyStatus(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.FullUpdate(1, []Entry{{IDTag: "A", Status: StatusAccepted}, {IDTag: "B", Status: StatusAccepted}}); err != nil {
		t.Fatalf("FullUpdate: %v", err)
	}
	if err := s.DifferentialUpdate(2, []Entry{{IDTag: "A"}, {IDTag: "C", Status: StatusAccepted}}); err != nil {
		t.Fatalf("DifferentialUpdate: %v", err)
	}
	if accepted, _, known := s.Status("A"); known || accepted {
		t.Fatal("idTag A should have been removed by the differential update")
	}
	if accepted, _, known := s.Status("B"); !known || !accepted {
		t.Fatal("idTag B should be unaffected by the differential update")
	}
	if accepted, _, known := s.Status("C"); !known || !accepted {
		t.Fatal("idTag C should have been added by the differential update")
	}
}

func TestExpiredEntryKnownButNotAccepted(t *testing.T) {
	s, _ := newTestStore(t)
	past := time.Now().Add(-time.Hour)
	if err := s.FullUpdate(1, []Entry{{IDTag: "A", Status: StatusAccepted, ExpiryDate: &past}}); err != nil {
		t.Fatalf("FullUpdate: %v", err)
	}
	accepted, _, known := s.Status("A")
	if !known {
		t.Fatal("expired entry should still be known")
	}
	if accepted {
		t.Fatal("expired entry must not be accepted")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s, dir := newTestStore(t)
	if err := s.FullUpdate(3, []Entry{{IDTag: "A", Status: StatusAccepted, ParentIDTag: "P"}}); err != nil {
		t.Fatalf("FullUpdate: %v", err)
	}

	fs2, err := persistence.NewDir(dir)
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	s2 := New(fs2)
	if err := s2.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s2.Version() != 3 {
		t.Fatalf("Version = %d, want 3", s2.Version())
	}
	if accepted, parent, known := s2.Status("A"); !known || !accepted || parent != "P" {
		t.Fatalf("Status after reload = %v %v %v", accepted, parent, known)
	}
}
