package reservation

import (
	"testing"
	"time"

	"github.com/ruslanhut/ocpp-chargepoint/internal/persistence"
)

func TestReserveThenMatches(t *testing.T) {
	fs, err := persistence.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	s := New(fs)
	expiry := time.Now().Add(time.Hour)
	if err := s.Reserve(1, 2, "ABC", "", expiry); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if !s.MatchesAndIsLive(2, "ABC", time.Now()) {
		t.Fatal("expected reservation to match its own idTag")
	}
	if s.MatchesAndIsLive(2, "OTHER", time.Now()) {
		t.Fatal("reservation must not match an unrelated idTag")
	}
}

func TestReserveRefusesDoubleBookingSameConnector(t *testing.T) {
	fs, err := persistence.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	s := New(fs)
	expiry := time.Now().Add(time.Hour)
	if err := s.Reserve(1, 2, "ABC", "", expiry); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := s.Reserve(2, 2, "XYZ", "", expiry); err == nil {
		t.Fatal("expected double-booking refusal for the same connector")
	}
}

func TestExpiredReservationDoesNotMatch(t *testing.T) {
	fs, err := persistence.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	s := New(fs)
	past := time.Now().Add(-time.Minute)
	if err := s.Reserve(1, 2, "ABC", "", past); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if s.MatchesAndIsLive(2, "ABC", time.Now()) {
		t.Fatal("expired reservation must not match")
	}
}

func TestCancelRemovesReservation(t *testing.T) {
	fs, err := persistence.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	s := New(fs)
	expiry := time.Now().Add(time.Hour)
	if err := s.Reserve(1, 2, "ABC", "", expiry); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if !s.Cancel(1) {
		t.Fatal("expected Cancel to succeed for an existing reservation")
	}
	if s.Cancel(1) {
		t.Fatal("expected second Cancel of the same ID to fail")
	}
	if s.MatchesAndIsLive(2, "ABC", time.Now()) {
		t.Fatal("cancelled reservation must not match")
	}
}

func TestLoadDropsExpiredReservations(t *testing.T) {
	dir := t.TempDir()
	fs, err := persistence.NewDir(dir)
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	s := New(fs)
	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)
	if err := s.Reserve(1, 2, "ABC", "", past); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := s.Reserve(2, 3, "XYZ", "", future); err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	fs2, err := persistence.NewDir(dir)
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	s2 := New(fs2)
	if err := s2.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s2.MatchesAndIsLive(2, "ABC", time.Now()) {
		t.Fatal("expired reservation should not survive Load")
	}
	if !s2.MatchesAndIsLive(3, "XYZ", time.Now()) {
		t.Fatal("live reservation should survive Load")
	}
}
