package journal

import (
	"testing"

	"github.com/ruslanhut/ocpp-chargepoint/internal/persistence"
)

func newTestJournal(t *testing.T, capacity int) *Journal {
	t.Helper()
	fs, err := persistence.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	return New(fs, capacity)
}

func TestAllocateCommitLoadRoundTrip(t *testing.T) {
	j := newTestJournal(t, DefaultCapacity)
	rec, err := j.Allocate(1, false)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	rec.IDTag = "ABCDEF01"
	if err := j.Commit(rec); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, err := j.Load(1, rec.TxNr)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.IDTag != "ABCDEF01" {
		t.Fatalf("IDTag = %q, want ABCDEF01", got.IDTag)
	}
}

func TestAllocateFailsWhenFullWithoutSilent(t *testing.T) {
	j := newTestJournal(t, 2)
	for i := 0; i < 2; i++ {
		rec, err := j.Allocate(1, false)
		if err != nil {
			t.Fatalf("Allocate %d: %v", i, err)
		}
		if err := j.Commit(rec); err != nil {
			t.Fatalf("Commit: %v", err)
		}
	}
	if _, err := j.Allocate(1, false); err != ErrQueueFull {
		t.Fatalf("Allocate when full = %v, want ErrQueueFull", err)
	}
}

func TestAllocateFallsBackToSilentWhenFull(t *testing.T) {
	j := newTestJournal(t, 1)
	rec, err := j.Allocate(1, false)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if err := j.Commit(rec); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	silent, err := j.Allocate(1, true)
	if err != nil {
		t.Fatalf("Allocate with allowSilent: %v", err)
	}
	if !silent.Silent {
		t.Fatal("expected silent transaction when ring is full and silent offline tx allowed")
	}
}

func TestAllocateReplacesCompletedOldest(t *testing.T) {
	j := newTestJournal(t, 1)
	rec, err := j.Allocate(1, false)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	rec.Completed = true
	if err := j.Commit(rec); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	next, err := j.Allocate(1, false)
	if err != nil {
		t.Fatalf("Allocate after completed: %v", err)
	}
	if next.TxNr != rec.TxNr {
		t.Fatalf("expected replace of completed slot %d, got %d", rec.TxNr, next.TxNr)
	}
	if next.Completed {
		t.Fatal("replaced record should be reset to a fresh, non-terminal record")
	}
}

func TestFrontAdvancesOnlyOnMatchingTxNr(t *testing.T) {
	j := newTestJournal(t, DefaultCapacity)
	a, _ := j.Allocate(1, false)
	_ = j.Commit(a)
	b, _ := j.Allocate(1, false)
	_ = j.Commit(b)

	front, ok := j.Front(1)
	if !ok || front != a.TxNr {
		t.Fatalf("Front = %d,%v want %d,true", front, ok, a.TxNr)
	}

	j.AdvanceFront(1, b.TxNr) // wrong txNr, no-op
	front, _ = j.Front(1)
	if front != a.TxNr {
		t.Fatalf("AdvanceFront with wrong txNr moved front to %d", front)
	}

	j.AdvanceFront(1, a.TxNr)
	front, ok = j.Front(1)
	if !ok || front != b.TxNr {
		t.Fatalf("Front after advance = %d,%v want %d,true", front, ok, b.TxNr)
	}
}

func TestLoadMissingVsCorrupt(t *testing.T) {
	fs, err := persistence.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	j := New(fs, DefaultCapacity)

	if _, err := j.Load(1, 99); err == nil {
		t.Fatal("expected error loading missing record")
	} else if lerr, ok := err.(*LoadError); !ok || lerr.Corrupt {
		t.Fatalf("missing record error = %#v, want Corrupt=false", err)
	}

	if err := fs.Write(persistence.RecordName("tx", 1, 5), []byte("not json")); err != nil {
		t.Fatalf("Write garbage: %v", err)
	}
	if _, err := j.Load(1, 5); err == nil {
		t.Fatal("expected error loading corrupt record")
	} else if lerr, ok := err.(*LoadError); !ok || !lerr.Corrupt {
		t.Fatalf("corrupt record error = %#v, want Corrupt=true", err)
	}

	if exists, err := fs.Stat(persistence.RecordName("tx", 1, 5)); err != nil || !exists {
		t.Fatal("corrupt record must be left in place, never deleted")
	}
}

func TestRecoverRebuildsRingFromDisk(t *testing.T) {
	fs, err := persistence.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	j := New(fs, 4)

	first, _ := j.Allocate(1, false)
	first.Completed = true
	_ = j.Commit(first)

	second, _ := j.Allocate(1, false)
	_ = j.Commit(second)

	j2 := New(fs, 4)
	if err := j2.Recover(1); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	front, ok := j2.Front(1)
	if !ok || front != second.TxNr {
		t.Fatalf("Front after recover = %d,%v want %d,true", front, ok, second.TxNr)
	}
}

func TestCleanDanglingSilentStoppedOnAllocate(t *testing.T) {
	j := newTestJournal(t, 1)
	rec, _ := j.Allocate(1, false)
	rec.Silent = true
	rec.Completed = true
	_ = j.Commit(rec)

	next, err := j.Allocate(1, false)
	if err != nil {
		t.Fatalf("Allocate after dangling silent cleanup: %v", err)
	}
	if exists, _ := j.fs.Stat(persistence.RecordName("tx", 1, rec.TxNr)); exists && next.TxNr == rec.TxNr {
		// the old slot's file is overwritten by the new allocation's
		// commit path for the replace-oldest case, or removed by the
		// dangling-cleanup path; either is acceptable here.
		t.Skip("slot reused by replace path instead of cleanup path")
	}
}

func TestMeterValueRoundTrip(t *testing.T) {
	j := newTestJournal(t, DefaultCapacity)
	mv := &MeterValue{EvseID: 1, TxNr: 7, UnixTime: 1000, Context: "Sample.Periodic", Samples: []Sample{{Measurand: "Energy.Active.Import.Register", Value: "100"}}}
	if err := j.CommitMeterValue(mv, 1); err != nil {
		t.Fatalf("CommitMeterValue: %v", err)
	}
	got, err := j.LoadMeterValue(1, 1)
	if err != nil {
		t.Fatalf("LoadMeterValue: %v", err)
	}
	if len(got.Samples) != 1 || got.Samples[0].Value != "100" {
		t.Fatalf("meter value round trip mismatch: %+v", got)
	}
	if err := j.RemoveMeterValue(1, 1); err != nil {
		t.Fatalf("RemoveMeterValue: %v", err)
	}
	if _, err := j.LoadMeterValue(1, 1); err == nil {
		t.Fatal("expected error after remove")
	}
}
