package analytics

import (
	"testing"
	"time"
)

func TestTransactionCompletedUpdatesRunningStats(t *testing.T) {
	m := NewMirror(nil, nil, Config{FlushInterval: time.Hour})
	m.Start()
	defer m.Shutdown()

	start := time.Now().Add(-time.Hour)
	m.TransactionCompleted(TransactionSummary{
		EvseID: 1, TxNr: 1, EnergyWh: 1000,
		StartTimestamp: start, StopTimestamp: start.Add(30 * time.Minute),
	})
	m.TransactionCompleted(TransactionSummary{
		EvseID: 1, TxNr: 2, EnergyWh: 2000,
		StartTimestamp: start, StopTimestamp: start.Add(time.Hour),
	})

	got := m.Stats()
	if got.Count != 2 {
		t.Fatalf("Count = %d, want 2", got.Count)
	}
	if got.MeanEnergyWh != 1500 {
		t.Fatalf("MeanEnergyWh = %v, want 1500", got.MeanEnergyWh)
	}
	if got.MeanDurationSec != 45*60 {
		t.Fatalf("MeanDurationSec = %v, want %v", got.MeanDurationSec, 45*60)
	}
}

func TestTransactionCompletedNeverBlocksOnFullBuffer(t *testing.T) {
	m := NewMirror(nil, nil, Config{BufferSize: 1, FlushInterval: time.Hour})
	// No Start(): nothing drains the channel, so the second send must
	// fall back to the drop path instead of blocking the test forever.
	start := time.Now()
	done := make(chan struct{})
	go func() {
		m.TransactionCompleted(TransactionSummary{EvseID: 1, TxNr: 1, StartTimestamp: start, StopTimestamp: start})
		m.TransactionCompleted(TransactionSummary{EvseID: 1, TxNr: 2, StartTimestamp: start, StopTimestamp: start})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("TransactionCompleted blocked on a full buffer")
	}
	if m.Stats().Count != 2 {
		t.Fatalf("Stats().Count = %d, want 2 (stats still recorded even when mirroring is dropped)", m.Stats().Count)
	}
}

func TestWindowBoundsHistory(t *testing.T) {
	m := NewMirror(nil, nil, Config{FlushInterval: time.Hour})
	m.Start()
	defer m.Shutdown()

	start := time.Now()
	for i := 0; i < window+10; i++ {
		m.TransactionCompleted(TransactionSummary{
			EvseID: 1, TxNr: i, EnergyWh: 100,
			StartTimestamp: start, StopTimestamp: start,
		})
	}
	if got := m.Stats().Count; got != window {
		t.Fatalf("Count = %d, want capped at %d", got, window)
	}
}

func TestShutdownFlushesWithoutPanicWhenCollectionNil(t *testing.T) {
	m := NewMirror(nil, nil, Config{FlushInterval: time.Hour})
	m.Start()
	m.TransactionCompleted(TransactionSummary{EvseID: 1, TxNr: 1})
	m.Shutdown()
}
