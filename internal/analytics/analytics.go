// Package analytics is a best-effort, asynchronous mirror of completed
// transactions into MongoDB (spec §4.10, added by this expansion). It is
// never on the correctness path: the filesystem journal remains
// authoritative, and a MongoDB outage must never block or fail a
// transaction. Grounded on the teacher's mongo-driver client construction
// and bson document shapes, and on its message logger's buffered,
// batched, ticker-flushed channel pattern -- simplified here from a
// multi-station fleet backend down to a single charge point mirroring its
// own completed sessions.
package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// TransactionSummary is one completed charging session, as mirrored to
// MongoDB's "transactions" collection.
type TransactionSummary struct {
	EvseID         int       `bson:"evse_id"`
	TxNr           int       `bson:"tx_nr"`
	IDTag          string    `bson:"id_tag"`
	StartTimestamp time.Time `bson:"start_timestamp"`
	StopTimestamp  time.Time `bson:"stop_timestamp"`
	MeterStartWh   int       `bson:"meter_start_wh"`
	MeterStopWh    int       `bson:"meter_stop_wh"`
	EnergyWh       int       `bson:"energy_wh"`
	StopReason     string    `bson:"stop_reason"`
	CreatedAt      time.Time `bson:"created_at"`
}

// Config controls the mirror's buffering and flush behavior.
type Config struct {
	BufferSize    int           // capacity of the pending-summary channel
	BatchSize     int           // max documents per InsertMany
	FlushInterval time.Duration // periodic flush cadence
}

func (c *Config) withDefaults() {
	if c.BufferSize == 0 {
		c.BufferSize = 256
	}
	if c.BatchSize == 0 {
		c.BatchSize = 32
	}
	if c.FlushInterval == 0 {
		c.FlushInterval = 10 * time.Second
	}
}

// SessionStats are running aggregates over recently mirrored sessions,
// recomputed with montanaflynn/stats each time a session completes.
// Exposed read-only for operational dashboards; never consulted by the
// transaction engine.
type SessionStats struct {
	Count           int
	MeanEnergyWh    float64
	StdDevEnergyWh  float64
	MeanDurationSec float64
}

// window bounds how many recent sessions feed SessionStats, so a
// long-running charge point doesn't accumulate an unbounded history in
// memory.
const window = 200

// Mirror buffers TransactionSummary documents and flushes them to MongoDB
// in the background. Call TransactionCompleted from the runtime loop;
// everything past that point runs off-loop.
type Mirror struct {
	collection *mongo.Collection
	logger     *slog.Logger
	cfg        Config

	pending chan TransactionSummary
	done    chan struct{}
	wg      sync.WaitGroup

	statsMu   sync.RWMutex
	energies  []float64
	durations []float64
	stats     SessionStats
}

// NewMirror creates a Mirror writing into collection. collection may be
// nil, in which case TransactionCompleted still accepts summaries and
// SessionStats still update, but nothing is written to MongoDB -- useful
// for running without a configured backend.
func NewMirror(collection *mongo.Collection, logger *slog.Logger, cfg Config) *Mirror {
	cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{
		collection: collection,
		logger:     logger,
		cfg:        cfg,
		pending:    make(chan TransactionSummary, cfg.BufferSize),
		done:       make(chan struct{}),
	}
}

// Start launches the background flush goroutine. Call Shutdown to stop it.
func (m *Mirror) Start() {
	m.wg.Add(1)
	go m.run()
}

func (m *Mirror) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]TransactionSummary, 0, m.cfg.BatchSize)
	for {
		select {
		case <-m.done:
			if len(batch) > 0 {
				m.flush(batch)
			}
			return
		case s := <-m.pending:
			batch = append(batch, s)
			if len(batch) >= m.cfg.BatchSize {
				m.flush(batch)
				batch = make([]TransactionSummary, 0, m.cfg.BatchSize)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				m.flush(batch)
				batch = make([]TransactionSummary, 0, m.cfg.BatchSize)
			}
		}
	}
}

func (m *Mirror) flush(batch []TransactionSummary) {
	if m.collection == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	docs := make([]interface{}, len(batch))
	for i, s := range batch {
		docs[i] = s
	}
	if _, err := m.collection.InsertMany(ctx, docs); err != nil {
		m.logger.Warn("analytics: failed to mirror transaction batch, dropping",
			"count", len(batch), "error", err)
		return
	}
	m.logger.Debug("analytics: mirrored transaction batch", "count", len(batch))
}

// TransactionCompleted enqueues summary for mirroring and folds it into
// the running SessionStats. Never blocks the caller beyond a channel send:
// if the buffer is full the summary is dropped rather than applying
// backpressure to the transaction engine.
func (m *Mirror) TransactionCompleted(summary TransactionSummary) {
	summary.CreatedAt = summary.StopTimestamp
	select {
	case m.pending <- summary:
	default:
		m.logger.Warn("analytics: buffer full, dropping transaction summary",
			"evseId", summary.EvseID, "txNr", summary.TxNr)
	}
	m.recordStats(summary)
}

func (m *Mirror) recordStats(s TransactionSummary) {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()

	m.energies = append(m.energies, float64(s.EnergyWh))
	if len(m.energies) > window {
		m.energies = m.energies[len(m.energies)-window:]
	}
	duration := s.StopTimestamp.Sub(s.StartTimestamp).Seconds()
	m.durations = append(m.durations, duration)
	if len(m.durations) > window {
		m.durations = m.durations[len(m.durations)-window:]
	}

	meanEnergy, _ := stats.Mean(m.energies)
	stdDevEnergy, _ := stats.StandardDeviation(m.energies)
	meanDuration, _ := stats.Mean(m.durations)

	m.stats = SessionStats{
		Count:           len(m.energies),
		MeanEnergyWh:    meanEnergy,
		StdDevEnergyWh:  stdDevEnergy,
		MeanDurationSec: meanDuration,
	}
}

// Stats returns a snapshot of the current running aggregates.
func (m *Mirror) Stats() SessionStats {
	m.statsMu.RLock()
	defer m.statsMu.RUnlock()
	return m.stats
}

// Shutdown stops the background goroutine, flushing any buffered
// summaries first, and waits for it to exit.
func (m *Mirror) Shutdown() {
	close(m.done)
	m.wg.Wait()
}

// EnsureIndexes creates the indexes the mirror's queries rely on. Safe to
// call repeatedly; mirrors the teacher's createIndexes idiom but scoped to
// the single "transactions" collection this package owns.
func EnsureIndexes(ctx context.Context, collection *mongo.Collection) error {
	_, err := collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "evse_id", Value: 1}, {Key: "start_timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "tx_nr", Value: 1}}},
	})
	return err
}
