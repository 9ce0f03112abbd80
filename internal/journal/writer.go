package journal

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/auction-house/internal/model"
	"github.com/rickgao/auction-house/internal/queue"
)

// DB sends a batch of statements. Satisfied by *pgxpool.Pool.
type DB interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Config holds writer configuration.
type Config struct {
	HouseID       string        // Stamped on events that carry none
	BatchSize     int           // Rows per insert batch (default: 100)
	FlushInterval time.Duration // Max time an event waits (default: 1s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     100,
		FlushInterval: time.Second,
	}
}

// Metrics tracks writer statistics.
type Metrics struct {
	Inserts   int64 // Rows written
	Conflicts int64 // Rows already present
	Errors    int64 // Failed batches
	Flushes   int64 // Successful batches
}

// Writer journals events to the auction_events table.
type Writer struct {
	cfg    Config
	db     DB
	logger *slog.Logger

	input *queue.Queue[model.Event]

	// Batching
	batch       []model.Event
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics Metrics
}

// NewWriter creates a Writer over db.
func NewWriter(cfg Config, db DB, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}

	return &Writer{
		cfg:    cfg,
		db:     db,
		logger: logger,
		input:  queue.New[model.Event](256),
		batch:  make([]model.Event, 0, cfg.BatchSize),
	}
}

// Record queues an event. Implements auction.Recorder.
func (w *Writer) Record(ev model.Event) {
	if ev.HouseID == "" {
		ev.HouseID = w.cfg.HouseID
	}
	if !w.input.Push(ev) {
		w.logger.Warn("journal stopped, event dropped",
			"kind", ev.Kind,
			"item_id", ev.ItemID,
		)
	}
}

// Pending returns events queued or batched but not yet written.
func (w *Writer) Pending() int {
	w.batchMu.Lock()
	n := len(w.batch)
	w.batchMu.Unlock()
	return n + w.input.Len()
}

// Start begins consuming events and writing to the database.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("journal writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop stops accepting events, writes everything still queued and
// returns. ctx bounds both the wait and the final write.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping journal writer")

	w.input.Close()
	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("journal writer stop timed out")
	}

	// Final flush
	w.batchMu.Lock()
	w.batch = append(w.batch, w.input.DrainTo(0)...)
	w.batchMu.Unlock()
	for w.Pending() > 0 && ctx.Err() == nil {
		if err := w.flush(ctx); err != nil {
			break
		}
	}

	if n := w.Pending(); n > 0 {
		w.logger.Error("journal events not written", "count", n)
	}
	w.logger.Info("journal writer stopped")
	return nil
}

// Stats returns current metrics.
func (w *Writer) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop moves queued events into the current batch.
func (w *Writer) consumeLoop() {
	defer w.wg.Done()

	for {
		ev, err := w.input.Pop(w.ctx)
		if err != nil {
			return
		}
		w.handleEvent(ev)
	}
}

// flushLoop periodically flushes the batch.
func (w *Writer) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush(w.ctx)
		}
	}
}

// handleEvent adds an event to the batch, flushing when it is full.
func (w *Writer) handleEvent(ev model.Event) {
	w.batchMu.Lock()
	w.batch = append(w.batch, ev)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush(w.ctx)
	}
}

// flush writes up to one batch. A failed batch is put back at the front.
func (w *Writer) flush(ctx context.Context) error {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return nil
	}

	n := min(len(w.batch), w.cfg.BatchSize)
	rows := w.batch[:n:n]
	w.batch = append(make([]model.Event, 0, w.cfg.BatchSize), w.batch[n:]...)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, rows)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			w.logger.Error("batch insert failed", "error", err, "count", len(rows))
		}
		w.batchMu.Lock()
		w.batch = append(rows, w.batch...)
		w.metrics.Errors++
		w.batchMu.Unlock()
		return err
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(rows) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed events",
		"count", len(rows),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
	return nil
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *Writer) batchInsert(ctx context.Context, rows []model.Event) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO auction_events (event_id, kind, house_id, item_id, item_name, agent_id, amount, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (event_id) DO NOTHING
		`, r.ID, string(r.Kind), r.HouseID, int64(r.ItemID), r.ItemName, string(r.AgentID), r.Amount, r.OccurredAt)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
