package journal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jpalmer/wsbridge/internal/connection"
	"github.com/jpalmer/wsbridge/internal/metrics"
	"github.com/jpalmer/wsbridge/internal/stream"
)

// Config contains journal writer settings.
type Config struct {
	// InstanceID identifies this bridge in the ws_events table.
	InstanceID string

	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: time.Second,
	}
}

// eventRow is a row for the ws_events table.
type eventRow struct {
	InstanceID string
	SessionID  string
	Kind       string
	Code       int
	Reason     string
	Protocol   string
	FrameKind  string
	Payload    []byte
	At         time.Time
}

// Metrics contains journal counters.
type Metrics struct {
	Rows    int64
	Flushes int64
	Errors  int64
}

// Writer persists stream events to Postgres in batches.
type Writer struct {
	cfg    Config
	logger *slog.Logger

	// Input from the manager's event stream
	input *stream.Subscription[connection.Event]

	// Database
	db *pgxpool.Pool

	// Batching
	batchMu     sync.Mutex
	batch       []eventRow
	metrics     Metrics
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWriter creates a journal writer consuming the given subscription.
func NewWriter(cfg Config, input *stream.Subscription[connection.Event], db *pgxpool.Pool, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		cfg:    cfg,
		input:  input,
		db:     db,
		logger: logger,
		batch:  make([]eventRow, 0, cfg.BatchSize),
	}
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

// Stop gracefully shuts down the writer and flushes remaining rows.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping journal writer")

	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}
	w.input.Cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("journal writer stopped")
	case <-ctx.Done():
		w.logger.Warn("journal writer stop timed out")
	}

	w.flush()
	return nil
}

// Stats returns current counters.
func (w *Writer) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop reads events and accumulates batches.
func (w *Writer) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case ev, ok := <-w.input.C():
			if !ok {
				return
			}
			w.handleEvent(ev)
		}
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
			w.flush()
		}
	}
}

// handleEvent transforms and adds an event to the batch.
func (w *Writer) handleEvent(ev connection.Event) {
	row := w.transform(ev)

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush()
	}
}

// transform converts an Event to an eventRow.
func (w *Writer) transform(ev connection.Event) eventRow {
	row := eventRow{
		InstanceID: w.cfg.InstanceID,
		Kind:       ev.Kind.String(),
		At:         ev.At,
	}
	if ev.Session != (uuid.UUID{}) {
		row.SessionID = ev.Session.String()
	}

	switch ev.Kind {
	case connection.KindConnected:
		row.Protocol = ev.Protocol
	case connection.KindDisconnected:
		row.Code = ev.Code
		row.Reason = ev.Reason
	case connection.KindFrame:
		row.FrameKind = ev.Frame.Kind.String()
		row.Payload = ev.Frame.Data
	}

	return row
}

// flush writes the current batch to the database.
func (w *Writer) flush() {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	batch := w.batch
	w.batch = make([]eventRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	if w.db == nil {
		return
	}

	start := time.Now()

	if err := w.batchInsert(batch); err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Rows += int64(len(batch))
	w.metrics.Flushes++
	w.batchMu.Unlock()

	metrics.JournalRowsTotal.Add(float64(len(batch)))

	w.logger.Debug("flushed events",
		"count", len(batch),
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch.
func (w *Writer) batchInsert(rows []eventRow) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO ws_events (instance_id, session_id, kind, code, reason, protocol, frame_kind, payload, at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, r.InstanceID, r.SessionID, r.Kind, r.Code, r.Reason, r.Protocol, r.FrameKind, r.Payload, r.At)
	}

	results := w.db.SendBatch(context.Background(), batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}

	return results.Close()
}
