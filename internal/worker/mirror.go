package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cashbook/internal/amqp"
	"cashbook/internal/core"
	"cashbook/internal/export"
	"cashbook/internal/sheets"
)

// Lister reads the whole ledger, newest first.
type Lister interface {
	List(ctx context.Context) ([]core.Transaction, error)
}

// MirrorConfig holds the mirror settings.
type MirrorConfig struct {
	// Tab is the spreadsheet tab the report is written to.
	Tab string
	// Location is the timezone report dates are shown in (default UTC).
	Location *time.Location
	// Interval is how often the ledger is re-read when no message arrives
	// (default 5m).
	Interval time.Duration
}

// Mirror keeps a spreadsheet tab in step with the ledger. It republishes the
// report after every change message and on a fixed interval, and skips the
// publish when the report is unchanged since the last one.
type Mirror struct {
	source    Lister
	publisher sheets.TablePublisher
	config    MirrorConfig

	syncMu    sync.Mutex
	published *export.Table
	// seen is the newest version handled per publishing process.
	seen      map[string]uint64

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewMirror(source Lister, publisher sheets.TablePublisher, config MirrorConfig) *Mirror {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.Interval <= 0 {
		config.Interval = 5 * time.Minute
	}
	return &Mirror{
		source:    source,
		publisher: publisher,
		config:    config,
		seen:      make(map[string]uint64),
	}
}

// Sync rebuilds the report and publishes it when it differs from the last
// published one. It reports whether a publish happened.
func (m *Mirror) Sync(ctx context.Context) (bool, error) {
	m.syncMu.Lock()
	defer m.syncMu.Unlock()

	txs, err := m.source.List(ctx)
	if err != nil {
		return false, fmt.Errorf("list ledger: %w", err)
	}
	table, err := export.BuildReport(txs, m.config.Location)
	if errors.Is(err, export.ErrNothingToExport) {
		table = export.EmptyReport()
	} else if err != nil {
		return false, err
	}

	if m.published != nil && m.published.Equal(table) {
		slog.DebugContext(ctx, "Mirror unchanged, skipping publish", "rows", len(table.Rows))
		return false, nil
	}

	if err := m.publisher.Publish(ctx, m.config.Tab, table); err != nil {
		return false, fmt.Errorf("publish report: %w", err)
	}
	m.published = &table

	slog.InfoContext(ctx, "Mirrored ledger to sheet",
		"tab", m.config.Tab,
		"rows", len(table.Rows))
	return true, nil
}

// HandleChange is an amqp consumer handler. A message no newer than one
// already handled from the same origin is skipped: the sync for the newer one
// read the whole ledger. A failed publish is logged and left for the next
// interval instead of requeueing the message.
func (m *Mirror) HandleChange(ctx context.Context, msg *amqp.LedgerChangedMessage) error {
	if msg != nil {
		if !m.observe(msg) {
			slog.DebugContext(ctx, "Skipping stale ledger change",
				"id", msg.ID,
				"version", msg.Version,
				"origin", msg.Origin)
			return nil
		}
		slog.InfoContext(ctx, "Processing ledger change",
			"id", msg.ID,
			"op", msg.Op,
			"version", msg.Version,
			"origin", msg.Origin)
	}

	if _, err := m.Sync(ctx); err != nil {
		slog.ErrorContext(ctx, "Mirror sync after change failed", "error", err)
	}
	return nil
}

// observe records msg and reports whether it is newer than anything seen
// from its origin. Messages without an origin are always handled.
func (m *Mirror) observe(msg *amqp.LedgerChangedMessage) bool {
	if msg.Origin == "" {
		return true
	}
	m.syncMu.Lock()
	defer m.syncMu.Unlock()
	if last, ok := m.seen[msg.Origin]; ok && msg.Version <= last {
		return false
	}
	m.seen[msg.Origin] = msg.Version
	return true
}

// Start begins the interval loop. Returns an error if already running.
func (m *Mirror) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("mirror is already running")
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.mu.Unlock()

	go m.runLoop(ctx)

	slog.InfoContext(ctx, "Mirror started",
		"tab", m.config.Tab,
		"interval", m.config.Interval)
	return nil
}

// Stop ends the loop and waits for it, bounded by ctx.
func (m *Mirror) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	stopCh, doneCh := m.stopCh, m.doneCh
	m.running = false
	m.mu.Unlock()

	close(stopCh)
	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Mirror stopped")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Mirror stop timed out")
		return ctx.Err()
	}
}

func (m *Mirror) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Mirror) runLoop(ctx context.Context) {
	m.mu.Lock()
	stopCh, doneCh := m.stopCh, m.doneCh
	m.mu.Unlock()
	defer close(doneCh)

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	m.tick(ctx)
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Mirror) tick(ctx context.Context) {
	if _, err := m.Sync(ctx); err != nil && ctx.Err() == nil {
		slog.ErrorContext(ctx, "Periodic mirror sync failed", "error", err)
	}
}
