package event

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/joakim000/grow/internal/device"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// historyTypes are the event types kept in the SQLite history. Readings and
// status snapshots are telemetry and go to InfluxDB only.
var historyTypes = map[Type]bool{
	TypeAlertChanged:    true,
	TypeCycleOutcome:    true,
	TypeDeviceFault:     true,
	TypeDeviceRecovered: true,
	TypeFanMode:         true,
	TypeLamp:            true,
	TypeTankLevel:       true,
}

// SQLiteHistory is an append-only event log in the events table.
//
// It is an audit trail: the controller never reads it back into control state.
type SQLiteHistory struct {
	db     *sql.DB
	logger Logger
}

// NewSQLiteHistory creates a history repository on an open, migrated database.
//
// Parameters:
//   - db: Open SQLite connection
//   - logger: Receives insert failures from Emit; nil discards them
//
// Returns:
//   - *SQLiteHistory: Repository ready for use
func NewSQLiteHistory(db *sql.DB, logger Logger) *SQLiteHistory {
	if logger == nil {
		logger = noopLogger{}
	}
	return &SQLiteHistory{db: db, logger: logger}
}

// Emit implements Sink. Insert failures are logged, never returned.
func (h *SQLiteHistory) Emit(ctx context.Context, e Event) {
	if !historyTypes[e.Type] {
		return
	}
	if err := h.Record(ctx, e); err != nil {
		h.logger.Warn("history insert failed", "type", e.Type, "device", e.Device.String(), "error", err)
	}
}

// Record inserts one event.
func (h *SQLiteHistory) Record(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}

	_, err = h.db.ExecContext(ctx,
		"INSERT INTO events (type, kind, device_id, occurred_at, payload) VALUES (?, ?, ?, ?, ?)",
		string(e.Type),
		string(e.Device.Kind),
		e.Device.ID,
		e.Time.UTC().UnixNano(),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

// Recent returns the latest events of one device, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - ref: Device to query
//   - limit: Maximum entries to return (default 50, max 500)
//
// Returns:
//   - []Event: Events ordered by time, newest first
//   - error: Query or decode error
func (h *SQLiteHistory) Recent(ctx context.Context, ref device.Ref, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := h.db.QueryContext(ctx,
		`SELECT payload FROM events
		 WHERE kind = ? AND device_id = ?
		 ORDER BY occurred_at DESC, id DESC
		 LIMIT ?`,
		string(ref.Kind), ref.ID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, limit)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		var e Event
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return nil, fmt.Errorf("unmarshalling event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}
	return events, nil
}

// Prune deletes events that occurred before the cutoff.
//
// Returns:
//   - int64: Number of rows deleted
//   - error: Database error
func (h *SQLiteHistory) Prune(ctx context.Context, before time.Time) (int64, error) {
	result, err := h.db.ExecContext(ctx, "DELETE FROM events WHERE occurred_at < ?", before.UTC().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("pruning events: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting pruned events: %w", err)
	}
	return n, nil
}
