package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/glebarez/sqlite"
	"github.com/google/uuid"

	"fixedswap/core/events"
)

const schema = `
CREATE TABLE IF NOT EXISTS swaps (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    exchange_id TEXT NOT NULL,
    caller TEXT NOT NULL,
    direction TEXT NOT NULL,
    data_amount TEXT NOT NULL,
    base_amount TEXT NOT NULL,
    protocol_fee TEXT NOT NULL,
    market_fee TEXT NOT NULL,
    net_base TEXT NOT NULL,
    occurred_at INTEGER NOT NULL,
    recorded_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS swaps_exchange ON swaps(exchange_id, seq);
CREATE TABLE IF NOT EXISTS events (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL,
    exchange_id TEXT NOT NULL,
    attributes TEXT NOT NULL,
    recorded_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS events_exchange ON events(exchange_id, seq);
`

// ErrPathRequired is returned when no database path is configured.
var ErrPathRequired = errors.New("journal path must be configured")

// Journal indexes settled exchange events into sqlite so swap history can be
// queried without replaying state.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
	nowFn  func() time.Time
}

// SwapRow is one settled trade.
type SwapRow struct {
	ID          string    `json:"id"`
	ExchangeID  string    `json:"exchangeId"`
	Caller      string    `json:"caller"`
	Direction   string    `json:"direction"`
	DataAmount  string    `json:"dataTokenSwappedAmount"`
	BaseAmount  string    `json:"baseTokenSwappedAmount"`
	ProtocolFee string    `json:"protocolFeeAmount"`
	MarketFee   string    `json:"marketFeeAmount"`
	NetBase     string    `json:"netBaseAmount"`
	OccurredAt  int64     `json:"timestamp"`
	RecordedAt  time.Time `json:"recordedAt"`
}

// EventRow is the generic rendering of any exchange event.
type EventRow struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	ExchangeID string            `json:"exchangeId,omitempty"`
	Attributes map[string]string `json:"attributes"`
	RecordedAt time.Time         `json:"recordedAt"`
}

// Open creates or opens the journal database at path.
func Open(path string, logger *slog.Logger) (*Journal, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Journal{db: db, logger: logger.With(slog.String("component", "journal")), nowFn: time.Now}, nil
}

// Close releases database resources.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Ping reports whether the database is reachable.
func (j *Journal) Ping(ctx context.Context) error {
	if j == nil || j.db == nil {
		return fmt.Errorf("journal not configured")
	}
	return j.db.PingContext(ctx)
}

// Emit implements events.Emitter. Write failures are logged, never returned,
// because the state change has already been committed.
func (j *Journal) Emit(evt events.Event) {
	if j == nil {
		return
	}
	ctx := context.Background()
	if swapped, ok := evt.(events.ExchangeSwapped); ok {
		if err := j.RecordSwap(ctx, swapped); err != nil {
			j.logger.Error("record swap", slog.String("exchange", swapped.ID.Hex()), slog.Any("error", err))
		}
	}
	payload, ok := evt.(events.Payload)
	if !ok {
		return
	}
	if err := j.RecordEvent(ctx, payload); err != nil {
		j.logger.Error("record event", slog.String("type", evt.EventType()), slog.Any("error", err))
	}
}

// RecordSwap stores a settled trade.
func (j *Journal) RecordSwap(ctx context.Context, evt events.ExchangeSwapped) error {
	rendered := evt.Event()
	_, err := j.db.ExecContext(ctx, `
        INSERT INTO swaps(id, exchange_id, caller, direction, data_amount, base_amount, protocol_fee, market_fee, net_base, occurred_at, recorded_at)
        VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, uuid.NewString(), strings.ToLower(evt.ID.Hex()), rendered.Attr("caller"), evt.Direction,
		rendered.Attr("dataTokenSwappedAmount"), rendered.Attr("baseTokenSwappedAmount"),
		rendered.Attr("protocolFeeAmount"), rendered.Attr("marketFeeAmount"), rendered.Attr("netBaseAmount"),
		evt.Timestamp, j.nowFn().UTC())
	if err != nil {
		return fmt.Errorf("insert swap: %w", err)
	}
	return nil
}

// RecordEvent stores the generic attributes of any event.
func (j *Journal) RecordEvent(ctx context.Context, evt events.Payload) error {
	rendered := evt.Event()
	if rendered == nil {
		return nil
	}
	attrs, err := json.Marshal(rendered.Attributes)
	if err != nil {
		return fmt.Errorf("encode attributes: %w", err)
	}
	_, err = j.db.ExecContext(ctx, `
        INSERT INTO events(id, type, exchange_id, attributes, recorded_at)
        VALUES(?, ?, ?, ?, ?)
    `, uuid.NewString(), rendered.Type, strings.ToLower(rendered.Attr("exchangeId")), string(attrs), j.nowFn().UTC())
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Swaps returns up to limit trades for an exchange in settlement order. A
// non-positive limit returns every row.
func (j *Journal) Swaps(ctx context.Context, exchangeID string, limit int) ([]SwapRow, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := j.db.QueryContext(ctx, `
        SELECT id, exchange_id, caller, direction, data_amount, base_amount, protocol_fee, market_fee, net_base, occurred_at, recorded_at
        FROM swaps
        WHERE exchange_id = ?
        ORDER BY seq ASC
        LIMIT ?
    `, strings.ToLower(strings.TrimSpace(exchangeID)), limit)
	if err != nil {
		return nil, fmt.Errorf("query swaps: %w", err)
	}
	defer rows.Close()
	out := make([]SwapRow, 0)
	for rows.Next() {
		var row SwapRow
		if err := rows.Scan(&row.ID, &row.ExchangeID, &row.Caller, &row.Direction, &row.DataAmount, &row.BaseAmount,
			&row.ProtocolFee, &row.MarketFee, &row.NetBase, &row.OccurredAt, &row.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan swap: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate swaps: %w", err)
	}
	return out, nil
}

// Events returns every recorded event for an exchange in emission order.
func (j *Journal) Events(ctx context.Context, exchangeID string) ([]EventRow, error) {
	rows, err := j.db.QueryContext(ctx, `
        SELECT id, type, exchange_id, attributes, recorded_at
        FROM events
        WHERE exchange_id = ?
        ORDER BY seq ASC
    `, strings.ToLower(strings.TrimSpace(exchangeID)))
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	out := make([]EventRow, 0)
	for rows.Next() {
		var (
			row   EventRow
			attrs string
		)
		if err := rows.Scan(&row.ID, &row.Type, &row.ExchangeID, &attrs, &row.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(attrs), &row.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}
