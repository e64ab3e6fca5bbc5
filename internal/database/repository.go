package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"trade-agent/internal/execution"
	"trade-agent/internal/ledger"
)

// Repository provides data access methods
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// ==================== POSITIONS ====================

// SavePosition upserts a position keyed by ticker. At-least-once safe:
// replaying the same position after a crash lands on the same row.
func (r *Repository) SavePosition(ctx context.Context, p ledger.Position) error {
	query := `
		INSERT INTO positions (ticker, quantity, entry_price, entry_time, stop_loss,
			take_profit, high_water_mark, trailing_price, current_price, price_at,
			status, signal_id, entry_order_id, exit_order_id, commission, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW())
		ON CONFLICT (ticker) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			stop_loss = EXCLUDED.stop_loss,
			take_profit = EXCLUDED.take_profit,
			high_water_mark = EXCLUDED.high_water_mark,
			trailing_price = EXCLUDED.trailing_price,
			current_price = EXCLUDED.current_price,
			price_at = EXCLUDED.price_at,
			status = EXCLUDED.status,
			exit_order_id = EXCLUDED.exit_order_id,
			updated_at = NOW()`

	_, err := r.db.Pool.Exec(ctx, query,
		p.Ticker, p.Quantity, p.EntryPrice, p.EntryTime, p.StopLoss,
		p.TakeProfit, p.HighWaterMark, p.TrailingPrice, p.CurrentPrice, nullableTime(p.PriceAt),
		string(p.Status), nullableString(p.SignalID), nullableString(p.EntryOrderID),
		nullableString(p.ExitOrderID), p.Commission)
	if err != nil {
		return fmt.Errorf("save position %s: %w", p.Ticker, err)
	}
	return nil
}

// DeletePosition removes a closed position's row.
func (r *Repository) DeletePosition(ctx context.Context, ticker string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM positions WHERE ticker = $1`, ticker)
	if err != nil {
		return fmt.Errorf("delete position %s: %w", ticker, err)
	}
	return nil
}

// LoadActivePositions returns every non-closed position for restart
// reconstruction.
func (r *Repository) LoadActivePositions(ctx context.Context) ([]ledger.Position, error) {
	query := `
		SELECT ticker, quantity, entry_price, entry_time, stop_loss, take_profit,
			high_water_mark, trailing_price, current_price, price_at, status,
			signal_id, entry_order_id, exit_order_id, commission
		FROM positions
		WHERE status != 'CLOSED'
		ORDER BY ticker`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load active positions: %w", err)
	}
	defer rows.Close()

	var positions []ledger.Position
	for rows.Next() {
		var p ledger.Position
		var status string
		var priceAt *time.Time
		var signalID, entryOrderID, exitOrderID *string

		err := rows.Scan(&p.Ticker, &p.Quantity, &p.EntryPrice, &p.EntryTime,
			&p.StopLoss, &p.TakeProfit, &p.HighWaterMark, &p.TrailingPrice,
			&p.CurrentPrice, &priceAt, &status, &signalID, &entryOrderID,
			&exitOrderID, &p.Commission)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}

		p.Status = ledger.Status(status)
		if priceAt != nil {
			p.PriceAt = *priceAt
		}
		if signalID != nil {
			p.SignalID = *signalID
		}
		if entryOrderID != nil {
			p.EntryOrderID = *entryOrderID
		}
		if exitOrderID != nil {
			p.ExitOrderID = *exitOrderID
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// ==================== ORDERS ====================

// SaveOrder upserts an order keyed by id so lifecycle updates replay
// cleanly.
func (r *Repository) SaveOrder(ctx context.Context, o *execution.Order) error {
	query := `
		INSERT INTO orders (id, broker_id, ticker, side, requested_qty, filled_qty,
			status, filled_price, commission, signal_id, created_at, submitted_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			broker_id = EXCLUDED.broker_id,
			filled_qty = EXCLUDED.filled_qty,
			status = EXCLUDED.status,
			filled_price = EXCLUDED.filled_price,
			commission = EXCLUDED.commission,
			submitted_at = EXCLUDED.submitted_at,
			completed_at = EXCLUDED.completed_at`

	_, err := r.db.Pool.Exec(ctx, query,
		o.ID, nullableString(o.BrokerID), o.Ticker, string(o.Side),
		o.RequestedQty, o.FilledQty, string(o.Status), o.FilledPrice,
		o.Commission, nullableString(o.SignalID), o.CreatedAt,
		nullableTime(o.SubmittedAt), nullableTime(o.CompletedAt))
	if err != nil {
		return fmt.Errorf("save order %s: %w", o.ID, err)
	}
	return nil
}

// ==================== TRADE RECORDS ====================

// InsertTradeRecord writes the immutable audit entry. The conflict
// clause makes replay after a crash a no-op instead of a duplicate.
func (r *Repository) InsertTradeRecord(ctx context.Context, t *ledger.TradeRecord) error {
	query := `
		INSERT INTO trade_records (id, ticker, quantity, entry_price, entry_time,
			exit_price, exit_time, hold_seconds, reason, realized_pnl,
			realized_pnl_pct, commissions, capital_before, capital_after)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING`

	_, err := r.db.Pool.Exec(ctx, query,
		t.ID, t.Ticker, t.Quantity, t.EntryPrice, t.EntryTime,
		t.ExitPrice, t.ExitTime, int64(t.HoldDuration.Seconds()), string(t.Reason),
		t.RealizedPnL, t.RealizedPnLPct, t.Commissions, t.CapitalBefore, t.CapitalAfter)
	if err != nil {
		return fmt.Errorf("insert trade record %s: %w", t.ID, err)
	}
	return nil
}

// TradeRecordsBetween returns trade records whose exit fell in [from, to).
func (r *Repository) TradeRecordsBetween(ctx context.Context, from, to time.Time) ([]ledger.TradeRecord, error) {
	query := `
		SELECT id, ticker, quantity, entry_price, entry_time, exit_price, exit_time,
			hold_seconds, reason, realized_pnl, realized_pnl_pct, commissions,
			capital_before, capital_after
		FROM trade_records
		WHERE exit_time >= $1 AND exit_time < $2
		ORDER BY exit_time`

	rows, err := r.db.Pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("load trade records: %w", err)
	}
	defer rows.Close()

	var records []ledger.TradeRecord
	for rows.Next() {
		var t ledger.TradeRecord
		var holdSeconds int64
		var reason string

		err := rows.Scan(&t.ID, &t.Ticker, &t.Quantity, &t.EntryPrice, &t.EntryTime,
			&t.ExitPrice, &t.ExitTime, &holdSeconds, &reason, &t.RealizedPnL,
			&t.RealizedPnLPct, &t.Commissions, &t.CapitalBefore, &t.CapitalAfter)
		if err != nil {
			return nil, fmt.Errorf("scan trade record: %w", err)
		}

		t.HoldDuration = time.Duration(holdSeconds) * time.Second
		t.Reason = ledger.ExitReason(reason)
		records = append(records, t)
	}
	return records, rows.Err()
}

// ==================== RISK EVENTS ====================

// InsertRiskEvent appends one breach, mismatch, or rejection record.
func (r *Repository) InsertRiskEvent(ctx context.Context, eventType, ticker, detail string, value float64) error {
	query := `INSERT INTO risk_events (event_type, ticker, detail, value) VALUES ($1, $2, $3, $4)`
	_, err := r.db.Pool.Exec(ctx, query, eventType, nullableString(ticker), detail, value)
	if err != nil {
		return fmt.Errorf("insert risk event: %w", err)
	}
	return nil
}

// ==================== RISK STATE ====================

// RiskStateRecord is the persisted session risk state.
type RiskStateRecord struct {
	SessionDate        time.Time
	SessionStartEquity float64
	CurrentEquity      float64
	ConsecutiveLosses  int
	BreakerState       string
	Quarantined        []string
	UpdatedAt          time.Time
}

// SaveRiskState upserts the risk state keyed by session date.
func (r *Repository) SaveRiskState(ctx context.Context, s RiskStateRecord) error {
	query := `
		INSERT INTO risk_state (session_date, session_start_equity, current_equity,
			consecutive_losses, breaker_state, quarantined, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (session_date) DO UPDATE SET
			current_equity = EXCLUDED.current_equity,
			consecutive_losses = EXCLUDED.consecutive_losses,
			breaker_state = EXCLUDED.breaker_state,
			quarantined = EXCLUDED.quarantined,
			updated_at = NOW()`

	quarantined := s.Quarantined
	if quarantined == nil {
		quarantined = []string{}
	}
	_, err := r.db.Pool.Exec(ctx, query,
		s.SessionDate, s.SessionStartEquity, s.CurrentEquity,
		s.ConsecutiveLosses, s.BreakerState, quarantined)
	if err != nil {
		return fmt.Errorf("save risk state: %w", err)
	}
	return nil
}

// LoadRiskState fetches the risk state for a session date; nil when the
// session has no record yet.
func (r *Repository) LoadRiskState(ctx context.Context, sessionDate time.Time) (*RiskStateRecord, error) {
	query := `
		SELECT session_date, session_start_equity, current_equity,
			consecutive_losses, breaker_state, quarantined, updated_at
		FROM risk_state
		WHERE session_date = $1`

	var s RiskStateRecord
	err := r.db.Pool.QueryRow(ctx, query, sessionDate).Scan(
		&s.SessionDate, &s.SessionStartEquity, &s.CurrentEquity,
		&s.ConsecutiveLosses, &s.BreakerState, &s.Quarantined, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load risk state: %w", err)
	}
	return &s, nil
}

// ==================== SESSION SUMMARY ====================

// SessionSummary aggregates one session's realized results.
type SessionSummary struct {
	Trades      int     `json:"trades"`
	Wins        int     `json:"wins"`
	WinRate     float64 `json:"win_rate"`
	RealizedPnL float64 `json:"realized_pnl"`
	MaxDrawdown float64 `json:"max_drawdown_percent"`
}

// Summarize computes the end-of-session report from trade records in
// [from, to). Max drawdown is the worst peak-to-trough decline of the
// capital trajectory across those trades.
func (r *Repository) Summarize(ctx context.Context, from, to time.Time) (SessionSummary, error) {
	records, err := r.TradeRecordsBetween(ctx, from, to)
	if err != nil {
		return SessionSummary{}, err
	}
	return summarize(records), nil
}

// summarize aggregates trade records. WinRate and MaxDrawdown are
// percentages in [0, 100].
func summarize(records []ledger.TradeRecord) SessionSummary {
	var summary SessionSummary
	summary.Trades = len(records)

	peak := 0.0
	for _, t := range records {
		summary.RealizedPnL += t.RealizedPnL
		if t.RealizedPnL > 0 {
			summary.Wins++
		}

		if t.CapitalBefore > peak {
			peak = t.CapitalBefore
		}
		if t.CapitalAfter > peak {
			peak = t.CapitalAfter
		}
		if peak > 0 {
			dd := (peak - t.CapitalAfter) / peak * 100
			if dd > summary.MaxDrawdown {
				summary.MaxDrawdown = dd
			}
		}
	}
	if summary.Trades > 0 {
		summary.WinRate = float64(summary.Wins) / float64(summary.Trades) * 100
	}
	return summary
}

// ==================== HELPERS ====================

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
