// Package bot runs the scan-execute loop: one goroutine that polls
// prices and signals, gates entries, evaluates exits, feeds the circuit
// breaker, and persists state every tick. All trading state is owned by
// this goroutine; other components only see snapshots.
package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"trade-agent/internal/broker"
	"trade-agent/internal/circuit"
	"trade-agent/internal/cooldown"
	"trade-agent/internal/database"
	"trade-agent/internal/events"
	"trade-agent/internal/execution"
	"trade-agent/internal/feed"
	"trade-agent/internal/ledger"
	"trade-agent/internal/notification"
	"trade-agent/internal/reconcile"
	"trade-agent/internal/risk"
)

// Store is the persistence surface the loop writes through every tick.
// *database.Repository implements it.
type Store interface {
	SavePosition(ctx context.Context, p ledger.Position) error
	DeletePosition(ctx context.Context, ticker string) error
	LoadActivePositions(ctx context.Context) ([]ledger.Position, error)
	SaveOrder(ctx context.Context, o *execution.Order) error
	InsertTradeRecord(ctx context.Context, t *ledger.TradeRecord) error
	InsertRiskEvent(ctx context.Context, eventType, ticker, detail string, value float64) error
	SaveRiskState(ctx context.Context, s database.RiskStateRecord) error
	LoadRiskState(ctx context.Context, sessionDate time.Time) (*database.RiskStateRecord, error)
	Summarize(ctx context.Context, from, to time.Time) (database.SessionSummary, error)
}

// Config holds loop timing parameters.
type Config struct {
	TickInterval      time.Duration `json:"-"`
	TickSeconds       int           `json:"tick_seconds"`
	ReconcileInterval time.Duration `json:"-"`
	ReconcileMinutes  int           `json:"reconcile_minutes"`
	MaxOpenPositions  int           `json:"max_open_positions"`
	TickTimeout       time.Duration `json:"-"`
}

// DefaultConfig returns the standard loop timing.
func DefaultConfig() Config {
	return Config{
		TickInterval:      15 * time.Second,
		ReconcileInterval: 5 * time.Minute,
		MaxOpenPositions:  10,
		TickTimeout:       30 * time.Second,
	}
}

// Deps bundles the collaborators the loop drives.
type Deps struct {
	Signals  feed.SignalFeed
	Prices   feed.PriceFeed
	Regime   feed.RegimeFeed // optional
	Book     *feed.PriceBook
	Broker   broker.Broker
	Gate     *risk.Gatekeeper
	Breaker  *circuit.Breaker
	Ledger   *ledger.Ledger
	Exec     *execution.Adapter
	Recon    *reconcile.Service
	Cooldown *cooldown.Registry
	Store    Store
	Mirror   *database.StateMirror // optional
	Bus      *events.EventBus
	Notify   *notification.Manager
}

// Agent is the trading loop.
type Agent struct {
	log    zerolog.Logger
	config Config
	deps   Deps
	book   *feed.PriceBook

	mu            sync.RWMutex
	state         *risk.State
	lastReconcile time.Time

	stopChan chan struct{}
	stopOnce sync.Once
	doneChan chan struct{}
}

// New creates the agent and wires breaker transitions into events,
// alerts, and the risk-event log.
func New(config Config, deps Deps, log zerolog.Logger) *Agent {
	if config.TickInterval == 0 && config.TickSeconds > 0 {
		config.TickInterval = time.Duration(config.TickSeconds) * time.Second
	}
	if config.ReconcileInterval == 0 && config.ReconcileMinutes > 0 {
		config.ReconcileInterval = time.Duration(config.ReconcileMinutes) * time.Minute
	}
	if config.TickTimeout == 0 {
		config.TickTimeout = 30 * time.Second
	}

	if deps.Book == nil {
		deps.Book = feed.NewPriceBook(log)
	}

	a := &Agent{
		log:      log,
		config:   config,
		deps:     deps,
		book:     deps.Book,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}

	deps.Breaker.OnTransition(func(from, to circuit.State, reason string) {
		a.log.Warn().Str("from", string(from)).Str("to", string(to)).
			Str("reason", reason).Msg("circuit breaker transition")
		if deps.Bus != nil {
			deps.Bus.PublishBreakerTransition(string(from), string(to), reason)
		}
		if deps.Notify != nil {
			_ = deps.Notify.SendBreakerTransition(string(from), string(to), reason)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = deps.Store.InsertRiskEvent(ctx, "breaker_transition", "",
			fmt.Sprintf("%s -> %s: %s", from, to, reason), 0)
	})

	return a
}

// Run restores state, reconciles, then ticks until Stop. It blocks.
func (a *Agent) Run(ctx context.Context) error {
	defer close(a.doneChan)

	if err := a.startup(ctx); err != nil {
		return fmt.Errorf("startup: %w", err)
	}

	a.log.Info().Dur("tick", a.config.TickInterval).Msg("scan-execute loop started")

	ticker := time.NewTicker(a.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopChan:
			a.shutdown(ctx)
			return nil
		case <-ctx.Done():
			a.shutdown(context.Background())
			return ctx.Err()
		case <-ticker.C:
			tickCtx, cancel := context.WithTimeout(ctx, a.config.TickTimeout)
			a.tick(tickCtx, time.Now())
			cancel()
		}
	}
}

// Stop requests a cooperative stop. It is honored at the next tick
// boundary and returns once the loop has closed out.
func (a *Agent) Stop() {
	a.stopOnce.Do(func() { close(a.stopChan) })
	<-a.doneChan
}

// startup reconstructs open positions and risk state from Postgres and
// runs a full reconciliation before any trading happens.
func (a *Agent) startup(ctx context.Context) error {
	account, err := a.deps.Broker.Account(ctx)
	if err != nil {
		return fmt.Errorf("initial account snapshot: %w", err)
	}

	positions, err := a.deps.Store.LoadActivePositions(ctx)
	if err != nil {
		return fmt.Errorf("load positions: %w", err)
	}
	a.deps.Ledger.Restore(positions)

	sessionDate := sessionDay(time.Now())
	stored, err := a.deps.Store.LoadRiskState(ctx, sessionDate)
	if err != nil {
		return fmt.Errorf("load risk state: %w", err)
	}

	state := risk.NewState(sessionDate, account.Equity)
	if stored != nil {
		state.SessionStartEquity = stored.SessionStartEquity
		state.CurrentEquity = account.Equity
		state.ConsecutiveLosses = stored.ConsecutiveLosses
		state.BreakerState = circuit.State(stored.BreakerState)
		for _, t := range stored.Quarantined {
			state.Quarantine(t)
		}
		a.deps.Breaker.Restore(circuit.State(stored.BreakerState), stored.ConsecutiveLosses)
		if a.deps.Mirror != nil {
			if exits, ok := a.deps.Mirror.Cooldowns(ctx); ok {
				a.deps.Cooldown.Restore(exits)
			}
		}
		a.log.Info().Str("breaker", stored.BreakerState).
			Int("positions", len(positions)).Msg("restored mid-session state")
	} else {
		a.deps.Breaker.ResetForSession()
		a.deps.Cooldown.Reset()
	}

	a.mu.Lock()
	a.state = state
	a.mu.Unlock()

	a.runReconciliation(ctx)
	a.persist(ctx)

	if a.deps.Bus != nil {
		a.deps.Bus.Publish(events.Event{
			Type: events.EventSessionStarted,
			Data: map[string]interface{}{
				"equity":    account.Equity,
				"positions": len(positions),
			},
		})
	}
	return nil
}

// tick runs one full scan-execute pass.
func (a *Agent) tick(ctx context.Context, now time.Time) {
	a.refreshPrices(ctx)

	account, err := a.deps.Broker.Account(ctx)
	if err != nil {
		a.log.Error().Err(err).Msg("account snapshot failed, skipping tick")
		a.publishError("account", err)
		return
	}
	a.mu.Lock()
	a.state.CurrentEquity = account.Equity
	a.mu.Unlock()

	if a.deps.Regime != nil {
		if severity, err := a.deps.Regime.Regime(ctx); err != nil {
			a.log.Warn().Err(err).Msg("regime feed unavailable")
		} else {
			a.deps.Breaker.ObserveRegime(severity)
		}
	}

	a.scanEntries(ctx, account, now)
	a.processExits(ctx, now)

	a.mu.RLock()
	drawdown := a.state.DrawdownPercent()
	a.mu.RUnlock()
	a.deps.Breaker.ObserveDrawdown(drawdown)

	if a.deps.Breaker.CloseAllRequested() {
		a.liquidateAll(ctx, ledger.ExitCloseAll)
		a.deps.Breaker.ConfirmClosed()
	}

	a.mu.Lock()
	a.state.BreakerState = a.deps.Breaker.State()
	a.state.ConsecutiveLosses = a.deps.Breaker.ConsecutiveLosses()
	a.mu.Unlock()

	if a.config.ReconcileInterval > 0 && now.Sub(a.lastReconcile) >= a.config.ReconcileInterval {
		a.runReconciliation(ctx)
	}

	a.persist(ctx)
}

// refreshPrices pulls a snapshot for every ticker the loop cares about
// and merges it into the last-known-good book. An empty snapshot is an
// outage; positions keep their previous marks.
func (a *Agent) refreshPrices(ctx context.Context) {
	tickers := a.deps.Ledger.Tickers()
	quotes, err := a.deps.Prices.Prices(ctx, tickers)
	if err != nil {
		a.log.Warn().Err(err).Msg("price feed error, keeping last known prices")
		return
	}
	a.book.Apply(quotes)
	a.deps.Ledger.OnPriceUpdate(a.book.Snapshot())
}

// scanEntries runs every candidate through the gatekeeper and executes
// the approvals.
func (a *Agent) scanEntries(ctx context.Context, account broker.AccountSnapshot, now time.Time) {
	if !a.deps.Breaker.AllowEntries() {
		return
	}
	if a.config.MaxOpenPositions > 0 && a.deps.Ledger.Count() >= a.config.MaxOpenPositions {
		return
	}

	signals, err := a.deps.Signals.Signals(ctx)
	if err != nil {
		a.log.Warn().Err(err).Msg("signal feed error, no candidates this tick")
		return
	}

	for _, sig := range signals {
		if a.config.MaxOpenPositions > 0 && a.deps.Ledger.Count() >= a.config.MaxOpenPositions {
			return
		}
		if _, open := a.deps.Ledger.Get(sig.Ticker); open {
			continue
		}
		if sig.StopLoss >= sig.EntryPrice {
			a.rejectEntry(ctx, sig, "non_positive_risk",
				fmt.Sprintf("stop %.2f at or above entry %.2f", sig.StopLoss, sig.EntryPrice))
			continue
		}

		a.mu.RLock()
		state := a.state
		decision := a.deps.Gate.Evaluate(ctx, sig, account, state, now)
		a.mu.RUnlock()

		if !decision.Allowed {
			a.rejectEntry(ctx, sig, string(decision.Reason), decision.Detail)
			continue
		}

		a.executeEntry(ctx, sig, decision, now)
	}
}

// executeEntry submits an approved entry and opens the position on fill.
func (a *Agent) executeEntry(ctx context.Context, sig feed.Signal, decision risk.Decision, now time.Time) {
	price := sig.EntryPrice
	quoteAt := sig.GeneratedAt
	if q, ok := a.book.Last(sig.Ticker); ok {
		price = q.Price
		quoteAt = q.At
	}

	order, err := a.deps.Exec.Submit(ctx, execution.Request{
		Ticker:   sig.Ticker,
		Side:     broker.Buy,
		Quantity: decision.Quantity,
		Price:    price,
		QuoteAt:  quoteAt,
		SignalID: sig.ID,
	})
	a.saveOrder(ctx, order)

	if err != nil {
		if errors.Is(err, execution.ErrUnknownOutcome) {
			a.handleUnknownOutcome(ctx, sig.Ticker, err)
			return
		}
		a.rejectEntry(ctx, sig, "submission_failed", err.Error())
		return
	}
	if order.Status != execution.StatusFilled {
		a.rejectEntry(ctx, sig, "not_filled", string(order.Status))
		return
	}

	pos, err := a.deps.Ledger.Open(sig.Ticker, order.FilledQty, order.FilledPrice,
		sig.StopLoss, sig.TakeProfit, order.Commission, sig.ID, order.ID, now)
	if err != nil {
		// A filled entry the ledger refuses to book cannot be trusted
		// either way; quarantine until an operator looks.
		a.log.Error().Err(err).Str("ticker", sig.Ticker).
			Msg("fill could not be booked, quarantining ticker")
		a.mu.Lock()
		a.state.Quarantine(sig.Ticker)
		a.mu.Unlock()
		_ = a.deps.Store.InsertRiskEvent(ctx, "booking_failure", sig.Ticker, err.Error(), 0)
		return
	}

	if err := a.deps.Store.SavePosition(ctx, *pos); err != nil {
		a.log.Error().Err(err).Str("ticker", sig.Ticker).Msg("persist position failed")
	}
	if a.deps.Bus != nil {
		a.deps.Bus.PublishEntryFilled(sig.Ticker, order.FilledPrice, order.FilledQty, decision.Notional)
	}
	if a.deps.Notify != nil {
		_ = a.deps.Notify.SendEntry(sig.Ticker, order.FilledPrice, order.FilledQty, decision.Notional)
	}
}

// processExits evaluates exit rules and closes triggered positions.
// Quarantined tickers are skipped: their true quantity is in dispute.
func (a *Agent) processExits(ctx context.Context, now time.Time) {
	exits := a.deps.Ledger.EvaluateExits(now)
	for _, exit := range exits {
		a.mu.RLock()
		quarantined := a.state.IsQuarantined(exit.Ticker)
		a.mu.RUnlock()
		if quarantined {
			a.log.Warn().Str("ticker", exit.Ticker).Str("reason", string(exit.Reason)).
				Msg("exit suppressed, ticker quarantined")
			continue
		}
		a.closePosition(ctx, exit, now)
	}
}

// closePosition submits one exit order and books the result.
func (a *Agent) closePosition(ctx context.Context, exit ledger.ExitSignal, now time.Time) {
	if err := a.deps.Ledger.MarkExitPending(exit.Ticker, ""); err != nil {
		return
	}

	quoteAt := now
	if q, ok := a.book.Last(exit.Ticker); ok {
		quoteAt = q.At
	}

	order, err := a.deps.Exec.Submit(ctx, execution.Request{
		Ticker:   exit.Ticker,
		Side:     broker.Sell,
		Quantity: exit.Quantity,
		Price:    exit.Price,
		QuoteAt:  quoteAt,
	})
	a.saveOrder(ctx, order)

	if err != nil {
		if errors.Is(err, execution.ErrUnknownOutcome) {
			a.handleUnknownOutcome(ctx, exit.Ticker, err)
			return
		}
		a.log.Error().Err(err).Str("ticker", exit.Ticker).Msg("exit submission failed")
		a.deps.Ledger.ReleaseExitPending(exit.Ticker)
		a.publishError("exit", err)
		return
	}
	if order.Status != execution.StatusFilled {
		a.deps.Ledger.ReleaseExitPending(exit.Ticker)
		return
	}

	a.mu.RLock()
	capitalBefore := a.state.CurrentEquity
	a.mu.RUnlock()

	record, err := a.deps.Ledger.Close(exit.Ticker, order.FilledPrice,
		order.Commission, capitalBefore, exit.Reason, now)
	if err != nil {
		a.log.Error().Err(err).Str("ticker", exit.Ticker).Msg("close bookkeeping failed")
		return
	}

	a.deps.Cooldown.RecordExit(exit.Ticker, now)
	a.deps.Breaker.RecordTradeResult(record.RealizedPnL)

	if err := a.deps.Store.InsertTradeRecord(ctx, record); err != nil {
		a.log.Error().Err(err).Str("ticker", exit.Ticker).Msg("persist trade record failed")
	}
	if err := a.deps.Store.DeletePosition(ctx, exit.Ticker); err != nil {
		a.log.Error().Err(err).Str("ticker", exit.Ticker).Msg("delete position row failed")
	}

	if a.deps.Bus != nil {
		a.deps.Bus.PublishExitFilled(exit.Ticker, string(exit.Reason),
			order.FilledPrice, order.FilledQty, record.RealizedPnL, record.RealizedPnLPct)
	}
	if a.deps.Notify != nil {
		_ = a.deps.Notify.SendExit(exit.Ticker, string(exit.Reason),
			record.EntryPrice, record.ExitPrice, record.RealizedPnL, record.RealizedPnLPct)
	}
}

// saveOrder persists an order row if one came back; persistence errors
// never block the trading path.
func (a *Agent) saveOrder(ctx context.Context, order *execution.Order) {
	if order == nil {
		return
	}
	if err := a.deps.Store.SaveOrder(ctx, order); err != nil {
		a.log.Error().Err(err).Str("order_id", order.ID).Msg("persist order failed")
	}
}

// liquidateAll closes every open position at best effort.
func (a *Agent) liquidateAll(ctx context.Context, reason ledger.ExitReason) {
	positions := a.deps.Ledger.Active()
	if len(positions) == 0 {
		return
	}
	a.log.Warn().Int("count", len(positions)).Str("reason", string(reason)).
		Msg("liquidating all open positions")

	now := time.Now()
	for _, pos := range positions {
		if pos.Status != ledger.StatusOpen {
			continue
		}
		a.mu.RLock()
		quarantined := a.state.IsQuarantined(pos.Ticker)
		a.mu.RUnlock()
		if quarantined {
			// The true quantity is in dispute; an operator closes it
			// at the broker.
			a.log.Warn().Str("ticker", pos.Ticker).
				Msg("liquidation skipped, ticker quarantined")
			continue
		}
		a.closePosition(ctx, ledger.ExitSignal{
			Ticker:   pos.Ticker,
			Quantity: pos.Quantity,
			Reason:   reason,
			Price:    pos.CurrentPrice,
		}, now)
	}
}

// runReconciliation diffs ledger against broker and quarantines every
// mismatched ticker.
func (a *Agent) runReconciliation(ctx context.Context) {
	a.lastReconcile = time.Now()

	mismatches, err := a.deps.Recon.Run(ctx, a.deps.Ledger.Active())
	if err != nil {
		a.log.Error().Err(err).Msg("reconciliation failed")
		a.publishError("reconcile", err)
		return
	}
	a.applyMismatches(ctx, mismatches)
}

// reconcileTicker reconciles one ticker after an unknown-outcome
// submission.
func (a *Agent) reconcileTicker(ctx context.Context, ticker string) {
	mismatches, err := a.deps.Recon.RunTicker(ctx, ticker, a.deps.Ledger.Active())
	if err != nil {
		a.log.Error().Err(err).Str("ticker", ticker).Msg("ticker reconciliation failed")
		// Cannot verify: quarantine until an operator or a clean
		// reconciliation clears it.
		a.mu.Lock()
		a.state.Quarantine(ticker)
		a.mu.Unlock()
		return
	}
	a.applyMismatches(ctx, mismatches)
}

func (a *Agent) applyMismatches(ctx context.Context, mismatches []reconcile.Mismatch) {
	for _, m := range mismatches {
		a.mu.Lock()
		already := a.state.IsQuarantined(m.Ticker)
		a.state.Quarantine(m.Ticker)
		a.mu.Unlock()
		if already {
			continue
		}

		_ = a.deps.Store.InsertRiskEvent(ctx, "reconcile_mismatch", m.Ticker, m.String(), m.BrokerQty-m.LocalQty)
		if a.deps.Bus != nil {
			a.deps.Bus.PublishReconcileMismatch(m.Ticker, m.LocalQty, m.BrokerQty)
		}
		if a.deps.Notify != nil {
			_ = a.deps.Notify.SendMismatch(m.Ticker, m.LocalQty, m.BrokerQty)
		}
	}
}

// handleUnknownOutcome reacts to a submission whose fate is unknown: the
// ticker is reconciled immediately and no further action is taken on it
// this tick.
func (a *Agent) handleUnknownOutcome(ctx context.Context, ticker string, err error) {
	a.log.Error().Err(err).Str("ticker", ticker).
		Msg("order outcome unknown, forcing reconciliation")
	_ = a.deps.Store.InsertRiskEvent(ctx, "unknown_outcome", ticker, err.Error(), 0)
	a.reconcileTicker(ctx, ticker)
}

// rejectEntry records and surfaces a blocked entry.
func (a *Agent) rejectEntry(ctx context.Context, sig feed.Signal, reason, detail string) {
	a.log.Info().Str("ticker", sig.Ticker).Str("reason", reason).
		Str("detail", detail).Msg("entry rejected")
	_ = a.deps.Store.InsertRiskEvent(ctx, "entry_rejected", sig.Ticker,
		fmt.Sprintf("%s: %s", reason, detail), 0)
	if a.deps.Bus != nil {
		a.deps.Bus.PublishOrderRejected(sig.Ticker, string(broker.Buy), reason, detail)
	}
}

// persist writes risk state to Postgres and mirrors loop state to Redis.
func (a *Agent) persist(ctx context.Context) {
	a.mu.RLock()
	record := database.RiskStateRecord{
		SessionDate:        a.state.SessionDate,
		SessionStartEquity: a.state.SessionStartEquity,
		CurrentEquity:      a.state.CurrentEquity,
		ConsecutiveLosses:  a.state.ConsecutiveLosses,
		BreakerState:       string(a.state.BreakerState),
		Quarantined:        a.state.QuarantinedTickers(),
	}
	a.mu.RUnlock()

	if err := a.deps.Store.SaveRiskState(ctx, record); err != nil {
		a.log.Error().Err(err).Msg("persist risk state failed")
	}

	positions := a.deps.Ledger.Active()
	for _, pos := range positions {
		if err := a.deps.Store.SavePosition(ctx, pos); err != nil {
			a.log.Error().Err(err).Str("ticker", pos.Ticker).Msg("persist position failed")
		}
	}

	if a.deps.Mirror != nil {
		a.deps.Mirror.MirrorRiskState(ctx, record)
		a.deps.Mirror.MirrorPositions(ctx, positions)
		a.deps.Mirror.MirrorCooldowns(ctx, a.deps.Cooldown.Snapshot())
	}
}

// shutdown closes every open position at best effort, publishes the
// session summary, and persists final state.
func (a *Agent) shutdown(ctx context.Context) {
	a.log.Info().Msg("cooperative stop, closing all positions")

	closeCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	a.refreshPrices(closeCtx)
	a.liquidateAll(closeCtx, ledger.ExitShutdown)
	a.persist(closeCtx)

	a.mu.RLock()
	sessionDate := a.state.SessionDate
	a.mu.RUnlock()

	summary, err := a.deps.Store.Summarize(closeCtx, sessionDate, sessionDate.Add(24*time.Hour))
	if err != nil {
		a.log.Error().Err(err).Msg("session summary failed")
		return
	}
	if a.deps.Bus != nil {
		a.deps.Bus.PublishSessionSummary(summary.Trades, summary.WinRate,
			summary.RealizedPnL, summary.MaxDrawdown)
	}
	if a.deps.Notify != nil {
		_ = a.deps.Notify.SendSessionSummary(summary.Trades, summary.WinRate,
			summary.RealizedPnL, summary.MaxDrawdown)
	}
	a.log.Info().Int("trades", summary.Trades).Float64("pnl", summary.RealizedPnL).
		Msg("session closed")
}

func (a *Agent) publishError(source string, err error) {
	if a.deps.Bus != nil {
		a.deps.Bus.PublishError(source, err)
	}
}

// RiskSnapshot returns a copy of the current risk state for the API.
func (a *Agent) RiskSnapshot() *risk.State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.state == nil {
		return risk.NewState(sessionDay(time.Now()), 0)
	}
	return a.state.Clone()
}

// Positions returns the active position set for the API.
func (a *Agent) Positions() []ledger.Position {
	return a.deps.Ledger.Active()
}

// ClearQuarantine releases a ticker on operator request. Returns false
// when the ticker was not quarantined.
func (a *Agent) ClearQuarantine(ctx context.Context, ticker string) bool {
	a.mu.Lock()
	cleared := a.state.ClearQuarantine(ticker)
	a.mu.Unlock()
	if !cleared {
		return false
	}

	a.log.Info().Str("ticker", ticker).Msg("quarantine cleared by operator")
	_ = a.deps.Store.InsertRiskEvent(ctx, "quarantine_cleared", ticker, "operator", 0)
	if a.deps.Bus != nil {
		a.deps.Bus.Publish(events.Event{
			Type: events.EventQuarantineCleared,
			Data: map[string]interface{}{"ticker": ticker},
		})
	}
	a.persist(ctx)
	return true
}

// sessionDay truncates t to its trading date.
func sessionDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
