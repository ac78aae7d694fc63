// Package reconciler consumes agent events and periodic exchange snapshots
// to keep the local orders/trades/positions record convergent with the
// exchange, including detection of exchange-initiated (forced) closures.
package reconciler

import (
	"context"
	"fmt"
	"time"

	logger "github.com/sirupsen/logrus"

	"aitrader/src/agent"
	"aitrader/src/apperr"
	"aitrader/src/model"
	"aitrader/src/repository"
)

// ExchangePositions is the subset of the exchange client the periodic sync
// needs: open positions for the forced-exit check, plus order history and
// fills for the same reconciliation the event-driven path does.
type ExchangePositions interface {
	GetPositions() ([]ExchPosition, error)
	GetOrderHistory(limit int) ([]ExchOrder, error)
	GetFills(ordID string, limit int) ([]ExchFill, error)
}

// ExchPosition mirrors exchange.Position's shape, kept local to avoid a
// dependency from reconciler onto the exchange package's wire types.
type ExchPosition struct {
	InstID  string
	PosSide string
}

// ExchOrder mirrors exchange.Order's shape.
type ExchOrder struct {
	OrdID      string
	InstID     string
	Side       string
	PosSide    string
	TdMode     string
	OrderType  string
	Price      *float64
	Size       float64
	FilledSize float64
	Status     string
	UpdatedAt  time.Time
}

// ExchFill mirrors exchange.Fill's shape.
type ExchFill struct {
	OrdID     string
	TradeID   string
	InstID    string
	Side      string
	FillSize  float64
	FillPrice float64
	Fee       float64
	Ts        time.Time
}

// Reconciler owns both the agent-event consumer and the periodic exchange
// sync; both write through the same repositories so writes linearize
// per-ord_id and per-(inst_id,pos_side) within a single task.
type Reconciler struct {
	cfg Config

	orders     *repository.OrderRepository
	trades     *repository.TradeRepository
	positions  *repository.PositionRepository
	strategies *repository.StrategyMessageRepository
	exceptions *repository.ExceptionRepository

	exchange ExchangePositions
}

func New(
	cfg Config,
	orders *repository.OrderRepository,
	trades *repository.TradeRepository,
	positions *repository.PositionRepository,
	strategies *repository.StrategyMessageRepository,
	exceptions *repository.ExceptionRepository,
	exchange ExchangePositions,
) *Reconciler {
	return &Reconciler{
		cfg:        cfg,
		orders:     orders,
		trades:     trades,
		positions:  positions,
		strategies: strategies,
		exceptions: exceptions,
		exchange:   exchange,
	}
}

// ConsumeEvents drains the agent's inbound stream in arrival order until
// ctx is cancelled or the channel closes.
func (r *Reconciler) ConsumeEvents(ctx context.Context, events <-chan agent.InboundEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			r.handleEvent(ctx, ev)
		}
	}
}

func (r *Reconciler) handleEvent(ctx context.Context, ev agent.InboundEvent) {
	switch {
	case ev.TaskResult != nil:
		r.handleTaskResult(ctx, ev.TaskResult)
	case ev.OrderEvent != nil:
		r.handleOrderEvent(ctx, ev.OrderEvent)
	case ev.PnlUpdate != nil:
		r.handlePnlUpdate(ctx, ev.PnlUpdate)
	case ev.PositionSnapshot != nil:
		r.handlePositionSnapshot(ctx, ev.PositionSnapshot)
	case ev.AnalysisError != nil:
		r.handleAnalysisError(ctx, ev.AnalysisError)
	}
}

func (r *Reconciler) handleTaskResult(ctx context.Context, tr *agent.TaskResult) {
	if tr.Summary != nil && *tr.Summary != "" {
		if err := r.strategies.Insert(ctx, *tr.Summary); err != nil {
			logger.WithError(err).Warn("failed to persist strategy message")
		}
	}

	if tr.Status == "rejected" {
		logger.WithField("task_id", tr.TaskID).Info("task_result rejected, no further write")
		return
	}

	if tr.OrdID != nil {
		r.touchOrderAccepted(ctx, *tr.OrdID)
	}
}

// touchOrderAccepted records an acknowledgement tick for an order the
// agent just acted on, without yet knowing its full attributes; the
// periodic sync and subsequent order_events fill in the rest.
func (r *Reconciler) touchOrderAccepted(ctx context.Context, ordID string) {
	existing, err := r.orders.FindByOrdID(ctx, ordID)
	if err != nil {
		logger.WithError(err).WithField("ord_id", ordID).Warn("failed to look up order on task_result")
		return
	}
	if existing != nil {
		return
	}

	_, err = r.orders.UpsertOrder(ctx, repository.UpsertOrderInput{
		OrdID:       ordID,
		Status:      "open",
		ActionKind:  model.ActionKindAgent,
		EventAt:     time.Now(),
		Source:      "task_result",
	})
	if err != nil {
		logger.WithError(err).WithField("ord_id", ordID).Warn("failed to create order stub from task_result")
	}
}

func (r *Reconciler) handleOrderEvent(ctx context.Context, ev *agent.OrderEvent) {
	prev, err := r.orders.FindByOrdID(ctx, ev.OrdID)
	if err != nil {
		logger.WithError(err).WithField("ord_id", ev.OrdID).Error("failed to look up order for order_event")
		return
	}

	prevFilled := 0.0
	instID, posSide, side := "", "", ""
	if prev != nil {
		prevFilled = prev.FilledSize
		instID, posSide, side = prev.InstID, prev.PosSide, prev.Side
	}

	filled := prevFilled
	if ev.FilledSize != nil {
		filled = *ev.FilledSize
	}

	_, err = r.orders.UpsertOrder(ctx, repository.UpsertOrderInput{
		OrdID:       ev.OrdID,
		InstID:      instID,
		Side:        side,
		PosSide:     posSide,
		Status:      ev.Status,
		FilledSize:  filled,
		EventAt:     eventTime(ev.EventTs),
		Source:      "order_event",
	})
	if err != nil {
		logger.WithError(err).WithField("ord_id", ev.OrdID).Error("failed to upsert order")
		return
	}

	if prev == nil || instID == "" {
		// Without a prior order row we don't know inst_id/pos_side yet;
		// position_snapshot or the periodic sync will catch up.
		return
	}

	if ev.FilledSize != nil && *ev.FilledSize > prevFilled {
		delta := *ev.FilledSize - prevFilled
		ts := eventTime(ev.EventTs)
		trade := &model.Trade{
			OrdID:       ev.OrdID,
			InstID:      instID,
			Side:        side,
			FilledSize:  delta,
			FillPrice:   ev.AvgPx,
			Ts:          ts,
			Fingerprint: model.ComputeTradeFingerprint(ev.OrdID, ts, derefOrZero(ev.AvgPx), delta),
		}
		if err := r.trades.InsertTrade(ctx, trade); err != nil {
			logger.WithError(err).WithField("ord_id", ev.OrdID).Error("failed to insert trade from order_event")
		}
	}

	r.recomputePosition(ctx, instID, posSide, prev)
}

// recomputePosition sums all recorded fills for (instID, posSide) and
// reconciles the positions table to that total, rather than trusting the
// cumulative delta reported by any single event.
func (r *Reconciler) recomputePosition(ctx context.Context, instID, posSide string, order *model.Order) {
	net, avgPrice, err := r.trades.NetFilledSize(ctx, instID, posSide)
	if err != nil {
		logger.WithError(err).WithFields(map[string]interface{}{"inst_id": instID, "pos_side": posSide}).Error("failed to sum fills for position reducer")
		return
	}

	side := model.SideBuy
	if net < 0 {
		side = model.SideSell
	}

	snap := repository.PositionSnapshot{
		InstID:     instID,
		PosSide:    posSide,
		TdMode:     order.TdMode,
		Side:       side,
		Size:       net,
		AvgPrice:   avgPrice,
		ActionKind: model.ActionKindAgent,
		EntryOrdID: &order.OrdID,
	}
	if net == 0 {
		snap.ActionKind = model.ActionKindExit
		snap.ExitOrdID = &order.OrdID
	}

	if err := r.positions.UpsertPosition(ctx, snap); err != nil {
		logger.WithError(err).WithFields(map[string]interface{}{"inst_id": instID, "pos_side": posSide}).Error("failed to upsert position")
	}
}

func (r *Reconciler) handlePnlUpdate(ctx context.Context, ev *agent.PnlUpdate) {
	attached, err := r.trades.SetRealizedPnl(ctx, ev.OrdID, ev.RealizedPnl)
	if err != nil {
		logger.WithError(err).WithField("ord_id", ev.OrdID).Error("failed to attach realized pnl")
		return
	}
	if attached {
		return
	}

	found, err := r.orders.MergeRealizedPnlIntoMetadata(ctx, ev.OrdID, ev.RealizedPnl)
	if err != nil {
		logger.WithError(err).WithField("ord_id", ev.OrdID).Error("failed to fall back to order metadata for realized pnl")
		return
	}
	if !found {
		logger.WithField("ord_id", ev.OrdID).Debug("no trade or order row yet for pnl_update, dropping")
	}
}

func (r *Reconciler) handlePositionSnapshot(ctx context.Context, ev *agent.PositionSnapshot) {
	reported := make(map[string]bool, len(ev.Positions))

	for _, p := range ev.Positions {
		reported[p.InstID+"|"+p.PosSide] = true
		err := r.positions.UpsertPosition(ctx, repository.PositionSnapshot{
			InstID:        p.InstID,
			PosSide:       p.PosSide,
			TdMode:        p.TdMode,
			Side:          p.Side,
			Size:          p.Size,
			AvgPrice:      p.AvgPrice,
			MarkPx:        p.MarkPx,
			Margin:        p.Margin,
			UnrealizedPnl: p.UnrealizedPnl,
		})
		if err != nil {
			logger.WithError(err).WithField("inst_id", p.InstID).Error("failed to upsert position from snapshot")
		}
	}

	open, err := r.positions.OpenInstPosSides(ctx)
	if err != nil {
		logger.WithError(err).Error("failed to list open positions for snapshot reconciliation")
		return
	}
	for _, o := range open {
		if reported[o.InstID+"|"+o.PosSide] {
			continue
		}
		if _, err := r.positions.MarkForcedExit(ctx, o.InstID, o.PosSide); err != nil {
			logger.WithError(err).WithField("inst_id", o.InstID).Error("failed to mark forced exit from snapshot")
		}
	}
}

func (r *Reconciler) handleAnalysisError(ctx context.Context, ev *agent.AnalysisError) {
	taskID := ""
	if ev.TaskID != nil {
		taskID = *ev.TaskID
	}
	logger.WithFields(map[string]interface{}{
		"task_id": taskID,
		"error":   ev.Error,
	}).Warn("agent reported analysis_error")

	apperr.Capture(ctx, r.exceptions, "aitrader", "reconciler", "handleAnalysisError", "warn",
		fmt.Errorf("%s", ev.Error), map[string]interface{}{"task_id": taskID})
}

// RunPeriodicSync polls the exchange for open positions on an interval and
// applies the forced-exit rule: a local open row absent from the snapshot
// with no intervening agent close is authoritative evidence of liquidation
// or manual closure on the exchange side.
func (r *Reconciler) RunPeriodicSync(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PositionSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.syncOnce(ctx)
		}
	}
}

// SyncOnceForTest runs a single periodic-sync pass synchronously. Exported
// for tests; production code reaches it only via RunPeriodicSync's ticker.
func (r *Reconciler) SyncOnceForTest(ctx context.Context) {
	r.syncOnce(ctx)
}

func (r *Reconciler) syncOnce(ctx context.Context) {
	exchPositions, err := r.exchange.GetPositions()
	if err != nil {
		logger.WithError(err).Warn("periodic position sync failed, will retry next interval")
		apperr.Capture(ctx, r.exceptions, "aitrader", "reconciler", "syncOnce", "warn", err, nil)
		return
	}

	reported := make(map[string]bool, len(exchPositions))
	for _, p := range exchPositions {
		reported[p.InstID+"|"+p.PosSide] = true
	}

	open, err := r.positions.OpenInstPosSides(ctx)
	if err != nil {
		logger.WithError(err).Error("failed to list open positions for periodic sync")
		return
	}

	for _, o := range open {
		if reported[o.InstID+"|"+o.PosSide] {
			continue
		}
		marked, err := r.positions.MarkForcedExit(ctx, o.InstID, o.PosSide)
		if err != nil {
			logger.WithError(err).WithField("inst_id", o.InstID).Error("failed to mark forced exit in periodic sync")
			continue
		}
		if marked {
			logger.WithFields(map[string]interface{}{
				"inst_id":  o.InstID,
				"pos_side": o.PosSide,
			}).Warn("position disappeared from exchange, marked forced exit")
		}
	}

	if err := r.syncOrderHistory(ctx); err != nil {
		logger.WithError(err).Warn("periodic order/fill sync failed, will retry next interval")
		apperr.Capture(ctx, r.exceptions, "aitrader", "reconciler", "syncOrderHistory", "warn", err, nil)
	}
}

// syncOrderHistory pulls recent order history and, per order, its fills,
// reconciling both the same way the event-driven path does: upsert the
// order, insert any new fills as trades (deduped by fingerprint),
// then recompute the position from the full trade history. This is the
// same convergence the agent channel drives live, run here as a catch-up
// pass for orders the agent channel never reported (a missed order_event,
// a restart mid-fill).
func (r *Reconciler) syncOrderHistory(ctx context.Context) error {
	orders, err := r.exchange.GetOrderHistory(r.cfg.OrderHistoryLimit)
	if err != nil {
		return err
	}

	recomputed := make(map[string]bool, len(orders))

	for _, o := range orders {
		saved, err := r.orders.UpsertOrder(ctx, repository.UpsertOrderInput{
			OrdID:      o.OrdID,
			InstID:     o.InstID,
			Side:       o.Side,
			PosSide:    o.PosSide,
			TdMode:     o.TdMode,
			OrderType:  o.OrderType,
			Price:      o.Price,
			Size:       o.Size,
			FilledSize: o.FilledSize,
			Status:     o.Status,
			ActionKind: model.ActionKindAgent,
			EventAt:    o.UpdatedAt,
			Source:     "periodic_sync",
		})
		if err != nil {
			logger.WithError(err).WithField("ord_id", o.OrdID).Error("failed to upsert order from periodic sync")
			continue
		}

		fills, err := r.exchange.GetFills(o.OrdID, r.cfg.OrderHistoryLimit)
		if err != nil {
			logger.WithError(err).WithField("ord_id", o.OrdID).Warn("failed to fetch fills during periodic sync")
			continue
		}
		for i := range fills {
			f := fills[i]
			trade := &model.Trade{
				OrdID:       f.OrdID,
				InstID:      f.InstID,
				Side:        f.Side,
				FilledSize:  f.FillSize,
				FillPrice:   &f.FillPrice,
				Fee:         &f.Fee,
				Ts:          f.Ts,
				Fingerprint: model.ComputeTradeFingerprint(f.OrdID, f.Ts, f.FillPrice, f.FillSize),
			}
			if err := r.trades.InsertTrade(ctx, trade); err != nil {
				logger.WithError(err).WithField("ord_id", f.OrdID).Error("failed to insert trade from periodic fill sync")
			}
		}

		if saved.InstID == "" {
			continue
		}
		key := saved.InstID + "|" + saved.PosSide
		if recomputed[key] {
			continue
		}
		recomputed[key] = true
		r.recomputePosition(ctx, saved.InstID, saved.PosSide, saved)
	}
	return nil
}

func eventTime(ts int64) time.Time {
	if ts == 0 {
		return time.Now()
	}
	return time.UnixMilli(ts)
}

func derefOrZero(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
