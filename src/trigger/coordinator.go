// Package trigger implements the single serialized analysis scheduler:
// it merges manual, schedule and volatility wakes per instrument, holds
// the sole analysis permit, and drives the agent request/registry update
// cycle.
package trigger

import (
	"context"
	"math"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"

	"aitrader/src/apperr"
	"aitrader/src/registry"
)

// AgentRequester is the subset of the agent channel the coordinator needs.
type AgentRequester interface {
	Request(ctx context.Context, action, instID string, extra map[string]interface{}) (*TaskOutcome, error)
}

// TaskOutcome is the coordinator's view of a completed task_request; the
// agent package's TaskResult satisfies this shape structurally via the
// adapter built in src/app.
type TaskOutcome struct {
	Status  string
	Summary *string
	OrdID   *string
}

type wakeSignal struct {
	instID string
	source registry.Source
	price  *float64
}

// Coordinator owns the symbol registry and the implicit analysis permit:
// because the run loop is single-threaded, at most one task_request is
// ever in flight per instrument. A wake for an instrument that isn't
// currently being processed simply waits in pending until the loop is
// free. A wake for an instrument whose process() call IS already running
// is handled asymmetrically by source: a volatility wake sets a dirty bit
// so the instrument is immediately reprocessed once the permit is
// released (coalesce-and-rearm, newest price wins); a manual or schedule
// wake is dropped outright and never replayed, since the spec only
// guarantees exactly one task_request per manual trigger, not a retry
// once the coordinator frees up.
type Coordinator struct {
	cfg      Config
	volCfg   VolatilityThreshold
	registry *registry.Registry
	agent    AgentRequester

	mu       sync.Mutex
	pending  map[string]wakeSignal
	inFlight map[string]bool
	dirty    map[string]wakeSignal
	notify   chan struct{}
}

// VolatilityThreshold is the subset of volatility config needed to
// re-validate a wake before spending an agent round-trip on it.
type VolatilityThreshold struct {
	ThresholdBps float64
}

func New(cfg Config, volCfg VolatilityThreshold, reg *registry.Registry, agentRequester AgentRequester) *Coordinator {
	if cfg.AgentRequestTimeout <= 0 {
		cfg.AgentRequestTimeout = 30 * time.Second
	}
	return &Coordinator{
		cfg:      cfg,
		volCfg:   volCfg,
		registry: reg,
		agent:    agentRequester,
		pending:  make(map[string]wakeSignal),
		inFlight: make(map[string]bool),
		dirty:    make(map[string]wakeSignal),
		notify:   make(chan struct{}, 1),
	}
}

// Wake records a wake for instID. If instID is not currently being
// processed, it is queued (overwriting any not-yet-processed wake for the
// same instrument; only the newest price survives). If instID IS
// currently being processed, a volatility wake sets the dirty bit for an
// immediate re-run on release; any other source is dropped and logged
// with outcome=busy, never replayed.
func (c *Coordinator) Wake(instID string, source registry.Source, price *float64) {
	w := wakeSignal{instID: instID, source: source, price: price}

	c.mu.Lock()
	if c.inFlight[instID] {
		if source == registry.SourceVolatility {
			c.dirty[instID] = w
		}
		c.mu.Unlock()
		if source != registry.SourceVolatility {
			c.logBusyDrop(w)
		}
		return
	}
	c.pending[instID] = w
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// logBusyDrop emits the same per-attempt log line shape as a completed
// trigger attempt, with outcome=busy, for a wake that never reached
// process() at all.
func (c *Coordinator) logBusyDrop(w wakeSignal) {
	snap, _ := c.registry.Snapshot(w.instID)
	priceNow := w.price
	if priceNow == nil {
		priceNow = snap.LastTickPrice
	}
	logger.WithFields(map[string]interface{}{
		"source":     w.source,
		"inst_id":    w.instID,
		"price_now":  priceNow,
		"baseline":   snap.LastTriggerPrice,
		"delta_bps":  deltaBps(snap.LastTriggerPrice, priceNow),
		"outcome":    "busy",
		"elapsed_ms": int64(0),
	}).Info("trigger attempt complete")
}

// Run drives the coordinator loop until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	for _, s := range c.registry.All() {
		if s.LastTriggerPrice == nil {
			c.Wake(s.InstID, registry.SourceStartup, nil)
		}
	}

	for {
		_, wakeAt, haveTimer := c.registry.EarliestScheduledAt()

		var timerC <-chan time.Time
		if haveTimer && c.cfg.ScheduleEnabled {
			d := time.Until(wakeAt)
			if d < 0 {
				d = 0
			}
			t := time.NewTimer(d)
			timerC = t.C
			defer t.Stop()
		}

		select {
		case <-ctx.Done():
			return
		case <-c.notify:
			c.drainPending(ctx)
		case <-timerC:
			c.fireSchedule(ctx)
		}
	}
}

func (c *Coordinator) drainPending(ctx context.Context) {
	c.mu.Lock()
	wakes := c.pending
	c.pending = make(map[string]wakeSignal)
	c.mu.Unlock()

	for _, w := range wakes {
		c.runProcess(ctx, w)
	}
}

// fireSchedule processes every instrument whose schedule has come due and
// has no fresher pending or in-flight wake already claiming it.
func (c *Coordinator) fireSchedule(ctx context.Context) {
	now := time.Now()
	c.mu.Lock()
	busy := make(map[string]bool, len(c.pending)+len(c.inFlight))
	for id := range c.pending {
		busy[id] = true
	}
	for id := range c.inFlight {
		busy[id] = true
	}
	c.mu.Unlock()

	for _, s := range c.registry.All() {
		if busy[s.InstID] {
			continue
		}
		if !s.NextScheduledAt.After(now) {
			c.runProcess(ctx, wakeSignal{instID: s.InstID, source: registry.SourceSchedule})
		}
	}
}

// runProcess marks instID in-flight for the duration of process(), then
// checks the dirty bit on release: a volatility wake that arrived while
// busy is immediately reprocessed, looping until the instrument goes
// quiet again. Manual/schedule wakes never reach here via the dirty path;
// Wake() drops those outright instead of setting dirty.
func (c *Coordinator) runProcess(ctx context.Context, w wakeSignal) {
	for {
		c.mu.Lock()
		c.inFlight[w.instID] = true
		c.mu.Unlock()

		c.process(ctx, w.instID, w.source, w.price)

		c.mu.Lock()
		delete(c.inFlight, w.instID)
		rearm, dirty := c.dirty[w.instID]
		if dirty {
			delete(c.dirty, w.instID)
		}
		c.mu.Unlock()

		if !dirty {
			return
		}
		w = rearm
	}
}

func (c *Coordinator) process(ctx context.Context, instID string, source registry.Source, price *float64) {
	start := time.Now()

	snap, _ := c.registry.Snapshot(instID)
	tickPrice := price
	if tickPrice == nil {
		tickPrice = snap.LastTickPrice
	}

	if source == registry.SourceVolatility && !c.revalidateVolatility(snap, tickPrice) {
		logger.WithFields(map[string]interface{}{
			"source":  source,
			"inst_id": instID,
			"outcome": "stale",
		}).Debug("dropping stale volatility wake")
		return
	}

	outcome := "ok"
	var taskErr error
	var result *TaskOutcome

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.AgentRequestTimeout)
	result, taskErr = c.agent.Request(reqCtx, "place_or_review", instID, map[string]interface{}{
		"trigger_source": string(source),
	})
	cancel()

	refreshBaseline := tickPrice
	if taskErr != nil {
		outcome = "error"
		if apperr.Is(taskErr, apperr.KindBusinessReject) && !c.cfg.RefreshBaselineOnError {
			refreshBaseline = nil
		}
	}
	if taskErr == nil && result != nil && result.Status == "rejected" {
		outcome = "error"
		if !c.cfg.RefreshBaselineOnError {
			refreshBaseline = nil
		}
	}

	c.registry.RecordTrigger(instID, source, refreshBaseline, c.cfg.ScheduleInterval)

	logger.WithFields(map[string]interface{}{
		"source":     source,
		"inst_id":    instID,
		"price_now":  tickPrice,
		"baseline":   snap.LastTriggerPrice,
		"delta_bps":  deltaBps(snap.LastTriggerPrice, tickPrice),
		"outcome":    outcome,
		"elapsed_ms": time.Since(start).Milliseconds(),
	}).Info("trigger attempt complete")
}

func (c *Coordinator) revalidateVolatility(snap registry.SymbolState, tickPrice *float64) bool {
	if snap.LastTriggerPrice == nil || tickPrice == nil || *snap.LastTriggerPrice == 0 {
		return true
	}
	d := deltaBps(snap.LastTriggerPrice, tickPrice)
	return d != nil && *d >= c.volCfg.ThresholdBps
}

// deltaBps returns the basis-point move between baseline and priceNow, or
// nil if either is unknown or the baseline is zero.
func deltaBps(baseline, priceNow *float64) *float64 {
	if baseline == nil || priceNow == nil || *baseline == 0 {
		return nil
	}
	d := math.Abs(*priceNow-*baseline) / *baseline * 10000
	return &d
}
