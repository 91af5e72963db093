// Package losslimit pauses a strategy after a run of consecutive losing trades.
//
// Per strategy the state machine has two states, Normal and Paused.
// Normal moves to Paused when the third consecutive loss is recorded.
// A win or exact breakeven resets the counter but never resumes a paused
// strategy; only Resume does. ResetDay clears every counter at the
// trading-day boundary and leaves Paused untouched.
package losslimit

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"tradecore/internal/bus"
	"tradecore/internal/obs"
	"tradecore/internal/schema"
)

// MaxConsecutiveLosses is the streak length that pauses a strategy.
const MaxConsecutiveLosses = 3

// Store persists loss states across restarts.
type Store interface {
	LoadLossStates() ([]schema.LossStreakState, error)
	SaveLossState(state schema.LossStreakState) error
}

// Notifier is told when a strategy becomes paused.
type Notifier interface {
	NotifyPause(state schema.LossStreakState)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(state schema.LossStreakState)

// NotifyPause calls f.
func (f NotifierFunc) NotifyPause(state schema.LossStreakState) { f(state) }

// LogNotifier writes pause alerts to the log.
type LogNotifier struct{}

// NotifyPause logs the paused strategy at error level.
func (LogNotifier) NotifyPause(state schema.LossStreakState) {
	logs.Errorf("loss limit: strategy %s paused after %d consecutive losses, manual resume required", state.StrategyID, state.ConsecutiveLosses)
}

// Option customizes a Detector.
type Option func(*Detector)

// WithStore persists every state change.
func WithStore(s Store) Option {
	return func(d *Detector) { d.store = s }
}

// WithNotifier replaces the default log notifier.
func WithNotifier(n Notifier) Option {
	return func(d *Detector) { d.notifier = n }
}

// WithMetrics counts pauses.
func WithMetrics(m *obs.Metrics) Option {
	return func(d *Detector) { d.metrics = m }
}

// Detector tracks loss streaks for every strategy. It is safe for concurrent use.
type Detector struct {
	mu     sync.Mutex
	states map[string]schema.LossStreakState

	store    Store
	notifier Notifier
	metrics  *obs.Metrics
}

// NewDetector creates a detector with every strategy in Normal.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{
		states:   make(map[string]schema.LossStreakState),
		notifier: LogNotifier{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Restore loads persisted states from the store.
func (d *Detector) Restore() error {
	if d.store == nil {
		return nil
	}
	states, err := d.store.LoadLossStates()
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, st := range states {
		d.states[st.StrategyID] = st
	}
	logs.Infof("loss limit: restored %d strategy states", len(states))
	return nil
}

// RecordOutcome applies one closed trade and returns the new state.
func (d *Detector) RecordOutcome(strategyID string, netPnL decimal.Decimal) schema.LossStreakState {
	d.mu.Lock()
	st := d.stateLocked(strategyID)
	pausedNow := false
	if netPnL.IsNegative() {
		st.ConsecutiveLosses++
		if st.ConsecutiveLosses >= MaxConsecutiveLosses && !st.Paused {
			st.Paused = true
			pausedNow = true
		}
	} else {
		st.ConsecutiveLosses = 0
	}
	d.states[strategyID] = st
	d.persist(st)
	d.mu.Unlock()

	if pausedNow {
		d.metrics.IncLossPause()
		if d.notifier != nil {
			d.notifier.NotifyPause(st)
		}
	}
	return st
}

// Status returns the current state of a strategy.
func (d *Detector) Status(strategyID string) schema.LossStreakState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stateLocked(strategyID)
}

// ResetDay zeroes every loss counter at the trading-day boundary.
func (d *Detector) ResetDay() {
	d.mu.Lock()
	changed := 0
	for id, st := range d.states {
		if st.ConsecutiveLosses == 0 {
			continue
		}
		st.ConsecutiveLosses = 0
		d.states[id] = st
		d.persist(st)
		changed++
	}
	d.mu.Unlock()

	logs.Infof("loss limit: daily reset, %d counters cleared", changed)
}

// Resume un-pauses a strategy. It is an administrative action.
func (d *Detector) Resume(strategyID string) schema.LossStreakState {
	d.mu.Lock()
	st := d.stateLocked(strategyID)
	st.Paused = false
	st.ConsecutiveLosses = 0
	d.states[strategyID] = st
	d.persist(st)
	d.mu.Unlock()

	logs.Infof("loss limit: strategy %s resumed", strategyID)
	return st
}

// Consume applies outcomes from q until ctx is done or q is closed.
func (d *Detector) Consume(ctx context.Context, q *bus.Queue) {
	q.Run(ctx, func(o schema.TradeOutcome) {
		d.RecordOutcome(o.StrategyID, o.NetPnL)
	})
}

func (d *Detector) stateLocked(strategyID string) schema.LossStreakState {
	st, ok := d.states[strategyID]
	if !ok {
		st = schema.LossStreakState{StrategyID: strategyID}
	}
	return st
}

// persist is called with mu held so writes reach the store in order.
func (d *Detector) persist(st schema.LossStreakState) {
	if d.store == nil {
		return
	}
	if err := d.store.SaveLossState(st); err != nil {
		logs.Errorf("loss limit: save state of %s, err: %+v", st.StrategyID, err)
	}
}
