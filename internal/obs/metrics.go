package obs

import (
	"sync/atomic"
	"time"

	"tradecore/internal/schema"
)

const maxRiskRule = int(schema.RuleStrategyAllocation)

// Metrics collects lightweight counters and latency stats.
type Metrics struct {
	riskRuleCounts [maxRiskRule + 1]uint64

	backtestRuns     uint64
	backtestFailures uint64
	reconcileRuns    uint64
	discrepancies    uint64
	majorPasses      uint64
	lossPauses       uint64
	queueDrops       uint64
	queueClosed      uint64

	riskEvalLatency LatencyStats
	backtestLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
// RiskRuleCounts[schema.RuleNone] counts accepted trades.
type Snapshot struct {
	RiskRuleCounts   map[schema.RiskRule]uint64
	BacktestRuns     uint64
	BacktestFailures uint64
	ReconcileRuns    uint64
	Discrepancies    uint64
	MajorPasses      uint64
	LossPauses       uint64
	QueueDrops       uint64
	QueueClosed      uint64
	RiskEvalLatency  LatencySnapshot
	BacktestLatency  LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveValidation counts a risk decision by its failed rule and records latency.
func (m *Metrics) ObserveValidation(rule schema.RiskRule, d time.Duration) {
	if m == nil {
		return
	}
	idx := int(rule)
	if idx >= 0 && idx < len(m.riskRuleCounts) {
		atomic.AddUint64(&m.riskRuleCounts[idx], 1)
	}
	m.riskEvalLatency.Observe(d)
}

// ObserveBacktest records a finished backtest run.
func (m *Metrics) ObserveBacktest(d time.Duration, err error) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.backtestRuns, 1)
	if err != nil {
		atomic.AddUint64(&m.backtestFailures, 1)
		return
	}
	m.backtestLatency.Observe(d)
}

// ObserveReconcile records a reconciliation pass.
func (m *Metrics) ObserveReconcile(discrepancies int, major bool) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.reconcileRuns, 1)
	if discrepancies > 0 {
		atomic.AddUint64(&m.discrepancies, uint64(discrepancies))
	}
	if major {
		atomic.AddUint64(&m.majorPasses, 1)
	}
}

// IncLossPause records a strategy pause.
func (m *Metrics) IncLossPause() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.lossPauses, 1)
}

// IncQueueDrop records a queue drop.
func (m *Metrics) IncQueueDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueDrops, 1)
}

// IncQueueClosed records a closed-queue publish attempt.
func (m *Metrics) IncQueueClosed() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueClosed, 1)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	ruleCounts := make(map[schema.RiskRule]uint64)
	for i := range m.riskRuleCounts {
		if v := atomic.LoadUint64(&m.riskRuleCounts[i]); v > 0 {
			ruleCounts[schema.RiskRule(i)] = v
		}
	}
	return Snapshot{
		RiskRuleCounts:   ruleCounts,
		BacktestRuns:     atomic.LoadUint64(&m.backtestRuns),
		BacktestFailures: atomic.LoadUint64(&m.backtestFailures),
		ReconcileRuns:    atomic.LoadUint64(&m.reconcileRuns),
		Discrepancies:    atomic.LoadUint64(&m.discrepancies),
		MajorPasses:      atomic.LoadUint64(&m.majorPasses),
		LossPauses:       atomic.LoadUint64(&m.lossPauses),
		QueueDrops:       atomic.LoadUint64(&m.queueDrops),
		QueueClosed:      atomic.LoadUint64(&m.queueClosed),
		RiskEvalLatency:  m.riskEvalLatency.Snapshot(),
		BacktestLatency:  m.backtestLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
