package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"tradecore/internal/errors"
	"tradecore/internal/halt"
	"tradecore/internal/obs"
	"tradecore/internal/schema"
)

// Source provides current holdings keyed by symbol.
type Source interface {
	Positions(ctx context.Context) (map[string]schema.Position, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (map[string]schema.Position, error)

func (f SourceFunc) Positions(ctx context.Context) (map[string]schema.Position, error) { return f(ctx) }

// Service reconciles a broker against the ledger and halts trading on a
// major discrepancy. It never places orders.
type Service struct {
	broker  Source
	ledger  Source
	halted  *halt.Flag
	metrics *obs.Metrics
	passes  *obs.PassIDs
}

// NewService creates a reconcile service. halted and m may be nil.
func NewService(broker, ledger Source, halted *halt.Flag, m *obs.Metrics) *Service {
	return &Service{
		broker:  broker,
		ledger:  ledger,
		halted:  halted,
		metrics: m,
		passes:  obs.NewPassIDs(0),
	}
}

// Run performs one reconciliation pass.
func (s *Service) Run(ctx context.Context) (Report, error) {
	pass := s.passes.Next()
	brokerPos, err := s.broker.Positions(ctx)
	if err != nil {
		return Report{}, errors.Wrap(err, "broker positions")
	}
	ledgerPos, err := s.ledger.Positions(ctx)
	if err != nil {
		return Report{}, errors.Wrap(err, "ledger positions")
	}

	report, err := Reconcile(Quantities(brokerPos), Quantities(ledgerPos), Prices(brokerPos, ledgerPos))
	if err != nil {
		return Report{}, err
	}
	s.metrics.ObserveReconcile(len(report.Discrepancies), report.Major)

	if report.Major {
		reason := fmt.Sprintf("major position discrepancy: $%s across %d symbols", report.TotalValueDifference.StringFixed(2), len(report.Discrepancies))
		s.halted.Halt(reason)
		logs.Errorf("reconcile: pass %x, %s", pass, reason)
		return report, nil
	}
	logs.Infof("reconcile: pass %x, %d discrepancies, total $%s", pass, len(report.Discrepancies), report.TotalValueDifference.StringFixed(2))
	return report, nil
}

// Watch runs a pass every interval until ctx is done. Pass errors are
// logged and do not stop the loop.
func (s *Service) Watch(ctx context.Context, interval time.Duration, onReport func(Report)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		report, err := s.Run(ctx)
		if err != nil {
			logs.Errorf("reconcile: pass failed, err: %+v", err)
		} else if onReport != nil {
			onReport(report)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Quantities extracts symbol quantities from positions.
func Quantities(positions map[string]schema.Position) map[string]int64 {
	out := make(map[string]int64, len(positions))
	for sym, p := range positions {
		out[sym] = p.Quantity
	}
	return out
}

// Prices picks a valuation price per symbol, preferring the first source
// that has a positive mark.
func Prices(sources ...map[string]schema.Position) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, positions := range sources {
		for sym, p := range positions {
			if _, ok := out[sym]; ok {
				continue
			}
			if m := p.Mark(); m.IsPositive() {
				out[sym] = m
			}
		}
	}
	return out
}
