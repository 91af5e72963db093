// Package reconcile compares broker holdings with the ledger and applies the
// recovery policy for each discrepancy kind.
package reconcile

import (
	"sort"

	"github.com/shopspring/decimal"

	"tradecore/internal/errors"
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

const majorThresholdUSD = 100

// MajorThreshold returns the total value difference above which trading halts.
func MajorThreshold() decimal.Decimal {
	return decimal.NewFromInt(majorThresholdUSD)
}

// Report is the result of one reconciliation.
type Report struct {
	Discrepancies        []schema.Discrepancy `json:"discrepancies"`
	TotalValueDifference decimal.Decimal      `json:"totalValueDifference"`
	Major                bool                 `json:"major"`
}

// Clean reports whether broker and ledger agree.
func (r Report) Clean() bool {
	return len(r.Discrepancies) == 0
}

// Reconcile compares broker and ledger quantities per symbol. Zero
// quantities count as absent. Every discrepancy needs a price; a missing or
// non-positive one fails with exception.ErrMissingPrice. Discrepancies are
// sorted by symbol.
func Reconcile(broker, ledger map[string]int64, prices map[string]decimal.Decimal) (Report, error) {
	symbols := make(map[string]struct{}, len(broker)+len(ledger))
	for _, side := range []map[string]int64{broker, ledger} {
		for sym, qty := range side {
			if qty < 0 {
				return Report{}, errors.Wrapf(exception.ErrNegativeQuantity, "%s: %d", sym, qty)
			}
			if qty > 0 {
				symbols[sym] = struct{}{}
			}
		}
	}

	sorted := make([]string, 0, len(symbols))
	for sym := range symbols {
		sorted = append(sorted, sym)
	}
	sort.Strings(sorted)

	report := Report{TotalValueDifference: decimal.Zero}
	for _, sym := range sorted {
		b, l := broker[sym], ledger[sym]
		if b == l {
			continue
		}
		price, ok := prices[sym]
		if !ok || !price.IsPositive() {
			return Report{}, errors.Wrap(exception.ErrMissingPrice, sym)
		}

		d := schema.Discrepancy{
			Symbol:         sym,
			BrokerQuantity: b,
			LedgerQuantity: l,
			Kind:           classify(b, l),
			Price:          price,
		}
		diff := d.QuantityDifference()
		if diff < 0 {
			diff = -diff
		}
		d.ValueDifference = price.Mul(decimal.NewFromInt(diff))
		report.TotalValueDifference = report.TotalValueDifference.Add(d.ValueDifference)
		report.Discrepancies = append(report.Discrepancies, d)
	}
	report.Major = report.TotalValueDifference.GreaterThan(MajorThreshold())
	return report, nil
}

func classify(broker, ledger int64) schema.DiscrepancyKind {
	switch {
	case ledger == 0:
		return schema.DiscrepancyExtraAtBroker
	case broker == 0:
		return schema.DiscrepancyMissingAtBroker
	default:
		return schema.DiscrepancyQuantityMismatch
	}
}
