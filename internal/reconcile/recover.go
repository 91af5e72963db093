package reconcile

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"tradecore/internal/errors"
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

// Ledger is the write side of the trade ledger used by recovery.
type Ledger interface {
	// CreateRecoveredTrade opens a trade flagged as recovered.
	CreateRecoveredTrade(ctx context.Context, symbol string, qty int64, price decimal.Decimal) error
	// CloseUnknownExit closes every open trade of symbol with an unknown
	// exit price and returns how many were closed.
	CloseUnknownExit(ctx context.Context, symbol string) (int, error)
}

// Recovery lists what Recover did.
type Recovery struct {
	Recovered    []string `json:"recovered"`
	Closed       []string `json:"closed"`
	ManualReview []string `json:"manualReview"`
}

// RecoverOne applies the policy for a single discrepancy. Quantity
// mismatches are never changed automatically and return
// exception.ErrManualReview.
func RecoverOne(ctx context.Context, ledger Ledger, d schema.Discrepancy) error {
	switch d.Kind {
	case schema.DiscrepancyExtraAtBroker:
		if err := ledger.CreateRecoveredTrade(ctx, d.Symbol, d.BrokerQuantity, d.Price); err != nil {
			return errors.Wrapf(err, "recover %s", d.Symbol)
		}
		logs.Errorf("reconcile: recovered %s, %d @ %s", d.Symbol, d.BrokerQuantity, d.Price.StringFixed(2))
		return nil
	case schema.DiscrepancyMissingAtBroker:
		n, err := ledger.CloseUnknownExit(ctx, d.Symbol)
		if err != nil {
			return errors.Wrapf(err, "close %s", d.Symbol)
		}
		if n == 0 {
			return errors.Wrap(exception.ErrNoOpenTrade, d.Symbol)
		}
		logs.Errorf("reconcile: closed %d trades of %s, exit price unknown", n, d.Symbol)
		return nil
	default:
		return errors.Wrapf(exception.ErrManualReview, "%s: broker %d, ledger %d", d.Symbol, d.BrokerQuantity, d.LedgerQuantity)
	}
}

// Recover applies the policy to every discrepancy of report. It keeps going
// after a manual-review discrepancy and returns exception.ErrManualReview at
// the end if any were found. Other errors stop it immediately.
func Recover(ctx context.Context, ledger Ledger, report Report) (Recovery, error) {
	var out Recovery
	for _, d := range report.Discrepancies {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		err := RecoverOne(ctx, ledger, d)
		switch {
		case errors.Is(err, exception.ErrManualReview):
			out.ManualReview = append(out.ManualReview, d.Symbol)
			logs.Errorf("reconcile: %+v", err)
		case err != nil:
			return out, err
		case d.Kind == schema.DiscrepancyExtraAtBroker:
			out.Recovered = append(out.Recovered, d.Symbol)
		default:
			out.Closed = append(out.Closed, d.Symbol)
		}
	}
	if len(out.ManualReview) != 0 {
		return out, errors.Wrapf(exception.ErrManualReview, "%d symbols", len(out.ManualReview))
	}
	return out, nil
}
