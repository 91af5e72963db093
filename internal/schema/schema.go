package schema

import (
	"time"

	"github.com/shopspring/decimal"
)

// SchemaVersion is the current version of the persisted result layout.
const SchemaVersion uint16 = 1

// Bar is one OHLCV candle. Bars are ordered ascending by Time.
type Bar struct {
	Time   time.Time       `json:"time"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// SignalKind describes what a strategy wants to do on the next bar.
type SignalKind uint16

const (
	SignalHold SignalKind = iota
	SignalBuy
	SignalSell
)

func (k SignalKind) String() string {
	switch k {
	case SignalBuy:
		return "BUY"
	case SignalSell:
		return "SELL"
	default:
		return "HOLD"
	}
}

// Signal is produced once per bar per strategy and never mutated.
type Signal struct {
	Kind       SignalKind         `json:"kind"`
	Time       time.Time          `json:"time"`
	Reason     string             `json:"reason"`
	Indicators map[string]float64 `json:"indicators,omitempty"`
}

// HoldSignal builds a hold signal for the given bar time.
func HoldSignal(t time.Time, reason string) Signal {
	return Signal{Kind: SignalHold, Time: t, Reason: reason}
}
