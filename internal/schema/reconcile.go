package schema

import "github.com/shopspring/decimal"

// DiscrepancyKind classifies a mismatch between broker and ledger holdings.
type DiscrepancyKind uint16

const (
	DiscrepancyUnknown DiscrepancyKind = iota
	DiscrepancyExtraAtBroker
	DiscrepancyMissingAtBroker
	DiscrepancyQuantityMismatch
)

func (k DiscrepancyKind) String() string {
	switch k {
	case DiscrepancyExtraAtBroker:
		return "extra_at_broker"
	case DiscrepancyMissingAtBroker:
		return "missing_at_broker"
	case DiscrepancyQuantityMismatch:
		return "quantity_mismatch"
	default:
		return "unknown"
	}
}

// Discrepancy is one symbol whose broker and ledger quantities differ.
type Discrepancy struct {
	Symbol          string          `json:"symbol"`
	BrokerQuantity  int64           `json:"brokerQuantity"`
	LedgerQuantity  int64           `json:"ledgerQuantity"`
	Kind            DiscrepancyKind `json:"kind"`
	Price           decimal.Decimal `json:"price"`
	ValueDifference decimal.Decimal `json:"valueDifference"`
}

// QuantityDifference returns broker minus ledger quantity.
func (d Discrepancy) QuantityDifference() int64 {
	return d.BrokerQuantity - d.LedgerQuantity
}
