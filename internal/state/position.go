// Package state keeps an in-memory position book and reads and writes
// position snapshots used for reconciliation.
package state

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"tradecore/internal/errors"
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

// Side is the direction of a fill.
type Side uint16

const (
	SideUnknown Side = iota
	SideBuy
	SideSell
)

// Fill is an executed quantity at a price.
type Fill struct {
	StrategyID string          `json:"strategyId"`
	Symbol     string          `json:"symbol"`
	Side       Side            `json:"side"`
	Qty        int64           `json:"qty"`
	Price      decimal.Decimal `json:"price"`
}

// Book tracks long positions per symbol from fills.
type Book struct {
	mu        sync.RWMutex
	positions map[string]schema.Position
}

// NewBook creates an empty book.
func NewBook() *Book {
	return &Book{positions: make(map[string]schema.Position)}
}

// ApplyFill updates the position and returns the new quantity. Buys move the
// average entry price; sells keep it. A sell larger than the position fails.
func (b *Book) ApplyFill(fill Fill) (int64, error) {
	if fill.Qty <= 0 {
		return 0, errors.Wrapf(exception.ErrInvalidArgument, "fill qty %d", fill.Qty)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	current := b.positions[fill.Symbol]
	switch fill.Side {
	case SideBuy:
		cost := current.CostBasis().Add(fill.Price.Mul(decimal.NewFromInt(fill.Qty)))
		current.Quantity += fill.Qty
		current.EntryPrice = cost.Div(decimal.NewFromInt(current.Quantity))
		if current.StrategyID == "" {
			current.StrategyID = fill.StrategyID
		}
	case SideSell:
		if fill.Qty > current.Quantity {
			return current.Quantity, errors.Wrapf(exception.ErrNegativeQuantity, "%s: sell %d of %d", fill.Symbol, fill.Qty, current.Quantity)
		}
		current.Quantity -= fill.Qty
	default:
		return current.Quantity, errors.Wrapf(exception.ErrInvalidArgument, "fill side %d", fill.Side)
	}
	current.MarketPrice = fill.Price

	if current.Quantity == 0 {
		delete(b.positions, fill.Symbol)
		return 0, nil
	}
	b.positions[fill.Symbol] = current
	return current.Quantity, nil
}

// Position returns the current position for a symbol.
func (b *Book) Position(symbol string) schema.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.positions[symbol]
}

// Positions returns a copy of every open position.
func (b *Book) Positions(context.Context) (map[string]schema.Position, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]schema.Position, len(b.positions))
	for sym, p := range b.positions {
		out[sym] = p
	}
	return out, nil
}

// Count returns the number of tracked symbols.
func (b *Book) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.positions)
}
