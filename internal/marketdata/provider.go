// Package marketdata loads daily bars for backtests.
package marketdata

import (
	"context"
	"strings"
	"time"

	"tradecore/internal/errors"
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

// Provider returns ascending bars of symbol within [start, end]. A zero
// start or end leaves that side open.
type Provider interface {
	Bars(ctx context.Context, symbol string, start, end time.Time) ([]schema.Bar, error)
}

// Source names a provider implementation.
type Source string

const (
	SourceCSV   Source = "csv"
	SourceYahoo Source = "yahoo"
)

// New builds the provider for source. dir is the CSV directory.
func New(source Source, dir string) (Provider, error) {
	switch Source(strings.ToLower(string(source))) {
	case SourceCSV, "":
		return NewCSVProvider(dir), nil
	case SourceYahoo:
		return NewYahooProvider(), nil
	default:
		return nil, errors.Wrap(exception.ErrUnsupportedSource, string(source))
	}
}

// Validate checks bar ordering and OHLC consistency.
func Validate(bars []schema.Bar) error {
	for i, b := range bars {
		if !b.Open.IsPositive() || !b.High.IsPositive() || !b.Low.IsPositive() || !b.Close.IsPositive() {
			return errors.Wrapf(exception.ErrMalformedBar, "bar %d: non-positive price", i)
		}
		if b.High.LessThan(b.Low) || b.High.LessThan(b.Open) || b.High.LessThan(b.Close) ||
			b.Low.GreaterThan(b.Open) || b.Low.GreaterThan(b.Close) {
			return errors.Wrapf(exception.ErrMalformedBar, "bar %d at %s: high/low do not bound open/close", i, b.Time.Format(time.DateOnly))
		}
		if b.Volume < 0 {
			return errors.Wrapf(exception.ErrMalformedBar, "bar %d: negative volume", i)
		}
		if i > 0 && !b.Time.After(bars[i-1].Time) {
			return errors.Wrapf(exception.ErrBarsOutOfOrder, "bar %d at %s", i, b.Time.Format(time.DateOnly))
		}
	}
	return nil
}

func checkRequest(symbol string, start, end time.Time) error {
	if strings.TrimSpace(symbol) == "" {
		return errors.Wrap(exception.ErrInvalidMarketDataRequest, "empty symbol")
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return errors.Wrapf(exception.ErrInvalidMarketDataRequest, "end %s before start %s", end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	return nil
}

func within(bars []schema.Bar, start, end time.Time) []schema.Bar {
	out := bars[:0:0]
	for _, b := range bars {
		if !start.IsZero() && b.Time.Before(start) {
			continue
		}
		if !end.IsZero() && b.Time.After(end) {
			continue
		}
		out = append(out, b)
	}
	return out
}
