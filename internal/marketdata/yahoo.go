package marketdata

import (
	"context"
	"strings"
	"time"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/yanun0323/logs"

	"tradecore/internal/errors"
	"tradecore/internal/schema"
)

type chartIter interface {
	Next() bool
	Bar() *finance.ChartBar
	Err() error
}

// YahooProvider fetches daily bars from the Yahoo chart API.
type YahooProvider struct {
	get func(*chart.Params) chartIter
}

// NewYahooProvider creates a provider using the public chart endpoint.
func NewYahooProvider() *YahooProvider {
	return &YahooProvider{get: func(p *chart.Params) chartIter { return chart.Get(p) }}
}

// Bars fetches daily bars for [start, end]. A zero end means now and a zero
// start means one year before end. Bars without a close are skipped.
func (p *YahooProvider) Bars(ctx context.Context, symbol string, start, end time.Time) ([]schema.Bar, error) {
	if err := checkRequest(symbol, start, end); err != nil {
		return nil, err
	}
	if end.IsZero() {
		end = time.Now().UTC()
	}
	if start.IsZero() {
		start = end.AddDate(-1, 0, 0)
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	iter := p.get(&chart.Params{
		Symbol:   symbol,
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: datetime.OneDay,
	})

	var bars []schema.Bar
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cb := iter.Bar()
		if cb == nil || cb.Close.IsZero() {
			continue
		}
		bars = append(bars, barFromChart(cb))
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrapf(err, "yahoo chart %s", symbol)
	}
	if err := Validate(bars); err != nil {
		return nil, err
	}
	logs.Infof("marketdata: yahoo %s, %d bars", symbol, len(bars))
	return within(bars, start, end), nil
}

func barFromChart(cb *finance.ChartBar) schema.Bar {
	return schema.Bar{
		Time:   time.Unix(int64(cb.Timestamp), 0).UTC(),
		Open:   cb.Open,
		High:   cb.High,
		Low:    cb.Low,
		Close:  cb.Close,
		Volume: int64(cb.Volume),
	}
}
