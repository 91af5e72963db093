// Package broker reads account and position snapshots from a broker REST
// gateway. It never places orders.
package broker

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"tradecore/internal/errors"
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

const defaultTimeout = 10 * time.Second

// Option configures the client.
type Option struct {
	BaseURL string        `json:"baseUrl"`
	Token   string        `json:"token"`
	Timeout time.Duration `json:"timeout"`
	Retries int           `json:"retries"`
}

type accountResponse struct {
	Cash        decimal.Decimal `json:"cash"`
	BuyingPower decimal.Decimal `json:"buyingPower"`
}

type positionResponse struct {
	Symbol      string          `json:"symbol"`
	StrategyID  string          `json:"strategyId"`
	Quantity    int64           `json:"quantity"`
	AvgCost     decimal.Decimal `json:"avgCost"`
	MarketPrice decimal.Decimal `json:"marketPrice"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Client is a read-only broker gateway client.
type Client struct {
	http *resty.Client
}

// NewClient creates a client for opt.BaseURL.
func NewClient(opt Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opt.BaseURL), "/")
	if base == "" {
		return nil, exception.ErrEmptyBrokerEndpoint
	}
	timeout := opt.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	c := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetRetryCount(opt.Retries).
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)
	if opt.Token != "" {
		c.SetAuthToken(opt.Token)
	}
	return &Client{http: c}, nil
}

// Portfolio returns the account snapshot used by sizing and risk.
func (c *Client) Portfolio(ctx context.Context) (schema.PortfolioSnapshot, error) {
	var account accountResponse
	if err := c.get(ctx, "/account", &account); err != nil {
		return schema.PortfolioSnapshot{}, err
	}
	positions, err := c.Positions(ctx)
	if err != nil {
		return schema.PortfolioSnapshot{}, err
	}
	return schema.PortfolioSnapshot{
		Cash:        account.Cash,
		BuyingPower: account.BuyingPower,
		Positions:   positions,
	}, nil
}

// Positions returns the broker's current holdings keyed by symbol. Rows for
// the same symbol are summed.
func (c *Client) Positions(ctx context.Context) (map[string]schema.Position, error) {
	var rows []positionResponse
	if err := c.get(ctx, "/positions", &rows); err != nil {
		return nil, err
	}
	out := make(map[string]schema.Position, len(rows))
	for _, row := range rows {
		sym := strings.ToUpper(strings.TrimSpace(row.Symbol))
		if sym == "" {
			return nil, errors.Wrap(exception.ErrInResponseError, "position without symbol")
		}
		p, ok := out[sym]
		if !ok {
			out[sym] = schema.Position{
				StrategyID:  row.StrategyID,
				Quantity:    row.Quantity,
				EntryPrice:  row.AvgCost,
				MarketPrice: row.MarketPrice,
			}
			continue
		}
		p.Quantity += row.Quantity
		out[sym] = p
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	var apiErr errorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(result).
		SetError(&apiErr).
		Get(path)
	if err != nil {
		return errors.Wrapf(err, "GET %s", path)
	}
	if resp.StatusCode() != http.StatusOK {
		if apiErr.Error != "" {
			return errors.Wrapf(exception.ErrInResponseError, "GET %s: %d %s", path, resp.StatusCode(), apiErr.Error)
		}
		return errors.Wrapf(exception.ErrUnexpectedStatus, "GET %s: %d", path, resp.StatusCode())
	}
	return nil
}
