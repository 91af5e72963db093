package exception

import "errors"

var (
	ErrInvalidMarketDataRequest = errors.New("market data: invalid request")
	ErrMalformedBar             = errors.New("market data: malformed bar")
	ErrBarsOutOfOrder           = errors.New("market data: bars out of order")
	ErrUnsupportedSource        = errors.New("market data: unsupported source")
)
