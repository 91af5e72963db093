package exception

import "errors"

var (
	ErrInsufficientData      = errors.New("backtest: insufficient data")
	ErrInvalidBacktestConfig = errors.New("backtest: invalid config")
	ErrNilStrategy           = errors.New("backtest: nil strategy")
)
