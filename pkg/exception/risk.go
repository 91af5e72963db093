package exception

import "errors"

var (
	ErrInvalidInput   = errors.New("sizing: invalid input")
	ErrStrategyPaused = errors.New("loss limit: strategy paused")
	ErrTradingHalted  = errors.New("risk: trading halted")
	ErrOrderRejected  = errors.New("risk: order rejected")
)
