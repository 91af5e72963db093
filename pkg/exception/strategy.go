package exception

import "errors"

var (
	ErrUnknownStrategy       = errors.New("strategy: unknown kind")
	ErrInvalidStrategyParams = errors.New("strategy: invalid parameters")
)
