package exception

import "github.com/yanun0323/errors"

var (
	ErrInResponseError     = errors.New("there is an error in response error field")
	ErrUnexpectedStatus    = errors.New("broker: unexpected response status")
	ErrEmptyBrokerEndpoint = errors.New("broker: empty endpoint")
)
