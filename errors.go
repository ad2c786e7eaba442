package zkterm

import (
	"errors"
	"fmt"
)

// Error kinds. Call sites wrap these with fmt.Errorf and %w so callers can
// classify with errors.Is.
var (
	// ErrConfig is returned when the session is constructed without a
	// device address.
	ErrConfig = errors.New("zkterm: device address not set")

	// ErrTransport covers dial failures, closed sockets and write errors.
	ErrTransport = errors.New("zkterm: transport failure")

	// ErrTimeout is returned when no reply arrives within the receive
	// deadline. The session is undefined afterwards and must be
	// re-established.
	ErrTimeout = errors.New("zkterm: receive timeout")

	// ErrFrame is returned on a stream envelope whose magic words or
	// payload length are impossible.
	ErrFrame = errors.New("zkterm: bad stream frame")

	// ErrAuth is returned when the device still refuses the session after
	// the CMD_AUTH exchange.
	ErrAuth = errors.New("zkterm: unauthorized")

	// ErrProtocol is returned on a non-ok reply or an unexpected command
	// code in a reply.
	ErrProtocol = errors.New("zkterm: protocol error")

	// ErrOperation is a semantic refusal: user not found, enrollment
	// rescans exhausted, and similar.
	ErrOperation = errors.New("zkterm: operation refused")
)

func responseError(op string, code int) error {
	return fmt.Errorf("%s: reply code %d: %w", op, code, ErrProtocol)
}
