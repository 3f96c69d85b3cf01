package gateway

import (
	"errors"

	"github.com/HsiangNianian/AMonItor/gateway/internal/queue"
	"github.com/HsiangNianian/AMonItor/gateway/internal/ws"
	"github.com/HsiangNianian/AMonItor/gateway/pkg/protocol"
)

var (
	// ErrQueueFull is returned by the transmit methods when no session is
	// live and the outbound queue is at capacity. The message was not
	// accepted.
	ErrQueueFull = queue.ErrFull

	// ErrConnectionClosed wraps every failure of an established session.
	ErrConnectionClosed = ws.ErrConnectionClosed

	// ErrAlreadyRunning is returned by Connect and ConnectWithRetries while
	// another connect loop owns the gateway.
	ErrAlreadyRunning = errors.New("gateway: connect loop already running")
)

type (
	ValidationError = protocol.ValidationError
	ConnectionError = ws.ConnectionError
	HandshakeError  = ws.HandshakeError
)
