package ws

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrConnectionClosed marks every failure of an established session.
var ErrConnectionClosed = errors.New("connection closed")

// ConnectionError is a failure to reach the server at all: DNS, refused,
// timeout, TLS.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// HandshakeError is an upgrade the server refused with an HTTP status.
type HandshakeError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *HandshakeError) Error() string {
	msg := fmt.Sprintf("connect %s: handshake rejected: %s", e.URL, e.Status)
	switch e.StatusCode {
	case http.StatusUnauthorized:
		msg += " (basic auth credentials required or invalid)"
	case http.StatusForbidden:
		msg += " (gateway token invalid)"
	}
	return msg
}
