// Package ws owns a single live WebSocket transport to the platform.
package ws

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	DefaultHandshakeTimeout = 120 * time.Second
	DefaultWriteTimeout     = 10 * time.Second

	closeGrace = time.Second
)

type Options struct {
	URL    string
	Header http.Header
	// TLSConfig is used for wss:// URLs; nil means Go defaults.
	TLSConfig *tls.Config
	// HandshakeTimeout bounds connection establishment only. Established
	// sessions have no read deadline; the server's pings keep them alive.
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// ReadLimit caps inbound frame size in bytes; zero means unlimited.
	ReadLimit int64
}

// Session is one open WebSocket. Writes are serialised so every frame goes
// out whole; Close may be called at any time from any goroutine.
type Session struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

// Open dials opts.URL. Failures are a *HandshakeError when the server
// answered the upgrade with a non-101 status, otherwise a *ConnectionError.
func Open(ctx context.Context, opts Options) (*Session, error) {
	timeout := opts.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
		TLSClientConfig:  opts.TLSConfig,
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(dialCtx, opts.URL, opts.Header)
	if err != nil {
		if resp != nil && errors.Is(err, websocket.ErrBadHandshake) {
			return nil, &HandshakeError{URL: opts.URL, StatusCode: resp.StatusCode, Status: resp.Status}
		}
		return nil, &ConnectionError{URL: opts.URL, Err: err}
	}
	if opts.ReadLimit > 0 {
		conn.SetReadLimit(opts.ReadLimit)
	}

	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return newSession(conn, writeTimeout), nil
}

func newSession(conn *websocket.Conn, writeTimeout time.Duration) *Session {
	return &Session{
		conn:         conn,
		writeTimeout: writeTimeout,
		closed:       make(chan struct{}),
	}
}

// Send writes data as one text frame.
func (s *Session) Send(data []byte) error {
	if s == nil || s.conn == nil {
		return ErrConnectionClosed
	}
	select {
	case <-s.closed:
		return ErrConnectionClosed
	default:
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	}
	return nil
}

// Receive blocks until the next data frame arrives or the session ends.
func (s *Session) Receive() ([]byte, error) {
	if s == nil || s.conn == nil {
		return nil, ErrConnectionClosed
	}
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	}
	return data, nil
}

// Close sends a normal-closure frame when it can and releases the socket,
// which unblocks a pending Receive. It is idempotent and nil-safe.
func (s *Session) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		close(s.closed)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
		_ = s.conn.Close()
	})
	return nil
}

// Done is closed once Close has been called.
func (s *Session) Done() <-chan struct{} {
	return s.closed
}
