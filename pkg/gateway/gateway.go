// Package gateway keeps one device gateway connected to the platform.
//
// A Gateway owns a single WebSocket session at a time. Outbound messages
// are written straight to the live session, or held in a bounded queue
// while there is none and flushed in order on the next connect, before
// anything newer. Inbound frames are decoded and handed to the registered
// handlers one at a time.
package gateway

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/HsiangNianian/AMonItor/gateway/internal/metrics"
	"github.com/HsiangNianian/AMonItor/gateway/internal/queue"
	"github.com/HsiangNianian/AMonItor/gateway/internal/reconnect"
	"github.com/HsiangNianian/AMonItor/gateway/internal/store"
	"github.com/HsiangNianian/AMonItor/gateway/internal/ws"
	"github.com/HsiangNianian/AMonItor/gateway/pkg/dispatch"
	"github.com/HsiangNianian/AMonItor/gateway/pkg/files"
	"github.com/HsiangNianian/AMonItor/gateway/pkg/protocol"
)

type State = reconnect.State

const (
	StateDisconnected = reconnect.Disconnected
	StateConnecting   = reconnect.Connecting
	StateConnected    = reconnect.Connected
	StateTerminal     = reconnect.Terminal
)

// outbound is an encoded message waiting for a session.
type outbound struct {
	msgType protocol.MessageType
	data    []byte
}

type Gateway struct {
	opts      Options
	tlsConfig *tls.Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
	ledger    Ledger
	files     *files.Client

	queue      *queue.Queue[outbound]
	dispatcher *dispatch.Dispatcher
	ctrl       *reconnect.Controller

	// sendMu guards sess and is held for the whole of every write and of
	// the queue flush, so nothing new reaches a session before the backlog.
	sendMu sync.Mutex
	sess   *ws.Session

	mu            sync.Mutex
	running       bool
	disconnecting bool
	cancel        context.CancelFunc
	up            bool
	connected     chan struct{}
	mission       string

	handlersMu sync.RWMutex
	handlers   handlers
}

// New validates opts and builds a disconnected gateway.
func New(opts Options) (*Gateway, error) {
	if opts.Host == "" {
		return nil, &ValidationError{Field: "host", Reason: "required"}
	}
	if opts.Token == "" {
		return nil, &ValidationError{Field: "token", Reason: "required"}
	}
	tlsConfig, err := opts.tlsConfig()
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Ledger == nil {
		opts.Ledger = store.NewMemoryStore()
	}
	if opts.CommandTTL <= 0 {
		opts.CommandTTL = DefaultCommandTTL
	}

	g := &Gateway{
		opts:      opts,
		tlsConfig: tlsConfig,
		logger:    opts.Logger,
		metrics:   metrics.New(opts.Registerer),
		ledger:    opts.Ledger,
		queue:     queue.New[outbound](opts.queueSize()),
		connected: make(chan struct{}),
	}
	g.files = files.New(opts.baseURL(), opts.header(), &http.Client{
		Transport: &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: tlsConfig,
		},
	}, g.logger)
	g.dispatcher = dispatch.New(dispatch.WithLogger(g.logger), dispatch.WithTracer(opts.Tracer))
	g.ctrl = reconnect.New(reconnect.Options{
		Backoff: opts.Backoff,
		Logger:  g.logger,
		OnRetry: func(_ int, v reconnect.Verdict, _ time.Duration) {
			g.metrics.ReconnectAttempt(v.Cause)
		},
		OnState: func(s reconnect.State) {
			g.logger.Debug("gateway state changed", "state", s)
		},
	})
	g.registerRoutes()

	if !opts.HTTP && !opts.SSLVerify {
		g.logger.Warn("TLS certificate verification disabled", "host", opts.Host)
	}
	return g, nil
}

func (g *Gateway) State() State {
	return g.ctrl.State()
}

// MissionName is the mission announced by the platform on the live
// session, or "" while disconnected.
func (g *Gateway) MissionName() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mission
}

// QueueLen reports how many messages wait for the next session.
func (g *Gateway) QueueLen() int {
	return g.queue.Len()
}

// WaitConnected blocks until a session is live and its backlog flushed.
func (g *Gateway) WaitConnected(ctx context.Context) error {
	g.mu.Lock()
	ch := g.connected
	g.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connect makes a single connection attempt and, when it succeeds, serves
// the session until it ends. It returns nil if Disconnect ended it.
func (g *Gateway) Connect(ctx context.Context) error {
	runCtx, err := g.begin(ctx)
	if err != nil {
		return err
	}
	link, err := g.ctrl.Connect(runCtx, g.dial)
	if err == nil {
		err = g.ctrl.Serve(runCtx, link)
	}
	return g.finish(ctx, err)
}

// ConnectWithRetries connects and keeps reconnecting with backoff after
// retryable failures and lost sessions. It returns nil after Disconnect,
// ctx.Err() when ctx ends, or the first fatal connection error.
func (g *Gateway) ConnectWithRetries(ctx context.Context) error {
	runCtx, err := g.begin(ctx)
	if err != nil {
		return err
	}
	return g.finish(ctx, g.ctrl.Run(runCtx, g.dial))
}

// Disconnect closes the live session and stops any reconnection. It does
// not wait for the connect loop to return, so handlers may call it. Calls
// after the first, or without a running loop, do nothing: it acts only on a
// loop that has already started, and a later Connect or ConnectWithRetries
// runs normally. To stop a loop that may still be starting, cancel the
// context passed to it instead.
func (g *Gateway) Disconnect() {
	g.mu.Lock()
	if !g.running || g.disconnecting {
		g.mu.Unlock()
		return
	}
	g.disconnecting = true
	cancel := g.cancel
	g.mu.Unlock()

	g.logger.Info("disconnecting from platform")
	g.ctrl.Terminate()
	cancel()
}

func (g *Gateway) begin(ctx context.Context) (context.Context, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		return nil, ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	g.running = true
	g.disconnecting = false
	g.cancel = cancel
	return runCtx, nil
}

func (g *Gateway) finish(ctx context.Context, err error) error {
	g.mu.Lock()
	requested := g.disconnecting
	cancel := g.cancel
	g.running = false
	g.disconnecting = false
	g.cancel = nil
	g.mu.Unlock()
	cancel()

	if requested {
		g.ctrl.Terminate()
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// dial opens a session and flushes the queue onto it before it becomes
// visible to senders.
func (g *Gateway) dial(ctx context.Context) (reconnect.Link, error) {
	g.logger.Info("connecting to platform", "url", g.opts.endpoint())
	sess, err := ws.Open(ctx, g.opts.sessionOptions(g.tlsConfig))
	if err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() { _ = sess.Close() })

	if err := g.attach(sess); err != nil {
		stop()
		_ = sess.Close()
		return nil, err
	}
	g.logger.Info("connected to platform")
	return &link{g: g, sess: sess, stop: stop}, nil
}

func (g *Gateway) attach(sess *ws.Session) error {
	g.sendMu.Lock()
	backlog := g.queue.Drain()
	for i, item := range backlog {
		if err := sess.Send(item.data); err != nil {
			g.queue.Requeue(backlog[i:])
			g.sendMu.Unlock()
			g.metrics.QueueDepth(g.queue.Len())
			return fmt.Errorf("flush queued messages: %w", err)
		}
		g.metrics.FrameSent(string(item.msgType))
	}
	g.sess = sess
	g.sendMu.Unlock()

	if len(backlog) > 0 {
		g.logger.Info("flushed queued messages", "count", len(backlog))
	}
	g.metrics.QueueDepth(g.queue.Len())
	g.metrics.Connected(true)

	g.mu.Lock()
	if !g.up {
		g.up = true
		close(g.connected)
	}
	g.mu.Unlock()
	return nil
}

// detach unpublishes sess. Session identity does not outlive the session.
func (g *Gateway) detach(sess *ws.Session) {
	g.sendMu.Lock()
	if g.sess == sess {
		g.sess = nil
	}
	g.sendMu.Unlock()
	_ = sess.Close()

	g.mu.Lock()
	g.mission = ""
	if g.up {
		g.up = false
		g.connected = make(chan struct{})
	}
	g.mu.Unlock()
	g.metrics.Connected(false)
}

// send writes m to the live session or queues it. A failed write retires
// the session and queues m for the next one.
func (g *Gateway) send(m protocol.Message) error {
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	t := m.MessageType()

	g.sendMu.Lock()
	defer g.sendMu.Unlock()
	if g.sess != nil {
		err := g.sess.Send(data)
		if err == nil {
			g.metrics.FrameSent(string(t))
			return nil
		}
		g.logger.Warn("write failed, queueing message", "type", t, "err", err)
		_ = g.sess.Close()
		g.sess = nil
	}
	if err := g.queue.Push(outbound{msgType: t, data: data}); err != nil {
		g.metrics.QueueRejected()
		return err
	}
	g.metrics.QueueDepth(g.queue.Len())
	return nil
}

// link is the receive side of one session.
type link struct {
	g    *Gateway
	sess *ws.Session
	stop func() bool
}

func (l *link) Serve(ctx context.Context) error {
	defer l.stop()
	defer l.g.detach(l.sess)
	for {
		data, err := l.sess.Receive()
		if err != nil {
			if ctx.Err() == nil {
				l.g.logger.Warn("session ended", "err", err)
			}
			return err
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			l.g.metrics.DecodeError()
			l.g.logger.Warn("skipping undecodable frame", "err", err)
			continue
		}
		l.g.metrics.FrameReceived(string(msg.MessageType()))
		if err := l.g.dispatcher.Dispatch(ctx, msg); err != nil {
			l.g.metrics.HandlerError(string(msg.MessageType()))
		}
	}
}
