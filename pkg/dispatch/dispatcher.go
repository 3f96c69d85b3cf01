package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/HsiangNianian/AMonItor/gateway/pkg/protocol"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/HsiangNianian/AMonItor/gateway/pkg/dispatch"

// Route handles one message type.
type Route func(ctx context.Context, msg protocol.Message) error

// Typed adapts a handler over a concrete message type into a Route.
func Typed[T protocol.Message](h Handler[T]) Route {
	return func(ctx context.Context, msg protocol.Message) error {
		v, ok := msg.(T)
		if !ok {
			return fmt.Errorf("route for %s received %T", msg.MessageType(), msg)
		}
		return h.Call(ctx, v)
	}
}

// Dispatcher invokes routes one message at a time; the caller's loop does
// not see the next frame until Dispatch returns. Route failures and panics
// stop at Dispatch: they are logged, traced and returned, never re-raised.
type Dispatcher struct {
	mu       sync.RWMutex
	routes   map[protocol.MessageType]Route
	fallback Route

	logger *slog.Logger
	tracer trace.Tracer
}

type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(d *Dispatcher) {
		if tracer != nil {
			d.tracer = tracer
		}
	}
}

func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		routes: make(map[protocol.MessageType]Route),
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle registers r for t, replacing any earlier route. A nil r removes it.
func (d *Dispatcher) Handle(t protocol.MessageType, r Route) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r == nil {
		delete(d.routes, t)
		return
	}
	d.routes[t] = r
}

// Fallback receives messages with no registered route.
func (d *Dispatcher) Fallback(r Route) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fallback = r
}

func (d *Dispatcher) route(t protocol.MessageType) Route {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if r, ok := d.routes[t]; ok {
		return r
	}
	return d.fallback
}

// Dispatch runs the route for msg and waits for it. Messages without a
// route are dropped silently.
func (d *Dispatcher) Dispatch(ctx context.Context, msg protocol.Message) (err error) {
	if msg == nil {
		return nil
	}
	t := msg.MessageType()
	r := d.route(t)
	if r == nil {
		return nil
	}

	ctx, span := d.tracer.Start(ctx, "dispatch "+string(t),
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.String("gateway.message.type", string(t))),
	)
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
			d.logger.Error("handler panicked", "type", t, "panic", p, "stack", string(debug.Stack()))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			d.logger.Error("handler failed", "type", t, "err", err)
		}
		span.End()
	}()

	return r(ctx, msg)
}
