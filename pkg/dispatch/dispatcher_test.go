package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/HsiangNianian/AMonItor/gateway/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func newDispatcher() *Dispatcher {
	return New(WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func TestHandlerVariants(t *testing.T) {
	var zero Handler[int]
	assert.False(t, zero.IsSet())
	assert.NoError(t, zero.Call(context.Background(), 1))
	assert.False(t, Blocking[int](nil).IsSet())
	assert.False(t, Suspending[int](nil).IsSet())

	b := Blocking(func(_ context.Context, v int) error {
		if v < 0 {
			return errors.New("negative")
		}
		return nil
	})
	assert.Equal(t, KindBlocking, b.Kind())
	assert.NoError(t, b.Call(context.Background(), 1))
	assert.EqualError(t, b.Call(context.Background(), -1), "negative")

	s := Suspending(func(_ context.Context, v int) <-chan error {
		done := make(chan error, 1)
		go func() {
			time.Sleep(10 * time.Millisecond)
			done <- errors.New("late")
		}()
		return done
	})
	assert.Equal(t, KindSuspending, s.Kind())
	assert.EqualError(t, s.Call(context.Background(), 1), "late")
}

func TestSuspendingCallHonoursContext(t *testing.T) {
	never := Suspending(func(context.Context, int) <-chan error { return make(chan error) })
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, never.Call(ctx, 0), context.DeadlineExceeded)
}

func TestDispatchRoutesByType(t *testing.T) {
	d := newDispatcher()
	var got []string
	d.Handle(protocol.TypeError, Typed(Blocking(func(_ context.Context, m protocol.ServerError) error {
		got = append(got, "error:"+m.Error)
		return nil
	})))
	d.Handle(protocol.TypeTransit, Typed(Blocking(func(_ context.Context, m protocol.Transit) error {
		got = append(got, "transit:"+m.SatelliteName)
		return nil
	})))

	require.NoError(t, d.Dispatch(context.Background(), protocol.ServerError{Error: "bad"}))
	require.NoError(t, d.Dispatch(context.Background(), protocol.Transit{SatelliteName: "sat-1"}))
	require.NoError(t, d.Dispatch(context.Background(), protocol.RateLimit{RateLimit: 5}))
	require.NoError(t, d.Dispatch(context.Background(), protocol.Unknown{Type: "telemetry_v9", Raw: []byte(`{}`)}))

	assert.Equal(t, []string{"error:bad", "transit:sat-1"}, got)
}

func TestDispatchWaitsForSuspendingHandler(t *testing.T) {
	d := newDispatcher()
	var order []int
	d.Handle(protocol.TypeCancel, Typed(Suspending(func(_ context.Context, m protocol.Cancel) <-chan error {
		done := make(chan error, 1)
		go func() {
			time.Sleep(time.Duration(10-m.Command.ID) * time.Millisecond)
			order = append(order, int(m.Command.ID))
			done <- nil
		}()
		return done
	})))

	for id := int64(1); id <= 3; id++ {
		require.NoError(t, d.Dispatch(context.Background(), protocol.Cancel{Command: protocol.CommandRef{ID: id}}))
	}
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestDispatchContainsFailures(t *testing.T) {
	d := newDispatcher()
	d.Handle(protocol.TypeError, func(context.Context, protocol.Message) error {
		panic("handler bug")
	})
	d.Handle(protocol.TypeRateLimit, func(context.Context, protocol.Message) error {
		return errors.New("rate limit handler failed")
	})

	err := d.Dispatch(context.Background(), protocol.ServerError{Error: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler bug")

	assert.EqualError(t, d.Dispatch(context.Background(), protocol.RateLimit{}), "rate limit handler failed")
}

func TestFallbackAndRemoval(t *testing.T) {
	d := newDispatcher()
	var fallback []protocol.MessageType
	d.Fallback(func(_ context.Context, m protocol.Message) error {
		fallback = append(fallback, m.MessageType())
		return nil
	})
	d.Handle(protocol.TypeError, func(context.Context, protocol.Message) error { return errors.New("routed") })
	d.Handle(protocol.TypeError, nil)

	require.NoError(t, d.Dispatch(context.Background(), protocol.ServerError{}))
	require.NoError(t, d.Dispatch(context.Background(), protocol.Unknown{Type: "mystery"}))
	assert.Equal(t, []protocol.MessageType{protocol.TypeError, "mystery"}, fallback)
}

func TestTypedRejectsMismatchedMessage(t *testing.T) {
	r := Typed(Blocking(func(context.Context, protocol.Hello) error { return nil }))
	assert.Error(t, r(context.Background(), protocol.ServerError{}))
}

func TestDispatchRecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	d := New(
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithTracer(tp.Tracer("dispatch-test")),
	)
	var inner trace.SpanContext
	d.Handle(protocol.TypeHello, func(ctx context.Context, _ protocol.Message) error {
		inner = trace.SpanContextFromContext(ctx)
		return nil
	})
	d.Handle(protocol.TypeRateLimit, func(context.Context, protocol.Message) error {
		return errors.New("rate limit handler failed")
	})
	d.Handle(protocol.TypeError, func(context.Context, protocol.Message) error {
		panic("handler bug")
	})

	require.NoError(t, d.Dispatch(context.Background(), protocol.Hello{}))
	require.Error(t, d.Dispatch(context.Background(), protocol.RateLimit{}))
	require.Error(t, d.Dispatch(context.Background(), protocol.ServerError{}))

	spans := recorder.Ended()
	require.Len(t, spans, 3)

	ok, failed, panicked := spans[0], spans[1], spans[2]
	assert.Equal(t, "dispatch hello", ok.Name())
	assert.Equal(t, trace.SpanKindConsumer, ok.SpanKind())
	assert.Contains(t, ok.Attributes(), attribute.String("gateway.message.type", "hello"))
	assert.Equal(t, codes.Unset, ok.Status().Code)
	assert.Empty(t, ok.Events())
	assert.Equal(t, ok.SpanContext().SpanID(), inner.SpanID())

	assert.Equal(t, "dispatch rate_limit", failed.Name())
	assert.Contains(t, failed.Attributes(), attribute.String("gateway.message.type", "rate_limit"))
	assert.Equal(t, codes.Error, failed.Status().Code)
	assert.Equal(t, "rate limit handler failed", failed.Status().Description)
	require.Len(t, failed.Events(), 1)
	assert.Equal(t, "exception", failed.Events()[0].Name)

	assert.Equal(t, "dispatch error", panicked.Name())
	assert.Equal(t, codes.Error, panicked.Status().Code)
	assert.Contains(t, panicked.Status().Description, "handler bug")
	require.Len(t, panicked.Events(), 1)
}
