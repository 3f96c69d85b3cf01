// Package dispatch routes decoded inbound messages to registered handlers.
package dispatch

import (
	"context"
)

type Kind int

const (
	KindNone Kind = iota
	KindBlocking
	KindSuspending
)

func (k Kind) String() string {
	switch k {
	case KindBlocking:
		return "blocking"
	case KindSuspending:
		return "suspending"
	default:
		return "none"
	}
}

// Handler is either a blocking function, which does its work before
// returning, or a suspending one, which starts the work and returns a
// channel that yields the outcome. The variant is fixed at construction and
// Call awaits both the same way. The zero Handler is unset.
type Handler[T any] struct {
	kind    Kind
	block   func(context.Context, T) error
	suspend func(context.Context, T) <-chan error
}

func Blocking[T any](fn func(ctx context.Context, v T) error) Handler[T] {
	if fn == nil {
		return Handler[T]{}
	}
	return Handler[T]{kind: KindBlocking, block: fn}
}

// Suspending wraps fn. A nil channel from fn counts as immediate success.
func Suspending[T any](fn func(ctx context.Context, v T) <-chan error) Handler[T] {
	if fn == nil {
		return Handler[T]{}
	}
	return Handler[T]{kind: KindSuspending, suspend: fn}
}

func (h Handler[T]) Kind() Kind { return h.kind }

func (h Handler[T]) IsSet() bool { return h.kind != KindNone }

// Call runs the handler and waits for its outcome or for ctx to end.
func (h Handler[T]) Call(ctx context.Context, v T) error {
	switch h.kind {
	case KindBlocking:
		return h.block(ctx, v)
	case KindSuspending:
		done := h.suspend(ctx, v)
		if done == nil {
			return nil
		}
		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	default:
		return nil
	}
}
