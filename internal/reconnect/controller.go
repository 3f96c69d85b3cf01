// Package reconnect drives connection attempts with failure classification
// and exponential backoff.
package reconnect

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Terminal
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Terminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Link is a connected session handed back by a DialFunc. Serve blocks until
// the session ends and reports why.
type Link interface {
	Serve(ctx context.Context) error
}

// DialFunc performs one connection attempt. It must finish any work that has
// to precede "connected" (queue drain) before returning.
type DialFunc func(ctx context.Context) (Link, error)

type Options struct {
	Backoff Backoff
	Logger  *slog.Logger
	// Sleep waits d or until ctx ends. Tests replace it to observe delays.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry runs before each backoff wait.
	OnRetry func(attempt int, v Verdict, delay time.Duration)
	// OnState runs after every state change.
	OnState func(State)
}

type Controller struct {
	backoff Backoff
	logger  *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
	onRetry func(int, Verdict, time.Duration)
	onState func(State)

	state atomic.Int32
}

func New(opts Options) *Controller {
	c := &Controller{
		backoff: opts.Backoff.normalized(),
		logger:  opts.Logger,
		sleep:   opts.Sleep,
		onRetry: opts.OnRetry,
		onState: opts.OnState,
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.sleep == nil {
		c.sleep = sleepContext
	}
	return c
}

func (c *Controller) State() State {
	return State(c.state.Load())
}

func (c *Controller) setState(s State) {
	if State(c.state.Swap(int32(s))) == s {
		return
	}
	if c.onState != nil {
		c.onState(s)
	}
}

// Terminate marks the controller as stopped on request.
func (c *Controller) Terminate() {
	c.setState(Terminal)
}

// Connect makes exactly one attempt.
func (c *Controller) Connect(ctx context.Context, dial DialFunc) (Link, error) {
	c.setState(Connecting)
	link, err := dial(ctx)
	if err != nil {
		c.setState(Disconnected)
		return nil, err
	}
	c.setState(Connected)
	return link, nil
}

// Serve runs an established link and records the transition back to
// Disconnected when it ends.
func (c *Controller) Serve(ctx context.Context, link Link) error {
	err := link.Serve(ctx)
	c.setState(Disconnected)
	return err
}

// Run connects, serves and reconnects until ctx ends or an attempt fails
// with a fatal classification, which is returned unchanged.
func (c *Controller) Run(ctx context.Context, dial DialFunc) error {
	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			c.setState(Terminal)
			return err
		}

		link, err := c.Connect(ctx, dial)
		if err != nil {
			if ctx.Err() != nil {
				c.setState(Terminal)
				return ctx.Err()
			}
			v := Classify(err)
			if v.Class == Fatal {
				c.setState(Terminal)
				c.logger.Error("connection failed, giving up", "cause", v.Cause, "err", err)
				return err
			}
			failures++
			if err := c.wait(ctx, failures, v, err); err != nil {
				c.setState(Terminal)
				return err
			}
			continue
		}

		serveErr := c.Serve(ctx, link)
		if ctx.Err() != nil {
			c.setState(Terminal)
			return ctx.Err()
		}
		failures = 1
		v := Verdict{Class: Retryable, Cause: "connection lost"}
		if err := c.wait(ctx, failures, v, serveErr); err != nil {
			c.setState(Terminal)
			return err
		}
	}
}

func (c *Controller) wait(ctx context.Context, failures int, v Verdict, cause error) error {
	delay := c.backoff.Delay(failures)
	c.logger.Warn("connection attempt failed, retrying",
		"attempt", failures+1,
		"cause", v.Cause,
		"delay", delay,
		"err", cause,
	)
	if c.onRetry != nil {
		c.onRetry(failures+1, v, delay)
	}
	return c.sleep(ctx, delay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
