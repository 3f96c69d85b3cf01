package gateway

import (
	"context"
	"strconv"

	"github.com/HsiangNianian/AMonItor/gateway/pkg/dispatch"
	"github.com/HsiangNianian/AMonItor/gateway/pkg/protocol"
)

const (
	noCommandHandler  = "No command callback implemented"
	cancelFailedEvent = "Command Cancellation Failed"
)

type handlers struct {
	command      dispatch.Handler[protocol.Command]
	cancel       dispatch.Handler[protocol.Cancel]
	serverError  dispatch.Handler[protocol.ServerError]
	rateLimit    dispatch.Handler[protocol.RateLimit]
	transit      dispatch.Handler[protocol.Transit]
	receivedBlob dispatch.Handler[protocol.ReceivedBlob]
}

// HandleCommand sets the handler for server commands. Without one, every
// command is failed straight back to the platform.
func (g *Gateway) HandleCommand(h dispatch.Handler[protocol.Command]) {
	g.handlersMu.Lock()
	defer g.handlersMu.Unlock()
	g.handlers.command = h
}

// HandleCancel sets the handler for cancellation requests. Without one, the
// platform is told the command could not be cancelled.
func (g *Gateway) HandleCancel(h dispatch.Handler[protocol.Cancel]) {
	g.handlersMu.Lock()
	defer g.handlersMu.Unlock()
	g.handlers.cancel = h
}

func (g *Gateway) HandleError(h dispatch.Handler[protocol.ServerError]) {
	g.handlersMu.Lock()
	defer g.handlersMu.Unlock()
	g.handlers.serverError = h
}

func (g *Gateway) HandleRateLimit(h dispatch.Handler[protocol.RateLimit]) {
	g.handlersMu.Lock()
	defer g.handlersMu.Unlock()
	g.handlers.rateLimit = h
}

func (g *Gateway) HandleTransit(h dispatch.Handler[protocol.Transit]) {
	g.handlersMu.Lock()
	defer g.handlersMu.Unlock()
	g.handlers.transit = h
}

func (g *Gateway) HandleReceivedBlob(h dispatch.Handler[protocol.ReceivedBlob]) {
	g.handlersMu.Lock()
	defer g.handlersMu.Unlock()
	g.handlers.receivedBlob = h
}

func (g *Gateway) current() handlers {
	g.handlersMu.RLock()
	defer g.handlersMu.RUnlock()
	return g.handlers
}

func (g *Gateway) registerRoutes() {
	d := g.dispatcher
	d.Handle(protocol.TypeCommand, dispatch.Typed(dispatch.Blocking(g.onCommand)))
	d.Handle(protocol.TypeCancel, dispatch.Typed(dispatch.Blocking(g.onCancel)))
	d.Handle(protocol.TypeTransit, dispatch.Typed(dispatch.Blocking(g.onTransit)))
	d.Handle(protocol.TypeReceivedBlob, dispatch.Typed(dispatch.Blocking(g.onReceivedBlob)))
	d.Handle(protocol.TypeError, dispatch.Typed(dispatch.Blocking(g.onServerError)))
	d.Handle(protocol.TypeRateLimit, dispatch.Typed(dispatch.Blocking(g.onRateLimit)))
	d.Handle(protocol.TypeHello, dispatch.Typed(dispatch.Blocking(g.onHello)))
	d.Fallback(func(_ context.Context, msg protocol.Message) error {
		g.logger.Warn("unknown message type from platform", "type", msg.MessageType())
		return nil
	})
}

func (g *Gateway) onCommand(ctx context.Context, m protocol.CommandMessage) error {
	cmd := m.Command
	key := strconv.FormatInt(cmd.ID, 10)
	if seen, err := g.ledger.IsProcessed(ctx, key); err != nil {
		g.logger.Error("command ledger lookup failed", "command_id", cmd.ID, "err", err)
	} else if seen {
		g.metrics.DuplicateCommand()
		g.logger.Warn("skipping command already handled", "command_id", cmd.ID, "type", cmd.Type)
		return nil
	}
	if err := g.ledger.MarkProcessed(ctx, key, g.opts.CommandTTL); err != nil {
		g.logger.Error("command ledger write failed", "command_id", cmd.ID, "err", err)
	}

	g.logger.Info("command received", "command_id", cmd.ID, "type", cmd.Type, "system", cmd.System)
	h := g.current().command
	if !h.IsSet() {
		return g.FailCommand(ctx, cmd.ID, []string{noCommandHandler})
	}
	return h.Call(ctx, cmd)
}

func (g *Gateway) onCancel(ctx context.Context, m protocol.Cancel) error {
	h := g.current().cancel
	if h.IsSet() {
		return h.Call(ctx, m)
	}
	id := m.Command.ID
	return g.TransmitEvents(ctx, []protocol.Event{{
		Type:      cancelFailedEvent,
		CommandID: &id,
		Level:     protocol.LevelWarning,
		Message:   "No cancel callback registered. Unable to cancel command.",
	}})
}

func (g *Gateway) onTransit(ctx context.Context, m protocol.Transit) error {
	h := g.current().transit
	if h.IsSet() {
		return h.Call(ctx, m)
	}
	g.logger.Info("ground station transit expected",
		"satellite", m.SatelliteName,
		"ground_station", m.GroundStationName,
		"start", m.ApproximateStart,
	)
	return nil
}

func (g *Gateway) onReceivedBlob(ctx context.Context, m protocol.ReceivedBlob) error {
	h := g.current().receivedBlob
	if h.IsSet() {
		return h.Call(ctx, m)
	}
	g.logger.Debug("platform received a blob", "system", m.Context.System, "bytes", len(m.Blob))
	return nil
}

func (g *Gateway) onServerError(ctx context.Context, m protocol.ServerError) error {
	g.logger.Error("error from platform", "error", m.Error)
	return g.current().serverError.Call(ctx, m)
}

func (g *Gateway) onRateLimit(ctx context.Context, m protocol.RateLimit) error {
	g.logger.Error("rate limited by platform", "rate_limit", m.RateLimit, "retry_after", m.RetryAfter, "error", m.Error)
	return g.current().rateLimit.Call(ctx, m)
}

func (g *Gateway) onHello(_ context.Context, m protocol.Hello) error {
	g.mu.Lock()
	g.mission = m.Hello.Mission
	g.mu.Unlock()
	g.logger.Info("platform says hello", "mission", m.Hello.Mission)
	return nil
}
