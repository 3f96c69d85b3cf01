package gateway

import (
	"context"
	"strconv"

	"github.com/HsiangNianian/AMonItor/gateway/pkg/files"
	"github.com/HsiangNianian/AMonItor/gateway/pkg/protocol"
)

// Every transmit method validates its input first and fails with a
// *ValidationError without sending anything. A valid message is written to
// the live session, or queued when there is none; ErrQueueFull means it was
// refused.

func (g *Gateway) TransmitMetrics(_ context.Context, measurements []protocol.Measurement) error {
	m, err := protocol.NewMeasurements(measurements)
	if err != nil {
		return err
	}
	return g.send(m)
}

func (g *Gateway) TransmitEvents(_ context.Context, events []protocol.Event) error {
	m, err := protocol.NewEvents(events)
	if err != nil {
		return err
	}
	return g.send(m)
}

// TransmitCommandUpdate reports progress on command id. extra may carry
// output, errors, payload and any progress fields.
func (g *Gateway) TransmitCommandUpdate(ctx context.Context, id int64, state protocol.CommandState, extra map[string]any) error {
	m, err := protocol.NewCommandUpdate(id, state, extra)
	if err != nil {
		return err
	}
	return g.sendCommandUpdate(ctx, m)
}

func (g *Gateway) CompleteCommand(ctx context.Context, id int64, output string) error {
	m, err := protocol.CompleteCommand(id, output)
	if err != nil {
		return err
	}
	return g.sendCommandUpdate(ctx, m)
}

func (g *Gateway) FailCommand(ctx context.Context, id int64, errs []string) error {
	m, err := protocol.FailCommand(id, errs)
	if err != nil {
		return err
	}
	return g.sendCommandUpdate(ctx, m)
}

func (g *Gateway) CancelCommand(ctx context.Context, id int64) error {
	m, err := protocol.CancelCommand(id)
	if err != nil {
		return err
	}
	return g.sendCommandUpdate(ctx, m)
}

// TransmittedCommand marks id as sent to its system. An empty payload is
// reported as protocol.DefaultTransmittedPayload.
func (g *Gateway) TransmittedCommand(ctx context.Context, id int64, payload string) error {
	m, err := protocol.TransmittedCommand(id, payload)
	if err != nil {
		return err
	}
	return g.sendCommandUpdate(ctx, m)
}

func (g *Gateway) sendCommandUpdate(ctx context.Context, m protocol.CommandUpdate) error {
	if err := g.send(m); err != nil {
		return err
	}
	key := strconv.FormatInt(m.Command.ID, 10)
	if err := g.ledger.SetCommandState(ctx, key, string(m.Command.State), g.opts.CommandTTL); err != nil {
		g.logger.Error("command ledger write failed", "command_id", m.Command.ID, "err", err)
	}
	return nil
}

// LastCommandState is the last state this gateway reported for id, or ""
// when none is on record.
func (g *Gateway) LastCommandState(ctx context.Context, id int64) (protocol.CommandState, error) {
	state, err := g.ledger.CommandState(ctx, strconv.FormatInt(id, 10))
	return protocol.CommandState(state), err
}

// TransmitBlob sends bytes for a system through a ground station network.
func (g *Gateway) TransmitBlob(_ context.Context, blob []byte, meta map[string]any) error {
	m, err := protocol.NewTransmitBlob(blob, meta)
	if err != nil {
		return err
	}
	return g.send(m)
}

func (g *Gateway) UpdateCommandDefinitions(_ context.Context, system string, definitions map[string]protocol.CommandDefinition) error {
	m, err := protocol.NewCommandDefinitionsUpdate(system, definitions)
	if err != nil {
		return err
	}
	return g.send(m)
}

// UpdateFileList tells the platform which files system holds. A zero
// timestamp means now.
func (g *Gateway) UpdateFileList(_ context.Context, system string, list []protocol.FileData, timestamp int64) error {
	m, err := protocol.NewFileList(system, list, timestamp)
	if err != nil {
		return err
	}
	return g.send(m)
}

// DownloadStagedFile fetches a file staged on the platform for upload to a
// system, returning its name and contents.
func (g *Gateway) DownloadStagedFile(ctx context.Context, path string) (string, []byte, error) {
	return g.files.Download(ctx, path)
}

// UploadDownlinkedFile stores a file downlinked from a system on the
// platform and returns its signed id.
func (g *Gateway) UploadDownlinkedFile(ctx context.Context, req files.UploadRequest) (string, error) {
	return g.files.Upload(ctx, req)
}
