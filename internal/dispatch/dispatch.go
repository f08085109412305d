// Package dispatch turns one line of user input into a command exchange and
// keeps the stream session in step with the stream-control commands.
package dispatch

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/berrythewa/ifmctl/internal/errors"
	"github.com/berrythewa/ifmctl/internal/metrics"
	"github.com/berrythewa/ifmctl/internal/telemetry"
	"github.com/berrythewa/ifmctl/internal/transport"
	"github.com/berrythewa/ifmctl/internal/types"
)

// Sender is the command channel as seen by the dispatcher
type Sender interface {
	Send(ctx context.Context, req *types.Request) (types.Reply, error)
}

// StreamController is the stream manager as seen by the dispatcher
type StreamController interface {
	Start(ctx context.Context, ep transport.Endpoint) (*telemetry.Session, error)
	Stop() error
	State() telemetry.State
}

// Action tells the caller what to do with a Result
type Action int

const (
	ActionNone  Action = iota // blank line
	ActionHelp                // show the catalog
	ActionExit                // leave the shell
	ActionReply               // a command was exchanged
)

// Result describes the outcome of one handled line
type Result struct {
	Action  Action
	Command types.CommandName
	Reply   types.Reply

	// Set when the command moved the stream session
	StreamStarted *telemetry.Session
	StreamStopped bool
	// Failure to start or stop the stream after a successful exchange
	StreamErr error
}

// Dispatcher validates input locally, forwards it over the command channel
// and starts or stops the stream after START_STREAM / STOP_STREAM replies.
type Dispatcher struct {
	sender  Sender
	stream  StreamController
	data    transport.Endpoint
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Config holds the dispatcher's collaborators
type Config struct {
	Sender       Sender
	Stream       StreamController
	DataEndpoint transport.Endpoint
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
}

func New(cfg Config) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Dispatcher{
		sender:  cfg.Sender,
		stream:  cfg.Stream,
		data:    cfg.DataEndpoint,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// Handle processes one input line of the form `COMMAND [json-params]`.
// Unknown commands and malformed params are rejected without any I/O.
func (d *Dispatcher) Handle(ctx context.Context, line string) (Result, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Result{Action: ActionNone}, nil
	}

	word, rest := splitLine(line)
	switch strings.ToLower(word) {
	case "help":
		return Result{Action: ActionHelp}, nil
	case "exit", "quit":
		return Result{Action: ActionExit}, nil
	}

	name, ok := types.LookupCommand(word)
	if !ok {
		d.metrics.CommandRejected("unknown_command")
		return Result{}, errors.WrapLocal(fmt.Errorf("%w: %q", errors.ErrUnknownCommand, string(name)), "dispatch", "Handle")
	}
	params, err := types.ParseParams(rest)
	if err != nil {
		d.metrics.CommandRejected("invalid_params")
		return Result{}, errors.WrapLocal(fmt.Errorf("%w: %q: %v", errors.ErrInvalidParams, rest, err), "dispatch", "Handle")
	}

	return d.Exchange(ctx, types.NewRequest(name, params))
}

// Exchange sends an already built request and applies its stream side effect
func (d *Dispatcher) Exchange(ctx context.Context, req *types.Request) (Result, error) {
	reply, err := d.sender.Send(ctx, req)
	if err != nil {
		return Result{}, err
	}
	res := Result{Action: ActionReply, Command: req.Command, Reply: reply}

	switch req.Command {
	case types.CmdStartStream:
		if d.stream.State() != telemetry.StateIdle {
			break
		}
		s, err := d.stream.Start(ctx, d.data)
		if err != nil {
			d.logger.Warn("Failed to start stream", zap.Stringer("endpoint", d.data), zap.Error(err))
			res.StreamErr = err
			break
		}
		res.StreamStarted = s
	case types.CmdStopStream:
		if d.stream.State() == telemetry.StateIdle {
			break
		}
		res.StreamStopped = true
		if err := d.stream.Stop(); err != nil {
			d.logger.Warn("Failed to stop stream cleanly", zap.Error(err))
			res.StreamErr = err
		}
	}
	return res, nil
}

// DataEndpoint is where START_STREAM subscribes
func (d *Dispatcher) DataEndpoint() transport.Endpoint {
	return d.data
}

// Close stops a running stream
func (d *Dispatcher) Close() error {
	return d.stream.Stop()
}

func splitLine(line string) (word, rest string) {
	i := strings.IndexAny(line, " \t")
	if i < 0 {
		return line, ""
	}
	return line[:i], strings.TrimSpace(line[i+1:])
}
