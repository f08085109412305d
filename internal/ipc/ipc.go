// Package ipc implements the command channel: one request/reply connection
// to the device with at most one request in flight.
package ipc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/berrythewa/ifmctl/internal/errors"
	"github.com/berrythewa/ifmctl/internal/metrics"
	"github.com/berrythewa/ifmctl/internal/transport"
	"github.com/berrythewa/ifmctl/internal/types"
)

// Option configures a Channel
type Option func(*Channel)

// WithReplyTimeout bounds the wait for a reply. Zero waits forever.
func WithReplyTimeout(d time.Duration) Option {
	return func(c *Channel) { c.replyTimeout = d }
}

// WithLogger sets the channel logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Channel) { c.logger = logger }
}

// WithMetrics records command counters into m
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Channel) { c.metrics = m }
}

// Channel owns the command connection. Send is serialized by mu, so the
// transport never sees two requests without a reply in between.
type Channel struct {
	mu           sync.Mutex
	req          transport.Requester
	replyTimeout time.Duration
	logger       *zap.Logger
	metrics      *metrics.Metrics
	broken       bool
	closed       bool
}

// Dial connects to the command endpoint. A failure here is fatal for the
// channel and is not retried. ctx bounds the lifetime of the connection.
func Dial(ctx context.Context, ep transport.Endpoint, topts transport.Options, opts ...Option) (*Channel, error) {
	req, err := transport.DialRequester(ctx, ep, topts)
	if err != nil {
		return nil, err
	}
	c := NewChannel(req, opts...)
	c.logger.Info("Command channel connected", zap.Stringer("endpoint", ep))
	return c, nil
}

// NewChannel wraps an already connected requester
func NewChannel(req transport.Requester, opts ...Option) *Channel {
	c := &Channel{req: req, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send transmits one command and blocks for exactly one reply. Unknown
// command names are rejected before anything reaches the transport.
func (c *Channel) Send(ctx context.Context, req *types.Request) (types.Reply, error) {
	if req == nil || !req.Command.Valid() {
		var name types.CommandName
		if req != nil {
			name = req.Command
		}
		c.metrics.CommandRejected("unknown_command")
		return nil, errors.WrapLocal(fmt.Errorf("%w: %q", errors.ErrUnknownCommand, name), "ipc", "Send")
	}

	payload, err := EncodeRequest(req)
	if err != nil {
		c.metrics.CommandRejected("encode")
		return nil, errors.WrapLocal(fmt.Errorf("%w: %v", errors.ErrInvalidParams, err), "ipc", "Send")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errors.WrapLocal(errors.ErrChannelClosed, "ipc", "Send")
	}
	if c.broken {
		return nil, errors.WrapRemote(errors.ErrChannelBroken, "ipc", "Send")
	}

	name := string(req.Command)
	start := time.Now()
	c.logger.Debug("Sending command", zap.String("command", name), zap.ByteString("payload", payload))

	if err := c.req.Send(payload); err != nil {
		c.breakLocked()
		c.metrics.CommandFailed(name)
		return nil, errors.WrapRemote(fmt.Errorf("send %s: %w", name, err), "ipc", "Send")
	}

	reply, err := c.awaitReply(ctx)
	if err != nil {
		c.metrics.CommandFailed(name)
		c.logger.Warn("Command failed", zap.String("command", name), zap.Error(err))
		return nil, errors.WrapRemote(fmt.Errorf("await reply to %s: %w", name, err), "ipc", "Send")
	}

	took := time.Since(start)
	c.metrics.CommandSent(name, took)
	c.logger.Debug("Received reply", zap.String("command", name), zap.Duration("took", took), zap.Int("bytes", len(reply)))
	return types.Reply(reply), nil
}

type reply struct {
	payload []byte
	err     error
}

// awaitReply must be called with mu held
func (c *Channel) awaitReply(ctx context.Context) ([]byte, error) {
	if c.replyTimeout <= 0 && ctx.Done() == nil {
		payload, err := c.req.Recv()
		if err != nil {
			c.breakLocked()
		}
		return payload, err
	}

	ch := make(chan reply, 1)
	go func() {
		payload, err := c.req.Recv()
		ch <- reply{payload: payload, err: err}
	}()

	var timeout <-chan time.Time
	if c.replyTimeout > 0 {
		timer := time.NewTimer(c.replyTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case r := <-ch:
		if r.err != nil {
			c.breakLocked()
		}
		return r.payload, r.err
	case <-timeout:
		c.breakLocked()
		return nil, fmt.Errorf("%w after %s", errors.ErrReplyTimeout, c.replyTimeout)
	case <-ctx.Done():
		c.breakLocked()
		return nil, ctx.Err()
	}
}

// breakLocked gives up on the connection: a request without its reply leaves
// the socket out of lock-step, so nothing more can be sent on it.
func (c *Channel) breakLocked() {
	if c.broken {
		return
	}
	c.broken = true
	if err := c.req.Close(); err != nil {
		c.logger.Debug("Closing broken command connection", zap.Error(err))
	}
}

// Broken reports whether an earlier failure made the channel unusable
func (c *Channel) Broken() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.broken
}

// Close releases the connection. It is safe to call more than once.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	if c.broken {
		return nil
	}
	return c.req.Close()
}
