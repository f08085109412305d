// Package telemetry consumes the device's telemetry stream: it decodes binary
// frames into per-axis averages on a background goroutine and guards the
// start/stop lifecycle so at most one subscription is ever active.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/berrythewa/ifmctl/internal/errors"
	"github.com/berrythewa/ifmctl/internal/metrics"
	"github.com/berrythewa/ifmctl/internal/transport"
)

// State of the stream lifecycle
type State int32

const (
	StateIdle State = iota
	StateSubscribing
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubscribing:
		return "subscribing"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Dialer opens a subscriber. ctx bounds the life of the connection.
type Dialer func(ctx context.Context, ep transport.Endpoint) (transport.Subscriber, error)

// ZMQDialer dials real SUB sockets with the given options
func ZMQDialer(opts transport.Options) Dialer {
	return func(ctx context.Context, ep transport.Endpoint) (transport.Subscriber, error) {
		return transport.DialSubscriber(ctx, ep, opts)
	}
}

// ManagerConfig holds the manager's collaborators
type ManagerConfig struct {
	Dialer       Dialer
	Reporter     Reporter
	PollInterval time.Duration
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
}

// Manager owns the single stream session. Every transition happens under mu,
// so concurrent Start calls can never spawn two consumers. The state is also
// published atomically so State() never blocks behind a slow dial or stop.
type Manager struct {
	cfg     ManagerConfig
	mu      sync.Mutex
	state   atomic.Int32
	session *Session
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Reporter == nil {
		cfg.Reporter = ReporterFuncs{}
	}
	if cfg.Dialer == nil {
		cfg.Dialer = ZMQDialer(transport.Options{Logger: cfg.Logger})
	}
	return &Manager{cfg: cfg}
}

// State returns the current lifecycle state
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Active returns the running session, or nil when idle
func (m *Manager) Active() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

func (m *Manager) setState(s State) {
	m.state.Store(int32(s))
}

// Start subscribes to ep and launches the consumer. It is rejected with
// ErrAlreadyStreaming unless the manager is idle. Cancelling ctx ends the
// session as well; Stop must still be called to release it.
func (m *Manager) Start(ctx context.Context, ep transport.Endpoint) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.State() != StateIdle {
		return nil, errors.WrapLocal(errors.ErrAlreadyStreaming, "telemetry", "Start")
	}
	m.setState(StateSubscribing)

	sctx, cancel := context.WithCancel(ctx)
	sub, err := m.cfg.Dialer(sctx, ep)
	if err != nil {
		cancel()
		m.setState(StateIdle)
		return nil, err
	}

	s := &Session{
		ID:       uuid.New().String(),
		Endpoint: ep,
		Started:  time.Now(),
		sub:      sub,
		poll:     m.cfg.PollInterval,
		reporter: m.cfg.Reporter,
		metrics:  m.cfg.Metrics,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	s.logger = m.cfg.Logger.With(zap.String("session_id", s.ID), zap.Stringer("endpoint", ep))

	m.session = s
	m.setState(StateRunning)
	m.cfg.Metrics.SessionStarted()
	s.logger.Info("Stream session started", zap.Duration("poll_interval", s.poll))

	go s.run(sctx)
	return s, nil
}

// Stop cancels the consumer, waits for it to exit (at most one poll
// interval), then closes the subscription. Stopping an idle manager is a
// no-op.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.session
	if s == nil {
		return nil
	}
	m.setState(StateStopping)

	s.cancel()
	<-s.done
	err := s.sub.Close()

	m.session = nil
	m.setState(StateIdle)
	m.cfg.Metrics.SessionStopped()

	stats := s.Stats()
	s.logger.Info("Stream session stopped",
		zap.Duration("uptime", stats.Uptime),
		zap.Uint64("frames", stats.Frames),
		zap.Uint64("decode_errors", stats.DecodeErrors))

	if err != nil {
		return errors.WrapRemote(fmt.Errorf("close subscription: %w", err), "telemetry", "Stop")
	}
	return nil
}
