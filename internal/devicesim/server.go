package devicesim

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/berrythewa/ifmctl/internal/ipc"
	"github.com/berrythewa/ifmctl/internal/telemetry"
	"github.com/berrythewa/ifmctl/internal/transport"
	"github.com/berrythewa/ifmctl/internal/types"
)

// Generator produces the samples of frame number seq
type Generator func(seq uint64, n int) []types.Sample

// WaveGenerator traces slow sine/cosine waves on X/Y with a gravity-like Z
func WaveGenerator(seq uint64, n int) []types.Sample {
	samples := make([]types.Sample, n)
	for i := range samples {
		phase := float64(seq)*0.1 + float64(i)*0.01
		samples[i] = types.Sample{
			X: int16(1000 * math.Sin(phase)),
			Y: int16(1000 * math.Cos(phase)),
			Z: int16(-981 + i%7),
		}
	}
	return samples
}

// ConstantGenerator repeats one sample, so every frame averages to it
func ConstantGenerator(s types.Sample) Generator {
	return func(_ uint64, n int) []types.Sample {
		samples := make([]types.Sample, n)
		for i := range samples {
			samples[i] = s
		}
		return samples
	}
}

// Config holds the simulator settings
type Config struct {
	CommandEndpoint transport.Endpoint
	DataEndpoint    transport.Endpoint
	PublishInterval time.Duration
	SamplesPerFrame int
	Generator       Generator
	Transport       transport.Options
	Logger          *zap.Logger
	// ShutdownLinger is how long the SHUTDOWN reply is given to reach the
	// client before the sockets close.
	ShutdownLinger time.Duration
}

// Server binds the command and data sockets and drives DeviceState
type Server struct {
	cfg   Config
	state *DeviceState

	listenReplier   func(context.Context, transport.Endpoint, transport.Options) (transport.Replier, error)
	listenPublisher func(context.Context, transport.Endpoint, transport.Options) (transport.Publisher, error)

	mu        sync.Mutex
	running   bool
	rep       transport.Replier
	pub       transport.Publisher
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
}

// NewServer creates a simulator; Start binds its sockets
func NewServer(cfg Config) *Server {
	if cfg.PublishInterval <= 0 {
		cfg.PublishInterval = 100 * time.Millisecond
	}
	if cfg.SamplesPerFrame <= 0 {
		cfg.SamplesPerFrame = 32
	}
	if cfg.Generator == nil {
		cfg.Generator = WaveGenerator
	}
	if cfg.ShutdownLinger <= 0 {
		cfg.ShutdownLinger = 250 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Server{
		cfg:             cfg,
		state:           NewDeviceState(),
		listenReplier:   transport.ListenReplier,
		listenPublisher: transport.ListenPublisher,
		done:            make(chan struct{}),
	}
}

// State exposes the simulated device
func (s *Server) State() *DeviceState {
	return s.state
}

// Start binds both endpoints and serves until Stop, ctx cancellation or a
// SHUTDOWN command.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("simulator already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	rep, err := s.listenReplier(ctx, s.cfg.CommandEndpoint, s.cfg.Transport)
	if err != nil {
		cancel()
		return err
	}
	pub, err := s.listenPublisher(ctx, s.cfg.DataEndpoint, s.cfg.Transport)
	if err != nil {
		cancel()
		rep.Close()
		return err
	}

	s.rep, s.pub, s.cancel = rep, pub, cancel
	s.running = true

	s.wg.Add(2)
	go s.serveCommands(ctx)
	go s.publishFrames(ctx)

	go func() {
		<-ctx.Done()
		s.closeSockets()
	}()
	go func() {
		s.wg.Wait()
		close(s.done)
	}()

	s.cfg.Logger.Info("Device simulator started",
		zap.Stringer("command_endpoint", s.cfg.CommandEndpoint),
		zap.Stringer("data_endpoint", s.cfg.DataEndpoint),
		zap.Duration("publish_interval", s.cfg.PublishInterval),
		zap.Int("samples_per_frame", s.cfg.SamplesPerFrame))
	return nil
}

// Stop shuts the simulator down and waits for its goroutines
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.closeSockets()
	<-s.done
	s.cfg.Logger.Info("Device simulator stopped")
	return nil
}

// Done is closed once both loops have exited
func (s *Server) Done() <-chan struct{} {
	return s.done
}

func (s *Server) closeSockets() {
	s.closeOnce.Do(func() {
		if err := s.rep.Close(); err != nil {
			s.cfg.Logger.Debug("Closing command socket", zap.Error(err))
		}
		if err := s.pub.Close(); err != nil {
			s.cfg.Logger.Debug("Closing data socket", zap.Error(err))
		}
	})
}

func (s *Server) serveCommands(ctx context.Context) {
	defer s.wg.Done()

	for {
		payload, err := s.rep.Recv()
		if err != nil {
			if ctx.Err() == nil {
				s.cfg.Logger.Warn("Command socket receive failed", zap.Error(err))
				s.cancel()
			}
			return
		}

		resp := s.handle(payload)
		data, err := json.Marshal(resp)
		if err != nil {
			data = []byte(`{"status":"error","error":"INTERNAL"}`)
		}
		if err := s.rep.Send(data); err != nil {
			if ctx.Err() == nil {
				s.cfg.Logger.Warn("Command socket send failed", zap.Error(err))
				s.cancel()
			}
			return
		}

		select {
		case <-s.state.ShutdownRequested():
			s.cfg.Logger.Info("Shutdown requested by client",
				zap.Duration("linger", s.cfg.ShutdownLinger))
			// the reply is still queued on the socket; closing now drops it
			timer := time.NewTimer(s.cfg.ShutdownLinger)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
			}
			s.cancel()
			return
		default:
		}
	}
}

func (s *Server) handle(payload []byte) Response {
	req, err := ipc.DecodeRequest(payload)
	if err != nil {
		s.cfg.Logger.Debug("Malformed request", zap.Error(err))
		return fail(CodeBadRequest)
	}
	resp := s.state.Handle(req)
	s.cfg.Logger.Debug("Handled command",
		zap.String("command", string(req.Command)),
		zap.String("status", resp.Status))
	return resp
}

func (s *Server) publishFrames(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PublishInterval)
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.state.Streaming() {
				continue
			}
			frame := telemetry.EncodeFrame(s.cfg.Generator(seq, s.cfg.SamplesPerFrame))
			seq++
			if err := s.pub.Publish(frame); err != nil {
				if ctx.Err() != nil {
					return
				}
				s.cfg.Logger.Warn("Publish failed", zap.Error(err))
			}
		}
	}
}
