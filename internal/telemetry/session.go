package telemetry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/berrythewa/ifmctl/internal/errors"
	"github.com/berrythewa/ifmctl/internal/metrics"
	"github.com/berrythewa/ifmctl/internal/transport"
)

// DefaultPollInterval bounds how long the consumer waits for a frame before
// it looks at the cancellation signal again. It is also the worst-case stop
// latency.
const DefaultPollInterval = 500 * time.Millisecond

// Session is one active subscription plus its consumer goroutine
type Session struct {
	ID       string
	Endpoint transport.Endpoint
	Started  time.Time

	sub      transport.Subscriber
	poll     time.Duration
	reporter Reporter
	metrics  *metrics.Metrics
	logger   *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}

	frames       atomic.Uint64
	decodeErrors atomic.Uint64

	mu  sync.Mutex
	err error
}

// SessionStats is a snapshot of a session's counters
type SessionStats struct {
	ID           string        `json:"id"`
	Endpoint     string        `json:"endpoint"`
	Uptime       time.Duration `json:"uptime"`
	Frames       uint64        `json:"frames"`
	DecodeErrors uint64        `json:"decode_errors"`
}

// Done is closed once the consumer goroutine has returned
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the receive error that ended the consumer early, if any
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stats returns a snapshot of the session counters
func (s *Session) Stats() SessionStats {
	return SessionStats{
		ID:           s.ID,
		Endpoint:     s.Endpoint.String(),
		Uptime:       time.Since(s.Started),
		Frames:       s.frames.Load(),
		DecodeErrors: s.decodeErrors.Load(),
	}
}

// run is the consumer loop. A bad frame is reported and skipped; a receive
// error ends the loop.
func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		payload, ok, err := s.sub.TryRecv(s.poll)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			err = errors.WrapRemote(err, "telemetry", "Receive")
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			s.logger.Error("Stream receive failed, consumer exiting", zap.Error(err))
			s.reporter.ReportError(err)
			return
		}
		if !ok {
			continue
		}

		s.metrics.FrameReceived()
		avg, err := DecodeFrame(payload)
		if err != nil {
			s.decodeErrors.Add(1)
			s.metrics.DecodeError(decodeErrorReason(err))
			s.reporter.ReportError(err)
			continue
		}

		s.frames.Add(1)
		s.metrics.FrameDecoded()
		s.reporter.ReportAverage(avg)
	}
}
