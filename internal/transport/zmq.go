// Package transport carries the two device channels over ZeroMQ: a REQ socket
// for commands and a SUB socket for telemetry. The rest of the client only
// sees the Requester and Subscriber interfaces.
package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"
	"go.uber.org/zap"

	"github.com/berrythewa/ifmctl/internal/errors"
)

// Requester is a strict request/reply connection: every Send must be
// followed by exactly one Recv.
type Requester interface {
	Send(payload []byte) error
	Recv() ([]byte, error)
	Close() error
}

// Subscriber is a receive-only connection to a publisher
type Subscriber interface {
	// TryRecv waits up to timeout for one message. ok is false on timeout.
	TryRecv(timeout time.Duration) (payload []byte, ok bool, err error)
	Close() error
}

// Options tunes socket creation
type Options struct {
	DialTimeout   time.Duration
	RetryInterval time.Duration
	Logger        *zap.Logger
}

func (o Options) socketOptions() []zmq4.Option {
	var opts []zmq4.Option
	if o.DialTimeout > 0 {
		opts = append(opts, zmq4.WithDialerTimeout(o.DialTimeout))
	}
	if o.RetryInterval > 0 {
		opts = append(opts, zmq4.WithDialerRetry(o.RetryInterval))
	}
	if o.Logger != nil {
		opts = append(opts, zmq4.WithLogger(zap.NewStdLog(o.Logger.Named("zmq4"))))
	}
	return opts
}

// DialRequester connects a REQ socket to the command endpoint
func DialRequester(ctx context.Context, ep Endpoint, opts Options) (Requester, error) {
	sock := zmq4.NewReq(ctx, opts.socketOptions()...)
	if err := sock.Dial(ep.String()); err != nil {
		sock.Close()
		return nil, errors.WrapRemote(fmt.Errorf("%w: %s: %v", errors.ErrConnectFailed, ep, err), "transport", "DialRequester")
	}
	return &zmqRequester{sock: sock}, nil
}

type zmqRequester struct {
	sock zmq4.Socket
}

func (r *zmqRequester) Send(payload []byte) error {
	return r.sock.Send(zmq4.NewMsg(payload))
}

func (r *zmqRequester) Recv() ([]byte, error) {
	msg, err := r.sock.Recv()
	if err != nil {
		return nil, err
	}
	return msg.Bytes(), nil
}

func (r *zmqRequester) Close() error {
	return r.sock.Close()
}

type recvResult struct {
	payload []byte
	err     error
}

// zmqSubscriber adapts the blocking zmq4 Recv into TryRecv with a pump
// goroutine. The pump stops after the first receive error or on Close.
type zmqSubscriber struct {
	sock    zmq4.Socket
	results chan recvResult
	cancel  context.CancelFunc
	ctx     context.Context
	wg      sync.WaitGroup
	once    sync.Once
}

// DialSubscriber connects a SUB socket to the data endpoint and subscribes
// to every topic.
func DialSubscriber(ctx context.Context, ep Endpoint, opts Options) (Subscriber, error) {
	ctx, cancel := context.WithCancel(ctx)
	sock := zmq4.NewSub(ctx, opts.socketOptions()...)
	if err := sock.Dial(ep.String()); err != nil {
		cancel()
		sock.Close()
		return nil, errors.WrapRemote(fmt.Errorf("%w: %s: %v", errors.ErrConnectFailed, ep, err), "transport", "DialSubscriber")
	}
	if err := sock.SetOption(zmq4.OptionSubscribe, ""); err != nil {
		cancel()
		sock.Close()
		return nil, errors.WrapRemote(fmt.Errorf("subscribe to %s: %w", ep, err), "transport", "DialSubscriber")
	}

	s := &zmqSubscriber{
		sock:    sock,
		results: make(chan recvResult, 16),
		cancel:  cancel,
		ctx:     ctx,
	}
	s.wg.Add(1)
	go s.pump()
	return s, nil
}

func (s *zmqSubscriber) pump() {
	defer s.wg.Done()
	for {
		msg, err := s.sock.Recv()
		var res recvResult
		if err != nil {
			res.err = err
		} else {
			res.payload = msg.Bytes()
		}
		select {
		case s.results <- res:
		case <-s.ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

func (s *zmqSubscriber) TryRecv(timeout time.Duration) ([]byte, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-s.results:
		if res.err != nil {
			return nil, false, res.err
		}
		return res.payload, true, nil
	case <-timer.C:
		return nil, false, nil
	case <-s.ctx.Done():
		return nil, false, s.ctx.Err()
	}
}

func (s *zmqSubscriber) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.sock.Close()
		s.wg.Wait()
	})
	return err
}
