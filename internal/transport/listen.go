package transport

import (
	"context"
	"fmt"

	"github.com/go-zeromq/zmq4"

	"github.com/berrythewa/ifmctl/internal/errors"
)

// Replier is the serving side of a request/reply connection
type Replier interface {
	Recv() ([]byte, error)
	Send(payload []byte) error
	Close() error
}

// Publisher fans messages out to every connected subscriber
type Publisher interface {
	Publish(payload []byte) error
	Close() error
}

// ListenReplier binds a REP socket on ep
func ListenReplier(ctx context.Context, ep Endpoint, opts Options) (Replier, error) {
	sock := zmq4.NewRep(ctx, opts.socketOptions()...)
	if err := sock.Listen(ep.String()); err != nil {
		sock.Close()
		return nil, errors.WrapLocal(fmt.Errorf("listen on %s: %w", ep, err), "transport", "ListenReplier")
	}
	return &zmqReplier{sock: sock}, nil
}

type zmqReplier struct {
	sock zmq4.Socket
}

func (r *zmqReplier) Recv() ([]byte, error) {
	msg, err := r.sock.Recv()
	if err != nil {
		return nil, err
	}
	return msg.Bytes(), nil
}

func (r *zmqReplier) Send(payload []byte) error {
	return r.sock.Send(zmq4.NewMsg(payload))
}

func (r *zmqReplier) Close() error {
	return r.sock.Close()
}

// ListenPublisher binds a PUB socket on ep
func ListenPublisher(ctx context.Context, ep Endpoint, opts Options) (Publisher, error) {
	sock := zmq4.NewPub(ctx, opts.socketOptions()...)
	if err := sock.Listen(ep.String()); err != nil {
		sock.Close()
		return nil, errors.WrapLocal(fmt.Errorf("listen on %s: %w", ep, err), "transport", "ListenPublisher")
	}
	return &zmqPublisher{sock: sock}, nil
}

type zmqPublisher struct {
	sock zmq4.Socket
}

func (p *zmqPublisher) Publish(payload []byte) error {
	return p.sock.Send(zmq4.NewMsg(payload))
}

func (p *zmqPublisher) Close() error {
	return p.sock.Close()
}
