package devicesim

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berrythewa/ifmctl/internal/telemetry"
	"github.com/berrythewa/ifmctl/internal/transport"
	"github.com/berrythewa/ifmctl/internal/types"
)

type stubReplier struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

func newStubReplier() *stubReplier {
	return &stubReplier{
		in:     make(chan []byte),
		out:    make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (r *stubReplier) Recv() ([]byte, error) {
	select {
	case p := <-r.in:
		return p, nil
	case <-r.closed:
		return nil, io.EOF
	}
}

func (r *stubReplier) Send(payload []byte) error {
	r.out <- payload
	return nil
}

func (r *stubReplier) Close() error {
	r.once.Do(func() { close(r.closed) })
	return nil
}

type stubPublisher struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (p *stubPublisher) Publish(payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = append(p.frames, payload)
	return nil
}

func (p *stubPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *stubPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.frames)
}

func (p *stubPublisher) last() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frames[len(p.frames)-1]
}

func newStubServer(t *testing.T) (*Server, *stubReplier, *stubPublisher) {
	t.Helper()
	rep := newStubReplier()
	pub := &stubPublisher{}
	s := NewServer(Config{
		PublishInterval: 5 * time.Millisecond,
		SamplesPerFrame: 4,
		Generator:       ConstantGenerator(types.Sample{X: 10, Y: 20, Z: 30}),
	})
	s.listenReplier = func(context.Context, transport.Endpoint, transport.Options) (transport.Replier, error) {
		return rep, nil
	}
	s.listenPublisher = func(context.Context, transport.Endpoint, transport.Options) (transport.Publisher, error) {
		return pub, nil
	}
	return s, rep, pub
}

func roundTrip(t *testing.T, rep *stubReplier, line string) Response {
	t.Helper()
	rep.in <- []byte(line)
	select {
	case out := <-rep.out:
		var resp Response
		require.NoError(t, json.Unmarshal(out, &resp))
		return resp
	case <-time.After(time.Second):
		t.Fatalf("no reply to %s", line)
		return Response{}
	}
}

func TestServerAnswersCommands(t *testing.T) {
	s, rep, _ := newStubServer(t)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	resp := roundTrip(t, rep, `{"command":"CONNECT","params":{}}`)
	assert.Equal(t, "ok", resp.Status)

	resp = roundTrip(t, rep, `{"command":"IS_CONNECTED"}`)
	assert.Equal(t, true, resp.Result)

	resp = roundTrip(t, rep, `not json`)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, CodeBadRequest, resp.Error)

	resp = roundTrip(t, rep, `{"command":"MAKE_COFFEE","params":{}}`)
	assert.Equal(t, CodeUnknownCommand, resp.Error)
}

func TestServerPublishesOnlyWhileStreaming(t *testing.T) {
	s, rep, pub := newStubServer(t)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, pub.count())

	roundTrip(t, rep, `{"command":"CONNECT","params":{}}`)
	roundTrip(t, rep, `{"command":"START_STREAM","params":{}}`)
	require.Eventually(t, func() bool { return pub.count() >= 3 }, time.Second, 5*time.Millisecond)

	avg, err := telemetry.DecodeFrame(pub.last())
	require.NoError(t, err)
	assert.Equal(t, uint32(4), avg.Count)
	assert.Equal(t, 10.0, avg.X)
	assert.Equal(t, 20.0, avg.Y)
	assert.Equal(t, 30.0, avg.Z)

	roundTrip(t, rep, `{"command":"STOP_STREAM","params":{}}`)
	time.Sleep(20 * time.Millisecond)
	n := pub.count()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, pub.count())
}

func TestServerShutdownCommand(t *testing.T) {
	s, rep, pub := newStubServer(t)
	require.NoError(t, s.Start(context.Background()))

	resp := roundTrip(t, rep, `{"command":"SHUTDOWN","params":{}}`)
	assert.Equal(t, "ok", resp.Status)

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("server did not exit after SHUTDOWN")
	}
	require.NoError(t, s.Stop())

	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.True(t, pub.closed)
}

func TestServerShutdownLingersForReply(t *testing.T) {
	s, rep, _ := newStubServer(t)
	s.cfg.ShutdownLinger = 100 * time.Millisecond
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	resp := roundTrip(t, rep, `{"command":"SHUTDOWN","params":{}}`)
	assert.Equal(t, "ok", resp.Status)

	select {
	case <-rep.closed:
		t.Fatal("command socket closed before the reply could drain")
	case <-time.After(30 * time.Millisecond):
	}

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("server did not exit after the shutdown linger")
	}
	select {
	case <-rep.closed:
	case <-time.After(time.Second):
		t.Fatal("command socket not closed after shutdown")
	}
}

func TestServerStopCutsShutdownLinger(t *testing.T) {
	s, rep, _ := newStubServer(t)
	s.cfg.ShutdownLinger = time.Hour
	require.NoError(t, s.Start(context.Background()))

	roundTrip(t, rep, `{"command":"SHUTDOWN","params":{}}`)

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on the shutdown linger")
	}
}

func TestServerStopAndContextCancel(t *testing.T) {
	s, _, _ := newStubServer(t)
	require.NoError(t, s.Stop(), "stop before start is a no-op")

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	assert.Error(t, s.Start(ctx), "second start is rejected")

	cancel()
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("server did not exit on context cancel")
	}
	require.NoError(t, s.Stop())
}
