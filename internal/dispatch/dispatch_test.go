package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berrythewa/ifmctl/internal/errors"
	"github.com/berrythewa/ifmctl/internal/ipc"
	"github.com/berrythewa/ifmctl/internal/metrics"
	"github.com/berrythewa/ifmctl/internal/telemetry"
	"github.com/berrythewa/ifmctl/internal/transport"
	"github.com/berrythewa/ifmctl/internal/types"
)

type stubSender struct {
	mu    sync.Mutex
	sent  []*types.Request
	reply types.Reply
	err   error
}

func (s *stubSender) Send(_ context.Context, req *types.Request) (types.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, req)
	if s.err != nil {
		return nil, s.err
	}
	if s.reply != nil {
		return s.reply, nil
	}
	return types.Reply(`{"status":"ok"}`), nil
}

type stubStream struct {
	state    telemetry.State
	starts   []transport.Endpoint
	stops    int
	startErr error
}

func (s *stubStream) Start(_ context.Context, ep transport.Endpoint) (*telemetry.Session, error) {
	s.starts = append(s.starts, ep)
	if s.startErr != nil {
		return nil, s.startErr
	}
	s.state = telemetry.StateRunning
	return &telemetry.Session{ID: fmt.Sprintf("session-%d", len(s.starts)), Endpoint: ep}, nil
}

func (s *stubStream) Stop() error {
	if s.state == telemetry.StateIdle {
		return nil
	}
	s.stops++
	s.state = telemetry.StateIdle
	return nil
}

func (s *stubStream) State() telemetry.State { return s.state }

var dataEP = transport.MustParseEndpoint("tcp://localhost:5556")

func newDispatcher(t *testing.T) (*Dispatcher, *stubSender, *stubStream) {
	t.Helper()
	sender := &stubSender{}
	stream := &stubStream{}
	return New(Config{Sender: sender, Stream: stream, DataEndpoint: dataEP}), sender, stream
}

func TestHandleShellWords(t *testing.T) {
	d, sender, _ := newDispatcher(t)
	ctx := context.Background()

	tests := []struct {
		line string
		want Action
	}{
		{"", ActionNone},
		{"   \t ", ActionNone},
		{"help", ActionHelp},
		{"HELP", ActionHelp},
		{"exit", ActionExit},
		{"Quit", ActionExit},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.line), func(t *testing.T) {
			res, err := d.Handle(ctx, tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Action)
		})
	}
	assert.Empty(t, sender.sent)
}

func TestHandleSendsNormalizedCommand(t *testing.T) {
	d, sender, _ := newDispatcher(t)

	res, err := d.Handle(context.Background(), `apply_config {"exposure": 100}`)
	require.NoError(t, err)
	assert.Equal(t, ActionReply, res.Action)
	assert.Equal(t, types.CmdApplyConfig, res.Command)
	assert.Equal(t, `{"status":"ok"}`, res.Reply.String())

	require.Len(t, sender.sent, 1)
	assert.Equal(t, types.CmdApplyConfig, sender.sent[0].Command)
	assert.Equal(t, json.Number("100"), sender.sent[0].Params["exposure"])
}

func TestHandleKeepsLargeIntegerParams(t *testing.T) {
	d, sender, _ := newDispatcher(t)

	_, err := d.Handle(context.Background(), `APPLY_CONFIG {"serial": 9007199254740993, "exposure": 12345678901234567}`)
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)

	frame, err := ipc.EncodeRequest(sender.sent[0])
	require.NoError(t, err)
	assert.Equal(t, `{"command":"APPLY_CONFIG","params":{"exposure":12345678901234567,"serial":9007199254740993}}`, string(frame))
}

func TestHandleRejectsTrailingParams(t *testing.T) {
	d, sender, _ := newDispatcher(t)

	_, err := d.Handle(context.Background(), `APPLY_CONFIG {"a": 1} {"b": 2}`)
	assert.Error(t, err)
	assert.Empty(t, sender.sent)
}

func TestHandleDefaultsToEmptyParams(t *testing.T) {
	d, sender, _ := newDispatcher(t)

	_, err := d.Handle(context.Background(), "CONNECT")
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.NotNil(t, sender.sent[0].Params)
	assert.Empty(t, sender.sent[0].Params)
}

func TestHandleRejectsLocally(t *testing.T) {
	reg := prometheus.NewRegistry()
	sender := &stubSender{}
	d := New(Config{Sender: sender, Stream: &stubStream{}, DataEndpoint: dataEP, Metrics: metrics.New(reg)})
	ctx := context.Background()

	_, err := d.Handle(ctx, "FLY_AWAY")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnknownCommand))
	assert.True(t, errors.IsLocal(err))
	assert.Contains(t, err.Error(), "FLY_AWAY")

	_, err = d.Handle(ctx, `APPLY_CONFIG {not json`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidParams))
	assert.True(t, errors.IsLocal(err))
	assert.Contains(t, err.Error(), "{not json")

	_, err = d.Handle(ctx, `APPLY_CONFIG [1,2]`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidParams))

	assert.Empty(t, sender.sent, "rejected input must not reach the channel")

	m, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, m)
}

func TestHandleRejectMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	d := New(Config{Sender: &stubSender{}, Stream: &stubStream{}, DataEndpoint: dataEP, Metrics: m})

	_, _ = d.Handle(context.Background(), "NOPE")
	_, _ = d.Handle(context.Background(), "GET_CONFIG 42")

	count, err := testutil.GatherAndCount(reg, "ifmctl_command_rejected_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per reason")
}

func TestStartStreamAfterReply(t *testing.T) {
	d, _, stream := newDispatcher(t)
	ctx := context.Background()

	res, err := d.Handle(ctx, "START_STREAM")
	require.NoError(t, err)
	require.NotNil(t, res.StreamStarted)
	assert.Equal(t, dataEP, res.StreamStarted.Endpoint)
	assert.Equal(t, []transport.Endpoint{dataEP}, stream.starts)
	assert.Equal(t, dataEP, d.DataEndpoint())

	// a second START_STREAM is still sent but does not start another consumer
	res, err = d.Handle(ctx, "start_stream")
	require.NoError(t, err)
	assert.Equal(t, ActionReply, res.Action)
	assert.Nil(t, res.StreamStarted)
	assert.Len(t, stream.starts, 1)
}

func TestStopStreamAfterReply(t *testing.T) {
	d, sender, stream := newDispatcher(t)
	ctx := context.Background()

	// nothing running: the command is still exchanged
	res, err := d.Handle(ctx, "STOP_STREAM")
	require.NoError(t, err)
	assert.False(t, res.StreamStopped)
	assert.Equal(t, 0, stream.stops)

	_, err = d.Handle(ctx, "START_STREAM")
	require.NoError(t, err)
	res, err = d.Handle(ctx, "STOP_STREAM")
	require.NoError(t, err)
	assert.True(t, res.StreamStopped)
	assert.Equal(t, 1, stream.stops)
	assert.Len(t, sender.sent, 3)
}

func TestSendFailureLeavesStreamAlone(t *testing.T) {
	d, sender, stream := newDispatcher(t)
	sender.err = errors.WrapRemote(errors.ErrReplyTimeout, "ipc", "Send")

	_, err := d.Handle(context.Background(), "START_STREAM")
	require.Error(t, err)
	assert.True(t, errors.IsRemote(err))
	assert.Empty(t, stream.starts)
}

func TestStartFailureIsReported(t *testing.T) {
	d, _, stream := newDispatcher(t)
	stream.startErr = errors.WrapRemote(errors.ErrConnectFailed, "transport", "DialSubscriber")

	res, err := d.Handle(context.Background(), "START_STREAM")
	require.NoError(t, err, "the exchange itself succeeded")
	assert.Nil(t, res.StreamStarted)
	assert.True(t, errors.Is(res.StreamErr, errors.ErrConnectFailed))
}

func TestReplyPassedThrough(t *testing.T) {
	d, sender, _ := newDispatcher(t)
	sender.reply = types.Reply("not json at all")

	res, err := d.Handle(context.Background(), "IS_STREAMING")
	require.NoError(t, err)
	assert.Equal(t, "not json at all", res.Reply.String())
}

func TestCloseStopsStream(t *testing.T) {
	d, _, stream := newDispatcher(t)
	_, err := d.Handle(context.Background(), "START_STREAM")
	require.NoError(t, err)

	require.NoError(t, d.Close())
	assert.Equal(t, telemetry.StateIdle, stream.State())
	assert.Equal(t, 1, stream.stops)
}

func TestSplitLine(t *testing.T) {
	word, rest := splitLine(`APPLY_CONFIG   {"a": 1}`)
	assert.Equal(t, "APPLY_CONFIG", word)
	assert.Equal(t, `{"a": 1}`, rest)

	word, rest = splitLine("CONNECT")
	assert.Equal(t, "CONNECT", word)
	assert.Empty(t, rest)
}
