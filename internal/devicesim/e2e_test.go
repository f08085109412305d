package devicesim

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/berrythewa/ifmctl/internal/dispatch"
	"github.com/berrythewa/ifmctl/internal/ipc"
	"github.com/berrythewa/ifmctl/internal/telemetry"
	"github.com/berrythewa/ifmctl/internal/transport"
	"github.com/berrythewa/ifmctl/internal/types"
)

// End-to-end over real ZeroMQ sockets on unix-domain endpoints
func TestClientAgainstSimulator(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping socket test in short mode")
	}

	dir := t.TempDir()
	cmdEP := transport.MustParseEndpoint("ipc://" + filepath.Join(dir, "cmd.ipc"))
	dataEP := transport.MustParseEndpoint("ipc://" + filepath.Join(dir, "stream.ipc"))
	logger := zaptest.NewLogger(t)

	sim := NewServer(Config{
		CommandEndpoint: cmdEP,
		DataEndpoint:    dataEP,
		PublishInterval: 10 * time.Millisecond,
		SamplesPerFrame: 8,
		Generator:       ConstantGenerator(types.Sample{X: 10, Y: 20, Z: 30}),
		Logger:          logger.Named("sim"),
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sim.Start(ctx))
	defer sim.Stop()

	topts := transport.Options{DialTimeout: 2 * time.Second}
	ch, err := ipc.Dial(ctx, cmdEP, topts, ipc.WithReplyTimeout(2*time.Second), ipc.WithLogger(logger))
	require.NoError(t, err)
	defer ch.Close()

	var (
		mu   sync.Mutex
		avgs []types.FrameAverage
	)
	mgr := telemetry.NewManager(telemetry.ManagerConfig{
		Dialer:       telemetry.ZMQDialer(topts),
		PollInterval: 20 * time.Millisecond,
		Logger:       logger,
		Reporter: telemetry.ReporterFuncs{OnAverage: func(a types.FrameAverage) {
			mu.Lock()
			avgs = append(avgs, a)
			mu.Unlock()
		}},
	})
	d := dispatch.New(dispatch.Config{Sender: ch, Stream: mgr, DataEndpoint: dataEP, Logger: logger})
	defer d.Close()

	res, err := d.Handle(ctx, "connect")
	require.NoError(t, err)
	var reply Response
	require.NoError(t, json.Unmarshal(res.Reply, &reply))
	assert.Equal(t, "ok", reply.Status)

	res, err = d.Handle(ctx, `APPLY_CONFIG {"exposure": 42}`)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(res.Reply, &reply))
	assert.Equal(t, float64(42), reply.Result.(map[string]interface{})["exposure"])

	res, err = d.Handle(ctx, "START_STREAM")
	require.NoError(t, err)
	require.NotNil(t, res.StreamStarted)
	assert.Equal(t, telemetry.StateRunning, mgr.State())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(avgs) >= 3
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	got := avgs[len(avgs)-1]
	mu.Unlock()
	assert.Equal(t, types.FrameAverage{Count: 8, X: 10, Y: 20, Z: 30}, got)

	res, err = d.Handle(ctx, "STOP_STREAM")
	require.NoError(t, err)
	assert.True(t, res.StreamStopped)
	assert.Equal(t, telemetry.StateIdle, mgr.State())

	_, err = d.Handle(ctx, "SHUTDOWN")
	require.NoError(t, err)
	select {
	case <-sim.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("simulator did not exit after SHUTDOWN")
	}
}
