// Package devicesim is a stand-in for the sensing device: it answers the
// command catalog on a reply socket and publishes synthetic telemetry frames
// while streaming is enabled.
package devicesim

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/berrythewa/ifmctl/internal/types"
)

// Error codes carried in Response.Error
const (
	CodeNotConnected   = "NOT_CONNECTED"
	CodeUnknownCommand = "UNKNOWN_COMMAND"
	CodeBadRequest     = "BAD_REQUEST"
)

// Response is the JSON reply the simulated device sends
type Response struct {
	Status string      `json:"status"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

func ok(result interface{}) Response {
	return Response{Status: "ok", Result: result}
}

func fail(code string) Response {
	return Response{Status: "error", Error: code}
}

// DeviceState is the thread-safe state of the simulated device
type DeviceState struct {
	mu        sync.RWMutex
	sessionID string
	connected bool
	streaming bool
	config    map[string]interface{}
	triggers  uint64
	shutdown  chan struct{}
	closeOnce sync.Once
}

// NewDeviceState creates a disconnected, idle device
func NewDeviceState() *DeviceState {
	return &DeviceState{
		config: map[string]interface{}{
			"exposure":   float64(100),
			"frame_rate": float64(10),
		},
		shutdown: make(chan struct{}),
	}
}

// Handle applies one request and returns the reply
func (ds *DeviceState) Handle(req *types.Request) Response {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	switch req.Command {
	case types.CmdConnect:
		if !ds.connected {
			ds.connected = true
			ds.sessionID = uuid.New().String()
		}
		return ok(map[string]interface{}{"session": ds.sessionID})
	case types.CmdDisconnect:
		ds.connected = false
		ds.streaming = false
		ds.sessionID = ""
		return ok(nil)
	case types.CmdIsConnected:
		return ok(ds.connected)
	case types.CmdApplyConfig:
		if !ds.connected {
			return fail(CodeNotConnected)
		}
		for k, v := range req.Params {
			ds.config[k] = v
		}
		return ok(ds.configCopy())
	case types.CmdGetConfig:
		return ok(ds.configCopy())
	case types.CmdStartStream:
		if !ds.connected {
			return fail(CodeNotConnected)
		}
		ds.streaming = true
		return ok(nil)
	case types.CmdStopStream:
		ds.streaming = false
		return ok(nil)
	case types.CmdIsStreaming:
		return ok(ds.streaming)
	case types.CmdSWTrigger:
		if !ds.connected {
			return fail(CodeNotConnected)
		}
		ds.triggers++
		return ok(map[string]interface{}{
			"trigger":   ds.triggers,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	case types.CmdShutdown:
		ds.streaming = false
		ds.closeOnce.Do(func() { close(ds.shutdown) })
		return ok(nil)
	default:
		return fail(CodeUnknownCommand)
	}
}

func (ds *DeviceState) configCopy() map[string]interface{} {
	out := make(map[string]interface{}, len(ds.config))
	for k, v := range ds.config {
		out[k] = v
	}
	return out
}

// Streaming reports whether frames should be published
func (ds *DeviceState) Streaming() bool {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.streaming
}

// Connected reports whether a client has sent CONNECT
func (ds *DeviceState) Connected() bool {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.connected
}

// ShutdownRequested is closed once SHUTDOWN has been handled
func (ds *DeviceState) ShutdownRequested() <-chan struct{} {
	return ds.shutdown
}
