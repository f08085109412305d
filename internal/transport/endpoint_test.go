package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berrythewa/ifmctl/internal/errors"
)

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		in   string
		want Endpoint
		str  string
	}{
		{"tcp://localhost:5555", Endpoint{Kind: KindTCP, Host: "localhost", Port: 5555}, "tcp://localhost:5555"},
		{"tcp://*:5556", Endpoint{Kind: KindTCP, Host: "*", Port: 5556}, "tcp://*:5556"},
		{"tcp://[::1]:5555", Endpoint{Kind: KindTCP, Host: "::1", Port: 5555}, "tcp://[::1]:5555"},
		{"ipc:///tmp/ifm-cmd.ipc", Endpoint{Kind: KindIPC, Path: "/tmp/ifm-cmd.ipc"}, "ipc:///tmp/ifm-cmd.ipc"},
		{"ipc://ifm.ipc", Endpoint{Kind: KindIPC, Path: "ifm.ipc"}, "ipc://ifm.ipc"},
		{"/ip4/127.0.0.1/tcp/5555", Endpoint{Kind: KindTCP, Host: "127.0.0.1", Port: 5555}, "tcp://127.0.0.1:5555"},
		{"/dns4/localhost/tcp/5556", Endpoint{Kind: KindTCP, Host: "localhost", Port: 5556}, "tcp://localhost:5556"},
		{"/unix/tmp/ifm-stream.ipc", Endpoint{Kind: KindIPC, Path: "/tmp/ifm-stream.ipc"}, "ipc:///tmp/ifm-stream.ipc"},
		{"  tcp://localhost:5555  ", Endpoint{Kind: KindTCP, Host: "localhost", Port: 5555}, "tcp://localhost:5555"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			ep, err := ParseEndpoint(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ep)
			assert.Equal(t, tt.str, ep.String())
		})
	}
}

func TestParseEndpointInvalid(t *testing.T) {
	for _, in := range []string{
		"",
		"localhost:5555",
		"udp://localhost:5555",
		"tcp://localhost",
		"tcp://:5555",
		"tcp://localhost:notaport",
		"tcp://localhost:70000",
		"ipc://",
		"/ip4/127.0.0.1/udp/5555",
		"/not-a-protocol/x",
	} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseEndpoint(in)
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrInvalidEndpoint)
			assert.True(t, errors.IsLocal(err))
		})
	}
}

func TestEndpointZero(t *testing.T) {
	assert.True(t, Endpoint{}.IsZero())
	assert.Equal(t, "", Endpoint{}.String())
	assert.False(t, MustParseEndpoint("tcp://localhost:1").IsZero())
	assert.Panics(t, func() { MustParseEndpoint("bogus") })
}
