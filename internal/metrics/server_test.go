package metrics

import (
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.CommandSent("CONNECT", 5*time.Millisecond)

	srv := NewServer("127.0.0.1:0", reg)
	require.NoError(t, srv.Start())
	defer srv.Stop()
	assert.Error(t, srv.Start(), "second start is rejected")

	resp, err := http.Get(srv.Address())
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `ifmctl_command_sent_total{command="CONNECT"} 1`)
}

func TestServerHealthAndStop(t *testing.T) {
	srv := NewServer("127.0.0.1:0", prometheus.NewRegistry())
	require.NoError(t, srv.Start())

	health := srv.Address()[:len(srv.Address())-len("/metrics")] + "/health"
	resp, err := http.Get(health)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, srv.Stop())
	require.NoError(t, srv.Stop(), "stop is idempotent")
}

func TestServerNilRegistry(t *testing.T) {
	assert.Error(t, NewServer("127.0.0.1:0", nil).Start())
}
