package statsd

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newUDPSink binds a local UDP socket and returns its address plus a reader
// for the next received line.
func newUDPSink(t *testing.T) (string, func() string) {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	read := func() string {
		buf := make([]byte, 1024)
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		n, _, err := conn.ReadFrom(buf)
		require.NoError(t, err)
		return string(buf[:n])
	}
	return conn.LocalAddr().String(), read
}

func TestClient_Count(t *testing.T) {
	t.Parallel()

	addr, read := newUDPSink(t)
	client, err := NewClient(Config{Enabled: true, Address: addr, Prefix: "export_api"})
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	client.Count("export.transition", 1, map[string]string{"result": "success", "transition": "admitted"})
	assert.Equal(t, "export_api.export.transition:1|c|#result:success,transition:admitted", read())
}

func TestClient_Gauge(t *testing.T) {
	t.Parallel()

	addr, read := newUDPSink(t)
	client, err := NewClient(Config{Enabled: true, Address: addr, Prefix: "export_api"})
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	client.Gauge("jobs.active", 3.5, nil)
	assert.Equal(t, "export_api.jobs.active:3.5|g", read())
}

func TestClient_Timing(t *testing.T) {
	t.Parallel()

	addr, read := newUDPSink(t)
	client, err := NewClient(Config{Enabled: true, Address: addr, Prefix: "export_api"})
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	client.Timing("export.duration", 1500*time.Millisecond, nil)
	assert.Equal(t, "export_api.export.duration:1500|ms", read())
}

func TestClient_GlobalTagsMergeWithLocal(t *testing.T) {
	t.Parallel()

	addr, read := newUDPSink(t)
	client, err := NewClient(Config{
		Enabled:    true,
		Address:    addr,
		Prefix:     "export_api",
		GlobalTags: map[string]string{"env": "test"},
	})
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	client.Count("fetch.resource", 1, map[string]string{"outcome": "error"})
	assert.Equal(t, "export_api.fetch.resource:1|c|#env:test,outcome:error", read())
}

func TestClient_NilAndDisabledAreSafe(t *testing.T) {
	t.Parallel()

	var nilClient *Client
	assert.NotPanics(t, func() {
		nilClient.Count("x", 1, nil)
		nilClient.Gauge("x", 1, nil)
		nilClient.Timing("x", time.Second, nil)
	})
	assert.False(t, nilClient.Enabled())
	assert.NoError(t, nilClient.Close())

	disabled, err := NewClient(Config{Enabled: false, Address: "127.0.0.1:8125"})
	require.NoError(t, err)
	assert.False(t, disabled.Enabled())
	assert.NotPanics(t, func() { disabled.Count("x", 1, nil) })
}

func TestClient_EmitAfterCloseIsDropped(t *testing.T) {
	t.Parallel()

	addr, _ := newUDPSink(t)
	client, err := NewClient(Config{Enabled: true, Address: addr})
	require.NoError(t, err)

	require.NoError(t, client.Close())
	assert.NotPanics(t, func() { client.Count("x", 1, nil) })
	assert.False(t, client.Enabled())
}

func TestFormatTags_SortedAndTrimmed(t *testing.T) {
	t.Parallel()

	got := formatTags(
		map[string]string{" b ": " 2 "},
		map[string]string{"a": "1", "c": "3"},
	)
	assert.Equal(t, "|#a:1,b:2,c:3", got)

	assert.Empty(t, formatTags(nil, nil))
}
