package statsd

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeMetricName(t *testing.T) {
	tests := map[string]string{
		" job/transition ": "job_transition",
		"step..duration":   "step.duration",
		"plan:cash|vat":    "plan_cash_vat",
		".reaper.cleanup.": "reaper.cleanup",
		"":                 "",
	}
	for input, want := range tests {
		assert.Equal(t, want, normalizeMetricName(input), input)
	}
	assert.Equal(t, "runboard", sanitizePrefix(" .runboard. "))
}

func TestFormatTags(t *testing.T) {
	global := map[string]string{"env": "prod", " service ": " runner "}
	local := map[string]string{
		"result": " success ",
		"":       "ignored",
		"env":    "stage",
		"plan":   "cash,position",
	}
	assert.Equal(t, "|#env:stage,plan:cash_position,result:success,service:runner", formatTags(global, local))
	assert.Empty(t, formatTags(nil, nil))
}

func TestCloneTagsReturnsCopy(t *testing.T) {
	original := map[string]string{"env": "prod", "": "ignored"}
	cloned := cloneTags(original)
	cloned["env"] = "stage"
	assert.Equal(t, "prod", original["env"])
	assert.NotContains(t, cloned, "")
}

func TestClientSendsLines(t *testing.T) {
	listener, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	client, err := NewClient(Config{
		Enabled:    true,
		Address:    listener.LocalAddr().String(),
		Prefix:     "runboard",
		GlobalTags: map[string]string{"env": "test"},
	})
	require.NoError(t, err)
	require.True(t, client.Enabled())

	read := func() string {
		t.Helper()
		buf := make([]byte, 512)
		require.NoError(t, listener.SetReadDeadline(time.Now().Add(2*time.Second)))
		n, _, readErr := listener.ReadFrom(buf)
		require.NoError(t, readErr)
		return string(buf[:n])
	}

	client.Count("job.transition", 1, map[string]string{"transition": "done"})
	assert.Equal(t, "runboard.job.transition:1|c|#env:test,transition:done", read())

	client.Timing("step.duration", 1500*time.Millisecond, nil)
	assert.Equal(t, "runboard.step.duration:1500|ms|#env:test", read())

	client.Gauge("reaper.last_success_epoch", 42.5, nil)
	assert.Equal(t, "runboard.reaper.last_success_epoch:42.5|g|#env:test", read())

	require.NoError(t, client.Close())
	assert.False(t, client.Enabled())
	require.NoError(t, client.Close())
}

func TestNilAndDisabledClientsDropMetrics(t *testing.T) {
	var nilClient *Client
	assert.False(t, nilClient.Enabled())
	assert.NotPanics(t, func() { nilClient.Count("job.transition", 1, nil) })
	assert.NoError(t, nilClient.Close())

	client, err := NewClient(Config{Enabled: true, Address: "   "})
	require.NoError(t, err)
	assert.False(t, client.Enabled())
	assert.NotPanics(t, func() { client.Timing("step.duration", time.Second, nil) })
}
