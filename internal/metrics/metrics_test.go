package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	m, err := NewMetrics(DefaultMetricsConfig())
	require.NoError(t, err)
	require.NotNil(t, m)

	// disabled metrics never start a server
	assert.NoError(t, m.Start())
	assert.False(t, m.IsRunning())
	assert.ErrorIs(t, m.Stop(), ErrServerNotRunning)
}

func TestMetricsConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  MetricsConfig
		wantErr error
	}{
		{
			name:   "valid config",
			config: MetricsConfig{Enabled: true, Port: 9090, Path: "/metrics", Host: "localhost"},
		},
		{
			name:    "invalid port - too low",
			config:  MetricsConfig{Enabled: true, Port: 0, Path: "/metrics", Host: "localhost"},
			wantErr: ErrInvalidPort,
		},
		{
			name:    "invalid port - too high",
			config:  MetricsConfig{Enabled: true, Port: 70000, Path: "/metrics", Host: "localhost"},
			wantErr: ErrInvalidPort,
		},
		{
			name:    "path collides with health",
			config:  MetricsConfig{Enabled: true, Port: 9090, Path: "/healthz"},
			wantErr: ErrInvalidPath,
		},
		{
			name:    "relative path",
			config:  MetricsConfig{Enabled: true, Port: 9090, Path: "metrics"},
			wantErr: ErrInvalidPath,
		},
		{
			name:   "disabled skips port check",
			config: MetricsConfig{Enabled: false, Port: -1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.NotEmpty(t, tt.config.Path)
			assert.NotEmpty(t, tt.config.Host)
		})
	}
}

func TestMetrics_DuplicateRegistration(t *testing.T) {
	m, err := NewMetrics(DefaultMetricsConfig())
	require.NoError(t, err)

	_, err = m.RegisterCounter("dup_total", "dup", []string{"a"})
	require.NoError(t, err)
	_, err = m.RegisterCounter("dup_total", "dup", []string{"a"})
	assert.ErrorIs(t, err, ErrMetricAlreadyRegistered)
}

func TestMetrics_NamesUniqueAcrossKinds(t *testing.T) {
	m, err := NewMetrics(DefaultMetricsConfig())
	require.NoError(t, err)

	gauge, err := m.RegisterGauge("shared_name", "gauge", nil)
	require.NoError(t, err)
	gauge.Set(3)

	_, err = m.RegisterCounter("shared_name", "counter", nil)
	assert.ErrorIs(t, err, ErrMetricAlreadyRegistered)
	_, err = m.RegisterHistogram("shared_name", "histogram", nil, nil)
	assert.ErrorIs(t, err, ErrMetricAlreadyRegistered)

	histogram, err := m.RegisterHistogram("latency_seconds", "latency", []string{"route"}, []float64{0.1, 1})
	require.NoError(t, err)
	histogram.Observe(0.5, "host")

	families, err := m.GetRegistry().Gather()
	require.NoError(t, err)
	assert.Len(t, families, 2)
	assert.False(t, m.IsRunning())
}

func TestMetrics_Handler(t *testing.T) {
	m, err := NewMetrics(DefaultMetricsConfig())
	require.NoError(t, err)

	im, err := NewIngestMetrics(m)
	require.NoError(t, err)
	im.FrameForwarded("host", 48)

	server := httptest.NewServer(m.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `framesink_frames_total{route="host"} 1`)

	resp, err = http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	m.SetHealthCheck(func() error { return errors.New("no active session") })
	resp, err = http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestIngestMetrics(t *testing.T) {
	m, err := NewMetrics(DefaultMetricsConfig())
	require.NoError(t, err)
	im, err := NewIngestMetrics(m)
	require.NoError(t, err)

	im.FrameForwarded("host", 100)
	im.FrameForwarded("host", 50)
	im.FrameForwarded("encoded", 10)
	im.FrameDropped("device")
	im.FrameFailed("host", "MemoryAccess")
	im.DeviceSynced(2 * time.Millisecond)
	im.CodecAnnounced("H264")
	im.ClockRegressed("video")
	im.SessionStarted("disk")

	assert.Equal(t, 2.0, testutil.ToFloat64(im.frames.(*counterImpl).counter.WithLabelValues("host")))
	assert.Equal(t, 150.0, testutil.ToFloat64(im.bytes.(*counterImpl).counter.WithLabelValues("host")))
	assert.Equal(t, 1.0, testutil.ToFloat64(im.sessionActive.(*gaugeImpl).gauge.WithLabelValues()))

	registry := m.GetRegistry()
	count, err := testutil.GatherAndCount(registry, "framesink_device_sync_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = testutil.GatherAndCount(registry, "framesink_frame_errors_total", "framesink_sessions_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	im.SessionStopped()
	assert.Equal(t, 0.0, testutil.ToFloat64(im.sessionActive.(*gaugeImpl).gauge.WithLabelValues()))
}
