package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-beagle/framesink/internal/config"
	"github.com/open-beagle/framesink/internal/media"
	"github.com/open-beagle/framesink/internal/recording"
)

// fakeSink keeps a log of sink calls
type fakeSink struct {
	mutex    sync.Mutex
	calls    []string
	clocks   map[string]int64
	closed   int
	writeErr error
	closeErr error
}

func newFakeSink() *fakeSink {
	return &fakeSink{clocks: make(map[string]int64)}
}

func (s *fakeSink) WriteImage(entityPath string, _ media.NormalizedImage) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.calls = append(s.calls, "image:"+entityPath)
	return s.writeErr
}

func (s *fakeSink) AnnounceCodec(entityPath string, codec media.Codec) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.calls = append(s.calls, "codec:"+entityPath+":"+codec.String())
	return s.writeErr
}

func (s *fakeSink) AdvanceClock(entityPath string, ts int64) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.clocks[entityPath] = ts
}

func (s *fakeSink) WriteSample(entityPath string, _ media.EncodedSample) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.calls = append(s.calls, "sample:"+entityPath)
	return s.writeErr
}

func (s *fakeSink) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.closed++
	return s.closeErr
}

// fakeOpener hands out fake sinks and records every open
type fakeOpener struct {
	opened []recording.OpenOptions
	sinks  []*fakeSink
	err    error
}

func (o *fakeOpener) open(_ context.Context, opts recording.OpenOptions) (recording.Sink, error) {
	o.opened = append(o.opened, opts)
	if o.err != nil {
		return nil, o.err
	}
	sink := newFakeSink()
	o.sinks = append(o.sinks, sink)
	return sink, nil
}

func testImage(t *testing.T) media.NormalizedImage {
	img, err := media.NewNormalizedImage(
		media.FrameDescriptor{Format: media.PixelFormatGRAY8, Width: 2, Height: 2},
		[]byte{1, 2, 3, 4})
	require.NoError(t, err)
	return img
}

func TestSelectTarget(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.SinkConfig
		want    recording.OutputMode
		wantErr error
	}{
		{
			name: "disk",
			cfg:  config.SinkConfig{OutputFile: "/tmp/out.fsr", NetworkAddress: config.DefaultNetworkAddress},
			want: recording.OutputDisk,
		},
		{
			name: "network",
			cfg:  config.SinkConfig{NetworkAddress: "10.0.0.2:9876", SpawnViewer: true},
			want: recording.OutputNetwork,
		},
		{
			name:    "conflict",
			cfg:     config.SinkConfig{OutputFile: "/tmp/out.fsr", NetworkAddress: "10.0.0.2:9876"},
			wantErr: media.ErrConfigurationConflict,
		},
		{
			name: "viewer",
			cfg:  config.SinkConfig{SpawnViewer: true},
			want: recording.OutputSpawnViewer,
		},
		{
			name: "none",
			cfg:  config.SinkConfig{NetworkAddress: config.DefaultNetworkAddress},
			want: recording.OutputNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			target, err := SelectTarget(&cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, target.Mode)
		})
	}
}

func TestSelectTarget_DefaultViewerCommand(t *testing.T) {
	target, err := SelectTarget(&config.SinkConfig{SpawnViewer: true})
	require.NoError(t, err)
	assert.Equal(t, config.DefaultSinkConfig().ViewerCommand, target.Command)
}

func TestLifecycle_StartStop(t *testing.T) {
	opener := &fakeOpener{}
	lifecycle := NewLifecycle(&config.SinkConfig{RecordingID: "bench", OutputFile: "/tmp/a.fsr"}, opener.open)

	var transitions []string
	lifecycle.OnTransition(func(from, to State, target recording.Target) {
		transitions = append(transitions, from.String()+"->"+to.String()+":"+target.Mode.String())
	})

	assert.Equal(t, StateUninitialized, lifecycle.State())
	_, err := lifecycle.CurrentSession()
	assert.ErrorIs(t, err, media.ErrSessionInactive)

	require.NoError(t, lifecycle.Start(context.Background()))
	assert.Equal(t, StateActive, lifecycle.State())

	sess, err := lifecycle.Active()
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID())
	assert.Equal(t, recording.OutputDisk, sess.Target().Mode)
	require.Len(t, opener.opened, 1)
	assert.Equal(t, "bench", opener.opened[0].RecordingID)
	assert.Equal(t, sess.ID(), opener.opened[0].SessionID)

	require.NoError(t, lifecycle.Start(context.Background()), "start while active is a no-op")
	assert.Len(t, opener.opened, 1)

	require.NoError(t, lifecycle.Stop())
	require.NoError(t, lifecycle.Stop())
	assert.Equal(t, StateStopped, lifecycle.State())
	assert.Equal(t, 1, opener.sinks[0].closed)

	_, err = lifecycle.CurrentSession()
	assert.ErrorIs(t, err, media.ErrSessionInactive)

	assert.Equal(t, []string{
		"uninitialized->active:disk",
		"active->stopped:disk",
	}, transitions)
}

func TestLifecycle_RestartCreatesFreshSession(t *testing.T) {
	opener := &fakeOpener{}
	lifecycle := NewLifecycle(&config.SinkConfig{OutputFile: "/tmp/a.fsr"}, opener.open)

	require.NoError(t, lifecycle.Start(context.Background()))
	first, err := lifecycle.Active()
	require.NoError(t, err)
	announced, err := first.AnnounceCodec("video", media.CodecH264)
	require.NoError(t, err)
	assert.True(t, announced)
	first.AdvanceClock("video", 500)
	require.NoError(t, lifecycle.Stop())

	require.NoError(t, lifecycle.Start(context.Background()))
	second, err := lifecycle.Active()
	require.NoError(t, err)

	assert.NotEqual(t, first.ID(), second.ID())
	announced, err = second.AnnounceCodec("video", media.CodecH264)
	require.NoError(t, err)
	assert.True(t, announced, "codec is announced again in a new session")

	forwarded, regressed := second.AdvanceClock("video", 100)
	assert.Equal(t, int64(100), forwarded)
	assert.False(t, regressed, "clocks do not carry over between sessions")

	assert.Equal(t, 1, opener.sinks[0].closed)
	assert.Equal(t, 0, opener.sinks[1].closed)
}

func TestLifecycle_ConflictOpensNothing(t *testing.T) {
	opener := &fakeOpener{}
	lifecycle := NewLifecycle(&config.SinkConfig{
		OutputFile:     "/tmp/a.fsr",
		NetworkAddress: "192.168.1.20:9000",
	}, opener.open)

	err := lifecycle.Start(context.Background())
	assert.ErrorIs(t, err, media.ErrConfigurationConflict)
	assert.Empty(t, opener.opened)
	assert.Equal(t, StateUninitialized, lifecycle.State())
}

func TestLifecycle_OpenFailureKeepsState(t *testing.T) {
	opener := &fakeOpener{err: errors.New("connection refused")}
	lifecycle := NewLifecycle(&config.SinkConfig{NetworkAddress: "10.0.0.2:9000"}, opener.open)

	err := lifecycle.Start(context.Background())
	assert.ErrorIs(t, err, media.ErrSinkConnect)
	assert.Equal(t, StateUninitialized, lifecycle.State())
	_, err = lifecycle.Active()
	assert.ErrorIs(t, err, media.ErrSessionInactive)

	opener.err = nil
	require.NoError(t, lifecycle.Start(context.Background()))
	require.NoError(t, lifecycle.Stop())

	opener.err = media.NewError(media.KindSinkConnect, "recording", "open", "refused", nil)
	err = lifecycle.Start(context.Background())
	assert.ErrorIs(t, err, media.ErrSinkConnect)
	assert.Equal(t, StateStopped, lifecycle.State())
}

func TestLifecycle_NoOutputWarns(t *testing.T) {
	logger, hook := test.NewNullLogger()
	opener := &fakeOpener{}
	lifecycle := NewLifecycle(&config.SinkConfig{}, opener.open)
	lifecycle.logger = logger.WithField("component", "lifecycle")

	require.NoError(t, lifecycle.Start(context.Background()))
	require.Len(t, opener.opened, 1)
	assert.Equal(t, recording.OutputNone, opener.opened[0].Target.Mode)
	assert.Equal(t, config.DefaultRecordingID, opener.opened[0].RecordingID)

	var warnings int
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			warnings++
		}
	}
	assert.Equal(t, 1, warnings)
}

func TestLifecycle_StopReportsCloseError(t *testing.T) {
	opener := &fakeOpener{}
	lifecycle := NewLifecycle(&config.SinkConfig{OutputFile: "/tmp/a.fsr"}, opener.open)
	require.NoError(t, lifecycle.Start(context.Background()))
	opener.sinks[0].closeErr = errors.New("disk full")

	assert.Error(t, lifecycle.Stop())
	assert.Equal(t, StateStopped, lifecycle.State())
}

func TestLifecycle_SetConfigAppliesOnRestart(t *testing.T) {
	opener := &fakeOpener{}
	lifecycle := NewLifecycle(&config.SinkConfig{OutputFile: "/tmp/a.fsr"}, opener.open)
	require.NoError(t, lifecycle.Start(context.Background()))

	lifecycle.SetConfig(&config.SinkConfig{OutputFile: "/tmp/b.fsr"})
	sess, err := lifecycle.Active()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/a.fsr", sess.Target().Path)

	require.NoError(t, lifecycle.Stop())
	require.NoError(t, lifecycle.Start(context.Background()))
	sess, err = lifecycle.Active()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/b.fsr", sess.Target().Path)
}

func TestSession_Forwarding(t *testing.T) {
	sink := newFakeSink()
	sess := newSession("s1", recording.Target{Mode: recording.OutputNone}, sink)

	require.NoError(t, sess.WriteImage("image", testImage(t)))
	announced, err := sess.AnnounceCodec("video", media.CodecH265)
	require.NoError(t, err)
	assert.True(t, announced)
	announced, err = sess.AnnounceCodec("video", media.CodecH265)
	require.NoError(t, err)
	assert.False(t, announced)
	require.NoError(t, sess.WriteSample("video", media.EncodedSample{EntityPath: "video"}))

	assert.Equal(t, []string{"image:image", "codec:video:H265", "sample:video"}, sink.calls)
}

func TestSession_AdvanceClock(t *testing.T) {
	sink := newFakeSink()
	sess := newSession("s1", recording.Target{}, sink)

	var forwarded []int64
	var regressions int
	for _, ts := range []int64{100, 300, 200, media.TimestampNone, 400} {
		f, regressed := sess.AdvanceClock("video", ts)
		forwarded = append(forwarded, f)
		if regressed {
			regressions++
		}
	}

	assert.Equal(t, []int64{100, 300, 300, 300, 400}, forwarded)
	assert.Equal(t, 1, regressions)
	assert.Equal(t, int64(400), sink.clocks["video"])

	f, regressed := sess.AdvanceClock("other", 50)
	assert.Equal(t, int64(50), f)
	assert.False(t, regressed, "clocks are tracked per entity path")
}

func TestSession_Errors(t *testing.T) {
	sink := newFakeSink()
	sink.writeErr = errors.New("broken pipe")
	sess := newSession("s1", recording.Target{}, sink)

	err := sess.WriteImage("image", testImage(t))
	assert.ErrorIs(t, err, media.ErrSinkConnect)

	announced, err := sess.AnnounceCodec("video", media.CodecH264)
	assert.ErrorIs(t, err, media.ErrSinkConnect)
	assert.False(t, announced)

	sink.writeErr = nil
	announced, err = sess.AnnounceCodec("video", media.CodecH264)
	require.NoError(t, err)
	assert.True(t, announced, "a failed announcement is retried on the next sample")

	require.NoError(t, sess.close())
	require.NoError(t, sess.close())
	assert.Equal(t, 1, sink.closed)

	assert.ErrorIs(t, sess.WriteImage("image", testImage(t)), media.ErrSessionInactive)
	assert.ErrorIs(t, sess.WriteSample("video", media.EncodedSample{}), media.ErrSessionInactive)
}
