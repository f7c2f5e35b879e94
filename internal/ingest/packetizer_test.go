package ingest

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/open-beagle/framesink/internal/media"
)

var (
	h264SPS    = []byte{0x00, 0x00, 0x00, 0x01, 0x67, 0x42, 0xc0, 0x1f}
	h264IDR    = []byte{0x00, 0x00, 0x00, 0x01, 0x65, 0x88, 0x84, 0x00}
	h264Slice  = []byte{0x00, 0x00, 0x00, 0x01, 0x41, 0x9a, 0x24, 0x00}
	h265VPS    = []byte{0x00, 0x00, 0x00, 0x01, 0x40, 0x01, 0x0c, 0x01}
	h265SPS    = []byte{0x00, 0x00, 0x00, 0x01, 0x42, 0x01, 0x01, 0x01}
	h265PPS    = []byte{0x00, 0x00, 0x00, 0x01, 0x44, 0x01, 0xc1, 0x72}
	h265IDR    = []byte{0x00, 0x00, 0x00, 0x01, 0x26, 0x01, 0xaf, 0x00}
	h265CRA    = []byte{0x00, 0x00, 0x01, 0x2a, 0x01, 0xaf, 0x00}
	h265Trail  = []byte{0x00, 0x00, 0x00, 0x01, 0x02, 0x01, 0xd0, 0x00}
	h265Suffix = []byte{0x00, 0x00, 0x01, 0x50, 0x01, 0x05, 0x00}
	lengthUnit = []byte{0x12, 0x34, 0x56, 0x78, 0x9a}

	// 4-byte length prefix of a 300 byte NAL, which looks like a start code
	hvc1Unit = append([]byte{0x00, 0x00, 0x01, 0x2c, 0x02, 0x01}, make([]byte, 298)...)
)

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestIsKeyFrame(t *testing.T) {
	tests := []struct {
		name   string
		codec  media.Codec
		format string
		data   []byte
		delta  bool
		want   bool
	}{
		{"h264 idr after sps", media.CodecH264, "byte-stream", concat(h264SPS, h264IDR, h264Slice), true, true},
		{"h264 slice only", media.CodecH264, "byte-stream", h264Slice, false, false},
		{"h265 idr", media.CodecH265, "byte-stream", concat(h265IDR, h265Trail), true, true},
		{"h265 idr followed by suffix sei", media.CodecH265, "byte-stream",
			concat(h265VPS, h265SPS, h265PPS, h265IDR, h265Suffix), true, true},
		{"h265 cra with 3-byte start code", media.CodecH265, "byte-stream", concat(h265Suffix, h265CRA), true, true},
		{"h265 trail", media.CodecH265, "byte-stream", h265Trail, false, false},
		{"h265 parameter sets only", media.CodecH265, "byte-stream", concat(h265VPS, h265SPS, h265PPS), false, false},
		{"hvc1 uses flags", media.CodecH265, "hvc1", hvc1Unit, true, false},
		{"hev1 key by flags", media.CodecH265, "hev1", hvc1Unit, false, true},
		{"avc uses flags", media.CodecH264, "avc", h264IDR, true, false},
		{"no format scans start codes", media.CodecH265, "", concat(h265IDR, h265Suffix), true, true},
		{"no format without start code uses flags", media.CodecH265, "", lengthUnit, false, true},
		{"no format delta", media.CodecH265, "", lengthUnit, true, false},
		{"byte-stream without nal uses flags", media.CodecH264, "byte-stream", lengthUnit, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isKeyFrame(tt.codec, tt.format, tt.data, tt.delta))
		})
	}
}

func TestPacketizer_Process(t *testing.T) {
	sess := newRecordingSession("s1")
	observer := newCountingObserver()
	packetizer := NewPacketizer("camera/video", observer)
	structure := encodedCaps("video/x-h264", 640, 480).structures[0]

	first := newFakeBuffer(concat(h264SPS, h264IDR))
	first.dts = 1000
	require.NoError(t, packetizer.Process(sess, first, structure))

	second := newFakeBuffer(h264Slice)
	second.pts = 2000
	second.delta = true
	require.NoError(t, packetizer.Process(sess, second, structure))

	require.Len(t, sess.samples, 2)
	assert.Equal(t, media.CodecH264, sess.announced["camera/video"])
	assert.Equal(t, []string{"H264"}, observer.codecs)

	assert.Equal(t, int64(1000), sess.samples[0].Timestamp)
	assert.True(t, sess.samples[0].KeyFrame)
	assert.Equal(t, concat(h264SPS, h264IDR), sess.samples[0].Data)

	// DTS unset, PTS is used
	assert.Equal(t, int64(2000), sess.samples[1].Timestamp)
	assert.False(t, sess.samples[1].KeyFrame)
	assert.Equal(t, 2, observer.forwarded["encoded"])
	assert.Equal(t, 2, first.unmapped+second.unmapped)
}

func TestPacketizer_ClockRegressionIsClamped(t *testing.T) {
	logger, hook := test.NewNullLogger()
	sess := newRecordingSession("s1")
	observer := newCountingObserver()
	packetizer := NewPacketizer("video", observer)
	packetizer.logger = logger.WithField("component", "packetizer")
	structure := encodedCaps("video/x-h265", 320, 240).structures[0]

	for _, dts := range []int64{100, 300, 200, 400} {
		buf := newFakeBuffer(h265Trail)
		buf.dts = dts
		require.NoError(t, packetizer.Process(sess, buf, structure))
	}

	var timestamps []int64
	for _, s := range sess.samples {
		timestamps = append(timestamps, s.Timestamp)
	}
	assert.Equal(t, []int64{100, 300, 300, 400}, timestamps)
	assert.Equal(t, []string{"video"}, observer.regressed)

	var warnings int
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			warnings++
		}
	}
	assert.Equal(t, 1, warnings)
}

func TestPacketizer_EmptyVideoPath(t *testing.T) {
	sess := &mockSession{}
	sess.On("ID").Return("s1")
	observer := newCountingObserver()
	packetizer := NewPacketizer("", observer)

	buf := newFakeBuffer(h264IDR)
	require.NoError(t, packetizer.Process(sess, buf, encodedCaps("video/x-h264", 640, 480).structures[0]))

	sess.AssertNotCalled(t, "AnnounceCodec", mock.Anything, mock.Anything)
	sess.AssertNotCalled(t, "WriteSample", mock.Anything, mock.Anything)
	assert.Equal(t, 0, buf.mapped)
	assert.Equal(t, 1, observer.dropped["encoded"])
}

func TestPacketizer_ValidatesBeforeDropping(t *testing.T) {
	sess := &mockSession{}
	packetizer := NewPacketizer("", nil)

	err := packetizer.Process(sess, newFakeBuffer(h264IDR), encodedCaps("video/x-h264", 0, 480).structures[0])
	assert.Equal(t, media.KindNegotiation, media.KindOf(err))
	sess.AssertExpectations(t)
}

func TestPacketizer_StreamFormatLoggedOncePerSession(t *testing.T) {
	logger, hook := test.NewNullLogger()
	packetizer := NewPacketizer("video", nil)
	packetizer.logger = logger.WithField("component", "packetizer")
	structure := encodedCaps("video/x-h264", 640, 480).structures[0]

	first := newRecordingSession("a")
	second := newRecordingSession("b")
	for _, sess := range []*recordingSession{first, first, second} {
		require.NoError(t, packetizer.Process(sess, newFakeBuffer(h264Slice), structure))
	}

	var infos []string
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.InfoLevel {
			infos = append(infos, entry.Message)
		}
	}
	require.Len(t, infos, 2)
	assert.Contains(t, infos[0], "stream-format: byte-stream")
}

func TestPacketizer_AnnounceOncePerSession(t *testing.T) {
	sess := &mockSession{}
	sess.On("ID").Return("s1")
	sess.On("AnnounceCodec", "video", media.CodecH264).Return(true, nil).Once()
	sess.On("AnnounceCodec", "video", media.CodecH264).Return(false, nil)
	sess.On("AdvanceClock", "video", int64(10)).Return(int64(10), false)
	sess.On("AdvanceClock", "video", int64(20)).Return(int64(20), false)
	sess.On("WriteSample", "video", mock.AnythingOfType("media.EncodedSample")).Return(nil)

	observer := newCountingObserver()
	packetizer := NewPacketizer("video", observer)
	structure := encodedCaps("video/x-h264", 640, 480).structures[0]

	for _, dts := range []int64{10, 20} {
		buf := newFakeBuffer(h264Slice)
		buf.dts = dts
		require.NoError(t, packetizer.Process(sess, buf, structure))
	}

	assert.Equal(t, []string{"H264"}, observer.codecs)
	sess.AssertNumberOfCalls(t, "WriteSample", 2)
}

func TestPacketizer_WriteFailure(t *testing.T) {
	sess := newRecordingSession("s1")
	sess.writeErr = media.NewError(media.KindSinkConnect, "sink", "write", "closed", nil)
	packetizer := NewPacketizer("video", nil)

	err := packetizer.Process(sess, newFakeBuffer(h264IDR), encodedCaps("video/x-h264", 640, 480).structures[0])
	assert.Equal(t, media.KindSinkConnect, media.KindOf(err))
}

func TestPacketizer_MapFailureLeavesSessionUntouched(t *testing.T) {
	sess := &mockSession{}
	sess.On("ID").Return("s1")
	packetizer := NewPacketizer("video", nil)

	buf := newFakeBuffer(h264IDR)
	buf.dts = 500
	buf.mapErr = errInjected

	err := packetizer.Process(sess, buf, encodedCaps("video/x-h264", 640, 480).structures[0])
	assert.Equal(t, media.KindMemoryAccess, media.KindOf(err))
	sess.AssertNotCalled(t, "AnnounceCodec", mock.Anything, mock.Anything)
	sess.AssertNotCalled(t, "AdvanceClock", mock.Anything, mock.Anything)
	sess.AssertNotCalled(t, "WriteSample", mock.Anything, mock.Anything)
}
