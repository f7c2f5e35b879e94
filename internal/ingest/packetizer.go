package ingest

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/open-beagle/framesink/internal/config"
	"github.com/open-beagle/framesink/internal/media"
)

// Packetizer forwards encoded access units as opaque samples on the video entity path
type Packetizer struct {
	videoPath string
	observer  Observer
	logger    *logrus.Entry

	mutex         sync.Mutex
	loggedSession string
}

// NewPacketizer creates a packetizer for the given video entity path; observer may be nil
func NewPacketizer(videoPath string, observer Observer) *Packetizer {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Packetizer{
		videoPath: videoPath,
		observer:  observer,
		logger:    config.GetLoggerWithPrefix("packetizer"),
	}
}

// VideoPath returns the configured entity path, empty when encoded forwarding is disabled
func (p *Packetizer) VideoPath() string {
	return p.videoPath
}

// Process validates the encoded caps and writes one sample to the session.
// Caps are validated even when no video path is configured.
func (p *Packetizer) Process(sess SessionWriter, buf Buffer, structure Structure) error {
	codec := media.ParseCodec(structure.Name())
	if codec == media.CodecUnknown {
		return media.NewError(media.KindUnsupportedFormat, "packetizer", "process",
			fmt.Sprintf("unsupported encoded media type %q", structure.Name()), nil)
	}

	width, height, err := dimensions(structure, "process")
	if err != nil {
		return err
	}

	streamFormat, _ := structure.Str("stream-format")
	p.logStreamFormat(sess, codec, streamFormat, width, height)

	if p.videoPath == "" {
		p.observer.FrameDropped(RouteEncoded.String())
		return nil
	}

	// Nothing reaches the session before the bitstream is copied
	view, err := buf.Map()
	if err != nil {
		return media.NewError(media.KindMemoryAccess, "packetizer", "map",
			"failed to map encoded buffer", err)
	}
	data := make([]byte, len(view))
	copy(data, view)
	buf.Unmap()

	announced, err := sess.AnnounceCodec(p.videoPath, codec)
	if err != nil {
		return err
	}
	if announced {
		p.observer.CodecAnnounced(codec.String())
		p.logger.Debugf("Announced %s codec on %s", codec, p.videoPath)
	}

	ts := buf.DecodeTimestamp()
	if ts == media.TimestampNone {
		ts = buf.PresentationTimestamp()
	}

	forwarded, regressed := sess.AdvanceClock(p.videoPath, ts)
	if regressed {
		p.observer.ClockRegressed(p.videoPath)
		p.logger.WithFields(logrus.Fields{
			"entity_path": p.videoPath,
			"timestamp":   ts,
			"forwarded":   forwarded,
		}).Warn("Decode timestamp went backwards, clamping to last timestamp")
	}

	sample := media.EncodedSample{
		EntityPath: p.videoPath,
		Codec:      codec,
		Timestamp:  forwarded,
		KeyFrame:   isKeyFrame(codec, streamFormat, data, buf.DeltaUnit()),
		Data:       data,
	}
	if err := sess.WriteSample(p.videoPath, sample); err != nil {
		return err
	}

	p.observer.FrameForwarded(RouteEncoded.String(), sample.Size())
	return nil
}

// logStreamFormat logs the encoded stream parameters once per session
func (p *Packetizer) logStreamFormat(sess SessionWriter, codec media.Codec, streamFormat string, width, height uint32) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.loggedSession == sess.ID() {
		return
	}
	p.loggedSession = sess.ID()

	if streamFormat == "" {
		streamFormat = "unknown"
	}
	p.logger.Infof("%s stream detected: %dx%d, stream-format: %s", codec, width, height, streamFormat)
}
