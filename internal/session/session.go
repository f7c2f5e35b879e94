package session

import (
	"sync"

	"github.com/open-beagle/framesink/internal/ingest"
	"github.com/open-beagle/framesink/internal/media"
	"github.com/open-beagle/framesink/internal/recording"
)

var _ ingest.SessionWriter = (*Session)(nil)

// Session owns the sink of one Active period. It is created by Lifecycle.Start
// and destroyed by Lifecycle.Stop; nothing in it survives a restart.
type Session struct {
	id     string
	target recording.Target
	sink   recording.Sink

	mutex     sync.Mutex
	announced map[string]media.Codec
	clocks    map[string]int64
	closed    bool
}

func newSession(id string, target recording.Target, sink recording.Sink) *Session {
	return &Session{
		id:        id,
		target:    target,
		sink:      sink,
		announced: make(map[string]media.Codec),
		clocks:    make(map[string]int64),
	}
}

// ID returns the session identifier
func (s *Session) ID() string { return s.id }

// Target returns the output the session records to
func (s *Session) Target() recording.Target { return s.target }

// WriteImage forwards one normalized image to the sink
func (s *Session) WriteImage(entityPath string, img media.NormalizedImage) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return errInactive("write-image")
	}
	if err := s.sink.WriteImage(entityPath, img); err != nil {
		return errWrite("write-image", err)
	}
	return nil
}

// AnnounceCodec writes the codec descriptor the first time an entity path is seen
func (s *Session) AnnounceCodec(entityPath string, codec media.Codec) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return false, errInactive("announce-codec")
	}
	if _, ok := s.announced[entityPath]; ok {
		return false, nil
	}
	if err := s.sink.AnnounceCodec(entityPath, codec); err != nil {
		return false, errWrite("announce-codec", err)
	}
	s.announced[entityPath] = codec
	return true, nil
}

// AdvanceClock moves the clock of the entity path. A timestamp older than the
// current one is clamped, so the forwarded clock never decreases.
func (s *Session) AdvanceClock(entityPath string, ts int64) (int64, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	last, ok := s.clocks[entityPath]
	forwarded, regressed := ts, false
	switch {
	case ts == media.TimestampNone:
		forwarded = last
	case ok && ts < last:
		forwarded, regressed = last, true
	}

	s.clocks[entityPath] = forwarded
	if !s.closed {
		s.sink.AdvanceClock(entityPath, forwarded)
	}
	return forwarded, regressed
}

// WriteSample forwards one encoded sample to the sink
func (s *Session) WriteSample(entityPath string, sample media.EncodedSample) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return errInactive("write-sample")
	}
	if err := s.sink.WriteSample(entityPath, sample); err != nil {
		return errWrite("write-sample", err)
	}
	return nil
}

// close releases the sink; later writes report SessionInactive
func (s *Session) close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.sink.Close()
}

func errInactive(operation string) error {
	return media.NewError(media.KindSessionInactive, "session", operation, "session is stopped", nil)
}

func errWrite(operation string, err error) error {
	return media.NewError(media.KindSinkConnect, "session", operation, "sink write failed", err)
}
