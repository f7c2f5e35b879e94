package recording

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/open-beagle/framesink/internal/config"
	"github.com/open-beagle/framesink/internal/media"
)

// ErrSinkClosed is returned by writes after Close
var ErrSinkClosed = errors.New("recording: sink is closed")

// Sink accepts normalized records for one session
type Sink interface {
	WriteImage(entityPath string, img media.NormalizedImage) error
	AnnounceCodec(entityPath string, codec media.Codec) error
	// AdvanceClock sets the logical time attached to later records of the entity path
	AdvanceClock(entityPath string, ts int64)
	WriteSample(entityPath string, sample media.EncodedSample) error
	Close() error
}

// Transport carries encoded records to their destination
type Transport interface {
	Name() string
	WriteRecord(data []byte) error
	Close() error
}

// Stream is a Sink that encodes records with CBOR onto a Transport
type Stream struct {
	transport   Transport
	recordingID string
	sessionID   string
	logger      *logrus.Entry

	mutex   sync.Mutex
	clocks  map[string]int64
	records uint64
	closed  bool
}

// NewStream writes the hello record and returns the stream
func NewStream(transport Transport, recordingID, sessionID string) (*Stream, error) {
	s := &Stream{
		transport:   transport,
		recordingID: recordingID,
		sessionID:   sessionID,
		logger:      config.GetLoggerWithPrefix("recording-stream"),
		clocks:      make(map[string]int64),
	}

	hello := Record{
		Kind:        RecordHello,
		RecordingID: recordingID,
		SessionID:   sessionID,
		Static:      true,
	}
	if err := s.write(hello); err != nil {
		return nil, err
	}

	return s, nil
}

// WriteImage implements Sink
func (s *Stream) WriteImage(entityPath string, img media.NormalizedImage) error {
	if err := img.Validate(); err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	r := s.timed(entityPath, Record{
		Kind:       RecordImage,
		EntityPath: entityPath,
		Format:     img.Descriptor.Format.CapsName(),
		Width:      img.Descriptor.Width,
		Height:     img.Descriptor.Height,
		Data:       img.Data,
	})
	return s.write(r)
}

// AnnounceCodec implements Sink, the descriptor is a static record
func (s *Stream) AnnounceCodec(entityPath string, codec media.Codec) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.write(Record{
		Kind:       RecordCodec,
		EntityPath: entityPath,
		Static:     true,
		Codec:      codec.String(),
	})
}

// AdvanceClock implements Sink
func (s *Stream) AdvanceClock(entityPath string, ts int64) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.clocks[entityPath] = ts
}

// WriteSample implements Sink
func (s *Stream) WriteSample(entityPath string, sample media.EncodedSample) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	r := s.timed(entityPath, Record{
		Kind:       RecordSample,
		EntityPath: entityPath,
		Codec:      sample.Codec.String(),
		KeyFrame:   sample.KeyFrame,
		Data:       sample.Data,
	})
	return s.write(r)
}

// Close writes the closing record and closes the transport; safe to call twice
func (s *Stream) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return nil
	}

	byeErr := s.write(Record{Kind: RecordBye, SessionID: s.sessionID, Static: true})
	s.closed = true

	if err := s.transport.Close(); err != nil {
		return fmt.Errorf("failed to close %s transport: %w", s.transport.Name(), err)
	}
	if byeErr != nil {
		s.logger.Warnf("Failed to write closing record: %v", byeErr)
	}

	s.logger.Debugf("Closed session %s after %d records", s.sessionID, s.records)
	return nil
}

// timed attaches the current time of the entity path, if any
func (s *Stream) timed(entityPath string, r Record) Record {
	if ts, ok := s.clocks[entityPath]; ok {
		r.Timeline = TimelineName
		r.Time = ts
	}
	return r
}

func (s *Stream) write(r Record) error {
	if s.closed {
		return ErrSinkClosed
	}

	data, err := EncodeRecord(r)
	if err != nil {
		return fmt.Errorf("failed to encode %s record: %w", r.Kind, err)
	}

	if err := s.transport.WriteRecord(data); err != nil {
		return fmt.Errorf("failed to write %s record to %s: %w", r.Kind, s.transport.Name(), err)
	}

	s.records++
	return nil
}
