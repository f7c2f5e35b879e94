package recording

import (
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/open-beagle/framesink/internal/media"
)

// RecordKind tags each record of the stream
type RecordKind string

const (
	RecordHello  RecordKind = "hello"
	RecordCodec  RecordKind = "codec"
	RecordImage  RecordKind = "image"
	RecordSample RecordKind = "sample"
	RecordBye    RecordKind = "bye"
)

// TimelineName is the timeline every timestamped record is attached to
const TimelineName = "time"

// Record is one CBOR message of a recording stream
type Record struct {
	Kind        RecordKind `cbor:"1,keyasint"`
	RecordingID string     `cbor:"2,keyasint,omitempty"`
	SessionID   string     `cbor:"3,keyasint,omitempty"`
	EntityPath  string     `cbor:"4,keyasint,omitempty"`

	// Static records are not attached to any timeline
	Static   bool   `cbor:"5,keyasint,omitempty"`
	Timeline string `cbor:"6,keyasint,omitempty"`
	Time     int64  `cbor:"7,keyasint,omitempty"`

	Codec    string `cbor:"8,keyasint,omitempty"`
	Format   string `cbor:"9,keyasint,omitempty"`
	Width    uint32 `cbor:"10,keyasint,omitempty"`
	Height   uint32 `cbor:"11,keyasint,omitempty"`
	KeyFrame bool   `cbor:"12,keyasint,omitempty"`
	Data     []byte `cbor:"13,keyasint,omitempty"`
}

// String returns a short description without the payload
func (r Record) String() string {
	switch r.Kind {
	case RecordHello:
		return fmt.Sprintf("hello recording=%s session=%s", r.RecordingID, r.SessionID)
	case RecordCodec:
		return fmt.Sprintf("codec %s %s", r.EntityPath, r.Codec)
	case RecordImage:
		return fmt.Sprintf("image %s %s %dx%d %d bytes @%s=%d", r.EntityPath, r.Format, r.Width, r.Height, len(r.Data), r.Timeline, r.Time)
	case RecordSample:
		return fmt.Sprintf("sample %s %s key=%t %d bytes @%s=%d", r.EntityPath, r.Codec, r.KeyFrame, len(r.Data), r.Timeline, r.Time)
	default:
		return string(r.Kind)
	}
}

// encMode produces deterministic output so identical records encode identically
var encMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	mode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}

// EncodeRecord serializes one record
func EncodeRecord(r Record) ([]byte, error) {
	return encMode.Marshal(r)
}

// Decoder reads a CBOR record sequence
type Decoder struct {
	dec *cbor.Decoder
}

// NewDecoder creates a decoder over r
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: cbor.NewDecoder(r)}
}

// Next returns the next record, io.EOF at the end of the stream
func (d *Decoder) Next() (Record, error) {
	var r Record
	if err := d.dec.Decode(&r); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("failed to decode record: %w", err)
	}
	return r, nil
}

// DecodeRecord parses a single record, as carried by message transports
func DecodeRecord(data []byte) (Record, error) {
	var r Record
	if err := cbor.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("failed to decode record: %w", err)
	}
	return r, nil
}

// Image converts an image record back into a normalized image
func (r Record) Image() (media.NormalizedImage, error) {
	if r.Kind != RecordImage {
		return media.NormalizedImage{}, fmt.Errorf("record is %s, not image", r.Kind)
	}
	desc := media.FrameDescriptor{
		Format: media.ParsePixelFormat(r.Format),
		Width:  r.Width,
		Height: r.Height,
	}
	return media.NewNormalizedImage(desc, r.Data)
}
