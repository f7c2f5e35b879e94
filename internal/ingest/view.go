package ingest

import (
	"github.com/open-beagle/framesink/internal/media"
)

// Buffer is a read-only view of one inbound media buffer.
// Map and Unmap bracket every access to the buffer bytes; the slice returned by Map
// is only valid until Unmap.
type Buffer interface {
	Map() ([]byte, error)
	Unmap()

	// AllocatorName names the allocator of the first memory block, empty if unknown
	AllocatorName() string

	// DecodeTimestamp and PresentationTimestamp are nanoseconds or media.TimestampNone
	DecodeTimestamp() int64
	PresentationTimestamp() int64

	// DeltaUnit reports whether the buffer cannot be decoded on its own
	DeltaUnit() bool
}

// LayoutBuffer is a Buffer that carries its own plane offsets and strides,
// as a GStreamer video meta does
type LayoutBuffer interface {
	Buffer
	PlaneStrides() ([]media.PlaneStride, bool)
}

// Caps is the negotiated capability set of the sink pad
type Caps interface {
	Size() int
	Structure(i int) Structure
	String() string
}

// Structure is one media descriptor of a capability set
type Structure interface {
	Name() string
	Int(field string) (int, bool)
	Str(field string) (string, bool)
}

// SessionWriter forwards normalized records to the sink of the active session
type SessionWriter interface {
	// ID identifies the session for its whole lifetime
	ID() string

	WriteImage(entityPath string, img media.NormalizedImage) error

	// AnnounceCodec emits the codec descriptor once per entity path and session,
	// reporting whether this call emitted it
	AnnounceCodec(entityPath string, codec media.Codec) (bool, error)

	// AdvanceClock moves the logical clock of the entity path and returns the
	// timestamp actually forwarded; regressed is set when ts was clamped
	AdvanceClock(entityPath string, ts int64) (forwarded int64, regressed bool)

	WriteSample(entityPath string, sample media.EncodedSample) error
}

// SessionSource hands out the active session, or media.ErrSessionInactive
type SessionSource interface {
	CurrentSession() (SessionWriter, error)
}

// FlowReturn is the per-buffer result reported to the host pipeline
type FlowReturn int

const (
	FlowOK FlowReturn = iota
	FlowFlushing
	FlowNotNegotiated
	FlowError
)

// String returns the string representation of FlowReturn
func (f FlowReturn) String() string {
	switch f {
	case FlowOK:
		return "ok"
	case FlowFlushing:
		return "flushing"
	case FlowNotNegotiated:
		return "not-negotiated"
	case FlowError:
		return "error"
	default:
		return "unknown"
	}
}

// FlowFromError maps an extraction error to the flow result of the buffer
func FlowFromError(err error) FlowReturn {
	if err == nil {
		return FlowOK
	}
	switch media.KindOf(err) {
	case media.KindUnsupportedFormat:
		return FlowNotNegotiated
	case media.KindSessionInactive:
		return FlowFlushing
	default:
		return FlowError
	}
}
