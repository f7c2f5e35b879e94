package media

import "fmt"

// MemoryKind tells where the pixel data of a buffer lives
type MemoryKind int

const (
	MemoryHost MemoryKind = iota
	MemoryDevice
)

// String returns the string representation of MemoryKind
func (mk MemoryKind) String() string {
	switch mk {
	case MemoryHost:
		return "host"
	case MemoryDevice:
		return "device"
	default:
		return "unknown"
	}
}

// FrameDescriptor is derived once per negotiated caps and stays fixed until renegotiation
type FrameDescriptor struct {
	Format PixelFormat
	Width  uint32
	Height uint32
	Memory MemoryKind
}

// String returns a short description such as "NV12 1920x1080 (device)"
func (d FrameDescriptor) String() string {
	return fmt.Sprintf("%s %dx%d (%s)", d.Format, d.Width, d.Height, d.Memory)
}

// ExpectedSize returns the exact byte length of a frame with this descriptor
func (d FrameDescriptor) ExpectedSize() (int, error) {
	return ExpectedSize(d.Format, d.Width, d.Height)
}

// NormalizedImage is an owned, tightly packed raw frame
type NormalizedImage struct {
	Descriptor FrameDescriptor
	Data       []byte
}

// NewNormalizedImage wraps data as an image, rejecting unsupported formats and size mismatches.
// The image takes ownership of data.
func NewNormalizedImage(desc FrameDescriptor, data []byte) (NormalizedImage, error) {
	img := NormalizedImage{Descriptor: desc, Data: data}
	if err := img.Validate(); err != nil {
		return NormalizedImage{}, err
	}
	return img, nil
}

// Validate checks the byte length against the format arithmetic
func (img NormalizedImage) Validate() error {
	if !img.Descriptor.Format.Supported() {
		return NewError(KindUnsupportedFormat, "normalized-image", "validate",
			fmt.Sprintf("unsupported pixel format %s", img.Descriptor.Format), nil)
	}

	expected, err := img.Descriptor.ExpectedSize()
	if err != nil {
		return err
	}
	if len(img.Data) != expected {
		return NewError(KindMemoryAccess, "normalized-image", "validate",
			fmt.Sprintf("%s image holds %d bytes, expected %d", img.Descriptor, len(img.Data), expected), nil)
	}
	return nil
}

// Size returns the size of the image data in bytes
func (img NormalizedImage) Size() int {
	return len(img.Data)
}

// Codec identifies the compression scheme of an encoded stream
type Codec int

const (
	CodecUnknown Codec = iota
	CodecH264
	CodecH265
)

// ParseCodec maps a caps media type name to a codec
func ParseCodec(mediaType string) Codec {
	switch mediaType {
	case "video/x-h264":
		return CodecH264
	case "video/x-h265":
		return CodecH265
	default:
		return CodecUnknown
	}
}

// String returns the string representation of Codec
func (c Codec) String() string {
	switch c {
	case CodecH264:
		return "H264"
	case CodecH265:
		return "H265"
	default:
		return "unknown"
	}
}

// TimestampNone marks a buffer without decode or presentation timestamp
const TimestampNone int64 = -1

// EncodedSample is one compressed access unit ready for the sink
type EncodedSample struct {
	EntityPath string
	Codec      Codec

	// Timestamp in nanoseconds, non-decreasing within a session
	Timestamp int64

	KeyFrame bool
	Data     []byte
}

// Size returns the size of the sample data in bytes
func (s EncodedSample) Size() int {
	return len(s.Data)
}

// Clone creates a deep copy of the sample
func (s EncodedSample) Clone() EncodedSample {
	data := make([]byte, len(s.Data))
	copy(data, s.Data)
	s.Data = data
	return s
}
