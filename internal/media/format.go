package media

import "fmt"

// PixelFormat identifies the normalized pixel layout of a raw frame
type PixelFormat int

const (
	// PixelFormatUnsupported is any negotiated format outside the catalog
	PixelFormatUnsupported PixelFormat = iota
	PixelFormatRGB24                   // Packed RGB, 3 bytes per pixel
	PixelFormatRGBA32                  // Packed RGBA, 4 bytes per pixel
	PixelFormatGRAY8                   // Single 8-bit luma plane
	PixelFormatNV12                    // YUV 4:2:0 semi-planar (Y + interleaved UV)
	PixelFormatI420                    // YUV 4:2:0 planar (Y + U + V)
)

// Caps descriptors accepted by the sink pad
const (
	SupportedRawCaps     = "video/x-raw, format=(string){ NV12, I420, RGB, GRAY8, RGBA }"
	SupportedDeviceCaps  = "video/x-raw(memory:NVMM), format=(string){ NV12 }"
	SupportedEncodedCaps = "video/x-h264, stream-format=(string)byte-stream; " +
		"video/x-h265, stream-format=(string){ hvc1, hev1, byte-stream }"
)

// ParsePixelFormat maps a negotiated caps format name to its catalog entry
func ParsePixelFormat(capsName string) PixelFormat {
	switch capsName {
	case "RGB":
		return PixelFormatRGB24
	case "RGBA":
		return PixelFormatRGBA32
	case "GRAY8":
		return PixelFormatGRAY8
	case "NV12":
		return PixelFormatNV12
	case "I420":
		return PixelFormatI420
	default:
		return PixelFormatUnsupported
	}
}

// String returns the string representation of PixelFormat
func (p PixelFormat) String() string {
	switch p {
	case PixelFormatRGB24:
		return "RGB24"
	case PixelFormatRGBA32:
		return "RGBA32"
	case PixelFormatGRAY8:
		return "GRAY8"
	case PixelFormatNV12:
		return "NV12"
	case PixelFormatI420:
		return "I420"
	default:
		return "Unsupported"
	}
}

// CapsName returns the caps format name, empty for unsupported formats
func (p PixelFormat) CapsName() string {
	switch p {
	case PixelFormatRGB24:
		return "RGB"
	case PixelFormatRGBA32:
		return "RGBA"
	case PixelFormatGRAY8:
		return "GRAY8"
	case PixelFormatNV12:
		return "NV12"
	case PixelFormatI420:
		return "I420"
	default:
		return ""
	}
}

// Supported reports whether the format is part of the catalog
func (p PixelFormat) Supported() bool {
	return p != PixelFormatUnsupported && p.CapsName() != ""
}

// Planar reports whether the format stores chroma in separate planes
func (p PixelFormat) Planar() bool {
	return p == PixelFormatNV12 || p == PixelFormatI420
}

// Plane describes one plane of a tightly packed frame
type Plane struct {
	RowBytes int
	Rows     int
}

// Size returns the plane size in bytes
func (pl Plane) Size() int {
	return pl.RowBytes * pl.Rows
}

// PlaneLayout returns the tightly packed plane geometry of a frame.
// Chroma planes of the 4:2:0 formats are rounded up for odd dimensions.
func PlaneLayout(format PixelFormat, width, height uint32) ([]Plane, error) {
	if width == 0 || height == 0 {
		return nil, NewError(KindNegotiation, "pixel-format-catalog", "plane-layout",
			fmt.Sprintf("invalid dimensions %dx%d", width, height), nil)
	}

	w, h := int(width), int(height)
	cw, ch := (w+1)/2, (h+1)/2

	switch format {
	case PixelFormatRGB24:
		return []Plane{{RowBytes: w * 3, Rows: h}}, nil
	case PixelFormatRGBA32:
		return []Plane{{RowBytes: w * 4, Rows: h}}, nil
	case PixelFormatGRAY8:
		return []Plane{{RowBytes: w, Rows: h}}, nil
	case PixelFormatNV12:
		return []Plane{{RowBytes: w, Rows: h}, {RowBytes: cw * 2, Rows: ch}}, nil
	case PixelFormatI420:
		return []Plane{{RowBytes: w, Rows: h}, {RowBytes: cw, Rows: ch}, {RowBytes: cw, Rows: ch}}, nil
	default:
		return nil, NewError(KindUnsupportedFormat, "pixel-format-catalog", "plane-layout",
			fmt.Sprintf("format %s is not in the catalog", format), nil)
	}
}

// ExpectedSize returns the exact byte length of a tightly packed frame
func ExpectedSize(format PixelFormat, width, height uint32) (int, error) {
	planes, err := PlaneLayout(format, width, height)
	if err != nil {
		return 0, err
	}

	size := 0
	for _, pl := range planes {
		size += pl.Size()
	}
	return size, nil
}

// PlaneStride locates one plane inside a mapped buffer
type PlaneStride struct {
	Offset int
	Stride int
}

func roundUp(v, n int) int {
	return (v + n - 1) / n * n
}

// DefaultStrides returns the layout GStreamer gives raw video without a video
// meta, and the buffer size it implies. Rows start on 4 byte boundaries and the
// chroma planes of the 4:2:0 formats follow a luma plane of an even row count.
func DefaultStrides(format PixelFormat, width, height uint32) ([]PlaneStride, int, error) {
	if width == 0 || height == 0 {
		return nil, 0, NewError(KindNegotiation, "pixel-format-catalog", "default-strides",
			fmt.Sprintf("invalid dimensions %dx%d", width, height), nil)
	}

	w, h := int(width), int(height)
	chromaRows := roundUp(h, 2) / 2

	switch format {
	case PixelFormatRGB24:
		stride := roundUp(w*3, 4)
		return []PlaneStride{{Stride: stride}}, stride * h, nil
	case PixelFormatRGBA32:
		return []PlaneStride{{Stride: w * 4}}, w * 4 * h, nil
	case PixelFormatGRAY8:
		stride := roundUp(w, 4)
		return []PlaneStride{{Stride: stride}}, stride * h, nil
	case PixelFormatNV12:
		stride := roundUp(w, 4)
		chroma := stride * roundUp(h, 2)
		return []PlaneStride{{Stride: stride}, {Offset: chroma, Stride: stride}}, chroma + stride*chromaRows, nil
	case PixelFormatI420:
		luma := roundUp(w, 4)
		chroma := roundUp(roundUp(w, 2)/2, 4)
		u := luma * roundUp(h, 2)
		v := u + chroma*chromaRows
		return []PlaneStride{{Stride: luma}, {Offset: u, Stride: chroma}, {Offset: v, Stride: chroma}},
			v + chroma*chromaRows, nil
	default:
		return nil, 0, NewError(KindUnsupportedFormat, "pixel-format-catalog", "default-strides",
			fmt.Sprintf("format %s is not in the catalog", format), nil)
	}
}
