package ingest

import (
	"fmt"

	"github.com/open-beagle/framesink/internal/media"
)

// FrameExtractor turns one raw buffer into an owned image
type FrameExtractor interface {
	Extract(buf Buffer, desc media.FrameDescriptor) (media.NormalizedImage, error)
}

// HostExtractor copies host-resident buffers
type HostExtractor struct{}

// NewHostExtractor creates the host-memory extractor
func NewHostExtractor() *HostExtractor {
	return &HostExtractor{}
}

// Extract copies the mapped view into an image owned by the caller.
// The buffer is only trusted for the duration of the call.
//
// Rows are depadded when the buffer carries a plane layout, or when the view
// is large enough for the default aligned layout of a width that needs padding.
// Any other view is read as tightly packed.
func (e *HostExtractor) Extract(buf Buffer, desc media.FrameDescriptor) (media.NormalizedImage, error) {
	if !desc.Format.Supported() {
		return media.NormalizedImage{}, media.NewError(media.KindUnsupportedFormat, "host-extractor", "extract",
			fmt.Sprintf("unsupported format %s", desc.Format), nil)
	}

	planes, err := media.PlaneLayout(desc.Format, desc.Width, desc.Height)
	if err != nil {
		return media.NormalizedImage{}, err
	}
	expected, err := desc.ExpectedSize()
	if err != nil {
		return media.NormalizedImage{}, err
	}

	view, err := buf.Map()
	if err != nil {
		return media.NormalizedImage{}, media.NewError(media.KindMemoryAccess, "host-extractor", "map",
			"failed to map buffer for reading", err)
	}
	defer buf.Unmap()

	var data []byte
	if strides, ok := planeStrides(buf, desc, len(view), expected); ok {
		data, err = depadPlanes(view, planes, strides, expected)
		if err != nil {
			return media.NormalizedImage{}, media.NewError(media.KindMemoryAccess, "host-extractor", "depad",
				fmt.Sprintf("%s in %d mapped bytes", desc, len(view)), err)
		}
		return media.NewNormalizedImage(desc, data)
	}

	if len(view) < expected {
		return media.NormalizedImage{}, media.NewError(media.KindMemoryAccess, "host-extractor", "extract",
			fmt.Sprintf("mapped %d bytes, %s needs %d", len(view), desc, expected), nil)
	}

	switch desc.Format {
	case media.PixelFormatRGB24, media.PixelFormatRGBA32, media.PixelFormatGRAY8:
		// packed formats
		data = passThrough(view, expected)
	case media.PixelFormatNV12, media.PixelFormatI420:
		// already planar, plane order is kept
		data = passThrough(view, expected)
	default:
		return media.NormalizedImage{}, media.NewError(media.KindUnsupportedFormat, "host-extractor", "extract",
			fmt.Sprintf("no conversion for %s", desc.Format), nil)
	}

	return media.NewNormalizedImage(desc, data)
}

// planeStrides picks the layout to depad with; ok is false for a packed view
func planeStrides(buf Buffer, desc media.FrameDescriptor, mapped, expected int) ([]media.PlaneStride, bool) {
	if lb, ok := buf.(LayoutBuffer); ok {
		if strides, ok := lb.PlaneStrides(); ok {
			return strides, true
		}
	}

	strides, size, err := media.DefaultStrides(desc.Format, desc.Width, desc.Height)
	if err != nil || size == expected || mapped < size {
		return nil, false
	}
	return strides, true
}

// depadPlanes copies every plane row by row, dropping the row padding
func depadPlanes(view []byte, planes []media.Plane, strides []media.PlaneStride, expected int) ([]byte, error) {
	if len(strides) < len(planes) {
		return nil, fmt.Errorf("layout has %d planes, format needs %d", len(strides), len(planes))
	}

	data := make([]byte, 0, expected)
	for i, plane := range planes {
		offset, stride := strides[i].Offset, strides[i].Stride
		if offset < 0 || stride < 0 || offset > len(view) {
			return nil, fmt.Errorf("plane %d at offset %d is outside the buffer", i, offset)
		}

		var err error
		data, err = appendDepadded(data, view[offset:], plane, uint32(stride))
		if err != nil {
			return nil, fmt.Errorf("plane %d: %w", i, err)
		}
	}
	return data, nil
}

// passThrough copies exactly size bytes of the view
func passThrough(view []byte, size int) []byte {
	data := make([]byte, size)
	copy(data, view[:size])
	return data
}
