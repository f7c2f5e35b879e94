package ingest

import (
	"fmt"

	"github.com/open-beagle/framesink/internal/media"
)

// Route is the extraction path selected for a buffer
type Route int

const (
	RouteHost Route = iota
	RouteDevice
	RouteEncoded
)

// String returns the string representation of Route
func (r Route) String() string {
	switch r {
	case RouteHost:
		return "host"
	case RouteDevice:
		return "device"
	case RouteEncoded:
		return "encoded"
	default:
		return "unknown"
	}
}

// DefaultDeviceAllocators are the NVMM allocators that hand out device-resident surfaces
var DefaultDeviceAllocators = []string{
	"nvfiltermemoryallocator0",
	"nvdsmemoryallocator0",
}

// Classifier routes buffers by their negotiated caps and memory allocator
type Classifier struct {
	deviceAllocators map[string]struct{}
	deviceEnabled    bool
}

// NewClassifier creates a classifier. deviceEnabled reports whether a device
// extractor exists in this build; without it device buffers are rejected.
func NewClassifier(deviceAllocators []string, deviceEnabled bool) *Classifier {
	if len(deviceAllocators) == 0 {
		deviceAllocators = DefaultDeviceAllocators
	}

	allocators := make(map[string]struct{}, len(deviceAllocators))
	for _, name := range deviceAllocators {
		allocators[name] = struct{}{}
	}

	return &Classifier{
		deviceAllocators: allocators,
		deviceEnabled:    deviceEnabled,
	}
}

// Classify returns exactly one route for the buffer
func (c *Classifier) Classify(caps Caps, buf Buffer) (Route, error) {
	structure, err := FirstStructure(caps)
	if err != nil {
		return RouteHost, err
	}

	if media.ParseCodec(structure.Name()) != media.CodecUnknown {
		return RouteEncoded, nil
	}

	if buf != nil && c.IsDeviceAllocator(buf.AllocatorName()) {
		if !c.deviceEnabled {
			return RouteDevice, media.NewError(media.KindUnsupportedFormat, "classifier", "classify",
				fmt.Sprintf("device buffer from allocator %q but device support is not available", buf.AllocatorName()), nil)
		}
		return RouteDevice, nil
	}

	return RouteHost, nil
}

// IsDeviceAllocator reports whether name is a known device-surface allocator
func (c *Classifier) IsDeviceAllocator(name string) bool {
	if name == "" {
		return false
	}
	_, ok := c.deviceAllocators[name]
	return ok
}

// DeviceEnabled reports whether the device route is available
func (c *Classifier) DeviceEnabled() bool {
	return c.deviceEnabled
}

// FirstStructure returns the first structure of the caps or a negotiation error
func FirstStructure(caps Caps) (Structure, error) {
	if caps == nil || caps.Size() == 0 {
		return nil, media.NewError(media.KindNegotiation, "classifier", "parse-caps",
			"caps are missing or empty", nil)
	}

	structure := caps.Structure(0)
	if structure == nil {
		return nil, media.NewError(media.KindNegotiation, "classifier", "parse-caps",
			fmt.Sprintf("failed to get structure from caps %q", caps.String()), nil)
	}
	return structure, nil
}

// DescribeRaw derives the frame descriptor of raw video caps
func DescribeRaw(structure Structure, memory media.MemoryKind) (media.FrameDescriptor, error) {
	width, height, err := dimensions(structure, "describe-raw")
	if err != nil {
		return media.FrameDescriptor{}, err
	}

	desc := media.FrameDescriptor{
		Width:  width,
		Height: height,
		Memory: memory,
	}

	name, _ := structure.Str("format")
	desc.Format = media.ParsePixelFormat(name)
	if !desc.Format.Supported() {
		return desc, media.NewError(media.KindUnsupportedFormat, "classifier", "describe-raw",
			fmt.Sprintf("unsupported format %q", name), nil)
	}

	return desc, nil
}

// dimensions reads width and height, both must be present and non-zero
func dimensions(structure Structure, operation string) (uint32, uint32, error) {
	width, ok := structure.Int("width")
	if !ok || width <= 0 {
		return 0, 0, media.NewError(media.KindNegotiation, "classifier", operation,
			fmt.Sprintf("missing or invalid width in %s caps", structure.Name()), nil)
	}

	height, ok := structure.Int("height")
	if !ok || height <= 0 {
		return 0, 0, media.NewError(media.KindNegotiation, "classifier", operation,
			fmt.Sprintf("missing or invalid height in %s caps", structure.Name()), nil)
	}

	return uint32(width), uint32(height), nil
}
