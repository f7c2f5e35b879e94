package gstreamer

import (
	"fmt"

	"github.com/go-gst/go-gst/gst"

	"github.com/open-beagle/framesink/internal/ingest"
	"github.com/open-beagle/framesink/internal/media"
)

var _ ingest.LayoutBuffer = (*bufferView)(nil)

// bufferView adapts a go-gst buffer to ingest.Buffer
type bufferView struct {
	buffer *gst.Buffer
	mapped bool
}

// WrapBuffer returns a read-only view of buffer. The view borrows the buffer
// and must not be used after the sample that owns it is released.
func WrapBuffer(buffer *gst.Buffer) ingest.Buffer {
	return &bufferView{buffer: buffer}
}

func (v *bufferView) Map() ([]byte, error) {
	if v.buffer == nil {
		return nil, fmt.Errorf("gst buffer is nil")
	}

	mapInfo := v.buffer.Map(gst.MapRead)
	if mapInfo == nil {
		return nil, fmt.Errorf("failed to map gst buffer")
	}
	v.mapped = true
	return mapInfo.Bytes(), nil
}

func (v *bufferView) Unmap() {
	if !v.mapped {
		return
	}
	v.buffer.Unmap()
	v.mapped = false
}

// AllocatorName returns the object name of the allocator of the first memory block
func (v *bufferView) AllocatorName() string {
	if v.buffer == nil || v.buffer.NumMemoryBlocks() == 0 {
		return ""
	}
	memory := v.buffer.PeekMemory(0)
	if memory == nil {
		return ""
	}
	allocator := memory.Allocator()
	if allocator == nil {
		return ""
	}
	return allocator.GetName()
}

func (v *bufferView) DecodeTimestamp() int64 {
	return clockTime(v.buffer.DecodingTimestamp())
}

func (v *bufferView) PresentationTimestamp() int64 {
	return clockTime(v.buffer.PresentationTimestamp())
}

func (v *bufferView) DeltaUnit() bool {
	return v.buffer.GetFlags()&gst.BufferFlagDeltaUnit != 0
}

// PlaneStrides reports the layout of an attached video meta
func (v *bufferView) PlaneStrides() ([]media.PlaneStride, bool) {
	if v.buffer == nil {
		return nil, false
	}
	return videoMetaStrides(v.buffer)
}

func clockTime(ts gst.ClockTime) int64 {
	if ts == gst.ClockTimeNone {
		return media.TimestampNone
	}
	return int64(ts)
}

// capsView adapts go-gst caps to ingest.Caps
type capsView struct {
	caps *gst.Caps
}

// WrapCaps returns a view of caps, nil caps give a view without structures
func WrapCaps(caps *gst.Caps) ingest.Caps {
	return &capsView{caps: caps}
}

func (c *capsView) Size() int {
	if c.caps == nil {
		return 0
	}
	return c.caps.GetSize()
}

func (c *capsView) Structure(i int) ingest.Structure {
	if c.caps == nil || i < 0 || i >= c.caps.GetSize() {
		return nil
	}
	structure := c.caps.GetStructureAt(i)
	if structure == nil {
		return nil
	}
	return &structureView{structure: structure}
}

func (c *capsView) String() string {
	if c.caps == nil {
		return "(none)"
	}
	return c.caps.String()
}

// structureView adapts a go-gst structure to ingest.Structure
type structureView struct {
	structure *gst.Structure
}

func (s *structureView) Name() string {
	return s.structure.Name()
}

func (s *structureView) Int(field string) (int, bool) {
	value, err := s.structure.GetValue(field)
	if err != nil {
		return 0, false
	}
	switch v := value.(type) {
	case int:
		return v, true
	case uint:
		return int(v), true
	case int32:
		return int(v), true
	default:
		return 0, false
	}
}

func (s *structureView) Str(field string) (string, bool) {
	value, err := s.structure.GetValue(field)
	if err != nil {
		return "", false
	}
	v, ok := value.(string)
	return v, ok
}
