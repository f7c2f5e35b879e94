package ingest

import (
	"fmt"
	"time"

	"github.com/open-beagle/framesink/internal/media"
)

// PlaneParams describes one plane of a device surface
type PlaneParams struct {
	// Pitch is the byte distance between the starts of consecutive rows
	Pitch uint32
	// Size is the allocated plane size in bytes, padding included
	Size uint32
}

// SurfaceParams is the geometry of a device surface
type SurfaceParams struct {
	Width  uint32
	Height uint32
	Planes []PlaneParams
}

// Surface is a device-resident frame that must be mapped before the host can read it
type Surface interface {
	Map() error
	// SyncForCPU blocks until pending device writes are visible to the host
	SyncForCPU() error
	Unmap() error
	Params() SurfaceParams
	// PlaneData returns the host mapping of plane i, nil when the mapped pointer is null
	PlaneData(i int) []byte
}

// SurfaceResolver finds the device surface described by the mapped bytes of a buffer.
// The surface must not outlive the buffer mapping.
type SurfaceResolver interface {
	Resolve(mapped []byte) (Surface, error)
}

// DeviceExtractor extracts NV12 device surfaces into host memory
type DeviceExtractor struct {
	resolver SurfaceResolver
	observer Observer
}

// NewDeviceExtractor creates a device extractor; observer may be nil
func NewDeviceExtractor(resolver SurfaceResolver, observer Observer) *DeviceExtractor {
	if observer == nil {
		observer = nopObserver{}
	}
	return &DeviceExtractor{
		resolver: resolver,
		observer: observer,
	}
}

// Extract copies the luma and chroma planes row by row, dropping the pitch padding.
// The surface mapping is released before the buffer mapping on every path.
func (e *DeviceExtractor) Extract(buf Buffer, desc media.FrameDescriptor) (media.NormalizedImage, error) {
	// Only NV12 is produced by NVMM upstreams today; reject before touching the device
	if desc.Format != media.PixelFormatNV12 {
		return media.NormalizedImage{}, media.NewError(media.KindUnsupportedFormat, "device-extractor", "extract",
			fmt.Sprintf("unsupported device format %s", desc.Format), nil)
	}

	mapped, err := buf.Map()
	if err != nil {
		return media.NormalizedImage{}, media.NewError(media.KindMemoryAccess, "device-extractor", "map-buffer",
			"failed to map device buffer", err)
	}
	defer buf.Unmap()

	surface, err := e.resolver.Resolve(mapped)
	if err != nil {
		return media.NormalizedImage{}, media.NewError(media.KindMemoryAccess, "device-extractor", "resolve",
			"failed to resolve device surface", err)
	}
	if surface == nil {
		return media.NormalizedImage{}, media.NewError(media.KindMemoryAccess, "device-extractor", "resolve",
			"buffer carries no device surface", nil)
	}

	if err := surface.Map(); err != nil {
		return media.NormalizedImage{}, media.NewError(media.KindMemoryAccess, "device-extractor", "map-surface",
			"failed to map surface for CPU access", err)
	}
	defer surface.Unmap()

	start := time.Now()
	if err := surface.SyncForCPU(); err != nil {
		return media.NormalizedImage{}, media.NewError(media.KindMemoryAccess, "device-extractor", "sync",
			"failed to sync surface for CPU", err)
	}
	e.observer.DeviceSynced(time.Since(start))

	params := surface.Params()
	if len(params.Planes) < 2 {
		return media.NormalizedImage{}, media.NewError(media.KindMemoryAccess, "device-extractor", "extract",
			fmt.Sprintf("NV12 surface exposes %d planes", len(params.Planes)), nil)
	}

	luma := surface.PlaneData(0)
	if luma == nil {
		return media.NormalizedImage{}, media.NewError(media.KindMemoryAccess, "device-extractor", "extract",
			"mapped luma pointer is null", nil)
	}
	chroma := surface.PlaneData(1)
	if chroma == nil {
		return media.NormalizedImage{}, media.NewError(media.KindMemoryAccess, "device-extractor", "extract",
			"mapped chroma pointer is null", nil)
	}

	// The surface is authoritative for the geometry
	out := media.FrameDescriptor{
		Format: media.PixelFormatNV12,
		Width:  params.Width,
		Height: params.Height,
		Memory: media.MemoryDevice,
	}
	planes, err := media.PlaneLayout(out.Format, out.Width, out.Height)
	if err != nil {
		return media.NormalizedImage{}, err
	}

	data := make([]byte, 0, planes[0].Size()+planes[1].Size())
	data, err = appendDepadded(data, luma, planes[0], params.Planes[0].Pitch)
	if err != nil {
		return media.NormalizedImage{}, media.NewError(media.KindMemoryAccess, "device-extractor", "copy-luma",
			"luma plane", err)
	}
	data, err = appendDepadded(data, chroma, planes[1], params.Planes[1].Pitch)
	if err != nil {
		return media.NormalizedImage{}, media.NewError(media.KindMemoryAccess, "device-extractor", "copy-chroma",
			"chroma plane", err)
	}

	return media.NewNormalizedImage(out, data)
}

// appendDepadded appends plane.Rows rows of plane.RowBytes, stepping pitch bytes per row
func appendDepadded(dst, src []byte, plane media.Plane, pitch uint32) ([]byte, error) {
	p := int(pitch)
	if p < plane.RowBytes {
		return dst, fmt.Errorf("pitch %d is smaller than row of %d bytes", p, plane.RowBytes)
	}

	needed := (plane.Rows-1)*p + plane.RowBytes
	if len(src) < needed {
		return dst, fmt.Errorf("plane holds %d bytes, %d rows at pitch %d need %d", len(src), plane.Rows, p, needed)
	}

	for row := 0; row < plane.Rows; row++ {
		offset := row * p
		dst = append(dst, src[offset:offset+plane.RowBytes]...)
	}
	return dst, nil
}
