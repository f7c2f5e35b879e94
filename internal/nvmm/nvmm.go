//go:build nvmm && cgo

package nvmm

/*
#cgo CFLAGS: -I/opt/nvidia/deepstream/deepstream/sources/includes
#cgo LDFLAGS: -L/opt/nvidia/deepstream/deepstream/lib -lnvbufsurface
#include <nvbufsurface.h>
*/
import "C"

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/open-beagle/framesink/internal/ingest"
)

// Available reports whether this build can read NVMM surfaces
const Available = true

type resolver struct{}

// NewResolver returns the NvBufSurface resolver
func NewResolver() (ingest.SurfaceResolver, bool) {
	return resolver{}, true
}

// Resolve interprets the mapped bytes of an NVMM buffer as an NvBufSurface header
func (resolver) Resolve(mapped []byte) (ingest.Surface, error) {
	if len(mapped) < int(unsafe.Sizeof(C.NvBufSurface{})) {
		return nil, fmt.Errorf("mapped size %d is smaller than NvBufSurface", len(mapped))
	}

	surface := (*C.NvBufSurface)(unsafe.Pointer(&mapped[0]))
	if surface.numFilled == 0 || surface.surfaceList == nil {
		return nil, errors.New("NvBufSurface has no filled surfaces")
	}
	return &nvSurface{surface: surface}, nil
}

// nvSurface reads the first surface of a batch
type nvSurface struct {
	surface *C.NvBufSurface
}

func (s *nvSurface) first() *C.NvBufSurfaceParams {
	return (*C.NvBufSurfaceParams)(unsafe.Pointer(s.surface.surfaceList))
}

func (s *nvSurface) Map() error {
	if rc := C.NvBufSurfaceMap(s.surface, -1, -1, C.NVBUF_MAP_READ); rc != 0 {
		return fmt.Errorf("NvBufSurfaceMap returned %d", int(rc))
	}
	return nil
}

func (s *nvSurface) SyncForCPU() error {
	if rc := C.NvBufSurfaceSyncForCpu(s.surface, -1, -1); rc != 0 {
		return fmt.Errorf("NvBufSurfaceSyncForCpu returned %d", int(rc))
	}
	return nil
}

func (s *nvSurface) Unmap() error {
	if rc := C.NvBufSurfaceUnMap(s.surface, -1, -1); rc != 0 {
		return fmt.Errorf("NvBufSurfaceUnMap returned %d", int(rc))
	}
	return nil
}

func (s *nvSurface) Params() ingest.SurfaceParams {
	p := s.first()
	params := ingest.SurfaceParams{
		Width:  uint32(p.width),
		Height: uint32(p.height),
	}
	for i := 0; i < int(p.planeParams.num_planes); i++ {
		params.Planes = append(params.Planes, ingest.PlaneParams{
			Pitch: uint32(p.planeParams.pitch[i]),
			Size:  uint32(p.planeParams.psize[i]),
		})
	}
	return params
}

func (s *nvSurface) PlaneData(i int) []byte {
	p := s.first()
	if i < 0 || i >= int(p.planeParams.num_planes) {
		return nil
	}
	addr := p.mappedAddr.addr[i]
	if addr == nil {
		return nil
	}
	return unsafe.Slice((*byte)(addr), int(p.planeParams.psize[i]))
}
