//go:build !nvmm || !cgo

package nvmm

import "github.com/open-beagle/framesink/internal/ingest"

// Available reports whether this build can read NVMM surfaces
const Available = false

// NewResolver returns no resolver in builds without NVMM support
func NewResolver() (ingest.SurfaceResolver, bool) {
	return nil, false
}
