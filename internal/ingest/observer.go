package ingest

import "time"

// Observer receives per-buffer statistics from the render path.
// Implementations must be safe to call from the streaming thread.
type Observer interface {
	FrameForwarded(route string, bytes int)
	FrameDropped(route string)
	FrameFailed(route string, kind string)
	DeviceSynced(d time.Duration)
	CodecAnnounced(codec string)
	ClockRegressed(entityPath string)
}

// nopObserver is used when no metrics are wired
type nopObserver struct{}

func (nopObserver) FrameForwarded(string, int) {}
func (nopObserver) FrameDropped(string)        {}
func (nopObserver) FrameFailed(string, string) {}
func (nopObserver) DeviceSynced(time.Duration) {}
func (nopObserver) CodecAnnounced(string)      {}
func (nopObserver) ClockRegressed(string)      {}
