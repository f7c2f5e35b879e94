package ingest

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/open-beagle/framesink/internal/config"
	"github.com/open-beagle/framesink/internal/media"
)

// RendererOptions configures a Renderer
type RendererOptions struct {
	// ImagePath is the entity path for raw frames; empty disables forwarding
	ImagePath string
	// VideoPath is the entity path for encoded samples; empty disables forwarding
	VideoPath string
	// DeviceAllocators overrides DefaultDeviceAllocators
	DeviceAllocators []string
	// Device extracts device-resident frames; nil when this build has no device support
	Device FrameExtractor
	// Observer receives statistics, may be nil
	Observer Observer
}

// Renderer is the per-buffer entry point of the sink
type Renderer struct {
	sessions   SessionSource
	classifier *Classifier
	host       FrameExtractor
	device     FrameExtractor
	packetizer *Packetizer
	imagePath  string
	observer   Observer
	logger     *logrus.Entry

	mutex        sync.Mutex
	warnedNoPath string
}

// NewRenderer creates a renderer that forwards into the active session of sessions
func NewRenderer(sessions SessionSource, opts RendererOptions) *Renderer {
	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}

	return &Renderer{
		sessions:   sessions,
		classifier: NewClassifier(opts.DeviceAllocators, opts.Device != nil),
		host:       NewHostExtractor(),
		device:     opts.Device,
		packetizer: NewPacketizer(opts.VideoPath, observer),
		imagePath:  opts.ImagePath,
		observer:   observer,
		logger:     config.GetLoggerWithPrefix("renderer"),
	}
}

// Render processes one buffer and returns the flow result for the pipeline
func (r *Renderer) Render(buf Buffer, caps Caps) FlowReturn {
	route, err := r.render(buf, caps)
	if err != nil {
		r.observer.FrameFailed(route.String(), media.KindOf(err).String())

		entry := r.logger.WithField("route", route.String())
		if errors.Is(err, media.ErrSessionInactive) {
			entry.Debugf("Dropping buffer: %v", err)
		} else {
			entry.Errorf("Failed to render buffer: %v", err)
		}
	}
	return FlowFromError(err)
}

// RenderErr processes one buffer and returns the error instead of a flow result
func (r *Renderer) RenderErr(buf Buffer, caps Caps) error {
	_, err := r.render(buf, caps)
	return err
}

func (r *Renderer) render(buf Buffer, caps Caps) (Route, error) {
	sess, err := r.sessions.CurrentSession()
	if err != nil {
		return RouteHost, err
	}

	route, err := r.classifier.Classify(caps, buf)
	if err != nil {
		return route, err
	}

	structure, err := FirstStructure(caps)
	if err != nil {
		return route, err
	}

	switch route {
	case RouteEncoded:
		return route, r.packetizer.Process(sess, buf, structure)
	case RouteDevice:
		return route, r.extractAndForward(sess, route, r.device, buf, structure, media.MemoryDevice)
	default:
		return route, r.extractAndForward(sess, route, r.host, buf, structure, media.MemoryHost)
	}
}

func (r *Renderer) extractAndForward(sess SessionWriter, route Route, extractor FrameExtractor,
	buf Buffer, structure Structure, memory media.MemoryKind) error {
	desc, err := DescribeRaw(structure, memory)
	if err != nil {
		return err
	}

	img, err := extractor.Extract(buf, desc)
	if err != nil {
		return err
	}

	if r.imagePath == "" {
		r.warnNoImagePath(sess)
		r.observer.FrameDropped(route.String())
		return nil
	}

	if err := sess.WriteImage(r.imagePath, img); err != nil {
		return err
	}

	r.observer.FrameForwarded(route.String(), img.Size())
	return nil
}

// warnNoImagePath logs once per session that raw frames are being discarded
func (r *Renderer) warnNoImagePath(sess SessionWriter) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.warnedNoPath == sess.ID() {
		return
	}
	r.warnedNoPath = sess.ID()
	r.logger.Warn("Image path is not set, raw frames are extracted but not forwarded")
}
