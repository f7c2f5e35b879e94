package gstreamer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-gst/go-glib/glib"
	"github.com/go-gst/go-gst/gst"
	"github.com/go-gst/go-gst/gst/app"
	"github.com/sirupsen/logrus"

	"github.com/open-beagle/framesink/internal/config"
	"github.com/open-beagle/framesink/internal/ingest"
	"github.com/open-beagle/framesink/internal/media"
)

// Lifecycle is started before the pipeline plays and stopped after it reaches NULL
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop() error
}

// Renderer consumes one buffer per appsink sample
type Renderer interface {
	Render(buf ingest.Buffer, caps ingest.Caps) ingest.FlowReturn
}

// SinkPipeline runs a launch description ending in an appsink and renders
// every sample it pulls
type SinkPipeline struct {
	config    *config.PipelineConfig
	lifecycle Lifecycle
	renderer  Renderer
	logger    *logrus.Entry

	pipeline *gst.Pipeline
	appsink  *app.Sink
	mainLoop *glib.MainLoop
	bus      *gst.Bus

	running bool
	mutex   sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	done     chan error
	doneOnce sync.Once

	capsMutex   sync.Mutex
	currentCaps string
	sampleCount uint64
}

// NewSinkPipeline creates a stopped pipeline runner
func NewSinkPipeline(cfg *config.PipelineConfig, lifecycle Lifecycle, renderer Renderer) (*SinkPipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("pipeline configuration is required")
	}
	if lifecycle == nil || renderer == nil {
		return nil, fmt.Errorf("lifecycle and renderer are required")
	}

	gst.Init(nil)

	return &SinkPipeline{
		config:    cfg,
		lifecycle: lifecycle,
		renderer:  renderer,
		logger:    config.GetLoggerWithPrefix("sink-pipeline"),
	}, nil
}

// AcceptedCaps returns the capability set the appsink advertises
func AcceptedCaps(device bool) string {
	parts := []string{media.SupportedRawCaps}
	if device {
		parts = append(parts, media.SupportedDeviceCaps)
	}
	parts = append(parts, media.SupportedEncodedCaps)
	return strings.Join(parts, "; ")
}

// Start builds the pipeline, starts the lifecycle and sets the pipeline to PLAYING
func (p *SinkPipeline) Start(ctx context.Context) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.running {
		return fmt.Errorf("sink pipeline already running")
	}

	p.logger.Debug("Step 1: Creating pipeline...")
	if err := p.createPipeline(); err != nil {
		p.release()
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	p.logger.Debug("Step 2: Setting up appsink...")
	p.setupAppsink()

	p.logger.Debug("Step 3: Starting session...")
	if err := p.lifecycle.Start(ctx); err != nil {
		p.release()
		return fmt.Errorf("failed to start session: %w", err)
	}

	p.logger.Debug("Step 4: Starting pipeline...")
	if err := p.startPipeline(); err != nil {
		p.teardown()
		return fmt.Errorf("failed to start pipeline: %w", err)
	}

	p.running = true
	p.logger.Info("Sink pipeline started")
	return nil
}

// createPipeline parses the launch description and finds the appsink
func (p *SinkPipeline) createPipeline() error {
	p.logger.Infof("Creating pipeline: %s", p.config.Description)

	pipeline, err := gst.NewPipelineFromString(p.config.Description)
	if err != nil {
		return fmt.Errorf("failed to parse launch description: %w", err)
	}
	p.pipeline = pipeline

	p.bus = pipeline.GetBus()
	if p.bus == nil {
		return fmt.Errorf("failed to get pipeline bus")
	}

	element, err := pipeline.GetElementByName(p.config.SinkName)
	if err != nil || element == nil {
		return fmt.Errorf("pipeline has no element named %q", p.config.SinkName)
	}
	p.appsink = app.SinkFromElement(element)
	if p.appsink == nil {
		return fmt.Errorf("element %q is not an appsink", p.config.SinkName)
	}

	return nil
}

// setupAppsink restricts the appsink caps and installs the sample callbacks
func (p *SinkPipeline) setupAppsink() {
	p.appsink.SetEmitSignals(false)
	p.appsink.SetDrop(false)
	p.appsink.SetMaxBuffers(4)
	p.appsink.SetCaps(gst.NewCapsFromString(AcceptedCaps(p.config.Device)))

	p.done = make(chan error, 1)
	p.doneOnce = sync.Once{}
	p.currentCaps = ""
	p.sampleCount = 0

	p.appsink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: p.onNewSample,
		EOSFunc: func(sink *app.Sink) {
			p.logger.Debug("Appsink received EOS")
		},
	})
}

// onNewSample renders one sample on the streaming thread
func (p *SinkPipeline) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowEOS
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		p.logger.Warn("Sample carries no buffer")
		return gst.FlowError
	}

	caps := sample.GetCaps()
	p.logNegotiatedCaps(caps)

	return toGstFlow(p.renderer.Render(WrapBuffer(buffer), WrapCaps(caps)))
}

// logNegotiatedCaps logs the caps whenever they change
func (p *SinkPipeline) logNegotiatedCaps(caps *gst.Caps) {
	p.capsMutex.Lock()
	defer p.capsMutex.Unlock()

	p.sampleCount++
	if caps == nil {
		return
	}
	current := caps.String()
	if current == p.currentCaps {
		return
	}
	p.currentCaps = current
	p.logger.Infof("Caps negotiated: %s", current)
}

func toGstFlow(flow ingest.FlowReturn) gst.FlowReturn {
	switch flow {
	case ingest.FlowOK:
		return gst.FlowOK
	case ingest.FlowFlushing:
		return gst.FlowFlushing
	case ingest.FlowNotNegotiated:
		return gst.FlowNotNegotiated
	default:
		return gst.FlowError
	}
}

func (p *SinkPipeline) startPipeline() error {
	if err := p.pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("failed to set pipeline to PLAYING state: %w", err)
	}

	ret, state := p.pipeline.GetState(gst.StatePlaying, gst.ClockTimeNone)
	if ret == gst.StateChangeFailure {
		return fmt.Errorf("pipeline failed to reach PLAYING state")
	}
	p.logger.Debugf("Pipeline state: %s", state.String())

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.wg.Add(1)
	go p.handleBusMessages()

	p.mainLoop = glib.NewMainLoop(glib.MainContextDefault(), false)
	loop := p.mainLoop
	go func() {
		p.logger.Debug("Starting GLib main loop...")
		loop.Run()
		p.logger.Debug("GLib main loop stopped")
	}()

	return nil
}

// handleBusMessages reports EOS and errors on Done
func (p *SinkPipeline) handleBusMessages() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		msg := p.bus.TimedPop(gst.ClockTime(100 * time.Millisecond))
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageError:
			err := msg.ParseError()
			p.logger.Errorf("Pipeline error: %v", err)
			p.finish(fmt.Errorf("pipeline error: %v", err))

		case gst.MessageWarning:
			p.logger.Warnf("Pipeline warning: %v", msg.ParseWarning())

		case gst.MessageEOS:
			p.logger.Info("Pipeline reached end of stream")
			p.finish(nil)

		case gst.MessageStateChanged:
			if msg.Source() == p.pipeline.GetName() {
				oldState, newState := msg.ParseStateChanged()
				p.logger.Debugf("Pipeline state changed: %s -> %s", oldState.String(), newState.String())
			}
		}

		msg.Unref()
	}
}

func (p *SinkPipeline) finish(err error) {
	p.doneOnce.Do(func() {
		p.done <- err
		close(p.done)
	})
}

// Done is closed after end of stream or a pipeline error, which it delivers first
func (p *SinkPipeline) Done() <-chan error {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.done
}

// Stop sets the pipeline to NULL and then stops the lifecycle. Safe to call twice.
func (p *SinkPipeline) Stop() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if !p.running {
		return nil
	}
	p.running = false

	err := p.teardown()

	p.capsMutex.Lock()
	count := p.sampleCount
	p.capsMutex.Unlock()
	p.logger.Infof("Sink pipeline stopped after %d samples", count)

	return err
}

// teardown brings the pipeline to NULL, stops the session and releases everything
func (p *SinkPipeline) teardown() error {
	if p.pipeline != nil {
		if err := p.pipeline.SetState(gst.StateNull); err != nil {
			p.logger.Warnf("Failed to set pipeline to NULL state: %v", err)
		}
		ret, _ := p.pipeline.GetState(gst.StateNull, gst.ClockTime(5*time.Second))
		if ret == gst.StateChangeFailure {
			p.logger.Warn("Failed to wait for NULL state")
		}
	}

	if p.cancel != nil {
		p.cancel()
		p.wg.Wait()
		p.cancel = nil
	}

	err := p.lifecycle.Stop()
	p.release()
	return err
}

func (p *SinkPipeline) release() {
	if p.mainLoop != nil {
		p.mainLoop.Quit()
		p.mainLoop = nil
	}
	if p.pipeline != nil {
		p.pipeline.Unref()
		p.pipeline = nil
	}
	p.bus = nil
	p.appsink = nil
}

// IsRunning reports whether the pipeline is playing
func (p *SinkPipeline) IsRunning() bool {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.running
}
