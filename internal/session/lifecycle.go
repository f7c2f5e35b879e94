package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/open-beagle/framesink/internal/config"
	"github.com/open-beagle/framesink/internal/ingest"
	"github.com/open-beagle/framesink/internal/media"
	"github.com/open-beagle/framesink/internal/recording"
)

// State is the lifecycle state of the sink
type State int

const (
	StateUninitialized State = iota
	StateActive
	StateStopped
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// TransitionFunc is called after every state change with the target of the
// session that was started or stopped
type TransitionFunc func(from, to State, target recording.Target)

// Lifecycle drives Uninitialized -> Active -> Stopped -> Active. Start and Stop
// are called from the control context; Active and CurrentSession from the
// streaming thread.
type Lifecycle struct {
	open   recording.Opener
	logger *logrus.Entry

	mutex        sync.RWMutex
	config       *config.SinkConfig
	state        State
	session      *Session
	onTransition TransitionFunc
}

// NewLifecycle creates a lifecycle in the Uninitialized state. A nil opener uses recording.Open.
func NewLifecycle(cfg *config.SinkConfig, opener recording.Opener) *Lifecycle {
	if cfg == nil {
		cfg = config.DefaultSinkConfig()
	}
	if opener == nil {
		opener = recording.Open
	}
	return &Lifecycle{
		open:   opener,
		logger: config.GetLoggerWithPrefix("lifecycle"),
		config: cfg,
		state:  StateUninitialized,
	}
}

// OnTransition sets the state change hook
func (l *Lifecycle) OnTransition(fn TransitionFunc) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.onTransition = fn
}

// SetConfig replaces the sink configuration used by the next Start
func (l *Lifecycle) SetConfig(cfg *config.SinkConfig) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.config = cfg
}

// State returns the current state
func (l *Lifecycle) State() State {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.state
}

// Start opens a fresh session. It is a no-op while Active. The target is
// selected before any I/O; on failure the state is left unchanged.
func (l *Lifecycle) Start(ctx context.Context) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.state == StateActive {
		l.logger.Debugf("Start ignored, session %s already active", l.session.ID())
		return nil
	}

	target, err := SelectTarget(l.config)
	if err != nil {
		return err
	}
	if target.Mode == recording.OutputNone {
		l.logger.Warn("No output method enabled, records will be discarded")
	}

	id := uuid.NewString()
	sink, err := l.open(ctx, recording.OpenOptions{
		Target:      target,
		RecordingID: l.recordingID(),
		SessionID:   id,
	})
	if err != nil {
		if media.KindOf(err) == media.KindSinkConnect {
			return err
		}
		return media.NewError(media.KindSinkConnect, "lifecycle", "start",
			fmt.Sprintf("failed to open %s", target), err)
	}

	from := l.state
	l.session = newSession(id, target, sink)
	l.state = StateActive

	l.logger.WithFields(logrus.Fields{
		"session": id,
		"target":  target.String(),
	}).Info("Session started")
	l.notify(from, StateActive, target)
	return nil
}

// Stop closes the sink and destroys the session. Stopping a lifecycle that is
// not Active does nothing.
func (l *Lifecycle) Stop() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.state != StateActive {
		return nil
	}

	sess := l.session
	l.session = nil
	l.state = StateStopped

	err := sess.close()
	if err != nil {
		l.logger.Warnf("Failed to close sink of session %s: %v", sess.ID(), err)
	} else {
		l.logger.Infof("Session %s stopped", sess.ID())
	}

	l.notify(StateActive, StateStopped, sess.Target())
	return err
}

// Active returns the active session or a SessionInactive error
func (l *Lifecycle) Active() (*Session, error) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	if l.state != StateActive {
		return nil, media.NewError(media.KindSessionInactive, "lifecycle", "active",
			fmt.Sprintf("lifecycle is %s", l.state), nil)
	}
	return l.session, nil
}

// CurrentSession implements ingest.SessionSource
func (l *Lifecycle) CurrentSession() (ingest.SessionWriter, error) {
	sess, err := l.Active()
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (l *Lifecycle) recordingID() string {
	if l.config.RecordingID == "" {
		return config.DefaultRecordingID
	}
	return l.config.RecordingID
}

// notify runs the transition hook; called with the mutex held
func (l *Lifecycle) notify(from, to State, target recording.Target) {
	if l.onTransition != nil {
		l.onTransition(from, to, target)
	}
}
