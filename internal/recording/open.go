package recording

import (
	"context"
	"fmt"
	"strings"

	"github.com/open-beagle/framesink/internal/media"
)

// OutputMode is the kind of destination a session records to
type OutputMode int

const (
	OutputNone OutputMode = iota
	OutputSpawnViewer
	OutputDisk
	OutputNetwork
)

// String returns the string representation of OutputMode
func (m OutputMode) String() string {
	switch m {
	case OutputNone:
		return "none"
	case OutputSpawnViewer:
		return "spawn"
	case OutputDisk:
		return "disk"
	case OutputNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// Target is the validated destination of one session
type Target struct {
	Mode OutputMode
	// Path is the output file for OutputDisk
	Path string
	// Address is the network address for OutputNetwork
	Address string
	// Command is the viewer command line for OutputSpawnViewer
	Command []string
}

// String returns the string representation of Target
func (t Target) String() string {
	switch t.Mode {
	case OutputDisk:
		return fmt.Sprintf("disk(%s)", t.Path)
	case OutputNetwork:
		return fmt.Sprintf("network(%s)", t.Address)
	case OutputSpawnViewer:
		return fmt.Sprintf("spawn(%s)", strings.Join(t.Command, " "))
	default:
		return t.Mode.String()
	}
}

// OpenOptions identifies the stream being opened
type OpenOptions struct {
	Target      Target
	RecordingID string
	SessionID   string
}

// Opener opens the sink of a new session
type Opener func(ctx context.Context, opts OpenOptions) (Sink, error)

// Open dials the transport for the target and writes the stream header.
// Every failure is a SinkConnect error and leaves nothing open.
func Open(ctx context.Context, opts OpenOptions) (Sink, error) {
	transport, err := openTransport(ctx, opts.Target)
	if err != nil {
		return nil, media.NewError(media.KindSinkConnect, "recording", "open",
			fmt.Sprintf("failed to open %s", opts.Target), err)
	}

	stream, err := NewStream(transport, opts.RecordingID, opts.SessionID)
	if err != nil {
		transport.Close()
		return nil, media.NewError(media.KindSinkConnect, "recording", "open",
			fmt.Sprintf("failed to start stream on %s", transport.Name()), err)
	}

	return stream, nil
}

func openTransport(ctx context.Context, target Target) (Transport, error) {
	switch target.Mode {
	case OutputDisk:
		return NewFileTransport(target.Path)
	case OutputNetwork:
		if strings.HasPrefix(target.Address, "tcp://") || strings.HasPrefix(target.Address, "ipc://") {
			return NewZMQTransport(target.Address)
		}
		return NewWebSocketTransport(ctx, target.Address)
	case OutputSpawnViewer:
		return NewViewerTransport(target.Command)
	case OutputNone:
		return DiscardTransport{}, nil
	default:
		return nil, fmt.Errorf("unknown output mode %d", target.Mode)
	}
}
