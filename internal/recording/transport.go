package recording

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pebbe/zmq4"
	"github.com/sirupsen/logrus"

	"github.com/open-beagle/framesink/internal/config"
)

// FileTransport writes a CBOR record sequence to a file
type FileTransport struct {
	path   string
	file   *os.File
	writer *bufio.Writer
}

// NewFileTransport creates or truncates the output file
func NewFileTransport(path string) (*FileTransport, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &FileTransport{
		path:   path,
		file:   file,
		writer: bufio.NewWriterSize(file, 1<<20),
	}, nil
}

func (t *FileTransport) Name() string { return "file " + t.path }

func (t *FileTransport) WriteRecord(data []byte) error {
	_, err := t.writer.Write(data)
	return err
}

// Close flushes and syncs the file before closing it
func (t *FileTransport) Close() error {
	if err := t.writer.Flush(); err != nil {
		t.file.Close()
		return err
	}
	if err := t.file.Sync(); err != nil {
		t.file.Close()
		return err
	}
	return t.file.Close()
}

// WebSocketTransport sends one binary message per record
type WebSocketTransport struct {
	url  string
	conn *websocket.Conn
}

// NewWebSocketTransport dials address, a ws:// or wss:// URL or a bare host:port
func NewWebSocketTransport(ctx context.Context, address string) (*WebSocketTransport, error) {
	target, err := websocketURL(address)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, resp, err := dialer.DialContext(ctx, target, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", target, err)
	}

	return &WebSocketTransport{url: target, conn: conn}, nil
}

func websocketURL(address string) (string, error) {
	if !strings.Contains(address, "://") {
		address = "ws://" + address
	}
	u, err := url.Parse(address)
	if err != nil {
		return "", fmt.Errorf("invalid network address %q: %w", address, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("unsupported websocket scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("network address %q has no host", address)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), nil
}

func (t *WebSocketTransport) Name() string { return "websocket " + t.url }

func (t *WebSocketTransport) WriteRecord(data []byte) error {
	return t.conn.WriteMessage(websocket.BinaryMessage, data)
}

// Close sends a close frame before closing the connection
func (t *WebSocketTransport) Close() error {
	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session stopped")
	_ = t.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	return t.conn.Close()
}

// ZMQTransport pushes records on a ZeroMQ PUSH socket
type ZMQTransport struct {
	endpoint string
	socket   *zmq4.Socket
}

// NewZMQTransport connects a PUSH socket to endpoint (tcp:// or ipc://)
func NewZMQTransport(endpoint string) (*ZMQTransport, error) {
	socket, err := zmq4.NewSocket(zmq4.PUSH)
	if err != nil {
		return nil, err
	}
	if err := socket.SetLinger(time.Second); err != nil {
		_ = socket.Close()
		return nil, err
	}
	if err := socket.Connect(endpoint); err != nil {
		_ = socket.Close()
		return nil, fmt.Errorf("failed to connect %s: %w", endpoint, err)
	}
	return &ZMQTransport{endpoint: endpoint, socket: socket}, nil
}

func (t *ZMQTransport) Name() string { return "zmq " + t.endpoint }

func (t *ZMQTransport) WriteRecord(data []byte) error {
	_, err := t.socket.SendBytes(data, 0)
	return err
}

func (t *ZMQTransport) Close() error {
	return t.socket.Close()
}

// ViewerTransport streams records into the stdin of a viewer process
type ViewerTransport struct {
	command []string
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	logger  *logrus.Entry

	once    sync.Once
	waitErr error
}

// NewViewerTransport starts the viewer process with a piped stdin
func NewViewerTransport(command []string) (*ViewerTransport, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("viewer command is empty")
	}

	cmd := exec.Command(command[0], command[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("error getting viewer stdin: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("error starting viewer %s: %w", command[0], err)
	}

	return &ViewerTransport{
		command: command,
		cmd:     cmd,
		stdin:   stdin,
		logger:  config.GetLoggerWithPrefix("recording-viewer"),
	}, nil
}

func (t *ViewerTransport) Name() string { return "viewer " + t.command[0] }

func (t *ViewerTransport) WriteRecord(data []byte) error {
	_, err := t.stdin.Write(data)
	return err
}

// Close closes stdin and waits for the viewer to exit
func (t *ViewerTransport) Close() error {
	t.once.Do(func() {
		t.stdin.Close()
		t.logger.Debug("Waiting for viewer shutdown")
		t.waitErr = t.cmd.Wait()
		t.logger.Debugf("Viewer exit with status %v", t.waitErr)
	})
	return t.waitErr
}

// DiscardTransport drops every record
type DiscardTransport struct{}

func (DiscardTransport) Name() string             { return "discard" }
func (DiscardTransport) WriteRecord([]byte) error { return nil }
func (DiscardTransport) Close() error             { return nil }
