// Package wsmic is a capture.Microphone backed by a capture agent reachable
// over a websocket. The agent owns the physical device and streams encoded
// chunks as binary frames.
//
// Protocol (JSON text frames, binary frames are audio):
//
//	client: {"op":"open"}
//	agent:  {"op":"ready","mime":"audio/webm"} | {"op":"denied"} | {"op":"unsupported"}
//	client: {"op":"start"}
//	agent:  binary chunks...
//	client: {"op":"stop"}
//	agent:  remaining binary chunks, then {"op":"done"}
//	client: {"op":"release"}, then closes
package wsmic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tiroq/speechcollect/internal/capture"
	"github.com/tiroq/speechcollect/internal/diaglog"
)

// Control ops.
const (
	OpOpen        = "open"
	OpReady       = "ready"
	OpDenied      = "denied"
	OpUnsupported = "unsupported"
	OpStart       = "start"
	OpStop        = "stop"
	OpDone        = "done"
	OpError       = "error"
	OpRelease     = "release"
)

// Control is a text frame.
type Control struct {
	Op     string `json:"op"`
	MIME   string `json:"mime,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Mic dials a capture agent.
type Mic struct {
	url              string
	header           http.Header
	handshakeTimeout time.Duration
	dialer           *websocket.Dialer

	logger   *diaglog.Logger
	loggerMu sync.RWMutex
}

// New creates a Mic for the agent at url (ws:// or wss://).
func New(url string) *Mic {
	return &Mic{
		url:              url,
		header:           http.Header{},
		handshakeTimeout: 10 * time.Second,
		dialer:           websocket.DefaultDialer,
	}
}

// SetLogger injects a diaglog.Logger.
func (m *Mic) SetLogger(l *diaglog.Logger) {
	m.loggerMu.Lock()
	m.logger = l
	m.loggerMu.Unlock()
}

func (m *Mic) log(entry diaglog.LogEntry) {
	m.loggerMu.RLock()
	l := m.logger
	m.loggerMu.RUnlock()
	entry.Component = diaglog.ComponentWSMic
	l.Log(entry)
}

// Name implements capture.Microphone.
func (m *Mic) Name() string { return "ws:" + m.url }

// Open dials the agent and asks for the device. A refused dial means no
// capture agent is running, which maps to capture.ErrUnsupportedEnvironment.
func (m *Mic) Open(ctx context.Context) (capture.Stream, error) {
	ctx, cancel := context.WithTimeout(ctx, m.handshakeTimeout)
	defer cancel()

	conn, _, err := m.dialer.DialContext(ctx, m.url, m.header)
	if err != nil {
		return nil, fmt.Errorf("%w: dial capture agent: %v", capture.ErrUnsupportedEnvironment, err)
	}
	m.log(diaglog.LogEntry{Event: diaglog.EventWSConnect, Payload: map[string]interface{}{"url": m.url}})

	s := &stream{
		mic:      m,
		conn:     conn,
		chunks:   make(chan []byte, 64),
		ctrl:     make(chan Control, 1),
		readErr:  make(chan error, 1),
		released: make(chan struct{}),
	}
	go s.readMessages()

	if err := s.send(Control{Op: OpOpen}); err != nil {
		s.Release()
		return nil, fmt.Errorf("send open: %w", err)
	}

	select {
	case c := <-s.ctrl:
		switch c.Op {
		case OpReady:
			s.mime = c.MIME
			return s, nil
		case OpDenied:
			s.Release()
			return nil, fmt.Errorf("%w: %s", capture.ErrPermissionDenied, c.Reason)
		case OpUnsupported:
			s.Release()
			return nil, fmt.Errorf("%w: %s", capture.ErrUnsupportedEnvironment, c.Reason)
		default:
			s.Release()
			return nil, fmt.Errorf("unexpected %q from capture agent", c.Op)
		}
	case err := <-s.readErr:
		s.Release()
		return nil, fmt.Errorf("capture agent closed during open: %w", err)
	case <-ctx.Done():
		s.Release()
		return nil, fmt.Errorf("timeout waiting for capture agent: %w", ctx.Err())
	}
}

// stream is one agent connection. readMessages is the only reader and the
// only goroutine that closes chunks.
type stream struct {
	mic  *Mic
	conn *websocket.Conn
	mime string

	writeMu sync.Mutex

	chunks  chan []byte
	ctrl    chan Control
	readErr chan error

	mu      sync.Mutex
	failure error

	releaseOnce sync.Once
	released    chan struct{} // closed by Release; unblocks a pending chunk send
}

func (s *stream) send(c Control) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(c)
}

func (s *stream) readMessages() {
	closed := false
	closeChunks := func() {
		if !closed {
			closed = true
			close(s.chunks)
		}
	}
	defer closeChunks()

	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) && !errors.Is(err, websocket.ErrCloseSent) {
				s.fail(err)
			}
			select {
			case s.readErr <- err:
			default:
			}
			s.mic.log(diaglog.LogEntry{Event: diaglog.EventWSDisconnect, Reason: err.Error()})
			return
		}

		switch kind {
		case websocket.BinaryMessage:
			if closed || len(data) == 0 {
				continue
			}
			select {
			case s.chunks <- data:
			case <-s.released:
				// Nobody drains chunks of a released stream.
				return
			}
		case websocket.TextMessage:
			var c Control
			if err := json.Unmarshal(data, &c); err != nil {
				continue
			}
			switch c.Op {
			case OpDone:
				closeChunks()
			case OpError:
				s.fail(errors.New(c.Reason))
				closeChunks()
			default:
				select {
				case s.ctrl <- c:
				default:
				}
			}
		}
	}
}

func (s *stream) fail(err error) {
	s.mu.Lock()
	if s.failure == nil {
		s.failure = err
	}
	s.mu.Unlock()
}

// Err returns the first failure the agent reported.
func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

func (s *stream) Start() error {
	if err := s.send(Control{Op: OpStart}); err != nil {
		return fmt.Errorf("send start: %w", err)
	}
	return nil
}

func (s *stream) Chunks() <-chan []byte { return s.chunks }

func (s *stream) MIMEType() string { return s.mime }

func (s *stream) Stop() error {
	if err := s.Err(); err != nil {
		return fmt.Errorf("capture agent: %w", err)
	}
	if err := s.send(Control{Op: OpStop}); err != nil {
		return fmt.Errorf("send stop: %w", err)
	}
	return nil
}

func (s *stream) Release() {
	s.releaseOnce.Do(func() {
		close(s.released)
		_ = s.send(Control{Op: OpRelease})
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
}
