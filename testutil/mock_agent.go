package testutil

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Agent behaviours.
const (
	AgentNormal      = "normal"
	AgentDenied      = "denied"
	AgentUnsupported = "unsupported"
	AgentDisconnect  = "disconnect" // drop the connection on stop without "done"
	AgentNoDone      = "no_done"    // keep the connection but never answer stop
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// MockAgent simulates a websocket capture agent.
type MockAgent struct {
	listener net.Listener
	server   *http.Server

	mu        sync.Mutex
	mode      string
	mime      string
	chunks    [][]byte
	ops       []string
	connected bool
}

// NewMockAgent creates an agent that streams chunks after start.
func NewMockAgent(mime string, chunks ...[]byte) *MockAgent {
	return &MockAgent{mode: AgentNormal, mime: mime, chunks: chunks}
}

// Start begins listening on a dynamic port.
func (m *MockAgent) Start() error {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	m.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/", m.handleWebSocket)
	m.server = &http.Server{Handler: mux}
	go func() {
		_ = m.server.Serve(m.listener)
	}()
	return nil
}

// Stop shuts the server down.
func (m *MockAgent) Stop() {
	if m.server != nil {
		_ = m.server.Close()
	}
}

// URL returns the ws:// address of the agent.
func (m *MockAgent) URL() string {
	return "ws://" + m.listener.Addr().String() + "/mic"
}

// SetMode changes how the agent answers.
func (m *MockAgent) SetMode(mode string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
}

// Ops returns the control ops received so far.
func (m *MockAgent) Ops() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ops...)
}

// Connected reports whether a client is currently connected.
func (m *MockAgent) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

type agentControl struct {
	Op     string `json:"op"`
	MIME   string `json:"mime,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func (m *MockAgent) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.connected = false
		m.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var c agentControl
		if err := json.Unmarshal(data, &c); err != nil {
			continue
		}

		m.mu.Lock()
		m.ops = append(m.ops, c.Op)
		mode := m.mode
		chunks := m.chunks
		m.mu.Unlock()

		switch c.Op {
		case "open":
			reply := agentControl{Op: "ready", MIME: m.mime}
			switch mode {
			case AgentDenied:
				reply = agentControl{Op: "denied", Reason: "user dismissed prompt"}
			case AgentUnsupported:
				reply = agentControl{Op: "unsupported", Reason: "no input device"}
			}
			if err := conn.WriteJSON(reply); err != nil {
				return
			}
		case "start":
			// Half the chunks while recording, the rest flushed on stop.
			for _, chunk := range chunks[:len(chunks)/2] {
				if err := conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
					return
				}
			}
		case "stop":
			switch mode {
			case AgentDisconnect:
				return
			case AgentNoDone:
				continue
			}
			for _, chunk := range chunks[len(chunks)/2:] {
				if err := conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
					return
				}
			}
			if err := conn.WriteJSON(agentControl{Op: "done"}); err != nil {
				return
			}
		case "release":
			return
		}
	}
}
