package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
)

// Upload is one multipart submission received by MockBackend.
type Upload struct {
	TextSpliceID  string
	SpokenText    string
	Filename      string
	ContentType   string
	Data          []byte
	Authorization string
}

// MockBackend simulates the speech collection REST API.
type MockBackend struct {
	*httptest.Server

	mu        sync.Mutex
	prompts   []map[string]interface{}
	uploads   []Upload
	failCode  int
	failBody  string
	queueBody map[string]string
	requests  int64
}

// NewMockBackend starts the server. Call Close when done.
func NewMockBackend() *MockBackend {
	m := &MockBackend{queueBody: make(map[string]string)}
	mux := http.NewServeMux()
	mux.HandleFunc("/record/text", m.handlePrompt)
	mux.HandleFunc("/record/upload", m.handleUpload)
	mux.HandleFunc("/", m.handleQueue)
	m.Server = httptest.NewServer(countRequests(&m.requests, mux))
	return m
}

func countRequests(n *int64, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(n, 1)
		next.ServeHTTP(w, r)
	})
}

// QueuePrompt appends a prompt served by GET /record/text, in order.
func (m *MockBackend) QueuePrompt(id interface{}, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, map[string]interface{}{"id": id, "prompt_text": text, "status": "pending"})
}

// FailUploads makes POST /record/upload answer with code and body. A zero
// code restores success.
func (m *MockBackend) FailUploads(code int, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failCode = code
	m.failBody = body
}

// SetQueueResponse fixes the body served for a queue path such as
// "/splice/to_label".
func (m *MockBackend) SetQueueResponse(path, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queueBody[path] = body
}

// Uploads returns the received submissions.
func (m *MockBackend) Uploads() []Upload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Upload(nil), m.uploads...)
}

// Requests returns the number of HTTP requests served.
func (m *MockBackend) Requests() int {
	return int(atomic.LoadInt64(&m.requests))
}

func (m *MockBackend) handlePrompt(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	p := m.prompts[0]
	m.prompts = m.prompts[1:]
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": p, "message": "ok"})
}

func (m *MockBackend) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}
	up := Upload{
		TextSpliceID:  r.FormValue("text_splice_id"),
		SpokenText:    r.FormValue("spoken_text"),
		Authorization: r.Header.Get("Authorization"),
	}
	if file, header, err := r.FormFile("audio_file"); err == nil {
		up.Filename = header.Filename
		up.ContentType = header.Header.Get("Content-Type")
		up.Data, _ = io.ReadAll(file)
		file.Close()
	}

	m.mu.Lock()
	code, body := m.failCode, m.failBody
	if code == 0 {
		m.uploads = append(m.uploads, up)
	}
	m.mu.Unlock()

	if code != 0 {
		w.WriteHeader(code)
		fmt.Fprint(w, body)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Recording saved"})
}

func (m *MockBackend) handleQueue(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	body, ok := m.queueBody[r.URL.Path]
	m.mu.Unlock()
	switch {
	case ok:
		fmt.Fprint(w, body)
	case strings.HasSuffix(r.URL.Path, "/to_label"), strings.HasSuffix(r.URL.Path, "/to_validate"):
		w.WriteHeader(http.StatusNoContent)
	default:
		writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
