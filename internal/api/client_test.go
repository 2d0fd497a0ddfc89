package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// testContext returns a context canceled when the test finishes
// (equivalent of testing.T.Context, which requires Go 1.24).
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

// newTestClient points a Client at ts with fast retries.
func newTestClient(ts *httptest.Server, token string) *Client {
	c := NewClient(Config{BaseURL: ts.URL, TimeoutSeconds: 5, Retries: 2}, StaticToken(token))
	c.backoffBase = time.Millisecond
	return c
}

func TestFetchPrompt_Envelope(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/record/text" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("expected bearer token, got %q", got)
		}
		fmt.Fprint(w, `{"data":{"id":42,"prompt_text":"the quick brown fox","status":"pending"},"message":"ok"}`)
	}))
	defer ts.Close()

	p, err := newTestClient(ts, "tok").FetchPrompt(testContext(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected a prompt")
	}
	if p.ID != "42" || p.Text != "the quick brown fox" || p.Status != "pending" {
		t.Errorf("unexpected prompt %+v", p)
	}
}

func TestFetchPrompt_BareObjectStringID(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("anonymous client must not send Authorization")
		}
		fmt.Fprint(w, `{"id":"abc","prompt_text":"hello"}`)
	}))
	defer ts.Close()

	p, err := newTestClient(ts, "").FetchPrompt(testContext(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil || p.ID != "abc" {
		t.Fatalf("unexpected prompt %+v", p)
	}
}

func TestFetchPrompt_NoPrompt(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"no content", http.StatusNoContent, ""},
		{"null data", http.StatusOK, `{"data":null,"message":"nothing left"}`},
		{"empty body", http.StatusOK, ""},
		{"missing id", http.StatusOK, `{"data":{"prompt_text":"x"}}`},
		{"missing text", http.StatusOK, `{"data":{"id":1}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				fmt.Fprint(w, tc.body)
			}))
			defer ts.Close()

			p, err := newTestClient(ts, "").FetchPrompt(testContext(t))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p != nil {
				t.Errorf("expected no prompt, got %+v", p)
			}
		})
	}
}

func TestUploadRecording_MultipartFields(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/record/upload" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("text_splice_id"); got != "7" {
			t.Errorf("text_splice_id = %q", got)
		}
		if got := r.FormValue("spoken_text"); got != "hello" {
			t.Errorf("spoken_text = %q", got)
		}
		file, header, err := r.FormFile("audio_file")
		if err != nil {
			t.Fatalf("expected audio_file: %v", err)
		}
		defer file.Close()
		if header.Filename != "recording-1.wav" {
			t.Errorf("filename = %q", header.Filename)
		}
		if ct := header.Header.Get("Content-Type"); ct != "audio/wav" {
			t.Errorf("part content type = %q", ct)
		}
		data, _ := io.ReadAll(file)
		if string(data) != "RIFFdata" {
			t.Errorf("audio data = %q", data)
		}
		fmt.Fprint(w, `{"message":"Recording saved"}`)
	}))
	defer ts.Close()

	res, err := newTestClient(ts, "tok").UploadRecording(testContext(t), Upload{
		TextSpliceID: "7",
		SpokenText:   "hello",
		Filename:     "recording-1.wav",
		MIMEType:     "audio/wav",
		Data:         []byte("RIFFdata"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Message != "Recording saved" {
		t.Errorf("message = %q", res.Message)
	}
}

func TestUploadRecording_BackendMessageOn4xx(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"detail":"audio too short"}`)
	}))
	defer ts.Close()

	_, err := newTestClient(ts, "tok").UploadRecording(testContext(t), Upload{Filename: "r.wav", Data: []byte("x")})
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusUnprocessableEntity || apiErr.Message != "audio too short" {
		t.Errorf("unexpected error %+v", apiErr)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("4xx must not be retried, got %d calls", n)
	}
}

func TestRetryOn5xx(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"data":{"id":1,"prompt_text":"ok"}}`)
	}))
	defer ts.Close()

	p, err := newTestClient(ts, "").FetchPrompt(testContext(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil || p.ID != "1" {
		t.Fatalf("unexpected prompt %+v", p)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("expected 3 calls, got %d", n)
	}
}

func TestRetriesExhausted(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"message":"maintenance"}`)
	}))
	defer ts.Close()

	_, err := newTestClient(ts, "").FetchPrompt(testContext(t))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "retries exhausted") {
		t.Errorf("unexpected error: %v", err)
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Message != "maintenance" {
		t.Errorf("expected wrapped backend error, got %v", err)
	}
	// Retries: 2 means one initial attempt plus two retries.
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("expected 3 calls, got %d", n)
	}
}

func TestQueueEndpoints(t *testing.T) {
	type seen struct {
		method string
		path   string
		body   map[string]interface{}
	}
	var got []seen
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := seen{method: r.Method, path: r.URL.Path}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&s.body)
		}
		got = append(got, s)
		switch r.URL.Path {
		case "/splice/to_label":
			fmt.Fprint(w, `{"data":{"id":9,"audio_url":"https://cdn/x.wav"}}`)
		case "/splice/to_validate":
			w.WriteHeader(http.StatusNoContent)
		default:
			fmt.Fprint(w, `{"message":"done"}`)
		}
	}))
	defer ts.Close()

	c := newTestClient(ts, "tok")
	ctx := testContext(t)
	q := Queue("splice")

	clip, _, err := c.NextToLabel(ctx, q)
	if err != nil || clip == nil || clip.ID != "9" || clip.AudioURL != "https://cdn/x.wav" {
		t.Fatalf("NextToLabel = %+v, %v", clip, err)
	}
	clip, _, err = c.NextToValidate(ctx, q)
	if err != nil || clip != nil {
		t.Fatalf("NextToValidate on empty queue = %+v, %v", clip, err)
	}
	msg, err := c.SubmitLabel(ctx, q, LabelRequest{ID: "9", Text: "hi"}, true)
	if err != nil || msg != "done" {
		t.Fatalf("SubmitLabel = %q, %v", msg, err)
	}
	if _, err := c.SubmitValidation(ctx, q, ValidationRequest{ID: "9", IsValid: true}, false); err != nil {
		t.Fatalf("SubmitValidation: %v", err)
	}
	if _, err := c.DeleteClip(ctx, q, "9"); err != nil {
		t.Fatalf("DeleteClip: %v", err)
	}

	want := []struct{ method, path string }{
		{http.MethodGet, "/splice/to_label"},
		{http.MethodGet, "/splice/to_validate"},
		{http.MethodPut, "/splice/label/anonymous"},
		{http.MethodPut, "/splice/validate"},
		{http.MethodDelete, "/splice"},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d requests, got %d", len(want), len(got))
	}
	for i, w := range want {
		if got[i].method != w.method || got[i].path != w.path {
			t.Errorf("request %d = %s %s, want %s %s", i, got[i].method, got[i].path, w.method, w.path)
		}
	}
	if got[2].body["text"] != "hi" {
		t.Errorf("label body = %v", got[2].body)
	}
	if got[3].body["is_valid"] != true {
		t.Errorf("validate body = %v", got[3].body)
	}
	if got[4].body["id"] != "9" {
		t.Errorf("delete body = %v", got[4].body)
	}
}

func TestFlexID(t *testing.T) {
	cases := map[string]string{
		`12`:    "12",
		`"ab"`:  "ab",
		`null`:  "",
		`1.5e3`: "1.5e3",
	}
	for in, want := range cases {
		var id FlexID
		if err := json.Unmarshal([]byte(in), &id); err != nil {
			t.Errorf("%s: %v", in, err)
			continue
		}
		if string(id) != want {
			t.Errorf("%s: got %q, want %q", in, id, want)
		}
	}
}

func TestAuthenticated(t *testing.T) {
	if NewClient(Config{}, nil).Authenticated(testContext(t)) {
		t.Error("nil token source must be anonymous")
	}
	if !NewClient(Config{}, StaticToken("x")).Authenticated(testContext(t)) {
		t.Error("static token must authenticate")
	}
}
