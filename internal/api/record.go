package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/tiroq/speechcollect/internal/diaglog"
	"github.com/tiroq/speechcollect/internal/session"
)

const (
	pathPromptText = "/record/text"
	pathUpload     = "/record/upload"
)

// promptResponse mirrors the prompt object returned by GET /record/text.
type promptResponse struct {
	ID         FlexID `json:"id"`
	PromptText string `json:"prompt_text"`
	Status     string `json:"status"`
}

// FetchPrompt returns the next prompt to read aloud, or nil when the backend
// has nothing to offer.
func (c *Client) FetchPrompt(ctx context.Context) (*session.Prompt, error) {
	data, msg, err := c.getJSON(ctx, pathPromptText)
	if err != nil {
		return nil, fmt.Errorf("fetch prompt: %w", err)
	}
	if data == nil {
		return nil, nil
	}

	var parsed promptResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("fetch prompt: decode: %w", err)
	}
	if parsed.ID == "" || parsed.PromptText == "" {
		return nil, nil
	}

	c.log(diaglog.LogEntry{
		Event:   diaglog.EventPromptFetched,
		Reason:  msg,
		Payload: map[string]interface{}{"id": string(parsed.ID), "status": parsed.Status},
	})
	return &session.Prompt{ID: string(parsed.ID), Text: parsed.PromptText, Status: parsed.Status}, nil
}

// Upload is one recording submission.
type Upload struct {
	TextSpliceID string
	SpokenText   string
	Filename     string // recording-<timestamp>.<ext>
	MIMEType     string
	Data         []byte
}

// UploadResult is the backend's answer to a successful upload.
type UploadResult struct {
	Message string
}

// UploadRecording posts the multipart form with fields text_splice_id,
// spoken_text and audio_file.
func (c *Client) UploadRecording(ctx context.Context, up Upload) (*UploadResult, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writer.WriteField("text_splice_id", up.TextSpliceID); err != nil {
		return nil, fmt.Errorf("multipart write: %w", err)
	}
	if err := writer.WriteField("spoken_text", up.SpokenText); err != nil {
		return nil, fmt.Errorf("multipart write: %w", err)
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="audio_file"; filename=%q`, up.Filename))
	contentType := up.MIMEType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(up.Data); err != nil {
		return nil, fmt.Errorf("copy audio data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("multipart write: %w", err)
	}

	_, body, err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        pathUpload,
		body:        buf.Bytes(),
		contentType: writer.FormDataContentType(),
	})
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", up.Filename, err)
	}
	_, msg, err := unwrap(body)
	if err != nil {
		// The upload went through; an unreadable body is not a failure.
		return &UploadResult{}, nil
	}
	return &UploadResult{Message: msg}, nil
}

// FlexID decodes ids the backend sends either as JSON strings or numbers.
type FlexID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *FlexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = FlexID(n.String())
	return nil
}
