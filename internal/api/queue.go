package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Queue names the backend resource a labeling/validation cycle runs on,
// e.g. "splice".
type Queue string

func (q Queue) path(parts ...string) string {
	p := "/" + strings.Trim(string(q), "/")
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

// Clip is one audio segment handed out by a queue.
type Clip struct {
	ID       FlexID `json:"id"`
	AudioURL string `json:"audio_url,omitempty"`
	Text     string `json:"text,omitempty"`
	Label    string `json:"label,omitempty"`
	Status   string `json:"status,omitempty"`
}

// LabelRequest is the body of PUT .../label.
type LabelRequest struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// ValidationRequest is the body of PUT .../validate.
type ValidationRequest struct {
	ID      string `json:"id"`
	IsValid bool   `json:"is_valid"`
	Text    string `json:"text,omitempty"`
}

// NextToLabel fetches the next clip waiting for a transcript. It returns nil
// when the queue is empty.
func (c *Client) NextToLabel(ctx context.Context, q Queue) (*Clip, string, error) {
	return c.nextClip(ctx, q.path("to_label"))
}

// NextToValidate fetches the next labeled clip waiting for review.
func (c *Client) NextToValidate(ctx context.Context, q Queue) (*Clip, string, error) {
	return c.nextClip(ctx, q.path("to_validate"))
}

func (c *Client) nextClip(ctx context.Context, path string) (*Clip, string, error) {
	data, msg, err := c.getJSON(ctx, path)
	if err != nil {
		return nil, "", fmt.Errorf("GET %s: %w", path, err)
	}
	if data == nil {
		return nil, msg, nil
	}
	var clip Clip
	if err := json.Unmarshal(data, &clip); err != nil {
		return nil, "", fmt.Errorf("GET %s: decode: %w", path, err)
	}
	if clip.ID == "" {
		return nil, msg, nil
	}
	return &clip, msg, nil
}

// SubmitLabel sends a transcript for a clip. anonymous selects the
// .../label/anonymous endpoint for callers without a token.
func (c *Client) SubmitLabel(ctx context.Context, q Queue, req LabelRequest, anonymous bool) (string, error) {
	path := q.path("label")
	if anonymous {
		path = q.path("label", "anonymous")
	}
	msg, err := c.sendJSON(ctx, http.MethodPut, path, req)
	if err != nil {
		return "", fmt.Errorf("PUT %s: %w", path, err)
	}
	return msg, nil
}

// SubmitValidation records a review verdict for a clip.
func (c *Client) SubmitValidation(ctx context.Context, q Queue, req ValidationRequest, anonymous bool) (string, error) {
	path := q.path("validate")
	if anonymous {
		path = q.path("validate", "anonymous")
	}
	msg, err := c.sendJSON(ctx, http.MethodPut, path, req)
	if err != nil {
		return "", fmt.Errorf("PUT %s: %w", path, err)
	}
	return msg, nil
}

// DeleteClip removes a clip from the queue.
func (c *Client) DeleteClip(ctx context.Context, q Queue, id string) (string, error) {
	path := q.path()
	msg, err := c.sendJSON(ctx, http.MethodDelete, path, map[string]string{"id": id})
	if err != nil {
		return "", fmt.Errorf("DELETE %s: %w", path, err)
	}
	return msg, nil
}
