package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const DefaultTimeout = 60 * time.Second

// HTTPInvoker posts requests as JSON to the agent endpoint.
type HTTPInvoker struct {
	client *resty.Client
	url    string
}

func NewHTTPInvoker(url string, timeout time.Duration) *HTTPInvoker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &HTTPInvoker{client: client, url: url}
}

func (h *HTTPInvoker) Invoke(ctx context.Context, req Request) (Response, error) {
	log.Printf("🤖 sending question to agent at %s (course %d, %d history messages)", h.url, req.MoodleCourseID, len(req.ChatHistory))
	resp, err := h.client.R().
		SetContext(ctx).
		SetBody(req).
		Post(h.url)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.IsError() {
		return Response{}, &StatusError{Code: resp.StatusCode(), Message: errorMessage(resp.Body())}
	}
	return decodeResponse(resp.Body())
}

// errorMessage prefers the agent's {"error": "..."} field over the raw body.
func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
