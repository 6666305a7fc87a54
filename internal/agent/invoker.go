package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnavailable covers timeouts and transport failures: no answer was received.
	ErrUnavailable = errors.New("agent service unavailable")
	// ErrMalformedResponse means the agent answered without an output field.
	ErrMalformedResponse = errors.New("agent response has no output")
)

// StatusError is a non-2xx answer from the agent.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("agent returned status %d: %s", e.Code, e.Message)
}

// Invoker sends one request to the agent. Implementations never retry.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (Response, error)
}

// decodeResponse requires a string "output" field.
func decodeResponse(body []byte) (Response, error) {
	var raw struct {
		Output *string `json:"output"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if raw.Output == nil {
		return Response{}, ErrMalformedResponse
	}
	return Response{Output: *raw.Output}, nil
}
