package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmitrymomot/actkit/core/logger"
)

// Request is the wire form of a message sent to a remote listener.
type Request struct {
	ID      string  `json:"id"`
	ReplyTo string  `json:"reply_to,omitempty"`
	Msg     Message `json:"msg"`
}

// Response is the wire form of a remote reply.
type Response struct {
	ID    string `json:"id"`
	Out   any    `json:"out,omitempty"`
	Error string `json:"error,omitempty"`
}

// RemoteError is a failure reported by a remote listener.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// NewRequest wraps msg in a request with a fresh correlation id.
func NewRequest(msg Message, replyTo string) Request {
	return Request{ID: uuid.NewString(), ReplyTo: replyTo, Msg: msg}
}

// EncodeRequest marshals a request.
func EncodeRequest(req Request) ([]byte, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return data, nil
}

// DecodeRequest unmarshals a request.
func DecodeRequest(data []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Request{}, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

// EncodeResponse marshals the outcome of a served request.
// An output that cannot be marshaled is reported as a remote failure.
func EncodeResponse(id string, out any, err error) []byte {
	resp := Response{ID: id, Out: out}
	if err != nil {
		resp = Response{ID: id, Error: err.Error()}
	}
	data, mErr := json.Marshal(resp)
	if mErr != nil {
		data, _ = json.Marshal(Response{ID: id, Error: fmt.Sprintf("encode response: %v", mErr)})
	}
	return data
}

// DecodeResponse unmarshals a response into the act outcome.
func DecodeResponse(data []byte) (any, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.Error != "" {
		return nil, &RemoteError{Message: resp.Error}
	}
	return resp.Out, nil
}

// Handle decodes a request, serves it and encodes the response.
// The request id is stored in the serving context as the correlation id.
func Handle(ctx context.Context, serve ServeFunc, data []byte) (Request, []byte, error) {
	req, err := DecodeRequest(data)
	if err != nil {
		return Request{}, nil, err
	}
	out, err := serve(logger.WithCorrelationID(ctx, req.ID), req.Msg)
	return req, EncodeResponse(req.ID, out, err), nil
}
