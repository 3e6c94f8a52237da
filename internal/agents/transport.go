package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/atlas-erp/atlas/pkg/formatting"
)

// ErrAgentFailed wraps failures reported by, or while reaching, an agent.
var ErrAgentFailed = errors.New("agent call failed")

// Call is a single invocation handed to a transport.
type Call struct {
	RunID uuid.UUID
	Agent Agent
	Input map[string]any
}

// Transport reaches an agent over one protocol. progress must be called
// from the calling goroutine and never after Invoke returns.
type Transport interface {
	Invoke(ctx context.Context, call Call, progress func(string)) (map[string]any, error)
}

// Transports maps each protocol to its transport.
type Transports map[Protocol]Transport

// NewTransports builds the HTTP transports for both protocols on one client.
// Calls carry no client timeout; a run lasts as long as the agent streams.
func NewTransports(cfg Config) Transports {
	client := resty.New().
		SetHeader("Accept", "application/x-ndjson")

	return Transports{
		ProtocolLegacy: NewLegacyTransport(client),
		ProtocolA2A:    NewA2ATransport(client, cfg.FromID),
	}
}

type legacyTransport struct {
	client *resty.Client
}

// NewLegacyTransport posts {run_id, input} to the agent endpoint and reads
// a stream of {progress}, {output}, or {error} frames.
func NewLegacyTransport(client *resty.Client) Transport {
	return &legacyTransport{client: client}
}

type legacyFrame struct {
	Progress *string         `json:"progress,omitempty"`
	Output   json.RawMessage `json:"output,omitempty"`
	Error    *string         `json:"error,omitempty"`
}

func (t *legacyTransport) Invoke(ctx context.Context, call Call, progress func(string)) (map[string]any, error) {
	body, err := open(ctx, t.client, call.Agent.Endpoint, map[string]any{
		"run_id": call.RunID,
		"input":  call.Input,
	})
	if err != nil {
		return nil, err
	}
	defer body.Close()

	dec := json.NewDecoder(body)
	for {
		var f legacyFrame
		if err := dec.Decode(&f); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: stream ended without a result", ErrAgentFailed)
			}
			return nil, fmt.Errorf("%w: read stream: %w", ErrAgentFailed, err)
		}

		switch {
		case f.Error != nil:
			return nil, fmt.Errorf("%w: %s", ErrAgentFailed, *f.Error)
		case f.Output != nil:
			return decodeOutput(f.Output)
		case f.Progress != nil:
			progress(*f.Progress)
		}
	}
}

func open(ctx context.Context, client *resty.Client, url string, payload any) (io.ReadCloser, error) {
	resp, err := client.R().
		SetContext(ctx).
		SetBody(payload).
		SetDoNotParseResponse(true).
		Post(url)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrAgentFailed, url, err)
	}

	body := resp.RawBody()
	if resp.IsError() {
		defer body.Close()
		msg, _ := io.ReadAll(io.LimitReader(body, 4096))
		return nil, fmt.Errorf(
			"%w: %s returned %d: %s",
			ErrAgentFailed, url, resp.StatusCode(), strings.TrimSpace(string(msg)),
		)
	}
	return body, nil
}

// decodeOutput accepts an object, a string holding JSON (fenced or bare),
// or any other value.
func decodeOutput(raw json.RawMessage) (map[string]any, error) {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("%w: decode output: %w", ErrAgentFailed, err)
	}

	switch v := value.(type) {
	case map[string]any:
		return v, nil
	case string:
		if obj, err := formatting.Parse[map[string]any](v); err == nil && obj != nil {
			return obj, nil
		}
		return map[string]any{"text": v}, nil
	default:
		return map[string]any{"value": v}, nil
	}
}
