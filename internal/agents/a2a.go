package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// MessageType is the kind of an A2A message.
type MessageType string

// A2A message types.
const (
	MessageTask   MessageType = "task"
	MessageStatus MessageType = "status"
	MessageResult MessageType = "result"
	MessageError  MessageType = "error"
)

// Message is the A2A envelope. Replies name the task they answer in ReplyTo.
type Message struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
	ReplyTo   string          `json:"reply_to,omitempty"`
}

type a2aTransport struct {
	client *resty.Client
	from   string
	now    func() time.Time
}

// NewA2ATransport posts a task envelope to {endpoint}/a2a and reads a stream
// of status, result, and error replies.
func NewA2ATransport(client *resty.Client, from string) Transport {
	return &a2aTransport{client: client, from: from, now: time.Now}
}

func (t *a2aTransport) Invoke(ctx context.Context, call Call, progress func(string)) (map[string]any, error) {
	payload, err := json.Marshal(map[string]any{
		"run_id": call.RunID,
		"input":  call.Input,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal task payload: %w", err)
	}

	task := Message{
		ID:        uuid.NewString(),
		Type:      MessageTask,
		From:      t.from,
		To:        call.Agent.Name,
		Payload:   payload,
		Timestamp: t.now().UTC(),
	}

	body, err := open(ctx, t.client, strings.TrimSuffix(call.Agent.Endpoint, "/")+"/a2a", task)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	dec := json.NewDecoder(body)
	for {
		var msg Message
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: stream ended without a result", ErrAgentFailed)
			}
			return nil, fmt.Errorf("%w: read stream: %w", ErrAgentFailed, err)
		}
		if msg.ReplyTo != task.ID {
			continue
		}

		switch msg.Type {
		case MessageStatus:
			progress(text(msg.Payload, "message"))
		case MessageResult:
			return decodeOutput(msg.Payload)
		case MessageError:
			return nil, fmt.Errorf("%w: %s", ErrAgentFailed, text(msg.Payload, "error"))
		}
	}
}

// text reads a payload that is either a bare string or an object carrying
// the message under key.
func text(raw json.RawMessage, key string) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		if v, ok := obj[key].(string); ok {
			return v
		}
	}
	return string(raw)
}
