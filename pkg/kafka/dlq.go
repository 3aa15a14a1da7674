package kafka

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// DLQPayload wraps a dead-lettered record. JSON values are embedded as-is so
// the failed job can be read straight off the topic; anything else is base64.
type DLQPayload struct {
	Topic       string            `json:"topic"`
	Partition   int32             `json:"partition"`
	Offset      int64             `json:"offset"`
	Timestamp   time.Time         `json:"timestamp"`
	Key         string            `json:"key,omitempty"`
	Kind        string            `json:"kind,omitempty"`
	JobID       string            `json:"job_id,omitempty"`
	WorkspaceID string            `json:"workspace_id,omitempty"`
	Value       json.RawMessage   `json:"value,omitempty"`
	ValueBase64 string            `json:"value_base64,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Error       string            `json:"error"`
	Consumer    string            `json:"consumer"`
	FailedAt    time.Time         `json:"failed_at"`
}

// EncodeDLQMessage builds the DLQ record for msg. The job headers set by
// the enqueuer (kind, job_id, workspace_id) are lifted to top-level fields.
func EncodeDLQMessage(msg Message, cause error, consumer string) ([]byte, error) {
	payload := DLQPayload{
		Topic:       msg.Topic,
		Partition:   msg.Partition,
		Offset:      msg.Offset,
		Timestamp:   msg.Timestamp,
		Key:         string(msg.Key),
		Kind:        msg.Headers["kind"],
		JobID:       msg.Headers["job_id"],
		WorkspaceID: msg.Headers["workspace_id"],
		Headers:     msg.Headers,
		Consumer:    consumer,
		FailedAt:    time.Now().UTC(),
	}
	if json.Valid(msg.Value) {
		payload.Value = json.RawMessage(msg.Value)
	} else {
		payload.ValueBase64 = base64.StdEncoding.EncodeToString(msg.Value)
	}
	if cause != nil {
		payload.Error = cause.Error()
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal dlq payload: %w", err)
	}
	return b, nil
}
