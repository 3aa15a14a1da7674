package kafka

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestEncodeDLQMessage(t *testing.T) {
	timestamp := time.Date(2026, 4, 5, 12, 30, 0, 0, time.UTC)
	msg := Message{
		Topic:     "bosun.jobs",
		Partition: 2,
		Offset:    42,
		Timestamp: timestamp,
		Key:       []byte("customer-1"),
		Value:     []byte(`{"kind":"reticulate","payload":{}}`),
		Headers: map[string]string{
			"kind":         "reticulate",
			"job_id":       "job-7",
			"workspace_id": "ws-123",
		},
	}

	payloadBytes, err := EncodeDLQMessage(msg, errors.New("unknown job kind"), "bosun-worker")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var payload DLQPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		t.Fatalf("failed to unmarshal payload: %v", err)
	}

	if payload.WorkspaceID != "ws-123" || payload.Kind != "reticulate" || payload.JobID != "job-7" {
		t.Fatalf("job headers not lifted: %+v", payload)
	}
	if payload.Topic != msg.Topic || payload.Partition != msg.Partition || payload.Offset != msg.Offset {
		t.Fatalf("payload topic/partition/offset mismatch")
	}
	if !payload.Timestamp.Equal(timestamp) {
		t.Fatalf("expected timestamp %v, got %v", timestamp, payload.Timestamp)
	}
	if payload.Error != "unknown job kind" || payload.Consumer != "bosun-worker" {
		t.Fatalf("unexpected error/consumer %q %q", payload.Error, payload.Consumer)
	}
	if payload.Key != "customer-1" {
		t.Fatalf("expected key customer-1, got %q", payload.Key)
	}
	if string(payload.Value) != string(msg.Value) || payload.ValueBase64 != "" {
		t.Fatalf("expected JSON value embedded, got %s / %q", payload.Value, payload.ValueBase64)
	}
}

func TestEncodeDLQMessageNonJSONValue(t *testing.T) {
	payloadBytes, err := EncodeDLQMessage(Message{Topic: "bosun.jobs", Value: []byte("not json")}, nil, "bosun-worker")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var payload DLQPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		t.Fatalf("failed to unmarshal payload: %v", err)
	}
	if payload.Key != "" || payload.Error != "" || payload.Value != nil {
		t.Fatalf("expected empty key, error and value, got %+v", payload)
	}
	raw, err := base64.StdEncoding.DecodeString(payload.ValueBase64)
	if err != nil || string(raw) != "not json" {
		t.Fatalf("expected base64 value, got %q (%v)", raw, err)
	}
}
