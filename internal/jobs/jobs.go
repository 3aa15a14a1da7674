// Package jobs defines the job envelope exchanged over Kafka and the
// producer-side helpers that enqueue work.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"bosun/internal/store"
	"bosun/pkg/kafka"
)

const (
	KindProcess     = "process"
	KindIngest      = "ingest"
	KindUploadBatch = "upload_batch"
	KindLink        = "link"
)

// ErrInvalidJob covers unknown kinds and payloads that fail to decode or validate.
var ErrInvalidJob = errors.New("invalid job")

type Job struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
}

type ProcessPayload struct {
	InteractionID string `json:"interactionId" validate:"required"`
}

type IngestPayload struct {
	PostID string `json:"postId" validate:"required"`
}

type LinkPayload struct {
	WorkspaceID string `json:"workspaceId" validate:"required"`
}

// UploadItem is one knowledge entry in an upload batch.
type UploadItem struct {
	Name      string         `json:"name" validate:"required"`
	Content   string         `json:"content" validate:"required"`
	Category  string         `json:"category"`
	Meta      store.ItemMeta `json:"meta"`
	ExpiresAt *time.Time     `json:"expiresAt,omitempty"`
}

type UploadBatchPayload struct {
	WorkspaceID string       `json:"workspaceId" validate:"required"`
	SourceID    string       `json:"sourceId"`
	Items       []UploadItem `json:"items" validate:"dive"`
}

var validate = validator.New()

// Decode parses a job envelope.
func Decode(data []byte) (Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return Job{}, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	if strings.TrimSpace(job.Kind) == "" {
		return Job{}, fmt.Errorf("%w: missing kind", ErrInvalidJob)
	}
	return job, nil
}

// DecodePayload unmarshals and validates the job payload into T.
func DecodePayload[T any](job Job) (T, error) {
	var p T
	if len(job.Payload) == 0 {
		return p, fmt.Errorf("%w: %s job has no payload", ErrInvalidJob, job.Kind)
	}
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return p, fmt.Errorf("%w: %s payload: %v", ErrInvalidJob, job.Kind, err)
	}
	if err := validate.Struct(p); err != nil {
		return p, fmt.Errorf("%w: %s payload: %v", ErrInvalidJob, job.Kind, err)
	}
	return p, nil
}

// Enqueuer publishes jobs to the jobs topic.
type Enqueuer struct {
	publisher kafka.Publisher
	topic     string
	now       func() time.Time
}

func NewEnqueuer(publisher kafka.Publisher, topic string) *Enqueuer {
	return &Enqueuer{publisher: publisher, topic: topic, now: time.Now}
}

// Enqueue publishes payload as a job of kind. Records sharing key land on the
// same partition and are handled in order.
func (e *Enqueuer) Enqueue(ctx context.Context, kind, key, workspaceID string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	job := Job{ID: uuid.NewString(), Kind: kind, Payload: raw, EnqueuedAt: e.now().UTC()}
	value, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	headers := map[string]string{"kind": kind, "job_id": job.ID}
	if workspaceID != "" {
		headers["workspace_id"] = workspaceID
	}
	if err := e.publisher.Produce(ctx, e.topic, []byte(key), value, headers); err != nil {
		return fmt.Errorf("enqueue %s job: %w", kind, err)
	}
	return nil
}

// Process enqueues interaction processing keyed by customer, so one
// customer's messages are handled sequentially.
func (e *Enqueuer) Process(ctx context.Context, workspaceID, customerID, interactionID string) error {
	key := customerID
	if key == "" {
		key = interactionID
	}
	return e.Enqueue(ctx, KindProcess, key, workspaceID, ProcessPayload{InteractionID: interactionID})
}

func (e *Enqueuer) Ingest(ctx context.Context, workspaceID, postID string) error {
	return e.Enqueue(ctx, KindIngest, postID, workspaceID, IngestPayload{PostID: postID})
}

func (e *Enqueuer) UploadBatch(ctx context.Context, p UploadBatchPayload) error {
	return e.Enqueue(ctx, KindUploadBatch, "link:"+p.WorkspaceID, p.WorkspaceID, p)
}

// Link shares the upload key so a workspace's linking passes never overlap.
func (e *Enqueuer) Link(ctx context.Context, workspaceID string) error {
	return e.Enqueue(ctx, KindLink, "link:"+workspaceID, workspaceID, LinkPayload{WorkspaceID: workspaceID})
}

// EnqueueRaw validates a hand-written payload for kind and enqueues it with
// the key the typed helpers would use. Process jobs have no customer here,
// so they are keyed by interaction.
func (e *Enqueuer) EnqueueRaw(ctx context.Context, kind string, payload []byte) error {
	job := Job{Kind: kind, Payload: payload}
	switch kind {
	case KindProcess:
		p, err := DecodePayload[ProcessPayload](job)
		if err != nil {
			return err
		}
		return e.Process(ctx, "", "", p.InteractionID)
	case KindIngest:
		p, err := DecodePayload[IngestPayload](job)
		if err != nil {
			return err
		}
		return e.Ingest(ctx, "", p.PostID)
	case KindUploadBatch:
		p, err := DecodePayload[UploadBatchPayload](job)
		if err != nil {
			return err
		}
		return e.UploadBatch(ctx, p)
	case KindLink:
		p, err := DecodePayload[LinkPayload](job)
		if err != nil {
			return err
		}
		return e.Link(ctx, p.WorkspaceID)
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidJob, kind)
	}
}
