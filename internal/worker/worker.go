// Package worker executes queued jobs: it decodes the envelope, routes it to
// the owning component and classifies failures for the consumer.
package worker

import (
	"context"
	"fmt"
	"time"

	"bosun/internal/ingest"
	"bosun/internal/jobs"
	"bosun/internal/orchestrator"
	"bosun/pkg/kafka"
	"bosun/pkg/logging"
)

type Processor interface {
	Process(ctx context.Context, interactionID string) (orchestrator.Outcome, error)
}

type Ingester interface {
	IngestPost(ctx context.Context, postID string) (ingest.IngestReport, error)
}

type Uploader interface {
	UploadBatch(ctx context.Context, workspaceID, sourceID string, items []jobs.UploadItem) (ingest.UploadReport, error)
}

type Linker interface {
	LinkAndVerifyKB(ctx context.Context, workspaceID string) (ingest.LinkReport, error)
}

type Config struct {
	Processor Processor
	Ingester  Ingester
	Uploader  Uploader
	Linker    Linker
	Logger    logging.Logger
	// JobTimeout bounds a single job; zero means no limit.
	JobTimeout time.Duration
}

type Worker struct {
	processor Processor
	ingester  Ingester
	uploader  Uploader
	linker    Linker
	logger    logging.Logger
	timeout   time.Duration
}

func New(cfg Config) *Worker {
	return &Worker{
		processor: cfg.Processor,
		ingester:  cfg.Ingester,
		uploader:  cfg.Uploader,
		linker:    cfg.Linker,
		logger:    logging.OrDiscard(cfg.Logger),
		timeout:   cfg.JobTimeout,
	}
}

// HandleMessage is the kafka.Handler for the jobs topic.
func (w *Worker) HandleMessage(ctx context.Context, msg kafka.Message) error {
	job, err := jobs.Decode(msg.Value)
	if err != nil {
		jobsTotal.WithLabelValues("unknown", "invalid").Inc()
		return Fatal(err)
	}
	return w.Handle(ctx, job)
}

// Handle runs one job. Errors satisfying IsFatal should not be retried.
func (w *Worker) Handle(ctx context.Context, job jobs.Job) error {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}
	log := w.logger.WithFields(logging.Fields{"job_id": job.ID, "kind": job.Kind})
	start := time.Now()

	err := w.dispatch(ctx, job, log)
	jobDuration.WithLabelValues(job.Kind).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		jobsTotal.WithLabelValues(job.Kind, "ok").Inc()
		return nil
	case IsFatal(err):
		jobsTotal.WithLabelValues(job.Kind, "fatal").Inc()
		log.WithError(err).Warn("Job failed permanently")
		return Fatal(err)
	default:
		jobsTotal.WithLabelValues(job.Kind, "retry").Inc()
		log.WithError(err).Error("Job failed, will retry")
		return err
	}
}

func (w *Worker) dispatch(ctx context.Context, job jobs.Job, log *logging.Entry) error {
	switch job.Kind {
	case jobs.KindProcess:
		p, err := jobs.DecodePayload[jobs.ProcessPayload](job)
		if err != nil {
			return err
		}
		if w.processor == nil {
			return Fatal(fmt.Errorf("no processor configured for %s jobs", job.Kind))
		}
		out, err := w.processor.Process(ctx, p.InteractionID)
		if err != nil {
			return err
		}
		log.WithFields(logging.Fields{"interaction_id": p.InteractionID, "status": out.Status, "escalated": out.Escalated}).
			Info("Interaction processed")
		return nil

	case jobs.KindIngest:
		p, err := jobs.DecodePayload[jobs.IngestPayload](job)
		if err != nil {
			return err
		}
		if w.ingester == nil {
			return Fatal(fmt.Errorf("no ingester configured for %s jobs", job.Kind))
		}
		_, err = w.ingester.IngestPost(ctx, p.PostID)
		return err

	case jobs.KindUploadBatch:
		p, err := jobs.DecodePayload[jobs.UploadBatchPayload](job)
		if err != nil {
			return err
		}
		if w.uploader == nil {
			return Fatal(fmt.Errorf("no uploader configured for %s jobs", job.Kind))
		}
		_, err = w.uploader.UploadBatch(ctx, p.WorkspaceID, p.SourceID, p.Items)
		return err

	case jobs.KindLink:
		p, err := jobs.DecodePayload[jobs.LinkPayload](job)
		if err != nil {
			return err
		}
		if w.linker == nil {
			return Fatal(fmt.Errorf("no linker configured for %s jobs", job.Kind))
		}
		_, err = w.linker.LinkAndVerifyKB(ctx, p.WorkspaceID)
		return err

	default:
		return fmt.Errorf("%w: unknown kind %q", jobs.ErrInvalidJob, job.Kind)
	}
}
