package ingest

import (
	"context"
	"fmt"

	"bosun/internal/gateway"
	"bosun/internal/jobs"
	"bosun/internal/store"
	"bosun/pkg/logging"
)

type ItemInserter interface {
	InsertItem(ctx context.Context, it *store.Item) (string, error)
}

type UploadReport struct {
	Created int
	Failed  int
}

type Uploader struct {
	store   ItemInserter
	gateway gateway.ClientSource
	links   LinkTrigger
	logger  logging.Logger
}

func NewUploader(items ItemInserter, gw gateway.ClientSource, links LinkTrigger, logger logging.Logger) *Uploader {
	return &Uploader{store: items, gateway: gw, links: links, logger: logging.OrDiscard(logger)}
}

// UploadBatch inserts every item unverified, embedding where possible, then
// asks for a linking pass. Per-item insert failures are counted and skipped.
func (u *Uploader) UploadBatch(ctx context.Context, workspaceID, sourceID string, items []jobs.UploadItem) (UploadReport, error) {
	log := u.logger.WithFields(logging.Fields{"workspace_id": workspaceID, "source_id": sourceID})
	client, err := u.gateway.Client(ctx, workspaceID, gateway.RoleCoach)
	if err != nil {
		return UploadReport{}, fmt.Errorf("upload client: %w", err)
	}

	var report UploadReport
	for _, in := range items {
		it := &store.Item{
			WorkspaceID: workspaceID,
			Name:        in.Name,
			Content:     in.Content,
			Category:    in.Category,
			Meta:        in.Meta,
			ExpiresAt:   in.ExpiresAt,
			SourceID:    sourceID,
			Embedding:   embedOrNil(ctx, client, itemText(in.Name, in.Content), "upload", log),
		}
		if _, err := u.store.InsertItem(ctx, it); err != nil {
			report.Failed++
			log.WithError(err).WithField("item", in.Name).Error("Failed to insert uploaded item")
			continue
		}
		report.Created++
	}
	itemsCreated.WithLabelValues("upload").Add(float64(report.Created))

	if report.Created > 0 && u.links != nil {
		if err := u.links.Link(ctx, workspaceID); err != nil {
			log.WithError(err).Warn("Failed to trigger knowledge linking")
		}
	}
	log.WithFields(logging.Fields{"created": report.Created, "failed": report.Failed}).Info("Upload batch stored")
	return report, nil
}
