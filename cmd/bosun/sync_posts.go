package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"bosun/internal/platform"
	"bosun/internal/store"
	"bosun/pkg/logging"
)

type postSource interface {
	RecentPosts(ctx context.Context, workspaceID string, limit int) ([]platform.Post, error)
}

type postUpserter interface {
	UpsertPost(ctx context.Context, p *store.Post) (string, error)
}

type ingestQueue interface {
	Ingest(ctx context.Context, workspaceID, postID string) error
}

func newSyncPostsCmd() *cobra.Command {
	var workspaceID string
	var limit int
	cmd := &cobra.Command{
		Use:   "sync-posts",
		Short: "Pull recent platform posts and queue them for knowledge extraction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := newApp("bosun-cli")
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.cfg.Require("PLATFORM_API_URL"); err != nil {
				return err
			}
			if err := a.openStore(ctx); err != nil {
				return err
			}
			if err := a.openProducer(); err != nil {
				return err
			}
			queued, err := syncPosts(ctx, a.httpMessenger(), a.store, a.enqueuer, workspaceID, limit, a.logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued %d posts for ingestion\n", queued)
			return nil
		},
	}
	cmd.Flags().StringVar(&workspaceID, "workspace", "", "workspace id")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of recent posts to pull")
	_ = cmd.MarkFlagRequired("workspace")
	return cmd
}

// syncPosts stores each recent post and queues an ingest job for it. A post
// that fails to store or queue is logged and skipped.
func syncPosts(ctx context.Context, src postSource, posts postUpserter, queue ingestQueue, workspaceID string, limit int, logger logging.Logger) (int, error) {
	logger = logging.OrDiscard(logger)
	recent, err := src.RecentPosts(ctx, workspaceID, limit)
	if err != nil {
		return 0, fmt.Errorf("fetch recent posts: %w", err)
	}
	queued := 0
	for _, rp := range recent {
		log := logger.WithField("platform_post_id", rp.ID)
		id, err := posts.UpsertPost(ctx, &store.Post{
			WorkspaceID:    workspaceID,
			PlatformPostID: rp.ID,
			Caption:        rp.Caption,
			Content:        rp.Content,
		})
		if err != nil {
			log.WithError(err).Warn("Failed to store post")
			continue
		}
		if err := queue.Ingest(ctx, workspaceID, id); err != nil {
			log.WithError(err).Warn("Failed to queue post ingestion")
			continue
		}
		queued++
	}
	return queued, nil
}
