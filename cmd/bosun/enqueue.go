package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newEnqueueCmd() *cobra.Command {
	var kind, payload string
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Publish a job to the jobs topic",
		Example: `  bosun enqueue --kind process --payload '{"interactionId":"..."}'
  bosun enqueue --kind upload_batch --payload @items.json
  cat job.json | bosun enqueue --kind link --payload -`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := readPayload(payload, cmd.InOrStdin())
			if err != nil {
				return err
			}

			a, err := newApp("bosun-cli")
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.openProducer(); err != nil {
				return err
			}
			if err := a.enqueuer.EnqueueRaw(cmd.Context(), kind, raw); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued %s job on %s\n", kind, a.cfg.KafkaJobsTopic)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "job kind: process, ingest, upload_batch or link")
	cmd.Flags().StringVar(&payload, "payload", "", "JSON payload, @file to read a file, or - for stdin")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("payload")
	return cmd
}

// readPayload resolves the --payload flag: inline JSON, @path, or - for stdin.
func readPayload(flag string, stdin io.Reader) ([]byte, error) {
	flag = strings.TrimSpace(flag)
	switch {
	case flag == "":
		return nil, fmt.Errorf("payload is empty")
	case flag == "-":
		raw, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return raw, nil
	case strings.HasPrefix(flag, "@"):
		raw, err := os.ReadFile(strings.TrimPrefix(flag, "@"))
		if err != nil {
			return nil, fmt.Errorf("read payload file: %w", err)
		}
		return raw, nil
	default:
		return []byte(flag), nil
	}
}
