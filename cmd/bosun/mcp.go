package main

import (
	"context"
	"errors"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"bosun/internal/mcpspoke"
	"bosun/pkg/logging"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve ask_coach and search_knowledge over stdio MCP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			// stdout carries the protocol.
			logger := logging.NewLoggerWithService("bosun-mcp")
			logger.SetOutput(os.Stderr)
			logger.SetFormatter(&logrus.TextFormatter{DisableColors: true})
			a, err := newAppWithLogger(logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.openStore(ctx); err != nil {
				return err
			}
			if err := a.openRedis(ctx); err != nil {
				return err
			}
			agent, err := a.coachAgent()
			if err != nil {
				return err
			}
			gw, err := a.gatewayFactory()
			if err != nil {
				return err
			}

			srv := mcpspoke.NewServer(mcpspoke.Config{
				Coach:     agent,
				Retriever: a.retriever(),
				Gateway:   gw,
				Logger:    a.logger,
			})
			if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
