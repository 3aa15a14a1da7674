package main

import (
	"github.com/spf13/cobra"

	"bosun/internal/coachapi"
	"bosun/pkg/monitoring"
	"bosun/pkg/server"
	"bosun/pkg/version"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the coach HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			const service = "bosun-api"
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := newApp(service)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.cfg.Require("DATABASE_URL", "JWT_SECRET"); err != nil {
				return err
			}
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

			hc := monitoring.NewHealthChecker(service, version.Version)
			hc.AddCheck("database", monitoring.DatabaseHealthCheck(a.db))
			hc.AddCheck("kafka_producer", monitoring.KafkaHealthCheck("producer", a.producer))
			if a.redis != nil {
				hc.AddCheck("redis", monitoring.RedisHealthCheck(a.redis))
			}
			hc.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
				"DATABASE_URL": a.cfg.DatabaseURL,
				"JWT_SECRET":   a.cfg.JWTSecret,
			}))
			mc := monitoring.NewMetricsCollector(service, version.Version)

			router := server.SetupServiceRouter(a.logger, service, hc, mc)
			coachapi.NewHandler(agent, a.logger).Register(router, []byte(a.cfg.JWTSecret), a.cfg.ServiceToken)

			return server.Start(ctx, server.DefaultConfig(service, a.cfg.Port), router, a.logger)
		},
	}
}
