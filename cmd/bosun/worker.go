package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"bosun/internal/ingest"
	"bosun/internal/worker"
	"bosun/pkg/kafka"
	"bosun/pkg/monitoring"
	"bosun/pkg/server"
	"bosun/pkg/version"
)

func newWorkerCmd() *cobra.Command {
	var metricsPort string
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume jobs from Kafka and run them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return runWorker(ctx, metricsPort)
		},
	}
	cmd.Flags().StringVar(&metricsPort, "metrics-port", "9090", "port for /health and /metrics")
	return cmd
}

func runWorker(ctx context.Context, metricsPort string) error {
	const service = "bosun-worker"
	a, err := newApp(service)
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
	if err := a.openProducer(); err != nil {
		return err
	}
	gw, err := a.gatewayFactory()
	if err != nil {
		return err
	}
	processor, err := a.processor()
	if err != nil {
		return err
	}
	// Replies go out asynchronously; let them finish before the pool closes.
	defer processor.Wait()
	linker, err := a.linker()
	if err != nil {
		return err
	}

	w := worker.New(worker.Config{
		Processor:  processor,
		Ingester:   ingest.NewExtractor(a.store, gw, a.enqueuer, a.logger),
		Uploader:   ingest.NewUploader(a.store, gw, a.enqueuer, a.logger),
		Linker:     linker,
		Logger:     a.logger,
		JobTimeout: a.cfg.JobTimeout,
	})

	consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:   a.cfg.KafkaBrokers,
		GroupID:   a.cfg.KafkaGroupID,
		ClientID:  a.cfg.KafkaClientID + "-worker",
		DLQTopic:  a.cfg.KafkaDLQTopic,
		DLQ:       a.producer,
		Permanent: worker.IsFatal,
	}, a.logger)
	if err != nil {
		return err
	}
	defer func() { _ = consumer.Close() }()
	consumer.AddHandler(a.cfg.KafkaJobsTopic, w.HandleMessage)

	hc := monitoring.NewHealthChecker(service, version.Version)
	hc.AddCheck("database", monitoring.DatabaseHealthCheck(a.db))
	hc.AddCheck("kafka_consumer", monitoring.KafkaHealthCheck("consumer", consumer))
	hc.AddCheck("kafka_producer", monitoring.KafkaHealthCheck("producer", a.producer))
	if a.redis != nil {
		hc.AddCheck("redis", monitoring.RedisHealthCheck(a.redis))
	}
	mc := monitoring.NewMetricsCollector(service, version.Version)
	router := server.SetupServiceRouter(a.logger, service, hc, mc)
	srvCfg := server.DefaultConfig(service, metricsPort)
	// PORT belongs to serve; the worker only honours its flag.
	srvCfg.Port = metricsPort
	go func() {
		if err := server.Start(ctx, srvCfg, router, a.logger); err != nil {
			a.logger.WithError(err).Error("Worker health server stopped")
		}
	}()

	a.logger.WithField("topic", a.cfg.KafkaJobsTopic).Info("Worker consuming jobs")
	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.logger.Info("Worker stopped")
	return nil
}
