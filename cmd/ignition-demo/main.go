// Command ignition-demo boots a readiness coordinator over a handful of
// real backends (Postgres, MySQL, Redis, Elasticsearch, Kafka, etcd, S3,
// an external partner API, and the host's own resource pressure), then
// exposes the result over HTTP/WS and publishes the recorded outcome to
// Kafka for downstream replay/analytics consumers.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/linkflow-go/ignition/pkg/config"
	"github.com/linkflow-go/ignition/pkg/ignition"
	ignitionlogger "github.com/linkflow-go/ignition/pkg/logger"
	"github.com/linkflow-go/ignition/pkg/metrics"
)

func main() {
	cfg, err := config.Load("ignition-demo")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	appLogger := ignitionlogger.New(ignitionlogger.Config(cfg.Logger))

	graph, err := buildGraph(cfg, appLogger)
	if err != nil {
		appLogger.Fatal("build readiness graph", "error", err)
	}

	publisher := newRecordingPublisher(cfg.Kafka, appLogger)
	defer publisher.Close()

	opts := ignitionOptionsFromConfig(cfg.Ignition, metrics.NewPrometheusSink(), appLogger)

	coordinator, err := ignition.New(
		ignition.WithOptions(opts),
		ignition.WithGraph(graph),
		ignition.OnSignalStarted(func(name string) {
			appLogger.Info("signal started", "signal", name)
		}),
		ignition.OnSignalCompleted(func(res ignition.SignalResult) {
			appLogger.Info("signal completed", "signal", res.Name, "status", res.Status, "duration", res.Duration)
		}),
		ignition.OnGlobalTimeoutReached(func() {
			appLogger.Warn("global ignition timeout reached")
		}),
	)
	if err != nil {
		appLogger.Fatal("build coordinator", "error", err)
	}

	srv := newServer(cfg, appLogger, coordinator, graph, publisher)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		appLogger.Info("ignition starting", "mode", opts.ExecutionMode)
		result, err := coordinator.WaitAll(ctx)
		if err != nil {
			appLogger.Warn("ignition finished with failures", "error", err)
		} else {
			appLogger.Info("ignition finished", "health", result.Health(), "totalDuration", result.TotalDuration)
		}
		publisher.Publish(context.Background(), srv.buildRecording())
	}()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	appLogger.Info("http server listening", "addr", addr)
	if err := srv.Run(ctx, addr); err != nil {
		appLogger.Fatal("http server exited", "error", err)
	}
}

func ignitionOptionsFromConfig(c config.IgnitionConfig, sink ignition.MetricsSink, log ignitionlogger.Logger) ignition.Options {
	return ignition.Options{
		ExecutionMode: ignition.ExecutionMode(c.ExecutionMode),
		Policy:        ignition.PolicyKind(c.Policy),
		StagePolicy: ignition.StagePolicy{
			Kind:                    ignition.StagePolicyKind(c.StagePolicy),
			EarlyPromotionThreshold: c.EarlyPromotionThreshold,
		},
		GlobalTimeout:             c.GlobalTimeout(),
		CancelOnGlobalTimeout:     c.CancelOnGlobalTimeout,
		CancelIndividualOnTimeout: c.CancelIndividualOnTimeout,
		CancelDependentsOnFailure: c.CancelDependentsOnFailure,
		MaxDegreeOfParallelism:    c.MaxDegreeOfParallelism,
		Metrics:                   sink,
		Logger:                    log,
	}
}
