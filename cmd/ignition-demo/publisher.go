package main

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/linkflow-go/ignition/pkg/config"
	"github.com/linkflow-go/ignition/pkg/ignition/recording"
	"github.com/linkflow-go/ignition/pkg/logger"
)

// recordingPublisher ships a completed Recording onto a Kafka topic for
// whatever replay/analytics consumer wants to pick it up later.
type recordingPublisher struct {
	writer *kafka.Writer
	log    logger.Logger
}

func newRecordingPublisher(cfg config.KafkaConfig, log logger.Logger) *recordingPublisher {
	return &recordingPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.RecordingTopic,
			Balancer:     &kafka.LeastBytes{},
			WriteTimeout: 5 * time.Second,
		},
		log: log,
	}
}

func (p *recordingPublisher) Publish(ctx context.Context, rec *recording.Recording) {
	if rec == nil {
		return
	}
	payload, err := rec.ToJSON()
	if err != nil {
		p.log.Warn("marshal recording", "error", err)
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(rec.RecordingID),
		Value: payload,
	})
	if err != nil {
		p.log.Warn("publish recording to kafka", "error", err, "topic", p.writer.Topic)
		return
	}
	p.log.Info("recording published", "recordingId", rec.RecordingID, "topic", p.writer.Topic)
}

func (p *recordingPublisher) Close() error {
	return p.writer.Close()
}
