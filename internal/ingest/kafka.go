package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"loginguard/internal/config"
	"loginguard/internal/model"
)

// StartKafka consumes login event JSON from the configured topic.
func StartKafka(ctx context.Context, src Source) {
	current := src.Config.Get().Ingest.Kafka
	if !current.Enabled {
		if src.Logger != nil {
			src.Logger.Info("kafka ingest disabled")
		}
		return
	}
	if src.Logger != nil {
		src.Logger.Info("kafka ingest enabled", "brokers", current.Brokers, "topic", current.Topic, "group_id", current.GroupID)
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  current.Brokers,
		Topic:    current.Topic,
		GroupID:  current.GroupID,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})
	go func() {
		defer reader.Close()
		for {
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if src.Logger != nil {
					src.Logger.Warn("kafka read error", "err", err)
				}
				if !BackoffSleep(ctx, 0) {
					return
				}
				continue
			}
			_ = src.Accept(ctx, m.Value, "kafka")
		}
	}()
}

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ScoredMessage is the payload written to the output topic. Scored is false
// when no model was serving; the event then carries no assessment.
type ScoredMessage struct {
	Event  model.LoginEvent `json:"event"`
	Scored bool             `json:"scored"`
}

// KafkaPublisher writes scored events keyed by user ID so that one user's
// results stay ordered within a partition.
type KafkaPublisher struct {
	writer MessageWriter
}

func NewKafkaPublisher(cfg config.KafkaConfig) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.OutputTopic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}}
}

func NewKafkaPublisherWithWriter(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev model.LoginEvent) error {
	payload, err := json.Marshal(ScoredMessage{Event: ev, Scored: ev.RiskScore != nil})
	if err != nil {
		return fmt.Errorf("encode scored event: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.UserID),
		Value: payload,
		Time:  ev.Timestamp,
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
