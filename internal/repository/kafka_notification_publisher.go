package repository

import (
	"context"
	"time"

	"GoPredict/internal/domain/models"
	pkgkafka "GoPredict/pkg/kafka"
)

// batchPublisher is satisfied by *pkgkafka.Producer.
type batchPublisher interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
}

// NotificationEvent is the Kafka payload for one notification.
type NotificationEvent struct {
	Dataset     models.DatasetKey `json:"dataset"`
	Kind        string            `json:"kind"`
	Identity    string            `json:"identity"`
	Field       string            `json:"field"`
	Version     uint64            `json:"version"`
	LastUpdated *time.Time        `json:"last_updated"`
	Record      models.Record     `json:"record"`
}

// KafkaNotificationPublisher fans notifications of accepted snapshots out to
// a Kafka topic, keyed by dataset and record identity.
type KafkaNotificationPublisher struct {
	producer batchPublisher
	topic    string
}

// NewKafkaNotificationPublisher creates the publisher.
func NewKafkaNotificationPublisher(producer batchPublisher, topic string) *KafkaNotificationPublisher {
	return &KafkaNotificationPublisher{producer: producer, topic: topic}
}

func (p *KafkaNotificationPublisher) Name() string { return "kafka" }

func (p *KafkaNotificationPublisher) PublishSnapshot(ctx context.Context, snap *models.Snapshot) error {
	if len(snap.Notifications) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(snap.Notifications))
	for i, n := range snap.Notifications {
		msgs[i] = pkgkafka.Message{
			Key: []byte(string(snap.Dataset) + ":" + n.Identity),
			Value: NotificationEvent{
				Dataset:     snap.Dataset,
				Kind:        n.Dataset,
				Identity:    n.Identity,
				Field:       n.Field,
				Version:     snap.Version,
				LastUpdated: snap.LastUpdated,
				Record:      n.Record,
			},
		}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}
