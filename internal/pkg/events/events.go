// Package events publishes entitlement changes to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	log "github.com/sirupsen/logrus"

	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/billing"
	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/config"
)

const flushTimeoutMs = 5000

// EntitlementChanged is the message written for every applied delivery.
type EntitlementChanged struct {
	EventKey    string                 `json:"event_key"`
	EventName   string                 `json:"event_name"`
	UserID      string                 `json:"user_id"`
	OfferingKey string                 `json:"offering_key"`
	SourceID    string                 `json:"source_id"`
	SourceType  string                 `json:"source_type"`
	Grants      []billing.GrantOutcome `json:"grants"`
	OccurredAt  time.Time              `json:"occurred_at"`
}

// producer is the part of *kafka.Producer the publisher needs.
type producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Flush(timeoutMs int) int
	Close()
}

// KafkaPublisher writes entitlement changes to a topic keyed by user id, so
// all changes of one user land on the same partition.
type KafkaPublisher struct {
	producer producer
	topic    string
	timeout  time.Duration
}

// NewKafkaPublisher connects a producer. It returns nil and no error when no
// bootstrap servers are configured.
func NewKafkaPublisher(cfg config.Kafka) (*KafkaPublisher, error) {
	servers := strings.Trim(strings.TrimSpace(cfg.BootstrapServers), "\"")
	if servers == "" {
		return nil, nil
	}
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  servers,
		"client.id":          "workitu-billing",
		"acks":               "all",
		"enable.idempotence": true,
	})
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	log.WithFields(log.Fields{
		"kafka_servers": servers,
		"topic":         cfg.EntitlementTopic,
	}).Info("Kafka entitlement publisher ready")
	return newKafkaPublisher(p, cfg.EntitlementTopic), nil
}

func newKafkaPublisher(p producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: p, topic: topic, timeout: 5 * time.Second}
}

// EntitlementsChanged produces one message and waits for its delivery report.
func (k *KafkaPublisher) EntitlementsChanged(ctx context.Context, ev billing.ChangeEvent) error {
	value, err := json.Marshal(EntitlementChanged(ev))
	if err != nil {
		return fmt.Errorf("encode entitlement change: %w", err)
	}

	delivery := make(chan kafka.Event, 1)
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &k.topic, Partition: kafka.PartitionAny},
		Key:            []byte(ev.UserID),
		Value:          value,
		Headers: []kafka.Header{
			{Key: "event_name", Value: []byte(ev.EventName)},
			{Key: "event_key", Value: []byte(ev.EventKey)},
		},
	}
	if err := k.producer.Produce(msg, delivery); err != nil {
		return fmt.Errorf("produce entitlement change: %w", err)
	}

	timer := time.NewTimer(k.timeout)
	defer timer.Stop()
	select {
	case e := <-delivery:
		m, ok := e.(*kafka.Message)
		if !ok {
			return fmt.Errorf("unexpected kafka delivery event %T", e)
		}
		if m.TopicPartition.Error != nil {
			return fmt.Errorf("deliver entitlement change: %w", m.TopicPartition.Error)
		}
		log.WithFields(log.Fields{
			"event_key": ev.EventKey,
			"topic":     k.topic,
			"partition": m.TopicPartition.Partition,
		}).Debug("Entitlement change published")
		return nil
	case <-timer.C:
		return fmt.Errorf("entitlement change delivery timed out after %s", k.timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes pending messages and closes the producer.
func (k *KafkaPublisher) Close() {
	if left := k.producer.Flush(flushTimeoutMs); left > 0 {
		log.WithField("pending", left).Warn("Kafka producer closed with undelivered messages")
	}
	k.producer.Close()
}

// LogNotifier records entitlement changes in the application log. It is used
// when Kafka is not configured.
type LogNotifier struct{}

func (LogNotifier) EntitlementsChanged(_ context.Context, ev billing.ChangeEvent) error {
	log.WithFields(log.Fields{
		"event_key":    ev.EventKey,
		"event_name":   ev.EventName,
		"user_id":      ev.UserID,
		"offering_key": ev.OfferingKey,
		"grants":       len(ev.Grants),
	}).Info("Entitlements changed")
	return nil
}
