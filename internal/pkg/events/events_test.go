package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/billing"
	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/config"
)

type fakeProducer struct {
	messages   []*kafka.Message
	produceErr error
	deliverErr error
	silent     bool
	closed     bool
}

func (f *fakeProducer) Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error {
	if f.produceErr != nil {
		return f.produceErr
	}
	f.messages = append(f.messages, msg)
	if !f.silent {
		report := *msg
		report.TopicPartition.Partition = 3
		report.TopicPartition.Error = f.deliverErr
		deliveryChan <- &report
	}
	return nil
}

func (f *fakeProducer) Flush(int) int { return 0 }
func (f *fakeProducer) Close()        { f.closed = true }

func changeEvent() billing.ChangeEvent {
	return billing.ChangeEvent{
		EventKey:    "order_created_ORD1_abcdef12",
		EventName:   "order_created",
		UserID:      "user-hash",
		OfferingKey: "website_basic",
		SourceID:    "ORD1",
		SourceType:  "order",
		Grants: []billing.GrantOutcome{
			{EntitlementKey: "website_basic_access", Action: billing.GrantActionUpsert, Result: billing.GrantApplied, Status: "active"},
		},
		OccurredAt: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNewKafkaPublisherDisabled(t *testing.T) {
	p, err := NewKafkaPublisher(config.Kafka{})
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestKafkaPublisherPublishes(t *testing.T) {
	fp := &fakeProducer{}
	pub := newKafkaPublisher(fp, "entitlement_changes")

	require.NoError(t, pub.EntitlementsChanged(context.Background(), changeEvent()))
	require.Len(t, fp.messages, 1)

	msg := fp.messages[0]
	assert.Equal(t, "entitlement_changes", *msg.TopicPartition.Topic)
	assert.Equal(t, []byte("user-hash"), msg.Key)

	var decoded EntitlementChanged
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "website_basic", decoded.OfferingKey)
	require.Len(t, decoded.Grants, 1)
	assert.Equal(t, "website_basic_access", decoded.Grants[0].EntitlementKey)

	pub.Close()
	assert.True(t, fp.closed)
}

func TestKafkaPublisherErrors(t *testing.T) {
	t.Run("produce", func(t *testing.T) {
		pub := newKafkaPublisher(&fakeProducer{produceErr: errors.New("queue full")}, "t")
		assert.ErrorContains(t, pub.EntitlementsChanged(context.Background(), changeEvent()), "queue full")
	})

	t.Run("delivery", func(t *testing.T) {
		pub := newKafkaPublisher(&fakeProducer{deliverErr: kafka.NewError(kafka.ErrMsgTimedOut, "timed out", false)}, "t")
		assert.ErrorContains(t, pub.EntitlementsChanged(context.Background(), changeEvent()), "deliver entitlement change")
	})

	t.Run("timeout", func(t *testing.T) {
		pub := newKafkaPublisher(&fakeProducer{silent: true}, "t")
		pub.timeout = 10 * time.Millisecond
		assert.ErrorContains(t, pub.EntitlementsChanged(context.Background(), changeEvent()), "timed out")
	})

	t.Run("canceled", func(t *testing.T) {
		pub := newKafkaPublisher(&fakeProducer{silent: true}, "t")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, pub.EntitlementsChanged(ctx, changeEvent()), context.Canceled)
	})
}

func TestLogNotifier(t *testing.T) {
	assert.NoError(t, LogNotifier{}.EntitlementsChanged(context.Background(), changeEvent()))
}
