package kafka

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Topics published by this service.
const (
	TopicAudit   = "idecide.audit"
	TopicAdopted = "idecide.decisions.adopted"
)

// Producer wraps a franz-go client for fire-and-forget event publishing.
type Producer struct {
	client *kgo.Client
}

// New connects to the given brokers and ensures the service topics exist.
// Returns nil when no brokers are configured (event publishing disabled).
func New(ctx context.Context, brokers []string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}

	if err := ensureTopics(ctx, client, TopicAudit, TopicAdopted); err != nil {
		client.Close()
		return nil, err
	}

	return &Producer{client: client}, nil
}

// ensureTopics creates missing topics so first-boot environments work without
// manual setup. Already-existing topics are not an error.
func ensureTopics(ctx context.Context, client *kgo.Client, topics ...string) error {
	adm := kadm.NewClient(client)
	existing, err := adm.ListTopics(ctx)
	if err != nil {
		return fmt.Errorf("list topics: %w", err)
	}
	var missing []string
	for _, topic := range topics {
		if !existing.Has(topic) {
			missing = append(missing, topic)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	if _, err := adm.CreateTopics(ctx, 1, 1, nil, missing...); err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	return nil
}

// Publish sends one record asynchronously. Delivery failures are reported via
// the callback; callers treat publishing as best-effort.
func (p *Producer) Publish(ctx context.Context, topic string, key, payload []byte, onFail func(error)) {
	record := &kgo.Record{Topic: topic, Key: key, Value: payload}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil && onFail != nil {
			onFail(err)
		}
	})
}

// Close flushes outstanding records and releases the client.
func (p *Producer) Close() {
	p.client.Close()
}
