package events

import (
	"context"
	"fmt"
	"math"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/gezibash/arc-registrar/internal/ledger"
	"github.com/gezibash/arc-registrar/internal/storage"
)

func init() {
	Register("kafka", newKafkaSink, func() map[string]string {
		return map[string]string{
			"brokers":   "localhost:9092",
			"topic":     "arc-registrar.events",
			"client_id": "arc-registrar",
			"linger":    "0s",
		}
	})
}

// kafkaSink produces one record per event, keyed by the emitting contract
// so a contract's events stay ordered within a partition.
type kafkaSink struct {
	client *kgo.Client
	topic  string
}

func newKafkaSink(_ context.Context, config map[string]string) (Sink, error) {
	p := storage.Read("kafka", config)
	brokers := p.List("brokers", nil)
	if len(brokers) == 0 {
		p.Fail("brokers", "cannot be empty", nil)
	}
	topic := p.Required("topic")
	clientID := p.String("client_id", "arc-registrar")
	linger := p.Duration("linger", 0)
	batchBytes := p.Bytes("max_batch_bytes", 1<<20)
	if batchBytes > math.MaxInt32 {
		p.Fail("max_batch_bytes", "must fit in 2GiB", nil)
	}
	if err := p.Err(); err != nil {
		return nil, err
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ClientID(clientID),
		kgo.ProducerLinger(linger),
		kgo.ProducerBatchMaxBytes(int32(batchBytes)),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka event sink: %w", err)
	}
	return &kafkaSink{client: client, topic: topic}, nil
}

func (s *kafkaSink) Publish(ctx context.Context, r *ledger.Receipt) error {
	records := make([]*kgo.Record, 0, len(r.Events))
	for _, e := range r.Events {
		body, err := Marshal(e)
		if err != nil {
			return err
		}
		records = append(records, &kgo.Record{
			Topic: s.topic,
			Key:   []byte(e.Contract),
			Value: body,
			Headers: []kgo.RecordHeader{
				{Key: "name", Value: []byte(e.Name)},
				{Key: "receipt", Value: []byte(r.ID)},
			},
		})
	}
	return s.client.ProduceSync(ctx, records...).FirstErr()
}

func (s *kafkaSink) Close() error {
	s.client.Close()
	return nil
}
