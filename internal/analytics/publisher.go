package analytics

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/kafka"
)

// Publisher is the part of kafka.Producer a KafkaSink uses.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// KafkaSink publishes each summary as a JSON event keyed by run id.
type KafkaSink struct {
	producer Publisher
}

func NewKafkaSink(p Publisher) *KafkaSink {
	return &KafkaSink{producer: p}
}

func (*KafkaSink) Name() string { return "kafka" }

func (k *KafkaSink) Record(ctx context.Context, s Summary) error {
	return k.producer.Publish(ctx, kafka.Event{Key: s.RunID, Value: s})
}
