// Package events carries completed fills and trade-tape samples out of
// the matching core. The Kafka emitter mirrors the upstream topics: one
// message per invocation and topic, keyed by pair so per-pair ordering
// is preserved, with a {pairKey: [records]} JSON body.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"coin-engine/src/engine"
)

const (
	TopicMatchList   = "match-list"
	TopicPriceVolume = "price-volume"
)

type KafkaEmitter struct {
	matches      *kafka.Writer
	priceVolumes *kafka.Writer
}

func NewKafkaEmitter(brokers []string) *KafkaEmitter {
	return &KafkaEmitter{
		matches:      newWriter(brokers, TopicMatchList),
		priceVolumes: newWriter(brokers, TopicPriceVolume),
	}
}

func newWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
	}
}

func (e *KafkaEmitter) PublishMatches(ctx context.Context, pairKey string, fills []*engine.Order) error {
	return publish(ctx, e.matches, pairKey, map[string][]*engine.Order{pairKey: fills})
}

func (e *KafkaEmitter) PublishPriceVolumes(ctx context.Context, pairKey string, samples []engine.PriceVolume) error {
	return publish(ctx, e.priceVolumes, pairKey, map[string][]engine.PriceVolume{pairKey: samples})
}

func publish(ctx context.Context, w *kafka.Writer, pairKey string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(pairKey),
		Value: value,
	})
}

func (e *KafkaEmitter) Close() error {
	return errors.Join(e.matches.Close(), e.priceVolumes.Close())
}
