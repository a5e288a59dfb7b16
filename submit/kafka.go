package submit

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/Shopify/sarama"
	"github.com/axonweb3/ckb-emitter/ckbmodel"
	"github.com/ethereum/go-ethereum/log"
)

// KafkaSubmitter publishes batches onto a Kafka topic instead of a
// chain or a websocket, using the same sarama.SyncProducer the
// chaindatafetcher event broker is built on. It exists for deployments
// that want the emitter's output fed into a stream-processing pipeline
// rather than relayed on-chain or pushed to a single subscriber.
type KafkaSubmitter struct {
	producer  sarama.SyncProducer
	cellTopic string
	headTopic string
	closed    int32
}

func NewKafkaSubmitter(producer sarama.SyncProducer, cellTopic, headerTopic string) *KafkaSubmitter {
	return &KafkaSubmitter{producer: producer, cellTopic: cellTopic, headTopic: headerTopic}
}

func (k *KafkaSubmitter) publish(topic string, key string, v interface{}) bool {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error("kafka submitter: marshal failed", "topic", topic, "err", err)
		return true
	}
	msg := &sarama.ProducerMessage{Topic: topic, Key: sarama.StringEncoder(key), Value: sarama.ByteEncoder(data)}
	if _, _, err := k.producer.SendMessage(msg); err != nil {
		log.Error("kafka submitter: publish failed", "topic", topic, "err", err)
		if err == sarama.ErrClosedClient {
			atomic.StoreInt32(&k.closed, 1)
			return false
		}
		return true
	}
	return true
}

func (k *KafkaSubmitter) SubmitCells(ctx context.Context, batch []ckbmodel.CellDiff) bool {
	if len(batch) == 0 {
		return true
	}
	return k.publish(k.cellTopic, batch[0].Header.Hash.Hex(), batch)
}

func (k *KafkaSubmitter) SubmitHeaders(ctx context.Context, batch []ckbmodel.Header) bool {
	if len(batch) == 0 {
		return true
	}
	return k.publish(k.headTopic, batch[0].Hash.Hex(), batch)
}

func (k *KafkaSubmitter) IsClosed() bool {
	return atomic.LoadInt32(&k.closed) == 1
}

var _ Submitter = (*KafkaSubmitter)(nil)
