package submit

import (
	"context"
	"testing"

	"github.com/Shopify/sarama"
	"github.com/axonweb3/ckb-emitter/ckbmodel"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProducer struct {
	sent []*sarama.ProducerMessage
	err  error
}

func (f *fakeProducer) SendMessage(msg *sarama.ProducerMessage) (int32, int64, error) {
	if f.err != nil {
		return 0, 0, f.err
	}
	f.sent = append(f.sent, msg)
	return 0, int64(len(f.sent) - 1), nil
}

func (f *fakeProducer) SendMessages(msgs []*sarama.ProducerMessage) error { return f.err }
func (f *fakeProducer) Close() error                                     { return nil }

func TestKafkaSubmitterPublishesToConfiguredTopics(t *testing.T) {
	producer := &fakeProducer{}
	k := NewKafkaSubmitter(producer, "cells", "headers")

	cellOK := k.SubmitCells(context.Background(), []ckbmodel.CellDiff{{Header: ckbmodel.Header{Hash: common.HexToHash("0xaa")}}})
	headerOK := k.SubmitHeaders(context.Background(), []ckbmodel.Header{{Hash: common.HexToHash("0xbb")}})

	assert.True(t, cellOK)
	assert.True(t, headerOK)
	require.Len(t, producer.sent, 2)
	assert.Equal(t, "cells", producer.sent[0].Topic)
	assert.Equal(t, "headers", producer.sent[1].Topic)
	assert.False(t, k.IsClosed())
}

func TestKafkaSubmitterSkipsEmptyBatch(t *testing.T) {
	producer := &fakeProducer{}
	k := NewKafkaSubmitter(producer, "cells", "headers")

	assert.True(t, k.SubmitCells(context.Background(), nil))
	assert.True(t, k.SubmitHeaders(context.Background(), nil))
	assert.Empty(t, producer.sent)
}

func TestKafkaSubmitterClosedClientStopsSubmitting(t *testing.T) {
	producer := &fakeProducer{err: sarama.ErrClosedClient}
	k := NewKafkaSubmitter(producer, "cells", "headers")

	ok := k.SubmitHeaders(context.Background(), []ckbmodel.Header{{Hash: common.HexToHash("0xcc")}})
	assert.False(t, ok)
	assert.True(t, k.IsClosed())
}
