package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/insight-discovery/internal/discovery"
)

func TestPublishSendsKeyedEvent(t *testing.T) {
	t.Parallel()

	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if len(val) == 0 {
			return errors.New("empty payload")
		}
		return nil
	})

	pub, err := New(producer, "task-events")
	require.NoError(t, err)

	id, err := pub.Publish(context.Background(), "", discovery.TaskEvent{TaskID: "t1", Status: discovery.StatusCompleted})
	require.NoError(t, err)
	require.Contains(t, id, "task-events/")
	require.NoError(t, pub.Close())
}

func TestPublishReturnsProducerError(t *testing.T) {
	t.Parallel()

	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	pub, err := New(producer, "task-events")
	require.NoError(t, err)

	_, err = pub.Publish(context.Background(), "", "payload")
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, pub.Close())
}

func TestNewRequiresProducer(t *testing.T) {
	t.Parallel()

	_, err := New(nil, "x")
	require.Error(t, err)
}
