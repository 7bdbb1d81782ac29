package message_broker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelMessageBroker_PublishSubscribe(t *testing.T) {
	b := NewChannelMessageBroker()
	defer b.Close()
	ctx := context.Background()

	ch, err := b.Subscribe(ctx, "session.events", "s1")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "session.events", "s1", []byte(`{"type":"turn_appended"}`)))
	require.NoError(t, b.Publish(ctx, "session.events", "s2", []byte(`other`)))

	msg := <-ch
	assert.Equal(t, "session.events", msg.Topic)
	assert.Equal(t, "s1", msg.RoutingKey)
	assert.Equal(t, `{"type":"turn_appended"}`, string(msg.Payload))
	assert.False(t, msg.Timestamp.IsZero())

	select {
	case extra := <-ch:
		t.Fatalf("unexpected message for other routing key: %s", extra.Payload)
	default:
	}
}

func TestChannelMessageBroker_PublishBeforeSubscribe(t *testing.T) {
	b := NewChannelMessageBroker()
	defer b.Close()
	ctx := context.Background()

	require.NoError(t, b.Publish(ctx, "t", "k", []byte("early")))

	ch, err := b.Subscribe(ctx, "t", "k")
	require.NoError(t, err)
	assert.Equal(t, "early", string((<-ch).Payload))
}

func TestChannelMessageBroker_TopicFull(t *testing.T) {
	b := NewChannelMessageBroker()
	defer b.Close()
	ctx := context.Background()

	for i := 0; i < topicBuffer; i++ {
		require.NoError(t, b.Publish(ctx, "t", "k", []byte("x")))
	}
	assert.ErrorIs(t, b.Publish(ctx, "t", "k", []byte("x")), ErrTopicFull)
}

func TestChannelMessageBroker_Close(t *testing.T) {
	b := NewChannelMessageBroker()
	ctx := context.Background()

	ch, err := b.Subscribe(ctx, "t", "k")
	require.NoError(t, err)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	_, ok := <-ch
	assert.False(t, ok, "subscriber channel is closed")

	assert.ErrorIs(t, b.Publish(ctx, "t", "k", nil), ErrBrokerClosed)
	_, err = b.Subscribe(ctx, "t", "k")
	assert.ErrorIs(t, err, ErrBrokerClosed)
}
