package pubsub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelToTopicAndKey(t *testing.T) {
	tests := []struct {
		channel string
		topic   string
		key     string
	}{
		{ChatInsertsChannel(42), "chat-messages-inserts", "42"},
		{GiftInsertsChannel(7), "gifts-inserts", "7"},
		{ViewerChangesChannel(1), "active-viewers-changes", "1"},
		{StreamUpdatesChannel(99), "live-streams-updates", "99"},
	}

	for _, tt := range tests {
		t.Run(tt.channel, func(t *testing.T) {
			topic, key, err := channelToTopicAndKey(tt.channel)
			require.NoError(t, err)
			assert.Equal(t, tt.topic, topic)
			assert.Equal(t, tt.key, key)
			assert.Contains(t, changeFeedTopics, topic)
		})
	}
}

func TestChannelToTopicAndKeyRejectsOtherFormats(t *testing.T) {
	for _, channel := range []string{"signal:room:R1:to_media", "gifts:stream::inserts", "gifts"} {
		_, _, err := channelToTopicAndKey(channel)
		assert.Error(t, err, channel)
	}
}

func TestEventPayloadRoundTrip(t *testing.T) {
	ev, err := NewEvent(EventGiftInserted, 42, GiftInsertedPayload{ID: "g1", CoinAmount: 50})
	require.NoError(t, err)
	assert.Equal(t, int64(42), ev.LiveStreamID)

	var payload GiftInsertedPayload
	require.NoError(t, ev.UnmarshalPayload(&payload))
	assert.Equal(t, "g1", payload.ID)
	assert.Equal(t, int64(50), payload.CoinAmount)
}

func TestSanitizeGroupID(t *testing.T) {
	assert.Equal(t, "viewer-gifts-stream-42-inserts", sanitizeGroupID("viewer-gifts:stream:42:inserts"))
}

func TestConsumerGroupIsPerInstance(t *testing.T) {
	a := &KafkaPubSub{config: KafkaConfig{GroupID: "viewer"}, instanceID: "aaaa"}
	b := &KafkaPubSub{config: KafkaConfig{}, instanceID: "bbbb"}

	assert.Equal(t, "viewer-aaaa-gifts-stream-42-inserts", a.consumerGroup(GiftInsertsChannel(42)))
	assert.Equal(t, "viewer-session-bbbb-gifts-stream-42-inserts", b.consumerGroup(GiftInsertsChannel(42)))
}
