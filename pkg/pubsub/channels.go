package pubsub

import "fmt"

// Change-feed channels, one per table and live stream.
// Format: {table}:stream:{liveStreamID}:{op}
const (
	ChannelChatInserts   = "chat_messages:stream:%d:inserts"
	ChannelGiftInserts   = "gifts:stream:%d:inserts"
	ChannelViewerChanges = "active_viewers:stream:%d:changes"
	ChannelStreamUpdates = "live_streams:stream:%d:updates"
)

// Event types carried on the change feeds.
const (
	EventChatInserted       = "chat_message_inserted"
	EventGiftInserted       = "gift_inserted"
	EventViewerCountChanged = "viewer_count_changed"
	EventStreamUpdated      = "live_stream_updated"
)

// ChatInsertsChannel returns the chat-message insert feed for a stream.
func ChatInsertsChannel(liveStreamID int64) string {
	return fmt.Sprintf(ChannelChatInserts, liveStreamID)
}

// GiftInsertsChannel returns the gift-ledger insert feed for a stream.
func GiftInsertsChannel(liveStreamID int64) string {
	return fmt.Sprintf(ChannelGiftInserts, liveStreamID)
}

// ViewerChangesChannel returns the viewer-count delta feed for a stream.
func ViewerChangesChannel(liveStreamID int64) string {
	return fmt.Sprintf(ChannelViewerChanges, liveStreamID)
}

// StreamUpdatesChannel returns the live-stream row update feed for a stream.
func StreamUpdatesChannel(liveStreamID int64) string {
	return fmt.Sprintf(ChannelStreamUpdates, liveStreamID)
}

// Event payloads.

// ChatInsertedPayload is a new row in chat_messages.
type ChatInsertedPayload struct {
	ID           string `json:"id"`
	LiveStreamID int64  `json:"live_stream_id"`
	ProfileID    string `json:"profile_id"`
	Username     string `json:"username"`
	Content      string `json:"content"`
	MessageType  string `json:"message_type"` // "text", "gift", "follow", "system"
	Tier         string `json:"tier,omitempty"`
}

// GiftInsertedPayload is a new row in the gift ledger.
type GiftInsertedPayload struct {
	ID                string `json:"id"`
	LiveStreamID      int64  `json:"live_stream_id"`
	SenderID          string `json:"sender_id"`
	SenderUsername    string `json:"sender_username"`
	RecipientID       string `json:"recipient_id"`
	RecipientUsername string `json:"recipient_username"`
	GiftTypeID        int64  `json:"gift_type_id"`
	CoinAmount        int64  `json:"coin_amount"`
}

// ViewerCountPayload carries the recomputed aggregate for a stream.
type ViewerCountPayload struct {
	LiveStreamID int64 `json:"live_stream_id"`
	ViewerCount  int   `json:"viewer_count"`
}

// StreamUpdatedPayload is an update to a live_streams row.
type StreamUpdatedPayload struct {
	LiveStreamID  int64 `json:"live_stream_id"`
	LiveAvailable bool  `json:"live_available"`
}
