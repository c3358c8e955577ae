package domain

import (
	"fmt"
	"time"
)

// OverlayKind is the variant of an overlay event.
type OverlayKind string

const (
	OverlayChat   OverlayKind = "chat"
	OverlayGift   OverlayKind = "gift"
	OverlayFollow OverlayKind = "follow"
	OverlaySystem OverlayKind = "system"
)

// OverlayEvent is a normalized, UI-ready chat, gift, follow or system
// notification. Exactly one of the payload pointers matches Kind.
type OverlayEvent struct {
	Key        string       `json:"key"`
	Kind       OverlayKind  `json:"kind"`
	ReceivedAt time.Time    `json:"received_at"`
	Chat       *ChatEvent   `json:"chat,omitempty"`
	Gift       *GiftEvent   `json:"gift,omitempty"`
	Follow     *FollowEvent `json:"follow,omitempty"`
	System     *SystemEvent `json:"system,omitempty"`
}

type ChatEvent struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Text     string `json:"text"`
	Tier     string `json:"tier,omitempty"`
}

type GiftEvent struct {
	ID                string `json:"id"`
	GiftName          string `json:"gift_name"`
	IconURL           string `json:"icon_url,omitempty"`
	SenderUsername    string `json:"sender_username"`
	RecipientUsername string `json:"recipient_username,omitempty"`
	CoinAmount        int64  `json:"coin_amount"`
	Diamonds          int64  `json:"diamonds,omitempty"`
	Enriched          bool   `json:"enriched"`
}

type FollowEvent struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type SystemEvent struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// ChatKey is the dedup key of any record delivered by the chat feed.
func ChatKey(messageID string) string {
	return fmt.Sprintf("chat-%s", messageID)
}

// GiftKey is the dedup key of a gift-ledger row.
func GiftKey(giftID string) string {
	return fmt.Sprintf("gift-%s", giftID)
}

// Clone returns a deep copy so snapshots never share payload pointers with
// the live timeline.
func (e OverlayEvent) Clone() OverlayEvent {
	out := e
	if e.Chat != nil {
		c := *e.Chat
		out.Chat = &c
	}
	if e.Gift != nil {
		g := *e.Gift
		out.Gift = &g
	}
	if e.Follow != nil {
		f := *e.Follow
		out.Follow = &f
	}
	if e.System != nil {
		s := *e.System
		out.System = &s
	}
	return out
}
