package overlay

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseGiftAnnouncement(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    GiftAnnouncement
		ok      bool
	}{
		{
			name:    "full line",
			content: `alice sent "Rose" to bob 💎+50`,
			want:    GiftAnnouncement{Sender: "alice", GiftName: "Rose", Recipient: "bob", Diamonds: 50},
			ok:      true,
		},
		{
			name:    "no diamonds suffix",
			content: `alice sent "Super Star" to bob`,
			want:    GiftAnnouncement{Sender: "alice", GiftName: "Super Star", Recipient: "bob"},
			ok:      true,
		},
		{
			name:    "recipient with spaces",
			content: `x sent "Crown" to The Host 💎+1200`,
			want:    GiftAnnouncement{Sender: "x", GiftName: "Crown", Recipient: "The Host", Diamonds: 1200},
			ok:      true,
		},
		{name: "plain chat", content: "hello everyone", ok: false},
		{name: "unquoted gift", content: "X sent a Rose", ok: false},
		{name: "missing recipient marker", content: `alice sent "Rose"`, ok: false},
		{name: "empty sender", content: ` sent "Rose" to bob`, ok: false},
		{name: "empty gift name", content: `alice sent "  " to bob`, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseGiftAnnouncement(tt.content)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestParseGiftAnnouncementTruncatesLongContent(t *testing.T) {
	content := `alice sent "` + strings.Repeat("x", 300) + `" to bob`
	_, ok := ParseGiftAnnouncement(content)
	assert.False(t, ok, "the recipient marker falls past the parse window")
}
