package overlay

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	maxAnnouncementLen = 220
	sentMarker         = ` sent "`
	toMarker           = `" to `
	diamondsMarker     = " 💎+"
)

// GiftAnnouncement is what can be recovered from a synthesized gift chat
// line of the form:
//
//	<sender> sent "<giftName>" to <recipient> 💎+N
//
// The format is produced by the backend's chat log writer. It is
// locale-bound, so only this exact shape is recognised.
type GiftAnnouncement struct {
	Sender    string
	GiftName  string
	Recipient string
	Diamonds  int64
}

// ParseGiftAnnouncement extracts the gift details from content. ok is false
// when content does not follow the announcement pattern.
func ParseGiftAnnouncement(content string) (GiftAnnouncement, bool) {
	content = truncate(content, maxAnnouncementLen)

	sentIdx := strings.Index(content, sentMarker)
	if sentIdx < 0 {
		return GiftAnnouncement{}, false
	}
	sender := strings.TrimSpace(content[:sentIdx])
	rest := content[sentIdx+len(sentMarker):]

	endGift := strings.Index(rest, toMarker)
	if endGift < 0 {
		return GiftAnnouncement{}, false
	}
	giftName := strings.TrimSpace(rest[:endGift])
	recipient := rest[endGift+len(toMarker):]

	var diamonds int64
	if idx := strings.Index(recipient, diamondsMarker); idx >= 0 {
		digits := strings.TrimSpace(recipient[idx+len(diamondsMarker):])
		if n, err := strconv.ParseInt(leadingDigits(digits), 10, 64); err == nil {
			diamonds = n
		}
		recipient = recipient[:idx]
	}

	if sender == "" || giftName == "" {
		return GiftAnnouncement{}, false
	}

	return GiftAnnouncement{
		Sender:    sender,
		GiftName:  giftName,
		Recipient: strings.TrimSpace(recipient),
		Diamonds:  diamonds,
	}, true
}

func leadingDigits(s string) string {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	return s[:end]
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
