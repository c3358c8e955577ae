package domain

import "time"

// Profile is a broadcaster or viewer account.
type Profile struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

// LiveStream is one broadcast owned by a profile.
type LiveStream struct {
	ID            int64      `json:"id"`
	ProfileID     string     `json:"profile_id"`
	LiveAvailable bool       `json:"live_available"`
	Mode          StreamMode `json:"mode"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
}

// GiftType is the catalogue entry used to enrich gift overlays.
type GiftType struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	IconURL  string `json:"icon_url"`
	CoinCost int64  `json:"coin_cost"`
}
