package domain

import "time"

// SettingThreshold is the settings key under which the repost threshold is
// stored.
const SettingThreshold = "repost_threshold"

// Setting is a single bot-wide integer tunable, keyed by name.
type Setting struct {
	Key       string    `gorm:"type:varchar(64);primaryKey"`
	IntValue  int       `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName implements the GORM tabler interface.
func (Setting) TableName() string { return "settings" }

// Repost records that a post has been claimed for delivery to the top
// channel. Rows are append-only: a claimed post is never released.
type Repost struct {
	PostID    string    `json:"post_id"    gorm:"type:varchar(64);primaryKey"`
	ChannelID string    `json:"channel_id" gorm:"type:varchar(64);not null;index"`
	ClaimedAt time.Time `json:"claimed_at" gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Repost) TableName() string { return "reposts" }
