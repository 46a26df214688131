// Package domain defines the core models of the curator: the posts and
// reactions observed on the chat platform, and the persistence models that
// hold the bot-wide settings. These types are shared across the repository,
// settings, services and platform layers.
package domain

import "time"

// Author identifies the account that wrote a post.
type Author struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Bot       bool   `json:"bot,omitempty"`
}

// Attachment is an uploaded file on a post. URL is an opaque reference that
// the delivery layer resolves to the blob when reposting.
type Attachment struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Size     int64  `json:"size,omitempty"`
}

// Embed is a rich embed attached to a post (link preview, gif, video...).
// The curator treats it as opaque; only its presence matters.
type Embed struct {
	Type  string `json:"type,omitempty"`
	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`
}

// Post is a chat message considered as a repost candidate. It is created by
// the platform adapter when a message is received or fetched and is never
// mutated afterwards.
type Post struct {
	ID          string       `json:"id"`
	ChannelID   string       `json:"channel_id"`
	GuildID     string       `json:"guild_id,omitempty"`
	Author      Author       `json:"author"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Embeds      []Embed      `json:"embeds,omitempty"`
	Permalink   string       `json:"permalink"`
	CreatedAt   time.Time    `json:"created_at"`

	// MemberRoles carries the author's guild roles when the platform
	// includes them (new-post events). Used to gate admin commands.
	MemberRoles []string `json:"-"`
}

// ReactionEvent is a single "reaction added" notification.
type ReactionEvent struct {
	PostID    string
	ChannelID string
	GuildID   string
	ReactorID string
	Emoji     string
	At        time.Time
}

// ReactionSnapshot maps an emoji identifier to the identities currently
// reacting with it. It is read from the platform at decision time and never
// kept beyond a single evaluation.
type ReactionSnapshot map[string][]string
