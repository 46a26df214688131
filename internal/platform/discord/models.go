package discord

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/tbourn/go-memes-bot/internal/domain"
	"github.com/tbourn/go-memes-bot/internal/sysutil"
)

const cdnBase = "https://cdn.discordapp.com"

type user struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name"`
	Avatar     string `json:"avatar"`
	Bot        bool   `json:"bot"`
}

type member struct {
	Nick  string   `json:"nick"`
	Roles []string `json:"roles"`
}

type attachment struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
}

type embed struct {
	Type  string `json:"type"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

type emoji struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type reaction struct {
	Count int   `json:"count"`
	Me    bool  `json:"me"`
	Emoji emoji `json:"emoji"`
}

type message struct {
	ID          string       `json:"id"`
	ChannelID   string       `json:"channel_id"`
	GuildID     string       `json:"guild_id"`
	Author      user         `json:"author"`
	Member      *member      `json:"member"`
	Content     string       `json:"content"`
	Timestamp   time.Time    `json:"timestamp"`
	Attachments []attachment `json:"attachments"`
	Embeds      []embed      `json:"embeds"`
	Reactions   []reaction   `json:"reactions"`
	WebhookID   string       `json:"webhook_id"`
}

type channel struct {
	ID      string `json:"id"`
	GuildID string `json:"guild_id"`
}

type reactionAdd struct {
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
	GuildID   string `json:"guild_id"`
	Emoji     emoji  `json:"emoji"`
}

// apiEmoji is the path form of an emoji: the unicode character itself or
// "name:id" for custom emoji.
func (e emoji) apiEmoji() string {
	if e.ID != "" {
		return e.Name + ":" + e.ID
	}
	return e.Name
}

// avatarURL returns the CDN URL of the user's avatar, falling back to the
// default avatar derived from the user id.
func (u user) avatarURL() string {
	if u.Avatar != "" {
		return cdnBase + "/avatars/" + u.ID + "/" + u.Avatar + ".png"
	}
	id, _ := strconv.ParseUint(u.ID, 10, 64)
	return cdnBase + "/embed/avatars/" + strconv.FormatUint((id>>22)%6, 10) + ".png"
}

func permalink(guildID, channelID, messageID string) string {
	if guildID == "" {
		guildID = "@me"
	}
	return "https://discord.com/channels/" + guildID + "/" + channelID + "/" + messageID
}

func (m message) toPost(guildID string) domain.Post {
	if m.GuildID != "" {
		guildID = m.GuildID
	}
	nick := ""
	var roles []string
	if m.Member != nil {
		nick = m.Member.Nick
		roles = m.Member.Roles
	}
	p := domain.Post{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   guildID,
		Author: domain.Author{
			ID:        m.Author.ID,
			Name:      sysutil.FirstNonEmpty(nick, m.Author.GlobalName, m.Author.Username),
			AvatarURL: m.Author.avatarURL(),
			Bot:       m.Author.Bot || m.WebhookID != "",
		},
		Content:     m.Content,
		Permalink:   permalink(guildID, m.ChannelID, m.ID),
		CreatedAt:   m.Timestamp,
		MemberRoles: roles,
	}
	for _, a := range m.Attachments {
		p.Attachments = append(p.Attachments, domain.Attachment{ID: a.ID, URL: a.URL, Filename: a.Filename, Size: a.Size})
	}
	for _, e := range m.Embeds {
		p.Embeds = append(p.Embeds, domain.Embed{Type: e.Type, URL: e.URL, Title: e.Title})
	}
	return p
}

// snowflakeLess orders Discord ids numerically (ids are decimal strings of
// increasing length over time).
func snowflakeLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

// gateway frames

type frame struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

type hello struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

type ready struct {
	User      user   `json:"user"`
	SessionID string `json:"session_id"`
}

type identifyProps struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

type identify struct {
	Token      string        `json:"token"`
	Intents    int           `json:"intents"`
	Properties identifyProps `json:"properties"`
}
