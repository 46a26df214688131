package services

import "github.com/tbourn/go-memes-bot/internal/domain"

// IsEligible reports whether a post is a meme candidate: it carries at
// least one attachment or one embed. Text-only posts never qualify.
func IsEligible(p domain.Post) bool {
	return len(p.Attachments) > 0 || len(p.Embeds) > 0
}
