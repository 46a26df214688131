package services

import "github.com/tbourn/go-memes-bot/internal/domain"

// UniqueReactorCount returns the number of distinct members who reacted
// with any emoji, excluding selfID. A member reacting with several emoji
// counts once.
func UniqueReactorCount(snap domain.ReactionSnapshot, selfID string) int {
	seen := make(map[string]struct{})
	for _, users := range snap {
		for _, u := range users {
			if u == "" || u == selfID {
				continue
			}
			seen[u] = struct{}{}
		}
	}
	return len(seen)
}
