package services

import (
	"testing"

	"github.com/tbourn/go-memes-bot/internal/domain"
)

func TestIsEligible(t *testing.T) {
	cases := []struct {
		name string
		post domain.Post
		want bool
	}{
		{"text only", domain.Post{Content: "just words"}, false},
		{"empty", domain.Post{}, false},
		{"empty slices", domain.Post{Attachments: []domain.Attachment{}, Embeds: []domain.Embed{}}, false},
		{"attachment", domain.Post{Attachments: []domain.Attachment{{URL: "u"}}}, true},
		{"embed", domain.Post{Embeds: []domain.Embed{{Type: "image"}}}, true},
		{"both", domain.Post{Attachments: []domain.Attachment{{}}, Embeds: []domain.Embed{{}}}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			before := len(tc.post.Attachments) + len(tc.post.Embeds)
			if got := IsEligible(tc.post); got != tc.want {
				t.Fatalf("IsEligible = %v; want %v", got, tc.want)
			}
			if after := len(tc.post.Attachments) + len(tc.post.Embeds); after != before {
				t.Fatalf("post mutated")
			}
		})
	}
}

func TestUniqueReactorCount_UnionNotSum(t *testing.T) {
	snap := domain.ReactionSnapshot{
		"😀": {"A", "B"},
		"👍": {"B", "C"},
	}
	if got := UniqueReactorCount(snap, testSelf); got != 3 {
		t.Fatalf("count = %d; want 3", got)
	}
}

func TestUniqueReactorCount_ExcludesSelfOnEveryEmoji(t *testing.T) {
	snap := domain.ReactionSnapshot{
		"👍":        {testSelf, "A"},
		"😂":        {testSelf},
		"pepe:123": {"B", testSelf},
	}
	if got := UniqueReactorCount(snap, testSelf); got != 2 {
		t.Fatalf("count = %d; want 2", got)
	}
}

func TestUniqueReactorCount_Edges(t *testing.T) {
	if got := UniqueReactorCount(nil, testSelf); got != 0 {
		t.Fatalf("nil snapshot = %d", got)
	}
	if got := UniqueReactorCount(domain.ReactionSnapshot{"x": {""}}, ""); got != 0 {
		t.Fatalf("blank ids must not count, got %d", got)
	}
	if got := UniqueReactorCount(domain.ReactionSnapshot{"x": {"A", "A"}}, ""); got != 1 {
		t.Fatalf("duplicate ids within one emoji must count once, got %d", got)
	}
}
