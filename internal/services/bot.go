package services

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-memes-bot/internal/domain"
	"github.com/tbourn/go-memes-bot/internal/platform"
	"github.com/tbourn/go-memes-bot/internal/sysutil"
)

// Bot routes gateway events: new memes get the seed reaction, reactions
// trigger an evaluation, and admin commands are answered. All work runs on
// the dispatcher, keyed by post id, so the gateway reader never blocks on
// REST calls.
type Bot struct {
	Engine     *RepostEngine
	Client     platform.Client
	Dispatcher *Dispatcher
	Commands   *CommandHandler

	MemeChannelID string
	SeedReaction  string

	log zerolog.Logger
}

var _ platform.Handler = (*Bot)(nil)

// NewBot wires a Bot. commands may be nil to disable chat administration.
func NewBot(engine *RepostEngine, client platform.Client, d *Dispatcher, commands *CommandHandler, seed string) *Bot {
	return &Bot{
		Engine:        engine,
		Client:        client,
		Dispatcher:    d,
		Commands:      commands,
		MemeChannelID: engine.MemeChannelID,
		SeedReaction:  seed,
		log:           sysutil.Component("bot"),
	}
}

// OnNewPost handles a freshly created post.
func (b *Bot) OnNewPost(ctx context.Context, post domain.Post) {
	if post.Author.Bot || post.Author.ID == b.Client.SelfID() {
		return
	}
	if b.Commands != nil && b.Commands.IsCommand(post) {
		b.enqueue(ctx, post.ID, func(ctx context.Context) {
			b.Commands.Handle(ctx, post)
		})
		return
	}
	if post.ChannelID != b.MemeChannelID || b.SeedReaction == "" || !IsEligible(post) {
		return
	}
	b.enqueue(ctx, post.ID, func(ctx context.Context) {
		if err := b.Client.AddReaction(ctx, post.ChannelID, post.ID, b.SeedReaction); err != nil {
			b.log.Warn().Err(err).Str("post_id", post.ID).Msg("seed reaction failed")
		}
	})
}

// OnReaction schedules an evaluation of the reacted post.
func (b *Bot) OnReaction(ctx context.Context, ev domain.ReactionEvent) {
	if ev.ChannelID != b.MemeChannelID {
		return
	}
	// the bot's own seed reaction never changes the count
	if self := b.Client.SelfID(); self != "" && ev.ReactorID == self {
		return
	}
	b.enqueue(ctx, ev.PostID, func(ctx context.Context) {
		b.Engine.Evaluate(ctx, ev.ChannelID, ev.PostID)
	})
}

func (b *Bot) enqueue(ctx context.Context, key string, fn func(context.Context)) {
	if err := b.Dispatcher.AddWork(ctx, key, fn); err != nil {
		b.log.Warn().Err(err).Str("post_id", key).Msg("event not scheduled")
	}
}
