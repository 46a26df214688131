package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-memes-bot/internal/domain"
	"github.com/tbourn/go-memes-bot/internal/observability"
	"github.com/tbourn/go-memes-bot/internal/platform"
	"github.com/tbourn/go-memes-bot/internal/sysutil"
)

// ScanStats summarises one backfill pass.
type ScanStats struct {
	Seen      int
	Delivered int
	Skipped   int
	Failed    int
}

// BackfillScanner periodically re-evaluates every post of the watched
// channel, catching reactions that arrived while the bot was offline.
type BackfillScanner struct {
	Engine    *RepostEngine
	Client    platform.Client
	ChannelID string
	Interval  time.Duration
	PageSize  int
	// ItemTimeout bounds each evaluation, which runs detached from the
	// scan's cancellation.
	ItemTimeout time.Duration

	log zerolog.Logger
}

// NewBackfillScanner returns a scanner over the engine's channel.
func NewBackfillScanner(engine *RepostEngine, client platform.Client, interval time.Duration, pageSize int) *BackfillScanner {
	return &BackfillScanner{
		Engine:      engine,
		Client:      client,
		ChannelID:   engine.MemeChannelID,
		Interval:    interval,
		PageSize:    pageSize,
		ItemTimeout: 30 * time.Second,
		log:         sysutil.Component("backfill"),
	}
}

// Run scans immediately and then every Interval until ctx is done. A failed
// pass is logged and the next one is scheduled regardless.
func (b *BackfillScanner) Run(ctx context.Context) {
	interval := b.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	b.log.Info().Dur("interval", interval).Str("channel_id", b.ChannelID).Msg("backfill started")

	t := time.NewTimer(0)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			b.log.Info().Msg("backfill stopped")
			return
		case <-t.C:
		}
		b.pass(ctx)
		t.Reset(interval)
	}
}

func (b *BackfillScanner) pass(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			observability.BackfillScans.WithLabelValues("error").Inc()
			b.log.Error().Interface("panic", r).Msg("backfill pass panicked")
		}
	}()

	start := time.Now()
	st, err := b.ScanOnce(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		observability.BackfillScans.WithLabelValues("error").Inc()
		b.log.Error().Err(err).Int("seen", st.Seen).Msg("backfill pass failed")
		return
	}
	observability.BackfillScans.WithLabelValues("ok").Inc()
	b.log.Info().
		Int("seen", st.Seen).
		Int("delivered", st.Delivered).
		Int("skipped", st.Skipped).
		Int("failed", st.Failed).
		Dur("took", time.Since(start)).
		Msg("backfill pass finished")
}

// ScanOnce walks the channel oldest-first and evaluates every post not
// authored by the bot. Per-post failures are counted, not returned; the
// error is the listing error, if any.
func (b *BackfillScanner) ScanOnce(ctx context.Context) (ScanStats, error) {
	var st ScanStats
	self := b.Client.SelfID()
	err := b.Client.WalkPosts(ctx, b.ChannelID, b.PageSize, func(p domain.Post) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		st.Seen++
		if self != "" && p.Author.ID == self {
			st.Skipped++
			return nil
		}

		ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.itemTimeout())
		out := b.Engine.EvaluatePost(ictx, p)
		cancel()

		switch out.Kind {
		case Delivered:
			st.Delivered++
		case Failed:
			st.Failed++
		default:
			st.Skipped++
		}
		return nil
	})
	if err != nil {
		return st, fmt.Errorf("walk channel %s: %w", b.ChannelID, err)
	}
	return st, nil
}

func (b *BackfillScanner) itemTimeout() time.Duration {
	if b.ItemTimeout > 0 {
		return b.ItemTimeout
	}
	return 30 * time.Second
}
