package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-memes-bot/internal/delivery"
	"github.com/tbourn/go-memes-bot/internal/domain"
	"github.com/tbourn/go-memes-bot/internal/lock"
	"github.com/tbourn/go-memes-bot/internal/observability"
	"github.com/tbourn/go-memes-bot/internal/platform"
	"github.com/tbourn/go-memes-bot/internal/settings"
	"github.com/tbourn/go-memes-bot/internal/sysutil"
)

// RepostEngine decides whether a post has earned a repost and delivers it
// at most once.
//
// The post is claimed in the store before delivery. The lock only keeps
// concurrent evaluations of one post from doing the same reads twice; the
// store's insert-if-absent decides who delivers.
type RepostEngine struct {
	Store  settings.Store
	Locker lock.Locker
	Client platform.Client
	Sink   delivery.Sink

	// MemeChannelID is the only channel whose posts are considered.
	MemeChannelID string
	// Timeout bounds one evaluation; zero means no bound.
	Timeout time.Duration

	tracer trace.Tracer
	log    zerolog.Logger
}

// NewRepostEngine wires an engine. A nil locker disables locking.
func NewRepostEngine(store settings.Store, locker lock.Locker, client platform.Client, sink delivery.Sink, memeChannelID string) *RepostEngine {
	if locker == nil {
		locker = lock.Noop{}
	}
	return &RepostEngine{
		Store:         store,
		Locker:        locker,
		Client:        client,
		Sink:          sink,
		MemeChannelID: memeChannelID,
		tracer:        observability.Tracer(),
		log:           sysutil.Component("repost-engine"),
	}
}

// Evaluate re-reads a post and evaluates it. This is the path taken for
// live reaction events.
func (e *RepostEngine) Evaluate(ctx context.Context, channelID, postID string) Outcome {
	if channelID != e.MemeChannelID {
		return e.finish(channelID, postID, time.Now(), skipped(ReasonWrongChannel))
	}
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	post, err := e.Client.FetchPost(ctx, channelID, postID)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			return e.finish(channelID, postID, start, skipped(ReasonNotFound))
		}
		return e.finish(channelID, postID, start, failed(err))
	}
	return e.EvaluatePost(ctx, *post)
}

// EvaluatePost evaluates an already fetched post. The reaction snapshot is
// always read fresh.
func (e *RepostEngine) EvaluatePost(ctx context.Context, post domain.Post) Outcome {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	ctx, span := e.tracer.Start(ctx, "repost.evaluate", trace.WithAttributes(
		attribute.String("post.id", post.ID),
		attribute.String("channel.id", post.ChannelID),
	))
	defer span.End()

	start := time.Now()
	out := e.evaluate(ctx, post)

	span.SetAttributes(attribute.String("outcome", out.Kind.String()))
	if out.Reason != "" {
		span.SetAttributes(attribute.String("reason", string(out.Reason)))
	}
	if out.Kind == Failed {
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, "evaluation failed")
	}
	return e.finish(post.ChannelID, post.ID, start, out)
}

func (e *RepostEngine) evaluate(ctx context.Context, post domain.Post) Outcome {
	if post.ChannelID != e.MemeChannelID {
		return skipped(ReasonWrongChannel)
	}
	if self := e.Client.SelfID(); self != "" && post.Author.ID == self {
		return skipped(ReasonOwnPost)
	}
	if !IsEligible(post) {
		return skipped(ReasonNotEligible)
	}

	lease, err := e.Locker.Acquire(ctx, "repost:"+post.ID)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			e.log.Debug().Err(err).Str("post_id", post.ID).Msg("lock busy")
			return skipped(ReasonLockContention)
		}
		return failed(err)
	}
	defer func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := lease.Release(rctx); err != nil {
			e.log.Warn().Err(err).Str("post_id", post.ID).Msg("lock release failed")
		}
	}()

	done, err := e.Store.IsReposted(ctx, post.ID)
	if err != nil {
		return failed(err)
	}
	if done {
		return skipped(ReasonAlreadyReposted)
	}

	snap, err := e.Client.FetchReactors(ctx, &post)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			return skipped(ReasonNotFound)
		}
		return failed(err)
	}
	count := UniqueReactorCount(snap, e.Client.SelfID())

	threshold, err := e.Store.Threshold(ctx)
	if err != nil {
		return failed(err)
	}
	if count < threshold {
		out := skipped(ReasonBelowThreshold)
		out.Count, out.Threshold = count, threshold
		return out
	}

	claimed, err := e.Store.MarkReposted(ctx, post.ID, post.ChannelID)
	if err != nil {
		return failed(err)
	}
	if !claimed {
		return skipped(ReasonClaimLost)
	}

	// Past this point the post is claimed: a failed delivery is dropped.
	if err := e.Sink.Deliver(ctx, delivery.FromPost(post)); err != nil {
		observability.Deliveries.WithLabelValues("error").Inc()
		out := failed(err)
		out.Count, out.Threshold = count, threshold
		return out
	}
	observability.Deliveries.WithLabelValues("ok").Inc()
	return delivered(count, threshold)
}

func (e *RepostEngine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.Timeout > 0 {
		return context.WithTimeout(ctx, e.Timeout)
	}
	return ctx, func() {}
}

// finish records metrics and logs the outcome.
func (e *RepostEngine) finish(channelID, postID string, start time.Time, out Outcome) Outcome {
	observability.Evaluations.WithLabelValues(out.Kind.String(), string(out.Reason)).Inc()
	observability.EvaluationDuration.Observe(time.Since(start).Seconds())

	var ev *zerolog.Event
	switch {
	case out.Kind == Delivered:
		ev = e.log.Info()
	case out.Kind == Failed:
		ev = e.log.Error().Err(out.Err)
	default:
		ev = e.log.Debug()
	}
	ev = ev.Str("post_id", postID).
		Str("channel_id", channelID).
		Str("outcome", out.Kind.String())
	if out.Reason != "" {
		ev = ev.Str("reason", string(out.Reason))
	}
	if out.Threshold > 0 {
		ev = ev.Int("reactors", out.Count).Int("threshold", out.Threshold)
	}
	ev.Msg("evaluation finished")
	return out
}
