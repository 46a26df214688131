package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/go-memes-bot/internal/config"
	"github.com/tbourn/go-memes-bot/internal/delivery"
	httpapi "github.com/tbourn/go-memes-bot/internal/http"
	"github.com/tbourn/go-memes-bot/internal/observability"
	"github.com/tbourn/go-memes-bot/internal/platform/discord"
	"github.com/tbourn/go-memes-bot/internal/services"
	"github.com/tbourn/go-memes-bot/internal/sysutil"
)

const shutdownGrace = 15 * time.Second

// runBot wires every component and blocks until SIGINT/SIGTERM or a fatal
// gateway error. Queued events are dropped on shutdown; the next backfill
// pass picks them up.
func runBot(parent context.Context, cfg config.Config) error {
	lg := sysutil.Component("main")

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			lg.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	res, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer res.Close()

	locker, closeLocker, err := openLocker(ctx, cfg, res.Redis)
	if err != nil {
		return err
	}
	defer closeLocker()

	rest := discord.NewREST(cfg.Bot.APIBaseURL, cfg.Bot.Token)
	if err := rest.Init(ctx); err != nil {
		return err
	}

	engine := services.NewRepostEngine(res.Store, locker, rest, delivery.NewWebhookSink(cfg.Bot.WebhookURL), cfg.Bot.MemeChannelID)
	engine.Timeout = cfg.Pipeline.EvaluationTimeout

	// In-flight work must outlive the signal so a claim is never abandoned.
	dispatcher := services.NewDispatcher(context.WithoutCancel(ctx), cfg.Pipeline.Workers, cfg.Pipeline.QueueSize)
	defer dispatcher.Shutdown()

	thresholds := services.NewThresholdService(res.Store)
	commands := services.NewCommandHandler(thresholds, rest, cfg.Bot.CommandPrefix, cfg.Bot.AdminRoleIDs)
	bot := services.NewBot(engine, rest, dispatcher, commands, cfg.Bot.SeedReaction)

	gw := discord.NewGateway(cfg.Bot.GatewayURL, cfg.Bot.Token)
	gw.OnReady = rest.SetSelfID

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := gw.Run(gctx, bot)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if cfg.Pipeline.BackfillEnabled {
		scanner := services.NewBackfillScanner(engine, rest, cfg.Pipeline.BackfillInterval, cfg.Pipeline.BackfillPageSize)
		scanner.ItemTimeout = cfg.Pipeline.EvaluationTimeout
		g.Go(func() error {
			scanner.Run(gctx)
			return nil
		})
	}

	if cfg.HTTPEnabled {
		gin.SetMode(cfg.GinMode)
		r := gin.New()
		httpapi.RegisterRoutes(r, httpapi.Deps{Thresholds: thresholds, Engine: engine}, cfg)
		srv := httpapi.NewServer(cfg, r)

		g.Go(func() error {
			lg.Info().Str("addr", srv.Addr).Msg("admin api listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	lg.Info().
		Str("channel_id", cfg.Bot.MemeChannelID).
		Str("store", cfg.Store.Backend).
		Str("lock", cfg.Lock.Backend).
		Bool("backfill", cfg.Pipeline.BackfillEnabled).
		Msg("memebot started")

	err = g.Wait()
	lg.Info().Err(err).Int("pending", dispatcher.Pending()).Msg("memebot stopping")
	return err
}
