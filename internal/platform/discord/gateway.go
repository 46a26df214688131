package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tbourn/go-memes-bot/internal/domain"
	"github.com/tbourn/go-memes-bot/internal/platform"
	"github.com/tbourn/go-memes-bot/internal/sysutil"
)

// Gateway opcodes.
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatAck   = 11
)

// Intents needed to see guild messages (with content) and reactions.
const (
	intentGuilds                = 1 << 0
	intentGuildMessages         = 1 << 9
	intentGuildMessageReactions = 1 << 10
	intentMessageContent        = 1 << 15

	DefaultIntents = intentGuilds | intentGuildMessages | intentGuildMessageReactions | intentMessageContent
)

// errReconnect asks the run loop to open a new session.
var errReconnect = errors.New("gateway requested reconnect")

// Gateway is a websocket session feeding platform events to a Handler.
// Missed events during reconnects are not replayed; the backfill scanner
// covers them.
type Gateway struct {
	URL     string
	Token   string
	Intents int

	// OnReady is called with the bot's user id after every identify.
	OnReady func(selfID string)

	Dialer *websocket.Dialer

	// identify pacing: Discord allows one identify per 5s per bot
	limiter *rate.Limiter
	log     zerolog.Logger

	seq       atomic.Int64
	ackMu     sync.Mutex
	lastAck   time.Time
	lastBeat  time.Time
	writeMu   sync.Mutex
	sessionID string
}

// NewGateway returns a gateway client for url authenticated with token.
func NewGateway(url, token string) *Gateway {
	return &Gateway{
		URL:     url,
		Token:   token,
		Intents: DefaultIntents,
		Dialer:  websocket.DefaultDialer,
		limiter: rate.NewLimiter(rate.Every(5*time.Second), 1),
		log:     sysutil.Component("discord-gateway"),
	}
}

// Run keeps a session open until ctx is done, reconnecting on failure.
func (g *Gateway) Run(ctx context.Context, h platform.Handler) error {
	backoff := time.Second
	for {
		if err := g.limiter.Wait(ctx); err != nil {
			return ctx.Err()
		}
		start := time.Now()
		err := g.session(ctx, h)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var ce *websocket.CloseError
		if errors.As(err, &ce) && fatalClose(ce.Code) {
			return fmt.Errorf("gateway closed the session for good: %w", err)
		}
		if time.Since(start) > time.Minute {
			backoff = time.Second
		}
		g.log.Warn().Err(err).Dur("retry_in", backoff).Msg("gateway session ended")

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		if backoff < 2*time.Minute {
			backoff *= 2
		}
	}
}

// fatalClose reports close codes after which reconnecting cannot help:
// authentication failed, invalid shard, sharding required, invalid API
// version, invalid or disallowed intents.
func fatalClose(code int) bool {
	switch code {
	case 4004, 4010, 4011, 4012, 4013, 4014:
		return true
	}
	return false
}

func (g *Gateway) session(ctx context.Context, h platform.Handler) error {
	conn, _, err := g.Dialer.DialContext(ctx, g.URL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	var f frame
	if err := conn.ReadJSON(&f); err != nil {
		return fmt.Errorf("read hello: %w", err)
	}
	if f.Op != opHello {
		return fmt.Errorf("expected hello, got op %d", f.Op)
	}
	var hl hello
	if err := json.Unmarshal(f.D, &hl); err != nil {
		return fmt.Errorf("decode hello: %w", err)
	}

	g.seq.Store(0)
	if err := g.send(conn, opIdentify, identify{
		Token:   g.Token,
		Intents: g.Intents,
		Properties: identifyProps{
			OS:      "linux",
			Browser: "memebot",
			Device:  "memebot",
		},
	}); err != nil {
		return fmt.Errorf("identify: %w", err)
	}

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hbErr := make(chan error, 1)
	go func() {
		hbErr <- g.heartbeat(sctx, conn, time.Duration(hl.HeartbeatInterval)*time.Millisecond)
	}()

	// unblock ReadJSON on shutdown
	go func() {
		<-sctx.Done()
		_ = conn.SetReadDeadline(time.Now())
	}()

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			select {
			case herr := <-hbErr:
				if herr != nil {
					return herr
				}
			default:
			}
			return fmt.Errorf("read: %w", err)
		}
		if f.S != nil {
			g.seq.Store(*f.S)
		}
		switch f.Op {
		case opDispatch:
			g.dispatch(ctx, h, f)
		case opHeartbeat:
			if err := g.send(conn, opHeartbeat, g.seqValue()); err != nil {
				return err
			}
		case opHeartbeatAck:
			g.ackMu.Lock()
			g.lastAck = time.Now()
			g.ackMu.Unlock()
		case opReconnect:
			return errReconnect
		case opInvalidSession:
			return errors.New("invalid session")
		}
	}
}

func (g *Gateway) heartbeat(ctx context.Context, conn *websocket.Conn, every time.Duration) error {
	if every <= 0 {
		every = 41250 * time.Millisecond
	}
	// first beat is jittered per the gateway docs
	first := time.Duration(rand.Int63n(int64(every)))
	t := time.NewTimer(first)
	defer t.Stop()

	g.ackMu.Lock()
	g.lastAck = time.Now()
	g.lastBeat = time.Time{}
	g.ackMu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		g.ackMu.Lock()
		zombie := !g.lastBeat.IsZero() && g.lastAck.Before(g.lastBeat)
		g.lastBeat = time.Now()
		g.ackMu.Unlock()
		if zombie {
			_ = conn.Close()
			return errors.New("heartbeat not acknowledged")
		}
		if err := g.send(conn, opHeartbeat, g.seqValue()); err != nil {
			return err
		}
		t.Reset(every)
	}
}

func (g *Gateway) seqValue() any {
	if s := g.seq.Load(); s > 0 {
		return s
	}
	return nil
}

func (g *Gateway) send(conn *websocket.Conn, op int, d any) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(frame{Op: op, D: raw})
}

func (g *Gateway) dispatch(ctx context.Context, h platform.Handler, f frame) {
	switch f.T {
	case "READY":
		var r ready
		if err := json.Unmarshal(f.D, &r); err != nil {
			g.log.Error().Err(err).Msg("decode READY")
			return
		}
		g.sessionID = r.SessionID
		g.log.Info().Str("user", r.User.Username).Str("user_id", r.User.ID).Msg("logged in")
		if g.OnReady != nil {
			g.OnReady(r.User.ID)
		}
	case "MESSAGE_CREATE":
		var m message
		if err := json.Unmarshal(f.D, &m); err != nil {
			g.log.Error().Err(err).Msg("decode MESSAGE_CREATE")
			return
		}
		h.OnNewPost(ctx, m.toPost(m.GuildID))
	case "MESSAGE_REACTION_ADD":
		var r reactionAdd
		if err := json.Unmarshal(f.D, &r); err != nil {
			g.log.Error().Err(err).Msg("decode MESSAGE_REACTION_ADD")
			return
		}
		h.OnReaction(ctx, domain.ReactionEvent{
			PostID:    r.MessageID,
			ChannelID: r.ChannelID,
			GuildID:   r.GuildID,
			ReactorID: r.UserID,
			Emoji:     r.Emoji.apiEmoji(),
			At:        time.Now().UTC(),
		})
	}
}
