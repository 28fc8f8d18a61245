package twitch

import (
	"context"
	"strconv"
	"strings"
	"time"

	irc "github.com/gempir/go-twitch-irc/v4"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/BugisoftRSG/subathon-timer/internal/command"
	"github.com/BugisoftRSG/subathon-timer/internal/events"
	"github.com/BugisoftRSG/subathon-timer/internal/timer"
)

// Engine is what the ingest needs from the timer core.
type Engine interface {
	Start(seconds float64)
	ForceTime(seconds float64)
	AddTime(seconds float64) time.Time
	UpdateBaseTime(base float64)
	BaseTime() float64
	IsStarted() bool
	Expired() bool
}

// HistoryStore records accepted contributions. Writes are best-effort: a
// failure never blocks or reverts the timer change.
type HistoryStore interface {
	InsertSubscription(ts, endingAt time.Time, seconds float64, plan, username string) error
	InsertSubBomb(ts time.Time, amount int, plan, username string) error
	InsertCheer(ts, endingAt time.Time, bits int, username string) error
}

// Config identifies the channel and the allow-listed operators.
type Config struct {
	Channel string
	// Token is the chat OAuth token; empty connects anonymously.
	Token string
	// Admins are usernames allowed to issue timer commands.
	Admins []string
}

// Ingest bridges Twitch chat to the timer engine: it validates raw IRC
// payloads into typed events, applies the operator allow-list and the
// contribution expiry gate, and records history rows.
type Ingest struct {
	engine Engine
	store  HistoryStore
	calc   timer.Calculator
	clock  clockwork.Clock

	admins  map[string]bool
	channel string
	client  *irc.Client
}

func New(cfg Config, engine Engine, store HistoryStore, calc timer.Calculator, clock clockwork.Clock) *Ingest {
	admins := make(map[string]bool, len(cfg.Admins))
	for _, name := range cfg.Admins {
		admins[strings.ToLower(name)] = true
	}

	var client *irc.Client
	if cfg.Token != "" {
		client = irc.NewClient(cfg.Channel, cfg.Token)
	} else {
		client = irc.NewAnonymousClient()
	}

	in := &Ingest{
		engine:  engine,
		store:   store,
		calc:    calc,
		clock:   clock,
		admins:  admins,
		channel: cfg.Channel,
		client:  client,
	}

	client.OnConnect(func() {
		log.Info().Str("channel", cfg.Channel).Msg("connected to Twitch chat")
	})
	client.OnPrivateMessage(in.onPrivateMessage)
	client.OnUserNoticeMessage(in.onUserNotice)
	client.Join(cfg.Channel)

	return in
}

// Run connects to Twitch chat and blocks until the connection ends or ctx is
// cancelled. A connect failure is returned, not fatal: the overlay keeps
// serving persisted state while ingestion is unavailable.
func (in *Ingest) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		if err := in.client.Disconnect(); err != nil {
			log.Debug().Err(err).Msg("twitch disconnect")
		}
	}()
	return in.client.Connect()
}

func (in *Ingest) onPrivateMessage(m irc.PrivateMessage) {
	if m.Bits > 0 {
		in.Dispatch(events.Cheer{Bits: m.Bits, Username: m.User.Name})
		return
	}
	in.Dispatch(events.ChatMessage{Username: m.User.Name, Text: m.Message})
}

func (in *Ingest) onUserNotice(m irc.UserNoticeMessage) {
	plan := m.MsgParams["msg-param-sub-plan"]

	switch m.MsgID {
	case "sub":
		in.Dispatch(events.Subscription{Plan: plan, Username: m.User.Name})
	case "resub":
		in.Dispatch(events.Resub{Plan: plan, Username: m.User.Name})
	case "subgift", "anonsubgift":
		in.Dispatch(events.SubscriptionGift{
			Plan:      plan,
			Gifter:    m.User.Name,
			Recipient: m.MsgParams["msg-param-recipient-user-name"],
		})
	case "submysterygift":
		count, _ := strconv.Atoi(m.MsgParams["msg-param-mass-gift-count"])
		in.Dispatch(events.MysteryGiftBundle{Plan: plan, Gifter: m.User.Name, Count: count})
	}
}

// Dispatch routes one typed event into the core.
func (in *Ingest) Dispatch(ev events.Event) {
	switch ev := ev.(type) {
	case events.Subscription:
		in.handleSub(ev.Plan, ev.Username)
	case events.Resub:
		in.handleSub(ev.Plan, ev.Username)
	case events.SubscriptionGift:
		in.handleSub(ev.Plan, ev.Gifter)
	case events.MysteryGiftBundle:
		in.handleSubBomb(ev)
	case events.Cheer:
		in.handleCheer(ev)
	case events.ChatMessage:
		in.handleChat(ev)
	}
}

// handleSub applies one sub, resub or gift sub. Contributions arriving after
// expiry are dropped entirely: no timer change and no history row.
func (in *Ingest) handleSub(plan, username string) {
	if in.engine.Expired() {
		return
	}
	seconds := in.calc.SubSeconds(plan, in.engine.BaseTime())
	endingAt := in.engine.AddTime(seconds)

	ts := in.clock.Now()
	go func() {
		if err := in.store.InsertSubscription(ts, endingAt, seconds, planOrUndefined(plan), username); err != nil {
			log.Error().Err(err).Str("user", username).Msg("failed to record subscription")
		}
	}()
}

func (in *Ingest) handleCheer(ev events.Cheer) {
	if in.engine.Expired() {
		return
	}
	seconds := in.calc.CheerSeconds(ev.Bits, in.engine.BaseTime())
	endingAt := in.engine.AddTime(seconds)

	ts := in.clock.Now()
	go func() {
		if err := in.store.InsertCheer(ts, endingAt, ev.Bits, ev.Username); err != nil {
			log.Error().Err(err).Str("user", ev.Username).Msg("failed to record cheer")
		}
	}()
}

// handleSubBomb records the bundle announcement. The timer is untouched: the
// bundle's individual gifts arrive as their own events.
func (in *Ingest) handleSubBomb(ev events.MysteryGiftBundle) {
	log.Info().Str("user", ev.Gifter).Int("count", ev.Count).Msg("mystery gift bundle")

	ts := in.clock.Now()
	go func() {
		if err := in.store.InsertSubBomb(ts, ev.Count, planOrUndefined(ev.Plan), ev.Gifter); err != nil {
			log.Error().Err(err).Str("user", ev.Gifter).Msg("failed to record sub bomb")
		}
	}()
}

// handleChat runs the command parser for allow-listed senders. Unauthorized
// or malformed input is inert; nothing is surfaced to the room.
func (in *Ingest) handleChat(ev events.ChatMessage) {
	if !strings.HasPrefix(ev.Text, "?") || !in.admins[strings.ToLower(ev.Username)] {
		return
	}

	switch cmd := command.Parse(ev.Text).(type) {
	case command.Start:
		if !in.engine.IsStarted() {
			in.engine.Start(float64(cmd.Seconds))
		}
	case command.ForceTimer:
		// Allowed even after expiry; only requires a started timer.
		if in.engine.IsStarted() {
			in.engine.ForceTime(float64(cmd.Seconds))
		}
	case command.SetBaseTime:
		in.engine.UpdateBaseTime(float64(cmd.Seconds))
	}
}

// planOrUndefined keeps history rows readable when Twitch omits the plan.
func planOrUndefined(plan string) string {
	if plan == "" {
		return "undefined"
	}
	return plan
}
