// Package discord is the Discord transport over a discordgo gateway session.
package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	"remindbot/internal/transport"
	"remindbot/pkg/logx"
)

const (
	textLimit = 2000
	// Interactions must be answered within minutes; older handles are pruned.
	interactionTTL = 15 * time.Minute
)

type Config struct {
	Token string
}

type pending struct {
	in *discordgo.Interaction
	at time.Time
}

type Adapter struct {
	log logx.Logger
	s   *discordgo.Session

	out     atomic.Pointer[chan<- transport.Update]
	dropped atomic.Uint64

	runMu    sync.Mutex
	running  bool
	removers []func()

	imu          sync.Mutex
	interactions map[string]pending
}

var _ transport.Adapter = (*Adapter)(nil)
var _ transport.ActionSender = (*Adapter)(nil)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("discord: token is empty")
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{
		log:          log.With(logx.String("comp", "discord")),
		s:            s,
		interactions: map[string]pending{},
	}, nil
}

// Start opens the gateway. discordgo reconnects on its own, so no restart
// loop is needed here.
func (a *Adapter) Start(ctx context.Context, out chan<- transport.Update) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return nil
	}
	a.out.Store(&out)
	a.removers = append(a.removers,
		a.s.AddHandler(a.onMessage),
		a.s.AddHandler(a.onInteraction),
	)
	if err := a.s.Open(); err != nil {
		a.out.Store(nil)
		a.removeHandlers()
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	a.running = true
	a.log.Info("gateway connected")
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if !a.running {
		return nil
	}
	a.running = false
	a.out.Store(nil)
	a.removeHandlers()
	if n := a.dropped.Swap(0); n > 0 {
		a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n))
	}
	if err := a.s.Close(); err != nil {
		a.log.Debug("gateway close", logx.Err(err))
	}
	return nil
}

func (a *Adapter) removeHandlers() {
	for _, rm := range a.removers {
		rm()
	}
	a.removers = nil
}

func (a *Adapter) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	selfID := ""
	if s.State != nil && s.State.User != nil {
		selfID = s.State.User.ID
	}
	if up, ok := messageUpdate(m, selfID); ok {
		a.forward(up)
	}
}

func messageUpdate(m *discordgo.MessageCreate, selfID string) (transport.Update, bool) {
	if m == nil || m.Message == nil || m.Author == nil || m.Author.Bot || m.Author.ID == selfID {
		return transport.Update{}, false
	}
	return transport.Update{
		Kind: transport.UpdateMessage,
		Message: &transport.Message{
			ID:       m.ID,
			ChatID:   m.ChannelID,
			FromID:   m.Author.ID,
			FromName: m.Author.Username,
			Text:     m.Content,
			Direct:   m.GuildID == "",
		},
	}, true
}

func (a *Adapter) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	up, ok := interactionUpdate(i)
	if !ok {
		return
	}
	a.imu.Lock()
	now := time.Now()
	for id, p := range a.interactions {
		if now.Sub(p.at) > interactionTTL {
			delete(a.interactions, id)
		}
	}
	a.interactions[i.ID] = pending{in: i.Interaction, at: now}
	a.imu.Unlock()
	a.forward(up)
}

func interactionUpdate(i *discordgo.InteractionCreate) (transport.Update, bool) {
	if i == nil || i.Interaction == nil || i.Type != discordgo.InteractionMessageComponent {
		return transport.Update{}, false
	}
	from := ""
	switch {
	case i.Member != nil && i.Member.User != nil:
		from = i.Member.User.ID
	case i.User != nil:
		from = i.User.ID
	}
	cb := &transport.Callback{
		ID:     i.ID,
		ChatID: i.ChannelID,
		FromID: from,
		Data:   i.MessageComponentData().CustomID,
	}
	if i.Message != nil {
		cb.MessageID = i.Message.ID
	}
	return transport.Update{Kind: transport.UpdateCallback, Callback: cb}, true
}

func (a *Adapter) forward(up transport.Update) {
	p := a.out.Load()
	if p == nil {
		return
	}
	select {
	case *p <- up:
	default:
		a.dropped.Add(1)
	}
}

func (a *Adapter) SendDirect(ctx context.Context, userID, text string) error {
	return a.SendDirectActions(ctx, userID, text, nil)
}

func (a *Adapter) SendChannel(ctx context.Context, channelID, text string) error {
	return a.SendChannelActions(ctx, channelID, text, nil)
}

func (a *Adapter) SendDirectActions(ctx context.Context, userID, text string, actions []transport.Action) error {
	ch, err := a.s.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord: open dm with %s: %w", userID, err)
	}
	return a.SendChannelActions(ctx, ch.ID, text, actions)
}

func (a *Adapter) SendChannelActions(ctx context.Context, channelID, text string, actions []transport.Action) error {
	chunks := transport.SplitText(text, textLimit)
	for i, chunk := range chunks {
		msg := &discordgo.MessageSend{Content: chunk}
		if i == len(chunks)-1 && len(actions) > 0 {
			msg.Components = buttons(actions)
		}
		if _, err := a.s.ChannelMessageSendComplex(channelID, msg, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("discord: send to %s: %w", channelID, err)
		}
	}
	return nil
}

func buttons(actions []transport.Action) []discordgo.MessageComponent {
	row := discordgo.ActionsRow{}
	for i, act := range actions {
		style := discordgo.SecondaryButton
		if i == 0 {
			style = discordgo.SuccessButton
		}
		row.Components = append(row.Components, discordgo.Button{Label: act.Label, Style: style, CustomID: act.Data})
	}
	return []discordgo.MessageComponent{row}
}

// AnswerCallback replaces the pressed message with text and drops its
// buttons, so a reminder can't be completed twice from the same message.
func (a *Adapter) AnswerCallback(ctx context.Context, callbackID, text string) error {
	a.imu.Lock()
	p, ok := a.interactions[callbackID]
	delete(a.interactions, callbackID)
	a.imu.Unlock()
	if !ok {
		return fmt.Errorf("discord: unknown interaction %s", callbackID)
	}
	return a.s.InteractionRespond(p.in, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:    text,
			Embeds:     []*discordgo.MessageEmbed{},
			Components: []discordgo.MessageComponent{},
		},
	}, discordgo.WithContext(ctx))
}
