// Package telegram is the Telegram transport, built on telebot long polling.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"remindbot/internal/runtime/supervisor"
	"remindbot/internal/transport"
	"remindbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Adapter struct {
	log logx.Logger
	bot *tele.Bot

	out     atomic.Pointer[chan<- transport.Update]
	dropped atomic.Uint64

	runMu   sync.Mutex
	running bool
	sup     *supervisor.Supervisor

	menuMu   sync.Mutex
	menuHash uint64
}

var _ transport.Adapter = (*Adapter)(nil)
var _ transport.ActionSender = (*Adapter)(nil)
var _ transport.CommandMenuUpdater = (*Adapter)(nil)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram: token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{log: log.With(logx.String("comp", "telegram")), bot: b}
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		if up, ok := messageUpdate(c.Message()); ok {
			a.forward(up)
		}
		return nil
	})
	a.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		if up, ok := callbackUpdate(c.Callback()); ok {
			a.forward(up)
		}
		return nil
	})
	return a, nil
}

func messageUpdate(m *tele.Message) (transport.Update, bool) {
	if m == nil || m.Chat == nil || m.Sender == nil {
		return transport.Update{}, false
	}
	name := m.Sender.Username
	if name == "" {
		name = strings.TrimSpace(m.Sender.FirstName + " " + m.Sender.LastName)
	}
	return transport.Update{
		Kind: transport.UpdateMessage,
		Message: &transport.Message{
			ID:       strconv.Itoa(m.ID),
			ChatID:   strconv.FormatInt(m.Chat.ID, 10),
			FromID:   strconv.FormatInt(m.Sender.ID, 10),
			FromName: name,
			Text:     m.Text,
			Direct:   m.Chat.Type == tele.ChatPrivate,
		},
	}, true
}

func callbackUpdate(cb *tele.Callback) (transport.Update, bool) {
	if cb == nil || cb.Sender == nil {
		return transport.Update{}, false
	}
	up := transport.Update{
		Kind: transport.UpdateCallback,
		Callback: &transport.Callback{
			ID:     cb.ID,
			FromID: strconv.FormatInt(cb.Sender.ID, 10),
			Data:   cb.Data,
		},
	}
	if m := cb.Message; m != nil {
		up.Callback.MessageID = strconv.Itoa(m.ID)
		if m.Chat != nil {
			up.Callback.ChatID = strconv.FormatInt(m.Chat.ID, 10)
		}
	}
	return up, true
}

// forward never blocks the poll loop; overflow is counted and reported.
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

func (a *Adapter) Start(ctx context.Context, out chan<- transport.Update) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(&out)
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log))
	sup := a.sup
	a.runMu.Unlock()

	sup.Go("updates.drop_report", func(c context.Context) error {
		t := time.NewTicker(5 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				a.reportDropped(cap(out))
				return nil
			case <-t.C:
				a.reportDropped(cap(out))
			}
		}
	})
	sup.Go("telebot.stop_on_cancel", func(c context.Context) error {
		<-c.Done()
		a.bot.Stop()
		return nil
	})
	// bot.Start blocks until Stop; an early return while the context is
	// still live is restarted.
	sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
		return nil
	}, supervisor.RestartPolicy{MinBackoff: 500 * time.Millisecond, MaxBackoff: 10 * time.Second, RestartOnCleanExit: true})
	return nil
}

func (a *Adapter) reportDropped(capacity int) {
	if n := a.dropped.Swap(0); n > 0 {
		a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", capacity))
	}
}

// Stop waits at most two seconds for the long poll to unwind.
func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	a.out.Store(nil)
	a.runMu.Unlock()
	if !wasRunning || sup == nil {
		return nil
	}

	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := sup.Stop(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.log.Debug("telegram stopped with error", logx.Err(err))
	}
	return nil
}

func (a *Adapter) SendDirect(ctx context.Context, userID, text string) error {
	return a.send(ctx, userID, text, nil)
}

func (a *Adapter) SendChannel(ctx context.Context, channelID, text string) error {
	return a.send(ctx, channelID, text, nil)
}

func (a *Adapter) SendDirectActions(ctx context.Context, userID, text string, actions []transport.Action) error {
	return a.send(ctx, userID, text, actions)
}

func (a *Adapter) SendChannelActions(ctx context.Context, channelID, text string, actions []transport.Action) error {
	return a.send(ctx, channelID, text, actions)
}

// In Telegram a private chat id equals the user id, so direct and channel
// sends share one path.
func (a *Adapter) send(ctx context.Context, chatID, text string, actions []transport.Action) error {
	id, err := strconv.ParseInt(strings.TrimSpace(chatID), 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: bad chat id %q: %w", chatID, err)
	}
	chunks := transport.SplitText(text, textLimit)
	chat := &tele.Chat{ID: id}
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		opt := &tele.SendOptions{DisableWebPagePreview: true}
		if i == len(chunks)-1 && len(actions) > 0 {
			opt.ReplyMarkup = inlineMarkup(actions)
		}
		if _, err := a.bot.Send(chat, chunk, opt); err != nil {
			return fmt.Errorf("telegram: send to %s: %w", chatID, err)
		}
	}
	return nil
}

func inlineMarkup(actions []transport.Action) *tele.ReplyMarkup {
	row := make([]tele.InlineButton, 0, len(actions))
	for _, act := range actions {
		row = append(row, tele.InlineButton{Text: act.Label, Data: act.Data})
	}
	return &tele.ReplyMarkup{InlineKeyboard: [][]tele.InlineButton{row}}
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text})
}

// UpdateMenuCommands calls setMyCommands only when the list changed.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []transport.BotCommand) error {
	a.menuMu.Lock()
	defer a.menuMu.Unlock()

	sum := menuHash(cmds)
	if sum == a.menuHash {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	list := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		d := c.Description
		if d == "" {
			d = c.Command
		}
		if len(d) > 256 {
			d = d[:256]
		}
		list = append(list, tele.Command{Text: c.Command, Description: d})
	}
	if err := a.bot.SetCommands(list); err != nil {
		return fmt.Errorf("telegram: setMyCommands: %w", err)
	}
	a.menuHash = sum
	a.log.Info("menu commands updated", logx.Int("count", len(list)))
	return nil
}

func menuHash(cmds []transport.BotCommand) uint64 {
	h := fnv.New64a()
	for _, c := range cmds {
		h.Write([]byte(c.Command))
		h.Write([]byte{0})
		h.Write([]byte(c.Description))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

const textLimit = 4000
