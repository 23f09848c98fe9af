// Package commands turns chat updates into reminder operations: text
// commands such as /remind and /snooze, and presses of the complete/snooze
// buttons attached to delivered reminders.
package commands

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"remindbot/internal/agenda"
	"remindbot/internal/reminder"
	"remindbot/internal/runtime/supervisor"
	"remindbot/internal/transport"
	"remindbot/pkg/logx"
)

// Agenda is the slice of agenda.Service the commands drive.
type Agenda interface {
	Create(ctx context.Context, p agenda.CreateParams) (reminder.Reminder, error)
	Complete(ctx context.Context, id, actor string) (reminder.Reminder, error)
	Snooze(ctx context.Context, id string, minutes int, actor string) (reminder.Reminder, error)
	Delete(ctx context.Context, id, actor string) error
	List(ctx context.Context, ownerID string) ([]reminder.Reminder, error)
	Summarize(ctx context.Context, ownerID string, since time.Time) (reminder.Summary, error)
	Location() *time.Location
}

// Replier is how answers get back to the chat.
type Replier interface {
	SendChannel(ctx context.Context, channelID, text string) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

type Config struct {
	DefaultSnoozeMinutes int
	Timeout              time.Duration
	Workers              int
	QueueSize            int
}

func (c Config) withDefaults() Config {
	if c.DefaultSnoozeMinutes <= 0 {
		c.DefaultSnoozeMinutes = 10
	}
	if c.Timeout <= 0 {
		c.Timeout = 20 * time.Second
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	return c
}

type Command struct {
	Name        string
	Aliases     []string
	Usage       string
	Description string
	Handle      HandlerFunc
}

// Request is one routed update.
type Request struct {
	Update   transport.Update
	ChatID   string
	FromID   string
	FromName string
	Direct   bool
	Command  string
	Args     []string
	ReqID    string
	Log      logx.Logger

	reply func(ctx context.Context, text string) error
}

func (r *Request) Reply(ctx context.Context, text string) error { return r.reply(ctx, text) }

type Manager struct {
	mu  sync.RWMutex
	cfg Config

	agenda Agenda
	out    Replier
	log    logx.Logger
	now    func() time.Time

	byName map[string]*Command
	list   []Command

	jobs chan func()
}

func New(cfg Config, ag Agenda, out Replier, log logx.Logger) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	m := &Manager{
		cfg:    cfg,
		agenda: ag,
		out:    out,
		log:    log.With(logx.String("comp", "commands")),
		now:    time.Now,
		byName: map[string]*Command{},
		jobs:   make(chan func(), cfg.QueueSize),
	}
	m.register(m.builtins())
	return m
}

// Apply swaps the reloadable settings. Workers and queue size are fixed
// at construction.
func (m *Manager) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	m.mu.Lock()
	m.cfg.DefaultSnoozeMinutes = cfg.DefaultSnoozeMinutes
	m.cfg.Timeout = cfg.Timeout
	m.mu.Unlock()
}

func (m *Manager) config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) register(cmds []Command) {
	m.list = cmds
	for i := range m.list {
		c := &m.list[i]
		m.byName[c.Name] = c
		for _, a := range c.Aliases {
			m.byName[a] = c
		}
	}
}

// Menu lists the commands for platform command menus.
func (m *Manager) Menu() []transport.BotCommand {
	out := make([]transport.BotCommand, 0, len(m.list))
	for _, c := range m.list {
		out = append(out, transport.BotCommand{Command: c.Name, Description: c.Description})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Command < out[j].Command })
	return out
}

// DispatchLoop routes updates to a bounded worker pool until ctx ends or
// updates is closed.
func (m *Manager) DispatchLoop(ctx context.Context, updates <-chan transport.Update) error {
	cfg := m.config()
	sup := supervisor.New(ctx, supervisor.WithLogger(m.log))
	for i := 0; i < cfg.Workers; i++ {
		sup.GoRestart("command.worker."+strconv.Itoa(i), m.worker,
			supervisor.RestartPolicy{MinBackoff: 200 * time.Millisecond, MaxBackoff: 5 * time.Second})
	}
	if up, ok := m.out.(transport.CommandMenuUpdater); ok {
		sup.Go("command.menu", func(c context.Context) error {
			mctx, cancel := context.WithTimeout(c, 10*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(mctx, m.Menu()); err != nil {
				m.log.Warn("menu update failed", logx.Err(err))
			}
			return nil
		})
	}
	m.log.Info("command dispatcher started", logx.Int("workers", cfg.Workers), logx.Int("queue_cap", cap(m.jobs)))

	defer func() {
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = sup.Stop(wctx)
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			m.route(ctx, up)
		}
	}
}

func (m *Manager) worker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case job := <-m.jobs:
			job()
		}
	}
}

func (m *Manager) enqueue(fn func()) bool {
	select {
	case m.jobs <- fn:
		return true
	default:
		return false
	}
}

func (m *Manager) route(ctx context.Context, up transport.Update) {
	switch up.Kind {
	case transport.UpdateMessage:
		m.routeMessage(ctx, up)
	case transport.UpdateCallback:
		m.routeCallback(ctx, up)
	}
}

func (m *Manager) routeMessage(ctx context.Context, up transport.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	word, args, ok := splitCommand(msg.Text)
	if !ok {
		return
	}
	cmd := m.byName[word]
	if cmd == nil {
		// Unknown commands in groups may belong to another bot.
		if msg.Direct {
			_ = m.out.SendChannel(ctx, msg.ChatID, "Unknown command. Try /help")
		}
		return
	}
	req := m.newRequest(up, msg.ChatID, msg.FromID, cmd.Name)
	req.FromName = msg.FromName
	req.Direct = msg.Direct
	req.Args = args
	req.reply = func(c context.Context, text string) error { return m.out.SendChannel(c, msg.ChatID, text) }

	h := m.wrap(cmd.Handle)
	if !m.enqueue(func() { _ = h(ctx, req) }) {
		_ = m.out.SendChannel(ctx, msg.ChatID, "Busy, try again in a moment.")
	}
}

func (m *Manager) routeCallback(ctx context.Context, up transport.Update) {
	cb := up.Callback
	if cb == nil {
		return
	}
	act, ok := transport.ParseAction(cb.Data)
	if !ok {
		_ = m.out.AnswerCallback(ctx, cb.ID, "Unknown action.")
		return
	}
	req := m.newRequest(up, cb.ChatID, cb.FromID, "button:"+act.Verb)
	req.reply = func(c context.Context, text string) error { return m.out.AnswerCallback(c, cb.ID, text) }

	h := m.wrap(func(c context.Context, r *Request) error { return m.handleAction(c, r, act) })
	if !m.enqueue(func() { _ = h(ctx, req) }) {
		_ = m.out.AnswerCallback(ctx, cb.ID, "Busy, try again in a moment.")
	}
}

func (m *Manager) newRequest(up transport.Update, chatID, fromID, command string) *Request {
	rid := newReqID()
	return &Request{
		Update:  up,
		ChatID:  chatID,
		FromID:  fromID,
		Command: command,
		ReqID:   rid,
		Log: m.log.With(
			logx.String("rid", rid),
			logx.String("chat_id", chatID),
			logx.String("from_id", fromID),
			logx.String("cmd", command),
		),
	}
}

func (m *Manager) wrap(h HandlerFunc) HandlerFunc {
	return guarded(h, m.config().Timeout)
}

func (m *Manager) handleAction(ctx context.Context, req *Request, act transport.ActionRequest) error {
	switch act.Verb {
	case transport.VerbComplete:
		if _, err := m.agenda.Complete(ctx, act.ID, req.FromID); err != nil {
			return m.fail(ctx, req, err)
		}
		return req.Reply(ctx, "✅ Marked complete.")
	case transport.VerbSnooze:
		if _, err := m.agenda.Snooze(ctx, act.ID, act.Minutes, req.FromID); err != nil {
			return m.fail(ctx, req, err)
		}
		return req.Reply(ctx, "🔁 Snoozed for "+strconv.Itoa(act.Minutes)+" minute(s).")
	}
	return req.Reply(ctx, "Unknown action.")
}

// fail reports err to the user and returns it for request logging.
func (m *Manager) fail(ctx context.Context, req *Request, err error) error {
	if rerr := req.Reply(ctx, userMessage(err)); rerr != nil {
		req.Log.Debug("reply failed", logx.Err(rerr))
	}
	return err
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, reminder.ErrNotFound):
		return "Reminder not found."
	case errors.Is(err, reminder.ErrInvalidInput):
		msg := err.Error()
		if i := strings.Index(msg, reminder.ErrInvalidInput.Error()+": "); i >= 0 {
			msg = msg[i+len(reminder.ErrInvalidInput.Error())+2:]
		}
		return "Invalid input: " + msg + "."
	case errors.Is(err, reminder.ErrStoreUnavailable):
		return "Storage is unavailable right now, try again later."
	default:
		return "Something went wrong, try again later."
	}
}

func newReqID() string {
	var b [6]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
