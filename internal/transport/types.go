package transport

import (
	"context"
	"strconv"
	"strings"
)

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

// IDs are strings so Telegram (int64) and Discord (snowflake) share one shape.
type Message struct {
	ID       string
	ChatID   string
	FromID   string
	FromName string
	Text     string
	Direct   bool // private chat / DM
}

type Callback struct {
	ID        string
	ChatID    string
	FromID    string
	MessageID string
	Data      string
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendDirect(ctx context.Context, userID, text string) error
	SendChannel(ctx context.Context, channelID, text string) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// Action is an inline button. Data comes back as Callback.Data.
type Action struct {
	Label string
	Data  string
}

// ActionSender is implemented by adapters that can attach buttons.
type ActionSender interface {
	SendDirectActions(ctx context.Context, userID, text string, actions []Action) error
	SendChannelActions(ctx context.Context, channelID, text string, actions []Action) error
}

type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is implemented by adapters with a platform command menu.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}

const (
	VerbComplete = "complete"
	VerbSnooze   = "snooze"
)

// ReminderActions returns the complete and snooze buttons for a reminder.
func ReminderActions(id string, snoozeMinutes int) []Action {
	if snoozeMinutes <= 0 {
		snoozeMinutes = 10
	}
	return []Action{
		{Label: "✅ Complete", Data: VerbComplete + ":" + id},
		{Label: "🔁 Snooze " + strconv.Itoa(snoozeMinutes) + "m", Data: VerbSnooze + ":" + id + ":" + strconv.Itoa(snoozeMinutes)},
	}
}

// ActionRequest is a decoded button press.
type ActionRequest struct {
	Verb    string
	ID      string
	Minutes int
}

// ParseAction decodes "complete:<id>" and "snooze:<id>[:<minutes>]".
// A missing or malformed minutes part defaults to 10.
func ParseAction(data string) (ActionRequest, bool) {
	parts := strings.Split(strings.TrimSpace(data), ":")
	if len(parts) < 2 || parts[1] == "" {
		return ActionRequest{}, false
	}
	req := ActionRequest{Verb: parts[0], ID: parts[1]}
	switch req.Verb {
	case VerbComplete:
		return req, len(parts) == 2
	case VerbSnooze:
		req.Minutes = 10
		if len(parts) > 2 {
			if n, err := strconv.Atoi(parts[2]); err == nil && n > 0 {
				req.Minutes = n
			}
		}
		return req, len(parts) <= 3
	}
	return ActionRequest{}, false
}
