package telegram

import (
	"testing"

	tele "gopkg.in/telebot.v4"

	"remindbot/internal/transport"
	"remindbot/pkg/logx"
)

func TestMessageUpdate(t *testing.T) {
	up, ok := messageUpdate(&tele.Message{
		ID:     7,
		Text:   "/list",
		Chat:   &tele.Chat{ID: 42, Type: tele.ChatPrivate},
		Sender: &tele.User{ID: 42, FirstName: "Ada"},
	})
	if !ok || up.Kind != transport.UpdateMessage {
		t.Fatalf("unexpected %+v", up)
	}
	m := up.Message
	if m.ID != "7" || m.ChatID != "42" || m.FromID != "42" || m.FromName != "Ada" || !m.Direct {
		t.Fatalf("message = %+v", m)
	}

	if _, ok := messageUpdate(&tele.Message{Text: "x"}); ok {
		t.Fatal("message without chat should be ignored")
	}
}

func TestCallbackUpdate(t *testing.T) {
	up, ok := callbackUpdate(&tele.Callback{
		ID:      "cb1",
		Data:    "complete:r1",
		Sender:  &tele.User{ID: 5},
		Message: &tele.Message{ID: 9, Chat: &tele.Chat{ID: -100}},
	})
	if !ok {
		t.Fatal("expected update")
	}
	cb := up.Callback
	if cb.ID != "cb1" || cb.FromID != "5" || cb.ChatID != "-100" || cb.MessageID != "9" || cb.Data != "complete:r1" {
		t.Fatalf("callback = %+v", cb)
	}
}

func TestInlineMarkup(t *testing.T) {
	rm := inlineMarkup(transport.ReminderActions("r1", 10))
	if len(rm.InlineKeyboard) != 1 || len(rm.InlineKeyboard[0]) != 2 {
		t.Fatalf("keyboard = %+v", rm.InlineKeyboard)
	}
	if rm.InlineKeyboard[0][1].Data != "snooze:r1:10" {
		t.Fatalf("snooze data = %q", rm.InlineKeyboard[0][1].Data)
	}
}

func TestMenuHashChangesWithContent(t *testing.T) {
	a := menuHash([]transport.BotCommand{{Command: "remind", Description: "x"}})
	b := menuHash([]transport.BotCommand{{Command: "remind", Description: "y"}})
	if a == b {
		t.Fatal("hash should depend on description")
	}
}

func TestNewRequiresToken(t *testing.T) {
	if _, err := New(Config{}, logx.Nop()); err == nil {
		t.Fatal("expected error for empty token")
	}
}
