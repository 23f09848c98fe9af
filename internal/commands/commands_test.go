package commands

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"remindbot/internal/agenda"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	"remindbot/internal/transport"
	"remindbot/pkg/logx"
)

type fakeReplier struct {
	mu       sync.Mutex
	messages []string
	answers  map[string]string
	answered chan string
}

func newFakeReplier() *fakeReplier {
	return &fakeReplier{answers: map[string]string{}, answered: make(chan string, 8)}
}

func (f *fakeReplier) SendChannel(ctx context.Context, channelID, text string) error {
	f.mu.Lock()
	f.messages = append(f.messages, text)
	f.mu.Unlock()
	return nil
}

func (f *fakeReplier) AnswerCallback(ctx context.Context, callbackID, text string) error {
	f.mu.Lock()
	f.answers[callbackID] = text
	f.mu.Unlock()
	f.answered <- callbackID
	return nil
}

func (f *fakeReplier) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return ""
	}
	return f.messages[len(f.messages)-1]
}

var t0 = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

type env struct {
	m   *Manager
	ag  *agenda.Service
	out *fakeReplier
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "memory"}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	ag := agenda.New(agenda.Options{Store: st, Location: time.UTC, Now: func() time.Time { return t0 }})
	out := newFakeReplier()
	m := New(Config{}, ag, out, logx.Nop())
	m.now = func() time.Time { return t0 }
	return &env{m: m, ag: ag, out: out}
}

// run executes a text command synchronously and returns the reply.
func (e *env) run(t *testing.T, from, text string) string {
	t.Helper()
	word, args, ok := splitCommand(text)
	if !ok {
		t.Fatalf("not a command: %q", text)
	}
	cmd := e.m.byName[word]
	if cmd == nil {
		t.Fatalf("unknown command %q", word)
	}
	req := e.m.newRequest(transport.Update{}, "chan-1", from, cmd.Name)
	req.Args = args
	req.reply = func(ctx context.Context, text string) error { return e.out.SendChannel(ctx, "chan-1", text) }
	_ = cmd.Handle(context.Background(), req)
	return e.out.last()
}

func (e *env) only(t *testing.T, owner string) reminder.Reminder {
	t.Helper()
	rs, err := e.ag.List(context.Background(), owner)
	if err != nil || len(rs) != 1 {
		t.Fatalf("list = %v, %v", rs, err)
	}
	return rs[0]
}

func TestRemindCreatesReminder(t *testing.T) {
	e := newEnv(t)
	got := e.run(t, "u1", `/remind in 30 minutes Stretch | stand up and move repeat=daily tags=health,desk`)
	if !strings.Contains(got, "Reminder created") || !strings.Contains(got, "Repeats daily") {
		t.Fatalf("reply = %q", got)
	}
	r := e.only(t, "u1")
	if !r.DueAt.Equal(t0.Add(30*time.Minute)) || r.Title != "Stretch" || r.Body != "stand up and move" {
		t.Fatalf("reminder = %+v", r)
	}
	if r.DestinationID != "chan-1" || r.Recurrence != reminder.RecurDaily || len(r.Tags) != 2 {
		t.Fatalf("reminder = %+v", r)
	}
}

func TestRemindRejectsBadInput(t *testing.T) {
	e := newEnv(t)
	if got := e.run(t, "u1", "/remind whenever Stretch"); !strings.HasPrefix(got, "Invalid input: could not parse time") {
		t.Fatalf("reply = %q", got)
	}
	if got := e.run(t, "u1", "/remind 10m Stretch repeat=yearly"); !strings.HasPrefix(got, "Invalid input: unknown recurrence") {
		t.Fatalf("reply = %q", got)
	}
	if got := e.run(t, "u1", "/remind"); !strings.HasPrefix(got, "Usage: /remind") {
		t.Fatalf("reply = %q", got)
	}
}

func TestCompleteSnoozeDeleteFlow(t *testing.T) {
	e := newEnv(t)
	e.run(t, "u1", "/remind 2025-03-10 09:00 Standup repeat=weekly")
	r := e.only(t, "u1")

	if got := e.run(t, "u1", "/snooze "+r.ID); !strings.Contains(got, "for 10 minute(s)") {
		t.Fatalf("snooze reply = %q", got)
	}
	if got := e.run(t, "u1", "/snooze "+r.ID+" 25"); !strings.Contains(got, "for 25 minute(s)") {
		t.Fatalf("snooze reply = %q", got)
	}
	if got := e.run(t, "u1", "/snooze "+r.ID+" 0"); !strings.HasPrefix(got, "Invalid input") {
		t.Fatalf("snooze reply = %q", got)
	}

	if got := e.run(t, "u1", "/done "+r.ID); !strings.Contains(got, "complete. Next:") {
		t.Fatalf("complete reply = %q", got)
	}

	if got := e.run(t, "u2", "/delete "+r.ID); got != "Reminder not found." {
		t.Fatalf("foreign delete reply = %q", got)
	}
	if got := e.run(t, "u1", "/delete "+r.ID); !strings.Contains(got, "Deleted") {
		t.Fatalf("delete reply = %q", got)
	}
	if got := e.run(t, "u1", "/complete "+r.ID); got != "Reminder not found." {
		t.Fatalf("complete after delete = %q", got)
	}
}

func TestListAndSummary(t *testing.T) {
	e := newEnv(t)
	if got := e.run(t, "u1", "/list"); got != "No active reminders." {
		t.Fatalf("empty list = %q", got)
	}
	e.run(t, "u1", "/remind 2h Later")
	e.run(t, "u1", "/remind 1h Sooner")
	got := e.run(t, "u1", "/list")
	if !strings.Contains(got, "2 active") || strings.Index(got, "Sooner") > strings.Index(got, "Later") {
		t.Fatalf("list = %q", got)
	}
	got = e.run(t, "u1", "/summary")
	if !strings.Contains(got, "Created: 2") || !strings.Contains(got, "Completed: 0") {
		t.Fatalf("summary = %q", got)
	}
}

func TestDispatchLoopHandlesButtonPress(t *testing.T) {
	e := newEnv(t)
	r, err := e.ag.Create(context.Background(), agenda.CreateParams{OwnerID: "u1", DueAt: t0.Add(time.Hour), Title: "Water"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan transport.Update, 4)
	done := make(chan struct{})
	go func() {
		_ = e.m.DispatchLoop(ctx, updates)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	updates <- transport.Update{Kind: transport.UpdateCallback, Callback: &transport.Callback{ID: "cb1", FromID: "u1", Data: "snooze:" + r.ID + ":5"}}
	select {
	case <-e.out.answered:
	case <-time.After(2 * time.Second):
		t.Fatal("callback not answered")
	}
	e.out.mu.Lock()
	ans := e.out.answers["cb1"]
	e.out.mu.Unlock()
	if ans != "🔁 Snoozed for 5 minute(s)." {
		t.Fatalf("answer = %q", ans)
	}
	got, err := e.ag.Get(context.Background(), r.ID)
	if err != nil || !got.DueAt.Equal(t0.Add(5*time.Minute)) {
		t.Fatalf("after snooze: %+v %v", got, err)
	}
}

func TestMenuIsSorted(t *testing.T) {
	e := newEnv(t)
	menu := e.m.Menu()
	if len(menu) != 7 || menu[0].Command != "complete" {
		t.Fatalf("menu = %+v", menu)
	}
}
