package notifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	"remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type fakeSender struct {
	mu          sync.Mutex
	directErr   error
	channelErr  error
	directFails int // fail this many direct calls before succeeding
	direct      []string
	channel     []string
}

func (f *fakeSender) SendDirect(ctx context.Context, userID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.direct = append(f.direct, userID)
	if f.directFails > 0 {
		f.directFails--
		return errors.New("temporary")
	}
	return f.directErr
}

func (f *fakeSender) SendChannel(ctx context.Context, channelID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channel = append(f.channel, channelID)
	return f.channelErr
}

func fastConfig() Config {
	return Config{RatePerSec: 1000, RetryMax: 1, RetryBase: time.Millisecond, RetryMaxDelay: 2 * time.Millisecond, Location: time.UTC}
}

func sample() reminder.Reminder {
	return reminder.Reminder{ID: "r1", OwnerID: "u1", DestinationID: "c1", Title: "Stretch", DueAt: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func TestSendPrefersDirect(t *testing.T) {
	fs := &fakeSender{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	svc := New(fastConfig(), fs, logx.Nop(), bus)
	res := svc.Send(context.Background(), sample())
	if !res.Sent || res.Via != RouteDirect || res.Reason != nil {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(fs.channel) != 0 {
		t.Fatal("channel should not be used when the DM succeeds")
	}
	e := <-events
	if e.Type != eventbus.NotifierSent {
		t.Fatalf("event = %s", e.Type)
	}
	if h := svc.History(); len(h) != 1 || h[0].ReminderID != "r1" {
		t.Fatalf("history = %+v", h)
	}
}

func TestSendFallsBackToChannel(t *testing.T) {
	fs := &fakeSender{directErr: errors.New("dm closed")}
	svc := New(fastConfig(), fs, logx.Nop(), nil)
	res := svc.Send(context.Background(), sample())
	if !res.Sent || res.Via != RouteChannel {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(fs.direct) != 2 {
		t.Fatalf("direct attempts = %d, want 2 (one retry)", len(fs.direct))
	}
}

func TestSendRetriesTransientDirectFailure(t *testing.T) {
	fs := &fakeSender{directFails: 1}
	svc := New(fastConfig(), fs, logx.Nop(), nil)
	res := svc.Send(context.Background(), sample())
	if !res.Sent || res.Via != RouteDirect {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestSendBothRoutesFail(t *testing.T) {
	fs := &fakeSender{directErr: errors.New("dm closed"), channelErr: errors.New("no access")}
	svc := New(fastConfig(), fs, logx.Nop(), nil)
	res := svc.Send(context.Background(), sample())
	if res.Sent || !errors.Is(res.Reason, reminder.ErrNotifierUnavailable) {
		t.Fatalf("unexpected result %+v", res)
	}
	if !strings.Contains(res.Reason.Error(), "no access") {
		t.Fatalf("reason should carry channel error: %v", res.Reason)
	}
}

func TestSendWithoutDestinationFailsAfterDirect(t *testing.T) {
	fs := &fakeSender{directErr: errors.New("dm closed")}
	svc := New(fastConfig(), fs, logx.Nop(), nil)
	r := sample()
	r.DestinationID = ""
	res := svc.Send(context.Background(), r)
	if res.Sent || len(fs.channel) != 0 {
		t.Fatalf("unexpected result %+v channel=%v", res, fs.channel)
	}
}

func TestRetryDelayBounds(t *testing.T) {
	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}
	for attempt := 1; attempt <= 6; attempt++ {
		d := retryDelay(cfg, attempt)
		if d <= 0 || d > time.Second {
			t.Fatalf("attempt %d: delay %v out of bounds", attempt, d)
		}
	}
	if d := retryDelay(cfg, 1); d < 70*time.Millisecond || d > 130*time.Millisecond {
		t.Fatalf("first delay %v outside jitter window", d)
	}
}

func TestFormatReminder(t *testing.T) {
	r := sample()
	r.Tags = []string{"health", "daily"}
	r.Recurrence = reminder.RecurDaily
	got := FormatReminder(r, time.UTC)
	for _, want := range []string{"Stretch", defaultBody, "Wed 01 Jan 2025 09:00 UTC", "Repeat: daily", "Tags: health, daily", "/complete r1", "/snooze r1 10"} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q in:\n%s", want, got)
		}
	}
}

type buttonSender struct {
	fakeSender
	actions []transport.Action
}

func (b *buttonSender) SendDirectActions(ctx context.Context, userID, text string, actions []transport.Action) error {
	b.actions = actions
	return b.SendDirect(ctx, userID, text)
}

func (b *buttonSender) SendChannelActions(ctx context.Context, channelID, text string, actions []transport.Action) error {
	b.actions = actions
	return b.SendChannel(ctx, channelID, text)
}

func TestSendAttachesButtonsWhenSupported(t *testing.T) {
	bs := &buttonSender{}
	cfg := fastConfig()
	cfg.SnoozeMinutes = 15
	svc := New(cfg, bs, logx.Nop(), nil)
	if res := svc.Send(context.Background(), sample()); !res.Sent {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(bs.actions) != 2 || bs.actions[0].Data != "complete:r1" || bs.actions[1].Data != "snooze:r1:15" {
		t.Fatalf("actions = %+v", bs.actions)
	}
}

type hangingDirect struct {
	fakeSender
}

func (h *hangingDirect) SendDirect(ctx context.Context, userID, text string) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestHangingDirectLeavesTimeForChannel(t *testing.T) {
	hs := &hangingDirect{}
	cfg := fastConfig()
	cfg.RetryMax = 2
	cfg.CallTimeout = 50 * time.Millisecond
	svc := New(cfg, hs, logx.Nop(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	res := svc.Send(ctx, sample())
	if !res.Sent || res.Via != RouteChannel {
		t.Fatalf("unexpected result %+v", res)
	}
	hs.mu.Lock()
	defer hs.mu.Unlock()
	if len(hs.channel) != 1 {
		t.Fatalf("channel calls = %d, want 1", len(hs.channel))
	}
}
