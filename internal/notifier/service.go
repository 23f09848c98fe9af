package notifier

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	"remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

const historyCap = 300

// Service is safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	log    logx.Logger
	sender Sender
	bus    eventbus.Bus

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sender Sender, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		sender: sender,
		log:    log.With(logx.String("comp", "notifier")),
		bus:    bus,
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if cfg.SnoozeMinutes <= 0 {
		cfg.SnoozeMinutes = 10
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	s.cfg = cfg
	// Burst equals the per-second rate so a handful of due reminders go out
	// together.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

func (s *Service) snapshot() (Config, *rate.Limiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, s.limiter
}

// Send notifies the owner of r, falling back to r's destination channel.
// It returns once the notification was accepted by a route or both routes
// were exhausted.
func (s *Service) Send(ctx context.Context, r reminder.Reminder) Result {
	if s.sender == nil {
		return Result{Reason: fmt.Errorf("%w: no transport", reminder.ErrNotifierUnavailable)}
	}
	cfg, _ := s.snapshot()
	text := FormatReminder(r, cfg.Location)
	actions := transport.ReminderActions(r.ID, cfg.SnoozeMinutes)

	dest := strings.TrimSpace(r.DestinationID)
	var errs []error
	if owner := strings.TrimSpace(r.OwnerID); owner != "" {
		dctx, cancel := ctx, context.CancelFunc(func() {})
		if dest != "" {
			dctx, cancel = reserveFallback(ctx)
		}
		err := s.attempt(dctx, func(c context.Context) error {
			if as, ok := s.sender.(transport.ActionSender); ok {
				return as.SendDirectActions(c, owner, text, actions)
			}
			return s.sender.SendDirect(c, owner, text)
		})
		cancel()
		if err == nil {
			s.sent(r.ID, RouteDirect, owner)
			return Result{Sent: true, Via: RouteDirect}
		}
		s.log.Debug("direct message failed, trying channel", logx.String("id", r.ID), logx.Err(err))
		errs = append(errs, fmt.Errorf("direct %s: %w", owner, err))
	}
	if dest != "" && ctx.Err() == nil {
		err := s.attempt(ctx, func(c context.Context) error {
			if as, ok := s.sender.(transport.ActionSender); ok {
				return as.SendChannelActions(c, dest, text, actions)
			}
			return s.sender.SendChannel(c, dest, text)
		})
		if err == nil {
			s.sent(r.ID, RouteChannel, dest)
			return Result{Sent: true, Via: RouteChannel}
		}
		errs = append(errs, fmt.Errorf("channel %s: %w", dest, err))
	}
	if len(errs) == 0 {
		errs = append(errs, errors.New("no route"))
	}
	reason := fmt.Errorf("%w: %w", reminder.ErrNotifierUnavailable, errors.Join(errs...))
	s.failed(r.ID, reason)
	return Result{Reason: reason}
}

// reserveFallback bounds the direct route to half of ctx's remaining time so
// the channel route always gets the other half.
func reserveFallback(ctx context.Context) (context.Context, context.CancelFunc) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Until(deadline)/2)
}

// Broadcast posts text to a channel, e.g. the weekly digest.
func (s *Service) Broadcast(ctx context.Context, channelID, text string) error {
	if s.sender == nil {
		return fmt.Errorf("%w: no transport", reminder.ErrNotifierUnavailable)
	}
	if err := s.attempt(ctx, func(c context.Context) error { return s.sender.SendChannel(c, channelID, text) }); err != nil {
		s.failed("", err)
		return fmt.Errorf("%w: %w", reminder.ErrNotifierUnavailable, err)
	}
	s.sent("", RouteChannel, channelID)
	return nil
}

// Direct sends text to a user.
func (s *Service) Direct(ctx context.Context, userID, text string) error {
	if s.sender == nil {
		return fmt.Errorf("%w: no transport", reminder.ErrNotifierUnavailable)
	}
	if err := s.attempt(ctx, func(c context.Context) error { return s.sender.SendDirect(c, userID, text) }); err != nil {
		s.failed("", err)
		return fmt.Errorf("%w: %w", reminder.ErrNotifierUnavailable, err)
	}
	s.sent("", RouteDirect, userID)
	return nil
}

// attempt runs call under the rate limiter with retries.
func (s *Service) attempt(ctx context.Context, call func(context.Context) error) error {
	cfg, lim := s.snapshot()
	maxAttempts := 1 + cfg.RetryMax

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, cfg.CallTimeout)
		err := call(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt >= maxAttempts {
			break
		}

		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return lastErr
		}
	}
	return lastErr
}

func (s *Service) sent(id string, via Route, target string) {
	now := time.Now()
	if id != "" {
		s.hmu.Lock()
		s.history = append(s.history, HistoryItem{At: now, ReminderID: id, Via: via})
		if len(s.history) > historyCap {
			s.history = s.history[len(s.history)-historyCap:]
		}
		s.hmu.Unlock()
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.NotifierSent, Time: now, Data: Event{ReminderID: id, Via: via, Target: target, At: now}})
	}
}

func (s *Service) failed(id string, err error) {
	if s.bus == nil {
		return
	}
	now := time.Now()
	s.bus.Publish(eventbus.Event{Type: eventbus.NotifierFailed, Time: now, Data: Event{ReminderID: id, At: now, Error: err.Error()}})
}

// History returns recent successful reminder notifications, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func retryDelay(cfg Config, attempt int) time.Duration {
	// attempt starts at 1; the delay is for the next attempt.
	base := cfg.RetryBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	maxD := cfg.RetryMaxDelay
	if maxD <= 0 {
		maxD = 10 * time.Second
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxD {
			d = maxD
			break
		}
	}
	// Jitter 0.7..1.3
	j := 0.7 + rand.Float64()*0.6
	d = time.Duration(float64(d) * j)
	if d < 0 {
		return 0
	}
	if d > maxD {
		d = maxD
	}
	return d
}
