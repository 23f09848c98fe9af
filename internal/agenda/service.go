// Package agenda is the reminder operations surface used by command
// handlers and the weekly digest: create, complete, snooze, list, delete and
// summarize. It owns no goroutines; delivery lives in package delivery.
package agenda

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

// completeAttempts bounds retries when a concurrent change moved the
// occurrence being completed.
const completeAttempts = 3

type Options struct {
	Store        storage.Store
	Log          logx.Logger
	Bus          eventbus.Bus
	Location     *time.Location
	StoreTimeout time.Duration
	Now          func() time.Time
}

type Service struct {
	store   storage.Store
	log     logx.Logger
	publish func(typ string, data any)
	now     func() time.Time

	mu           sync.RWMutex
	loc          *time.Location
	storeTimeout time.Duration
	wake         func()
}

func New(o Options) *Service {
	if o.Log.IsZero() {
		o.Log = logx.Nop()
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return &Service{
		store:        o.Store,
		log:          o.Log.With(logx.String("comp", "agenda")),
		publish:      eventbus.Publisher(o.Bus),
		now:          o.Now,
		loc:          o.Location,
		storeTimeout: o.StoreTimeout,
	}
}

// OnDue registers fn to run when a write leaves a reminder already due, so
// the delivery loop does not wait for its next tick.
func (s *Service) OnDue(fn func()) {
	s.mu.Lock()
	s.wake = fn
	s.mu.Unlock()
}

// Apply updates the hot-reloadable settings.
func (s *Service) Apply(loc *time.Location, storeTimeout time.Duration) {
	s.mu.Lock()
	if loc != nil {
		s.loc = loc
	}
	s.storeTimeout = storeTimeout
	s.mu.Unlock()
}

// Location is the zone used for calendar arithmetic and day boundaries.
func (s *Service) Location() *time.Location {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loc
}

func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	s.mu.RLock()
	d := s.storeTimeout
	s.mu.RUnlock()
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

func (s *Service) wakeIfDue(r reminder.Reminder, now time.Time) {
	if r.Completed || r.Delivered || r.DueAt.After(now) {
		return
	}
	s.mu.RLock()
	fn := s.wake
	s.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// CreateParams are the inputs of Create. Recurrence accepts
// none|daily|weekly|monthly in any case.
type CreateParams struct {
	OwnerID       string
	DestinationID string
	DueAt         time.Time
	Title         string
	Body          string
	Recurrence    string
	Tags          []string
}

// Create validates and persists a new reminder.
func (s *Service) Create(ctx context.Context, p CreateParams) (reminder.Reminder, error) {
	now := s.now()
	due := p.DueAt
	if !due.IsZero() {
		due = due.In(s.Location())
	}
	r, err := reminder.New(reminder.NewParams{
		OwnerID:       p.OwnerID,
		DestinationID: p.DestinationID,
		DueAt:         due,
		Title:         p.Title,
		Body:          p.Body,
		Recurrence:    p.Recurrence,
		Tags:          p.Tags,
	}, now)
	if err != nil {
		return reminder.Reminder{}, err
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.store.Add(sctx, r); err != nil {
		return reminder.Reminder{}, fmt.Errorf("create reminder: %w", err)
	}
	s.log.Info("reminder created",
		logx.String("id", r.ID),
		logx.String("owner", r.OwnerID),
		logx.Time("due", r.DueAt),
		logx.String("repeat", string(r.Recurrence)),
	)
	s.publish(eventbus.ReminderCreated, r.ID)
	s.wakeIfDue(r, now)
	return r, nil
}

func (s *Service) find(ctx context.Context, id string) (reminder.Reminder, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return reminder.Reminder{}, fmt.Errorf("%w: reminder id is required", reminder.ErrInvalidInput)
	}
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	r, ok, err := s.store.FindByID(sctx, id)
	if err != nil {
		return reminder.Reminder{}, err
	}
	if !ok {
		return reminder.Reminder{}, fmt.Errorf("%w: %s", reminder.ErrNotFound, id)
	}
	return r, nil
}

// Complete resolves the current occurrence. Recurring reminders move to the
// next occurrence computed in the service location.
func (s *Service) Complete(ctx context.Context, id, actor string) (reminder.Reminder, error) {
	var lastErr error
	for attempt := 0; attempt < completeAttempts; attempt++ {
		cur, err := s.find(ctx, id)
		if err != nil {
			return reminder.Reminder{}, err
		}
		cur.DueAt = cur.DueAt.In(s.Location())
		_, p := reminder.Complete(cur, actor, s.now())
		due := cur.DueAt
		p.IfDueAt = &due

		sctx, cancel := s.storeCtx(ctx)
		out, ok, err := s.store.Patch(sctx, cur.ID, p)
		cancel()
		switch {
		case errors.Is(err, reminder.ErrConflict):
			lastErr = err
			continue
		case err != nil:
			return reminder.Reminder{}, fmt.Errorf("complete reminder: %w", err)
		case !ok:
			return reminder.Reminder{}, fmt.Errorf("%w: %s", reminder.ErrNotFound, cur.ID)
		}
		s.log.Info("reminder completed",
			logx.String("id", out.ID),
			logx.String("by", actor),
			logx.Bool("terminal", out.Terminal()),
		)
		s.publish(eventbus.ReminderCompleted, out.ID)
		return out, nil
	}
	return reminder.Reminder{}, fmt.Errorf("complete reminder: %w", lastErr)
}

// Snooze pushes the reminder minutes into the future and reopens it.
func (s *Service) Snooze(ctx context.Context, id string, minutes int, actor string) (reminder.Reminder, error) {
	cur, err := s.find(ctx, id)
	if err != nil {
		return reminder.Reminder{}, err
	}
	now := s.now().In(s.Location())
	_, p, err := reminder.Snooze(cur, minutes, actor, now)
	if err != nil {
		return reminder.Reminder{}, err
	}
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	out, ok, err := s.store.Patch(sctx, cur.ID, p)
	if err != nil {
		return reminder.Reminder{}, fmt.Errorf("snooze reminder: %w", err)
	}
	if !ok {
		return reminder.Reminder{}, fmt.Errorf("%w: %s", reminder.ErrNotFound, cur.ID)
	}
	s.log.Info("reminder snoozed",
		logx.String("id", out.ID),
		logx.Int("minutes", minutes),
		logx.Time("due", out.DueAt),
	)
	s.publish(eventbus.ReminderSnoozed, out.ID)
	return out, nil
}

// Delete removes a reminder. Only its owner may delete it; for anyone else
// the reminder does not exist.
func (s *Service) Delete(ctx context.Context, id, actor string) error {
	cur, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if cur.OwnerID != actor {
		return fmt.Errorf("%w: %s", reminder.ErrNotFound, cur.ID)
	}
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	ok, err := s.store.Remove(sctx, cur.ID)
	if err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", reminder.ErrNotFound, cur.ID)
	}
	s.log.Info("reminder deleted", logx.String("id", cur.ID), logx.String("by", actor))
	s.publish(eventbus.ReminderDeleted, cur.ID)
	return nil
}

func (s *Service) all(ctx context.Context) ([]reminder.Reminder, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.store.GetAll(sctx)
}

// Get returns one reminder.
func (s *Service) Get(ctx context.Context, id string) (reminder.Reminder, error) {
	return s.find(ctx, id)
}

// Due lists reminders that need a notification at now.
func (s *Service) Due(ctx context.Context, now time.Time) ([]reminder.Reminder, error) {
	recs, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	return reminder.SelectDue(recs, now), nil
}

// List returns the owner's open reminders, soonest first.
func (s *Service) List(ctx context.Context, ownerID string) ([]reminder.Reminder, error) {
	recs, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	var out []reminder.Reminder
	for _, r := range recs {
		if r.OwnerID == ownerID && !r.Terminal() {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out, nil
}

// Summarize reports the owner's activity since the given instant.
func (s *Service) Summarize(ctx context.Context, ownerID string, since time.Time) (reminder.Summary, error) {
	recs, err := s.all(ctx)
	if err != nil {
		return reminder.Summary{}, err
	}
	return reminder.Summarize(recs, ownerID, since, s.Location()), nil
}

// SummarizeAll summarizes every owner that has at least one reminder.
func (s *Service) SummarizeAll(ctx context.Context, since time.Time) ([]reminder.Summary, error) {
	recs, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	loc := s.Location()
	owners := reminder.Owners(recs)
	out := make([]reminder.Summary, 0, len(owners))
	for _, o := range owners {
		out = append(out, reminder.Summarize(recs, o, since, loc))
	}
	return out, nil
}
