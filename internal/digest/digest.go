// Package digest posts the weekly activity summary: per owner, how many
// reminders were created and completed in the last seven days.
//
// With a channel configured the digest goes to that channel; otherwise each
// owner with activity gets it as a direct message.
package digest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"remindbot/internal/reminder"
	"remindbot/internal/task/scheduler"
	logx "remindbot/pkg/logx"
)

const (
	jobName       = "digest.weekly"
	defaultWindow = 7 * 24 * time.Hour
	// DefaultSchedule is Monday 09:00 in the scheduler timezone.
	DefaultSchedule = "0 9 * * 1"
)

// Summarizer is satisfied by *agenda.Service.
type Summarizer interface {
	SummarizeAll(ctx context.Context, since time.Time) ([]reminder.Summary, error)
}

// Poster is satisfied by *notifier.Service.
type Poster interface {
	Broadcast(ctx context.Context, channelID, text string) error
	Direct(ctx context.Context, userID, text string) error
}

type Config struct {
	Schedule  string
	ChannelID string
	Timeout   time.Duration
}

type Service struct {
	cfg   Config
	sum   Summarizer
	post  Poster
	sched *scheduler.Service
	log   logx.Logger
	now   func() time.Time
	loc   *time.Location
}

func New(cfg Config, sum Summarizer, post Poster, sched *scheduler.Service, loc *time.Location, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Schedule) == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if loc == nil {
		loc = time.Local
	}
	return &Service{cfg: cfg, sum: sum, post: post, sched: sched, loc: loc, log: log.With(logx.String("comp", "digest")), now: time.Now}
}

// Start registers the weekly job.
func (s *Service) Start() error {
	if s.sched == nil {
		return errors.New("digest: scheduler required")
	}
	if err := s.sched.AddSchedule(jobName, s.cfg.Schedule, s.cfg.Timeout, s.Run); err != nil {
		return fmt.Errorf("digest schedule: %w", err)
	}
	s.log.Info("weekly digest scheduled", logx.String("schedule", s.cfg.Schedule))
	return nil
}

func (s *Service) Stop() {
	if s.sched != nil {
		s.sched.Remove(jobName)
	}
}

// Run builds and posts one digest.
func (s *Service) Run(ctx context.Context) error {
	now := s.now()
	since := now.Add(-defaultWindow)
	sums, err := s.sum.SummarizeAll(ctx, since)
	if err != nil {
		return fmt.Errorf("digest summary: %w", err)
	}
	active := sums[:0]
	for _, sm := range sums {
		if sm.Created > 0 || sm.Completed > 0 {
			active = append(active, sm)
		}
	}
	text := Render(active, since, now, s.loc)

	if ch := strings.TrimSpace(s.cfg.ChannelID); ch != "" {
		if err := s.post.Broadcast(ctx, ch, text); err != nil {
			return err
		}
		s.log.Info("weekly digest posted", logx.String("channel", ch), logx.Int("owners", len(active)))
		return nil
	}

	var errs []error
	for _, sm := range active {
		if err := s.post.Direct(ctx, sm.OwnerID, text); err != nil {
			s.log.Warn("weekly digest DM failed", logx.String("owner", sm.OwnerID), logx.Err(err))
			errs = append(errs, err)
		}
	}
	s.log.Info("weekly digest sent", logx.Int("owners", len(active)), logx.Int("failed", len(errs)))
	return errors.Join(errs...)
}

// Render formats the digest text.
func Render(sums []reminder.Summary, since, now time.Time, loc *time.Location) string {
	var sb strings.Builder
	sb.WriteString("📊 Weekly Reminders Summary\n")
	fmt.Fprintf(&sb, "Week: %s - %s\n\n", since.In(loc).Format("Mon Jan 02 2006"), now.In(loc).Format("Mon Jan 02 2006"))
	if len(sums) == 0 {
		sb.WriteString("No reminders this week.\n")
		return sb.String()
	}
	for _, sm := range sums {
		fmt.Fprintf(&sb, "%s: created %d, completed %d, active days %d\n", sm.OwnerID, sm.Created, sm.Completed, sm.ActiveDays)
	}
	return sb.String()
}
