// Package reminder holds the reminder entity and its pure state transitions.
//
// Nothing in this package performs I/O. Stores persist records, the delivery
// orchestrator and the agenda service decide when to call the transitions.
package reminder

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Recurrence is how a reminder repeats after it is completed.
type Recurrence string

const (
	RecurNone    Recurrence = "none"
	RecurDaily   Recurrence = "daily"
	RecurWeekly  Recurrence = "weekly"
	RecurMonthly Recurrence = "monthly"
)

// ParseRecurrence accepts the recognised values case-insensitively.
// An empty string means RecurNone.
func ParseRecurrence(s string) (Recurrence, error) {
	switch Recurrence(strings.ToLower(strings.TrimSpace(s))) {
	case "", RecurNone:
		return RecurNone, nil
	case RecurDaily:
		return RecurDaily, nil
	case RecurWeekly:
		return RecurWeekly, nil
	case RecurMonthly:
		return RecurMonthly, nil
	default:
		return "", fmt.Errorf("%w: unknown recurrence %q (use none, daily, weekly or monthly)", ErrInvalidInput, s)
	}
}

func (r Recurrence) Repeats() bool { return r != "" && r != RecurNone }

// Action is the kind of a history entry.
type Action string

const (
	ActionDelivered Action = "delivered"
	ActionComplete  Action = "complete"
	ActionSnooze    Action = "snooze"
)

// HistoryEntry is one append-only log line on a reminder.
type HistoryEntry struct {
	At     time.Time `json:"at"`
	Action Action    `json:"action"`
	Actor  string    `json:"by,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

// Reminder is the only persisted entity.
//
// JSON names match the snapshot layout written by earlier versions of the
// bot, so old snapshots keep loading.
type Reminder struct {
	ID            string         `json:"id"`
	OwnerID       string         `json:"userId"`
	DestinationID string         `json:"channelId,omitempty"`
	DueAt         time.Time      `json:"time"`
	Title         string         `json:"title"`
	Body          string         `json:"message"`
	Recurrence    Recurrence     `json:"repeat"`
	Tags          []string       `json:"tags"`
	CreatedAt     time.Time      `json:"createdAt"`
	Completed     bool           `json:"completed"`
	Delivered     bool           `json:"delivered"`
	History       []HistoryEntry `json:"history"`
}

// Terminal reports whether the reminder can never fire again.
func (r Reminder) Terminal() bool { return r.Completed && !r.Recurrence.Repeats() }

// Clone returns a deep copy so callers can mutate slices freely.
func (r Reminder) Clone() Reminder {
	c := r
	if r.Tags != nil {
		c.Tags = append([]string(nil), r.Tags...)
	}
	if r.History != nil {
		c.History = append([]HistoryEntry(nil), r.History...)
	}
	return c
}

const defaultTitle = "Reminder"

// NewParams are the inputs of New.
type NewParams struct {
	OwnerID       string
	DestinationID string
	DueAt         time.Time
	Title         string
	Body          string
	Recurrence    string
	Tags          []string
}

// New builds a fresh, undelivered reminder.
func New(p NewParams, now time.Time) (Reminder, error) {
	owner := strings.TrimSpace(p.OwnerID)
	if owner == "" {
		return Reminder{}, fmt.Errorf("%w: owner is required", ErrInvalidInput)
	}
	if p.DueAt.IsZero() {
		return Reminder{}, fmt.Errorf("%w: due time could not be resolved", ErrInvalidInput)
	}
	rec, err := ParseRecurrence(p.Recurrence)
	if err != nil {
		return Reminder{}, err
	}
	title := strings.TrimSpace(p.Title)
	if title == "" {
		title = defaultTitle
	}
	return Reminder{
		ID:            uuid.NewString(),
		OwnerID:       owner,
		DestinationID: strings.TrimSpace(p.DestinationID),
		DueAt:         p.DueAt,
		Title:         title,
		Body:          p.Body,
		Recurrence:    rec,
		Tags:          normalizeTags(p.Tags),
		CreatedAt:     now,
		History:       []HistoryEntry{},
	}, nil
}

// normalizeTags trims, drops empties and keeps first-seen order.
func normalizeTags(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, t := range in {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
