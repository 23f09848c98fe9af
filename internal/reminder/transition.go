package reminder

import (
	"fmt"
	"time"
)

// Patch is a partial update merged into a stored record.
//
// Nil fields are left alone, so two patches touching different fields never
// undo each other. AppendHistory is appended to the stored history. When
// IfDueAt is set the patch only applies while the stored DueAt is still that
// instant. IfPending additionally requires the stored record to be neither
// completed nor delivered. A failed precondition returns ErrConflict.
type Patch struct {
	DueAt         *time.Time
	Completed     *bool
	Delivered     *bool
	AppendHistory []HistoryEntry
	IfDueAt       *time.Time
	IfPending     bool
}

// Apply merges p into r and returns the result. r is not modified.
func (p Patch) Apply(r Reminder) (Reminder, error) {
	if p.IfDueAt != nil && !r.DueAt.Equal(*p.IfDueAt) {
		return r, fmt.Errorf("%w: %s is now due %s", ErrConflict, r.ID, r.DueAt.Format(time.RFC3339))
	}
	if p.IfPending && (r.Completed || r.Delivered) {
		return r, fmt.Errorf("%w: %s is no longer pending (completed=%t delivered=%t)", ErrConflict, r.ID, r.Completed, r.Delivered)
	}
	out := r.Clone()
	if p.DueAt != nil {
		out.DueAt = *p.DueAt
	}
	if p.Completed != nil {
		out.Completed = *p.Completed
	}
	if p.Delivered != nil {
		out.Delivered = *p.Delivered
	}
	if len(p.AppendHistory) > 0 {
		out.History = append(out.History, p.AppendHistory...)
	}
	return out, nil
}

// Deliver marks the current occurrence as sent. The patch is conditioned on
// the occurrence it was computed for still being pending.
func Deliver(r Reminder, detail string, now time.Time) (Reminder, Patch) {
	due := r.DueAt
	p := Patch{
		Delivered:     ptr(true),
		AppendHistory: []HistoryEntry{{At: now, Action: ActionDelivered, Detail: detail}},
		IfDueAt:       &due,
		IfPending:     true,
	}
	out, _ := p.Apply(r)
	return out, p
}

// Complete resolves the current occurrence.
//
// A one-off reminder becomes terminal. A recurring reminder moves to its next
// occurrence and stays open. Either way Delivered is cleared and a history
// entry is appended, so completing twice is safe and logs twice.
func Complete(r Reminder, actor string, now time.Time) (Reminder, Patch) {
	p := Patch{
		Delivered:     ptr(false),
		AppendHistory: []HistoryEntry{{At: now, Action: ActionComplete, Actor: actor}},
	}
	if next, ok := NextOccurrence(r.DueAt, r.Recurrence); ok {
		p.DueAt = &next
		p.Completed = ptr(false)
	} else {
		p.Completed = ptr(true)
	}
	out, _ := p.Apply(r)
	return out, p
}

// Snooze pushes the reminder to now+minutes and reopens it.
func Snooze(r Reminder, minutes int, actor string, now time.Time) (Reminder, Patch, error) {
	if minutes <= 0 {
		return r, Patch{}, fmt.Errorf("%w: snooze minutes must be positive, got %d", ErrInvalidInput, minutes)
	}
	due := now.Add(time.Duration(minutes) * time.Minute)
	p := Patch{
		DueAt:     &due,
		Completed: ptr(false),
		Delivered: ptr(false),
		AppendHistory: []HistoryEntry{{
			At:     now,
			Action: ActionSnooze,
			Actor:  actor,
			Detail: fmt.Sprintf("%dm", minutes),
		}},
	}
	out, _ := p.Apply(r)
	return out, p, nil
}

func ptr[T any](v T) *T { return &v }
