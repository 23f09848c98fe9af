package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

// blob is a backend holding the whole record set as one JSON document.
//
// Load returns (nil, nil) when no document exists yet.
type blob interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	Close() error
}

// quarantiner is implemented by blobs that can keep an unreadable document
// aside before it gets overwritten.
type quarantiner interface {
	Quarantine(ctx context.Context, data []byte) error
}

// snapshotStore keeps the record set in memory and writes the full document
// through to its blob on every change. mu covers load-mutate-persist, so
// concurrent mutations cannot drop each other's updates.
type snapshotStore struct {
	log  logx.Logger
	blob blob

	mu      sync.Mutex
	records []reminder.Reminder
}

func openSnapshot(ctx context.Context, b blob, log logx.Logger, now func() time.Time) (*snapshotStore, error) {
	s := &snapshotStore{log: log, blob: b}

	data, err := b.Load(ctx)
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("%w: load snapshot: %w", reminder.ErrStoreUnavailable, err)
	}

	fresh := len(data) == 0
	if !fresh {
		recs, derr := decodeSnapshot(data)
		if derr != nil {
			// Starting empty keeps the scheduler alive; the broken document is
			// kept aside where the backend supports it.
			log.Error("snapshot unreadable, starting with empty state", logx.Err(derr), logx.Int("bytes", len(data)))
			if q, ok := b.(quarantiner); ok {
				if qerr := q.Quarantine(ctx, data); qerr != nil {
					log.Error("snapshot quarantine failed", logx.Err(qerr))
				}
			}
			fresh = true
		} else {
			s.records = recs
		}
	}

	changed := reminder.Reconcile(s.records, now())
	if fresh || len(changed) > 0 {
		if err := s.persist(ctx, s.records); err != nil {
			_ = b.Close()
			return nil, err
		}
	}
	if len(changed) > 0 {
		log.Info("reconciled stuck deliveries", logx.Int("count", len(changed)))
	}
	log.Info("store loaded", logx.Int("reminders", len(s.records)))
	return s, nil
}

func decodeSnapshot(data []byte) ([]reminder.Reminder, error) {
	var recs []reminder.Reminder
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, err
	}
	for i, r := range recs {
		if r.ID == "" {
			return nil, fmt.Errorf("record %d has no id", i)
		}
	}
	return recs, nil
}

func encodeSnapshot(recs []reminder.Reminder) ([]byte, error) {
	if recs == nil {
		recs = []reminder.Reminder{}
	}
	return json.Marshal(recs)
}

func (s *snapshotStore) persist(ctx context.Context, recs []reminder.Reminder) error {
	data, err := encodeSnapshot(recs)
	if err != nil {
		return err
	}
	if err := s.blob.Save(ctx, data); err != nil {
		return fmt.Errorf("%w: %w", reminder.ErrStoreUnavailable, err)
	}
	return nil
}

// mutate builds the next record set from a copy of the current one and
// swaps it in only after the blob accepted it.
func (s *snapshotStore) mutate(ctx context.Context, fn func(next []reminder.Reminder) ([]reminder.Reminder, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]reminder.Reminder, len(s.records))
	copy(next, s.records)
	next, err := fn(next)
	if err != nil {
		return err
	}
	if err := s.persist(ctx, next); err != nil {
		return err
	}
	s.records = next
	return nil
}

func (s *snapshotStore) indexOf(recs []reminder.Reminder, id string) int {
	for i := range recs {
		if recs[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *snapshotStore) GetAll(ctx context.Context) ([]reminder.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]reminder.Reminder, len(s.records))
	for i := range s.records {
		out[i] = s.records[i].Clone()
	}
	return out, nil
}

func (s *snapshotStore) FindByID(ctx context.Context, id string) (reminder.Reminder, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(s.records, id); i >= 0 {
		return s.records[i].Clone(), true, nil
	}
	return reminder.Reminder{}, false, nil
}

func (s *snapshotStore) Add(ctx context.Context, r reminder.Reminder) error {
	return s.mutate(ctx, func(next []reminder.Reminder) ([]reminder.Reminder, error) {
		if s.indexOf(next, r.ID) >= 0 {
			return nil, fmt.Errorf("%w: %s", reminder.ErrDuplicate, r.ID)
		}
		return append(next, r.Clone()), nil
	})
}

func (s *snapshotStore) Patch(ctx context.Context, id string, p reminder.Patch) (reminder.Reminder, bool, error) {
	var (
		out   reminder.Reminder
		found bool
	)
	err := s.mutate(ctx, func(next []reminder.Reminder) ([]reminder.Reminder, error) {
		i := s.indexOf(next, id)
		if i < 0 {
			return nil, errNoChange
		}
		found = true
		merged, err := p.Apply(next[i])
		if err != nil {
			return nil, err
		}
		next[i] = merged
		out = merged.Clone()
		return next, nil
	})
	if err == errNoChange {
		return reminder.Reminder{}, false, nil
	}
	if err != nil {
		return reminder.Reminder{}, found, err
	}
	return out, true, nil
}

func (s *snapshotStore) Remove(ctx context.Context, id string) (bool, error) {
	err := s.mutate(ctx, func(next []reminder.Reminder) ([]reminder.Reminder, error) {
		i := s.indexOf(next, id)
		if i < 0 {
			return nil, errNoChange
		}
		return append(next[:i], next[i+1:]...), nil
	})
	if err == errNoChange {
		return false, nil
	}
	return err == nil, err
}

func (s *snapshotStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blob.Close()
}
