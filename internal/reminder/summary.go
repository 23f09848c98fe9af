package reminder

import "time"

// Summary is a per-owner activity count over a window.
type Summary struct {
	OwnerID    string `json:"owner_id"`
	Created    int    `json:"created"`
	Completed  int    `json:"completed"`
	ActiveDays int    `json:"active_days"`
}

// Summarize folds the owner's records. A record counts as completed once if
// it has at least one complete entry at or after since; active days are the
// distinct calendar days (in loc) carrying such an entry.
func Summarize(records []Reminder, ownerID string, since time.Time, loc *time.Location) Summary {
	if loc == nil {
		loc = time.UTC
	}
	s := Summary{OwnerID: ownerID}
	days := map[string]struct{}{}
	for _, r := range records {
		if r.OwnerID != ownerID {
			continue
		}
		if !r.CreatedAt.Before(since) {
			s.Created++
		}
		completed := false
		for _, h := range r.History {
			if h.Action != ActionComplete || h.At.Before(since) {
				continue
			}
			completed = true
			days[h.At.In(loc).Format("2006-01-02")] = struct{}{}
		}
		if completed {
			s.Completed++
		}
	}
	s.ActiveDays = len(days)
	return s
}

// Owners lists distinct owners in first-seen order.
func Owners(records []Reminder) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, r := range records {
		if _, ok := seen[r.OwnerID]; ok {
			continue
		}
		seen[r.OwnerID] = struct{}{}
		out = append(out, r.OwnerID)
	}
	return out
}
