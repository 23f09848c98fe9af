package reminder

import "time"

// SelectDue returns, in input order, every record that needs a notification:
// open, not yet delivered for its current occurrence, and due at or before now.
func SelectDue(records []Reminder, now time.Time) []Reminder {
	var out []Reminder
	for _, r := range records {
		if r.Completed || r.Delivered || r.DueAt.After(now) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Reconcile un-sticks records left delivered but unresolved past their due
// time, either because the owner never acted or because the process died
// before they could. Those records are redelivered. records is modified in
// place; the ids of changed records are returned.
func Reconcile(records []Reminder, now time.Time) []string {
	var changed []string
	for i := range records {
		r := &records[i]
		if r.Delivered && !r.Completed && !r.DueAt.After(now) {
			r.Delivered = false
			changed = append(changed, r.ID)
		}
	}
	return changed
}
