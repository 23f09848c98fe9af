package scheduler

// Snapshot reports registered schedules and the retained run log.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	loc := s.loc
	if loc == nil {
		loc = s.loadLocationLocked()
	}
	entries := make([]Entry, len(s.defs))
	for i, d := range s.defs {
		entries[i] = Entry{Name: d.name, Spec: d.spec, Timeout: d.timeout, Running: d.state.isRunning()}
		if s.c == nil || d.entryID == 0 {
			continue
		}
		ce := s.c.Entry(d.entryID)
		entries[i].Next, entries[i].Prev = ce.Next, ce.Prev
	}
	s.mu.Unlock()

	s.hmu.Lock()
	runs := append([]Run(nil), s.runs...)
	s.hmu.Unlock()

	return Snapshot{Timezone: loc.String(), Entries: entries, Runs: runs}
}
