package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	logx "remindbot/pkg/logx"
)

// ErrOverlapSkip reports a trigger dropped because the job was still running.
var ErrOverlapSkip = errors.New("previous run still in flight")

// runState tracks one job: whether it is in flight and whether another run
// was requested meanwhile.
type runState struct {
	mu       sync.Mutex
	inflight bool
	pending  bool
	job      Job
}

func (st *runState) tryAcquire(coalesce bool) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.inflight {
		if coalesce {
			st.pending = true
		}
		return false
	}
	st.inflight = true
	return true
}

// release ends a run. It reports true when a coalesced request is waiting,
// in which case the caller keeps ownership and runs again.
func (st *runState) release() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.pending {
		st.pending = false
		return true
	}
	st.inflight = false
	return false
}

func (st *runState) reset() {
	st.mu.Lock()
	st.inflight, st.pending = false, false
	st.mu.Unlock()
}

func (st *runState) isRunning() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.inflight
}

// trigger runs the job unless it is already in flight. Manual triggers
// coalesce into one follow-up run instead of being dropped.
func (s *Service) trigger(name string, st *runState, timeout time.Duration, manual bool) error {
	// running.Add happens under mu while c is set, so Stop's Wait never
	// races with a new run.
	s.mu.Lock()
	if s.c == nil || s.runCtx == nil {
		s.mu.Unlock()
		return errors.New("scheduler not running")
	}
	base := s.runCtx
	if !st.tryAcquire(manual) {
		s.mu.Unlock()
		s.log.Debug("schedule trigger skipped", logx.String("schedule", name))
		s.publish(name, 0, nil, true)
		return ErrOverlapSkip
	}
	s.running.Add(1)
	s.mu.Unlock()

	kind := ByClock
	if manual {
		kind = ByManual
	}
	go func() {
		defer s.running.Done()
		for {
			s.execute(base, name, st, timeout, kind)
			if base.Err() != nil {
				st.reset()
				return
			}
			if !st.release() {
				return
			}
			kind = ByManual
		}
	}()
	return nil
}

func (s *Service) execute(base context.Context, name string, st *runState, timeout time.Duration, kind string) {
	ctx := base
	cancel := func() {}
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(base, timeout)
	}
	defer cancel()

	st.mu.Lock()
	job := st.job
	st.mu.Unlock()

	started := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("job panic", logx.String("schedule", name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return job(ctx)
	}()
	took := time.Since(started)

	item := Run{Name: name, At: started, Took: took, By: kind}
	if err != nil {
		item.Error = err.Error()
		s.log.Warn("job failed", logx.String("schedule", name), logx.Duration("took", took), logx.Err(err))
	} else {
		s.log.Debug("job done", logx.String("schedule", name), logx.Duration("took", took))
	}
	s.record(item)
	s.publish(name, took, err, false)
}

func (s *Service) record(it Run) {
	s.mu.Lock()
	limit := s.cfg.HistorySize
	s.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	s.hmu.Lock()
	s.runs = append(s.runs, it)
	if len(s.runs) > limit {
		s.runs = s.runs[len(s.runs)-limit:]
	}
	s.hmu.Unlock()
}
