// Package scheduler triggers named jobs on cron expressions or fixed
// intervals (robfig/cron) and runs them with a per-run timeout.
//
// A job never overlaps itself: a trigger that fires while the previous run
// is in flight is skipped. RunNow requests an immediate run; if one is
// already in flight, exactly one more run follows it.
package scheduler
