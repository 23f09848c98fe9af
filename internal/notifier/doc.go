// Package notifier delivers reminder notifications through a chat transport.
//
// Send tries a direct message to the reminder owner first and falls back to
// the reminder's destination channel. Every attempt passes through a shared
// token bucket, is retried with jittered exponential backoff and is bounded
// by a per-call timeout. Outcomes are published on the event bus and the
// most recent sends are kept in a small in-memory history.
package notifier
