// Package logx wraps zerolog for remindbot.
//
// Logger is a value type carrying fixed fields; loggers derived from a
// Service follow its Apply calls, so a level change reaches every component
// at once. Sinks: a console writer (short caller), an optional JSON file and
// an optional chat sink that mirrors warn+ lines to an operator channel,
// rate limited and never blocking the caller.
package logx
