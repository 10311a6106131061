// Package log provides structured logging for ledgerd using zerolog.
// It wraps a single global logger configured once at process start,
// plus a helper for deriving a per-connection logger in the event
// loop.
package log
