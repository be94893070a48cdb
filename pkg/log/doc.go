// Package log provides structured logging for passd using zerolog.
//
// A single global logger is configured once via Init and then narrowed with
// WithComponent/WithSecret for call sites that want consistent context
// fields. Console output is the default; JSON output is emitted when
// Config.JSONOutput is set.
package log
