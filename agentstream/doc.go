// Package agentstream reduces sidecar server events to a small set of common
// event kinds (text, thinking, tool start/end, turn complete, error).
//
// Consumers that only care about what the agent is saying and doing, such as
// terminal renderers or log summarizers, read these instead of type-switching
// on every protocol payload. The full protocol vocabulary stays available on
// the raw event channel.
//
// A Translator is stateful: it pairs tool results with the tool_use that
// started them, and it drops the text of a complete assistant message when
// the same text already arrived as partial deltas.
package agentstream
