// Package analyzer is the chat-completions client used for meeting
// analysis, entity extraction, topic naming, and speaker labeling with
// truncation-integrity guards.
package analyzer
