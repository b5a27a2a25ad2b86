// Package notifications delivers job and daemon events to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers never branch on whether notifications are enabled. Job completion
// and job failure events can be muted separately in the notifications config
// section; daemon lifecycle, error, and test events are always sent.
package notifications
