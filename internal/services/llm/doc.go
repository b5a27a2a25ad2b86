// Package llm provides an OpenAI-compatible chat client used to summarize
// Space transcripts when a mention asks for a summary instead of a dub.
//
// # Entry Points
//
// NewClient: construct client from Config (see FromConfig).
// Client.Summarize: digest a transcript into a headline and key points.
//
// # Retry Behaviour
//
// Requests go through a retry.Policy: HTTP 408/429/5xx errors, empty
// completions, and network timeouts are retried with exponential backoff
// (base 1s, max 10s, up to 5 attempts by default). Context cancellation
// aborts retries immediately.
//
// Responses are decoded leniently: code fences, prose around the JSON
// object, and tool-call arguments are accepted.
package llm
