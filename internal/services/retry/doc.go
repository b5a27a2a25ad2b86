// Package retry holds the bounded exponential backoff shared by the HTTP
// clients in internal/services.
//
// A Policy retries HTTP 408/429/5xx responses (honouring Retry-After),
// network timeouts, and errors explicitly marked Transient. Context
// cancellation stops retries immediately.
package retry
