// Package dedup persists the set of mention ids the daemon has already
// admitted, so restarts never enqueue the same mention twice.
package dedup
