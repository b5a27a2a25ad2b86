// Package queue holds admitted work units in memory and feeds them, one at a
// time and in admission order, to a single drain loop.
//
// Intake couples the queue to the dedup store: a unit is marked seen and the
// mark persisted before the unit is appended, so a crash never replays an
// admitted mention.
package queue
