// Package daemon coordinates the long-running spacedub process.
//
// A Daemon polls the mention source on a timer, admits unseen mentions through
// the dedup-backed intake, and keeps one drain loop feeding the processing
// machine. A flock on the state directory prevents multiple instances and the
// pid file lets the CLI find the running process.
//
// Job failures stay inside the machine. Faults that leave the process unable
// to continue (a dedup write failure, a closed browser) end Run with an error
// so a supervisor can restart the service.
package daemon
