// Package workflow drives one mention at a time through the processing
// phases: resolving the stream, preparing media, submitting to the dubbing
// backend, awaiting completion, fetching the result and posting the reply.
//
// A Machine is single-flight. Phases are entered strictly in order and a
// failure in any of them ends the job in the failed state; an undelivered
// reply does not. Every terminal job is written to the ledger, counted in
// metrics and published to notifications. Run returns an error only for
// faults that leave the process unable to continue, such as a closed
// browser.
package workflow
