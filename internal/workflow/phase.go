package workflow

import "fmt"

// Phase is one step of the processing state machine.
type Phase string

const (
	PhaseQueued             Phase = "queued"
	PhaseResolvingStream    Phase = "resolving_stream"
	PhasePreparingMedia     Phase = "preparing_media"
	PhaseSubmittingJob      Phase = "submitting_job"
	PhaseAwaitingCompletion Phase = "awaiting_completion"
	PhaseFetchingResult     Phase = "fetching_result"
	PhasePostingReply       Phase = "posting_reply"
	PhaseDone               Phase = "done"
	PhaseFailed             Phase = "failed"
)

// phaseOrder is the only legal path through the machine. Failed is reachable
// from any phase and is handled separately.
var phaseOrder = []Phase{
	PhaseQueued,
	PhaseResolvingStream,
	PhasePreparingMedia,
	PhaseSubmittingJob,
	PhaseAwaitingCompletion,
	PhaseFetchingResult,
	PhasePostingReply,
	PhaseDone,
}

func phaseIndex(p Phase) int {
	for i, candidate := range phaseOrder {
		if candidate == p {
			return i
		}
	}
	return -1
}

// Terminal reports whether no further transition is possible.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// Outcome is the terminal result of a job.
type Outcome string

const (
	OutcomeSucceeded        Outcome = "succeeded"
	OutcomeReplyUndelivered Outcome = "succeeded_reply_undelivered"
	OutcomeFailed           Outcome = "failed"
)

// Succeeded reports whether the result link was produced.
func (o Outcome) Succeeded() bool {
	return o == OutcomeSucceeded || o == OutcomeReplyUndelivered
}

// TransitionError reports an attempt to leave the ordered phase path.
type TransitionError struct {
	From Phase
	To   Phase
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal phase transition %s -> %s", e.From, e.To)
}
