package workflow

import (
	"time"

	"spacedub/internal/jobs"
	"spacedub/internal/media"
	"spacedub/internal/mention"
)

// Job is the state of one work unit while the machine owns it.
type Job struct {
	Unit          mention.WorkUnit
	Request       mention.Request
	CorrelationID string

	Phase         Phase
	ManifestURL   string
	Media         media.Ref
	ExternalJobID string
	ResultLink    string
	Summary       string

	Outcome     Outcome
	FailedPhase Phase
	Reason      string
	Err         error

	StartedAt  time.Time
	FinishedAt time.Time
}

func newJob(unit mention.WorkUnit, req mention.Request, correlationID string, now time.Time) *Job {
	return &Job{
		Unit:          unit,
		Request:       req,
		CorrelationID: correlationID,
		Phase:         PhaseQueued,
		StartedAt:     now,
	}
}

// advance moves the job to the next phase. Phases are entered strictly in
// order and at most once.
func (j *Job) advance(to Phase) error {
	from := phaseIndex(j.Phase)
	if j.Phase.Terminal() || from < 0 || phaseIndex(to) != from+1 {
		return &TransitionError{From: j.Phase, To: to}
	}
	j.Phase = to
	return nil
}

// fail moves the job to the failed terminal state, remembering where it was.
func (j *Job) fail(reason string, err error) {
	if j.Phase.Terminal() {
		return
	}
	j.FailedPhase = j.Phase
	j.Phase = PhaseFailed
	j.Outcome = OutcomeFailed
	j.Reason = reason
	j.Err = err
}

// Record converts the job into a ledger entry.
func (j *Job) Record() jobs.Record {
	phase := j.Phase
	if phase == PhaseFailed {
		phase = j.FailedPhase
	}
	rec := jobs.Record{
		ID:            j.Unit.ID,
		Origin:        j.Unit.Origin,
		Mode:          string(j.Request.Mode),
		Language:      j.Request.Language.String(),
		Phase:         string(phase),
		Outcome:       string(j.Outcome),
		Reason:        j.Reason,
		ManifestURL:   j.ManifestURL,
		MediaRef:      j.Media.URL,
		ExternalJobID: j.ExternalJobID,
		ResultLink:    j.ResultLink,
		CorrelationID: j.CorrelationID,
		StartedAt:     j.StartedAt,
		FinishedAt:    j.FinishedAt,
	}
	if j.Err != nil {
		rec.ErrorKind = kindOf(j.Err)
	}
	return rec
}

// Elapsed returns the job's wall time so far.
func (j *Job) Elapsed() time.Duration {
	if j.FinishedAt.IsZero() {
		return time.Since(j.StartedAt)
	}
	return j.FinishedAt.Sub(j.StartedAt)
}
