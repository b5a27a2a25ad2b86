package workflow

import (
	"fmt"

	"spacedub/internal/mention"
	"spacedub/internal/reply"
)

func successText(job *Job, max int) string {
	if job.Request.Mode == mention.ModeSummary && job.Summary != "" {
		return reply.Compose(job.Summary, job.ResultLink, max)
	}
	return reply.Compose(fmt.Sprintf("Here is this Space dubbed into %s:", job.Request.LanguageName()), job.ResultLink, max)
}

func failureText(job *Job) string {
	if job.FailedPhase == PhaseResolvingStream {
		return "Sorry, I could not find a Space recording in this thread."
	}
	return "Sorry, something went wrong while processing this Space. Please try again later."
}
