// Package reply posts job results back to the originating post.
//
// Gateway drives the logged-in browser session: it opens the origin post,
// fills the reply composer, and submits. Composer locators are data, tried as
// ordered strategies (inline composer first, then the reply dialog). Posts are
// paced by a token bucket so bursts of finished jobs do not trip the
// platform's spam heuristics.
//
// Every failure is reported as services.ErrReplyDelivery. Callers treat that
// as non-fatal for the job.
package reply
