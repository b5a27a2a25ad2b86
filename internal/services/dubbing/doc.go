// Package dubbing talks to the external dubbing and transcription backend.
//
// The backend speaks an ElevenLabs-style dubbing API: a job is created from a
// public media URL, polled until it settles, and then its dubbed audio and
// transcript are fetched per target language.
//
// # Entry Points
//
// NewClient: construct a client from Config.
// Client.Submit: create a dubbing job for a media reference.
// Client.Poll: report whether a job is pending, succeeded, or failed.
// Client.ResultLink: publish the dubbed audio and return a shareable link.
// Client.Transcript: fetch the job transcript as plain text.
//
// # Failure Behaviour
//
// Each call makes a single attempt by default so a failing backend fails its
// phase straight away. WithRetryMaxAttempts opts into retries on HTTP
// 408/429/5xx and network timeouts through a retry.Policy. Permanent and
// exhausted failures are reported as services.ErrExternalService; callers
// decide whether the job survives.
package dubbing
