// Package media turns a captured manifest URL into a durable media reference:
// ffmpeg downloads and transcodes the stream to a local audio file, ffprobe
// checks the result, and the file is uploaded to S3-compatible storage where a
// presigned GET URL is issued for the dubbing backend.
//
// Uploads are retried with exponential backoff; transcoding is not.
package media
