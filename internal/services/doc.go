// Package services defines shared utilities consumed by the processing
// pipeline and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job identifiers, phase names, and correlation
//     identifiers for logging.
//   - Sentinel error markers plus the Wrap and Details helpers that let the
//     state machine classify failures without string matching.
//
// Integrations (dubbing, llm) live in subpackages and report failures through
// these markers so retry and failure handling stays uniform.
package services
