// Package logging assembles the slog loggers used by the spacedub daemon and
// CLI: a console handler for humans, a JSON handler for log shippers, and
// helpers that stamp job, phase, and correlation fields from context.
package logging
