// Package main hosts the spacedub CLI entrypoint and command graph.
//
// The Cobra command tree runs the mention daemon in the foreground, inspects
// and signals a running daemon through its lock and pid files, reads the
// dedup record and job history, scrapes the Spaces leaderboard, and scaffolds
// configuration. Behaviour lives in the internal packages; commands here only
// resolve configuration and render output.
package main
