// Package leaderboard scrapes the public Spaces leaderboard into JSON.
//
// Rows are located with a list of selector strategies, most specific first,
// and entries are deduplicated by details URL, then play URL, then host
// handle and title.
package leaderboard
