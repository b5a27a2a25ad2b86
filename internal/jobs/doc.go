// Package jobs keeps a SQLite history of every job the pipeline finished,
// successful or not. It is a read-mostly ledger for operators: the dedup
// store, not this database, decides whether a mention is admitted.
//
// Schema changes bump schemaVersion; operators delete jobs.db to adopt them.
package jobs
