// Package storage persists the chunk corpus and keyword statistics in a
// single SQLite file, and restores both search indexes from it at startup.
//
// The file is written only during the exclusive offline build phase
// (cmd/kestrel-index); serving processes open it read-mostly and load the
// indexes once. Load failures are structural: a missing, corrupt, or
// dimension-inconsistent file surfaces types.ErrIndexLoad and the process
// must not serve queries.
//
// Two SQLite drivers are supported via build tags: the default pure Go
// modernc.org/sqlite, and github.com/mattn/go-sqlite3 behind the
// sqlite_cgo tag for faster bulk writes.
package storage
