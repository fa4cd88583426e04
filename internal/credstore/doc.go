// Package credstore provides the process-wide key/value storage that holds
// the signed-in session.
//
// The SQLite store persists entries in a small database under the state
// directory so every kmlc invocation observes the same credential. Writes are
// serialized across processes with an advisory file lock and applied in a
// single transaction, so a reader never sees a token without its user record.
// The memory store offers the same contract for tests.
package credstore
