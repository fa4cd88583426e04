// Package api is the HTTP client for the classification service REST API.
//
// Every call goes through one request path that attaches the bearer token
// read from the Session at send time, stamps an X-Request-ID, bounds the
// exchange with the configured timeout, and maps failures onto the error
// taxonomy in errors.go. A 401 answer to a request that carried a token is
// reported to Session.OnAuthRejected, along with that token, before the error
// is returned. That is how the session guard learns its credential has been
// rejected.
//
// # Key Types
//
// Client: typed calls for auth, tasks, topics, users, upload and download.
//
// Task, Topic, User, Identity: wire DTOs with the server's snake_case tags.
//
// # Design Notes
//
// Server timestamps are passed through as strings because the service emits
// naive ISO-8601 values without a zone. Task status is a plain string here;
// the jobs package owns the closed status set and rejects unknown values.
package api
