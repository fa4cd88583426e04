// Package session owns the signed-in credential and decides whether a command
// may run.
//
// The Guard is the only writer of the stored credential. It persists the token
// and the user record together, reads the token fresh for every outgoing
// request, and clears both when the server rejects the token or the user logs
// out. Clearing closes the channel returned by Revoked so job views polling in
// the background stop without further requests.
//
// Require evaluates admission in a fixed order: no credential sends the user to
// login, a pending password change sends them to change it, a non-admin asking
// for an admin command is sent home, and everything else is admitted.
package session
