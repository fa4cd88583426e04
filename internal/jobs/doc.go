// Package jobs tracks classification jobs for the signed-in user.
//
// The server owns every job's status; this package never changes a status or
// progress value locally. A Tracker mounts polling Views that fetch the job
// list immediately and then on a fixed interval, replacing their whole
// snapshot with each applied response. Polls are numbered, and a response
// older than the last applied one is discarded, so a slow scheduled poll
// cannot overwrite a newer manual refresh.
//
// User actions (start, cancel or delete, download, upload) go straight to the
// server. Cancel of a processing job and download of an unfinished job are
// rejected locally before any request is made. After a successful action every
// mounted view re-polls.
//
// A view stops when it is stopped explicitly, when its context ends, when the
// session's revocation channel closes, or when a poll is answered with 401.
package jobs
