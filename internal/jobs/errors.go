package jobs

import (
	"errors"
	"fmt"
	"net/http"

	"kmlc/internal/api"
)

// JobErrorKind classifies rejected job actions.
type JobErrorKind string

const (
	InvalidTransition JobErrorKind = "invalid_transition"
	NotFound          JobErrorKind = "not_found"
	Forbidden         JobErrorKind = "forbidden"
)

// JobError reports an action the server or client refused.
type JobError struct {
	Kind   JobErrorKind
	JobID  string
	Detail string
}

// Sentinels for errors.Is; they match any JobError of the same kind.
var (
	ErrInvalidTransition = &JobError{Kind: InvalidTransition}
	ErrNotFound          = &JobError{Kind: NotFound}
	ErrForbidden         = &JobError{Kind: Forbidden}
)

// ErrSessionRevoked stops a view whose session credential was cleared.
var ErrSessionRevoked = errors.New("session revoked")

// ErrUnsupportedFile rejects uploads that are not .xlsx workbooks.
var ErrUnsupportedFile = errors.New("only .xlsx files are supported")

func (e *JobError) Error() string {
	msg := e.Detail
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.JobID == "" {
		return msg
	}
	return fmt.Sprintf("job %s: %s", e.JobID, msg)
}

func (e *JobError) Is(target error) bool {
	t, ok := target.(*JobError)
	return ok && t.Kind == e.Kind
}

// mapActionError translates the server's 400/403/404 answers for a job action.
func mapActionError(jobID string, err error) error {
	if err == nil {
		return nil
	}
	switch api.StatusCode(err) {
	case http.StatusBadRequest:
		return &JobError{Kind: InvalidTransition, JobID: jobID, Detail: api.Detail(err)}
	case http.StatusNotFound:
		return &JobError{Kind: NotFound, JobID: jobID, Detail: api.Detail(err)}
	case http.StatusForbidden:
		return &JobError{Kind: Forbidden, JobID: jobID, Detail: api.Detail(err)}
	default:
		return err
	}
}
