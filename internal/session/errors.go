package session

import "fmt"

// AuthErrorKind classifies authentication failures.
type AuthErrorKind string

const (
	InvalidCredentials AuthErrorKind = "invalid_credentials"
	Mismatch           AuthErrorKind = "mismatch"
	TooShort           AuthErrorKind = "too_short"
)

// MinPasswordLength is the shortest password ChangePassword accepts.
const MinPasswordLength = 6

// AuthError reports a failed login or password change.
type AuthError struct {
	Kind   AuthErrorKind
	Detail string
}

// Sentinels for errors.Is; they match any AuthError of the same kind.
var (
	ErrInvalidCredentials = &AuthError{Kind: InvalidCredentials}
	ErrMismatch           = &AuthError{Kind: Mismatch}
	ErrTooShort           = &AuthError{Kind: TooShort}
)

func (e *AuthError) Error() string {
	switch {
	case e.Detail != "":
		return e.Detail
	case e.Kind == Mismatch:
		return "new passwords do not match"
	case e.Kind == TooShort:
		return fmt.Sprintf("password must be at least %d characters", MinPasswordLength)
	default:
		return "invalid credentials"
	}
}

func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Kind == e.Kind
}
