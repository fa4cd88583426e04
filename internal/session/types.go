package session

import "fmt"

// Role is the account role the server assigns.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Identity is the stored user record.
type Identity struct {
	Username           string `json:"username"`
	Role               Role   `json:"role"`
	MustChangePassword bool   `json:"must_change_password"`
}

// Credential is a token plus the identity it was issued for.
type Credential struct {
	Token    string
	Identity Identity
}

// IsAdmin reports whether the credential carries the admin role.
func (c Credential) IsAdmin() bool { return c.Identity.Role == RoleAdmin }

// Requirements describe what a command needs beyond a credential.
type Requirements struct {
	RequireAdmin bool
}

// Decision is the outcome of Require.
type Decision int

const (
	Admit Decision = iota
	RedirectLogin
	RedirectChangePassword
	RedirectHome
)

func (d Decision) String() string {
	switch d {
	case Admit:
		return "admit"
	case RedirectLogin:
		return "redirect_login"
	case RedirectChangePassword:
		return "redirect_change_password"
	case RedirectHome:
		return "redirect_home"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}
