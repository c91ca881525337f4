package domain

import "time"

// Identity is who a token is issued to.
type Identity struct {
	SubjectID string
	Username  string
}

// Credential is the verified content of a bearer token. It is never mutated
// after issuance and is only valid strictly before ExpiresAt.
type Credential struct {
	SubjectID string    `json:"subject_id"`
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ValidAt reports whether the credential is still usable at t.
func (c *Credential) ValidAt(t time.Time) bool {
	return t.Before(c.ExpiresAt)
}

// Decision is the outcome of an authorization check.
type Decision int

const (
	DecisionDeny Decision = iota
	DecisionAllow
)

func (d Decision) String() string {
	if d == DecisionAllow {
		return "allow"
	}
	return "deny"
}
