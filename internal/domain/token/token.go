// internal/domain/token/token.go
package token

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Scope identifies which token applies to a partner-facing action.
// A partner-wide scope (no project) is a distinct value from every project scope.
type Scope struct {
	PartnerID uuid.UUID
	ProjectID uuid.NullUUID
}

// PartnerScope is the scope of a partner with no project.
func PartnerScope(partnerID uuid.UUID) Scope {
	return Scope{PartnerID: partnerID}
}

// ProjectScope is the scope of a partner within one project.
func ProjectScope(partnerID, projectID uuid.UUID) Scope {
	return Scope{PartnerID: partnerID, ProjectID: uuid.NullUUID{UUID: projectID, Valid: true}}
}

// ScopeOf builds a scope from a possibly-null project id.
func ScopeOf(partnerID uuid.UUID, projectID uuid.NullUUID) Scope {
	if !projectID.Valid {
		return PartnerScope(partnerID)
	}
	return ProjectScope(partnerID, projectID.UUID)
}

// HasProject reports whether the scope is bound to a project.
func (s Scope) HasProject() bool { return s.ProjectID.Valid }

// String renders the scope for logs.
func (s Scope) String() string {
	if !s.ProjectID.Valid {
		return s.PartnerID.String() + "/-"
	}
	return s.PartnerID.String() + "/" + s.ProjectID.UUID.String()
}

// PartnerToken is an opaque secret a partner uses to respond to report requests.
// Corresponds to the 'partner_report_tokens' table. At most one active token exists per Scope.
type PartnerToken struct {
	ID         uuid.UUID
	Scope      Scope
	Secret     string
	ExpiresAt  sql.NullTime
	IsActive   bool
	LastUsedAt sql.NullTime
	CreatedAt  time.Time
}

// IsValid is true iff the token is active and not past its expiry.
func (t *PartnerToken) IsValid(now time.Time) bool {
	if !t.IsActive {
		return false
	}
	return !t.ExpiresAt.Valid || !now.After(t.ExpiresAt.Time)
}
