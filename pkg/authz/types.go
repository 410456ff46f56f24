package authz

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	globalDomain          = "global"
	subjectTenantPrefix   = "tenant"
	subjectUserPrefix     = "user"
	rolePrefix            = "role"
	objectSeparator       = "."
	subjectSeparator      = ":"
	defaultActionWildcard = "*"
)

// Request encapsulates all parameters required to evaluate a Casbin rule.
type Request struct {
	Subject string
	Domain  string
	Object  string
	Action  string
}

// NewRequest constructs a Request.
func NewRequest(subject, domain, object, action string) Request {
	return Request{
		Subject: subject,
		Domain:  domain,
		Object:  object,
		Action:  action,
	}
}

// Principal is a caller evaluated by Authorize: a global user and the role
// slugs it holds.
type Principal struct {
	UserID uuid.UUID
	Roles  []string
}

// Subjects returns the user subject followed by one subject per role.
func (p Principal) Subjects() []string {
	out := make([]string, 0, len(p.Roles)+1)
	out = append(out, SubjectForUser(uuid.Nil, p.UserID))
	for _, role := range p.Roles {
		out = append(out, SubjectForRole(role))
	}
	return out
}

// SubjectForUser builds a subject identifier in the form tenant:{tenantID}:user:{userID}.
func SubjectForUser(tenantID, userID uuid.UUID) string {
	userPart := "anonymous"
	if userID != uuid.Nil {
		userPart = userID.String()
	}
	return SubjectForUserID(tenantID, userPart)
}

// SubjectForUserID builds a subject identifier using a custom user identifier value.
func SubjectForUserID(tenantID uuid.UUID, userID string) string {
	userPart := strings.TrimSpace(userID)
	if userPart == "" {
		userPart = "anonymous"
	}
	return strings.Join([]string{
		subjectTenantPrefix, DomainFromTenant(tenantID),
		subjectUserPrefix, userPart,
	}, subjectSeparator)
}

// SubjectForRole returns the canonical identifier for a role-based subject.
func SubjectForRole(roleSlug string) string {
	roleSlug = strings.TrimSpace(roleSlug)
	if roleSlug == "" {
		roleSlug = "unnamed"
	}
	if strings.HasPrefix(roleSlug, rolePrefix+subjectSeparator) {
		return roleSlug
	}
	return fmt.Sprintf("%s%s%s", rolePrefix, subjectSeparator, strings.ToLower(roleSlug))
}

// DomainFromTenant converts a tenant ID into a casbin domain string.
func DomainFromTenant(id uuid.UUID) string {
	if id == uuid.Nil {
		return globalDomain
	}
	return strings.ToLower(id.String())
}

// ObjectName returns the canonical module.resource string, lowercased.
func ObjectName(module, resource string) string {
	module = strings.ToLower(strings.TrimSpace(module))
	resource = strings.ToLower(strings.TrimSpace(resource))
	if module == "" {
		module = "global"
	}
	if resource == "" {
		resource = "resource"
	}
	return module + objectSeparator + resource
}

// NormalizeAction returns a normalized action string.
func NormalizeAction(action string) string {
	action = strings.ToLower(strings.TrimSpace(action))
	if action == "" {
		return defaultActionWildcard
	}
	return action
}
