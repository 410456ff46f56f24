package authz

import (
	"fmt"

	"github.com/iota-uz/legacy-migrator/pkg/serrors"
)

const (
	errorCodeForbidden = "AUTHZ_FORBIDDEN"
	errorLocaleKey     = "Authorization.PermissionDenied"
)

// ErrForbidden matches every denial returned by Authorize.
var ErrForbidden = serrors.NewError(errorCodeForbidden, "permission denied", errorLocaleKey)

// forbiddenError builds a standardized error for a denied principal.
func forbiddenError(p Principal, dom, object, action string) *serrors.BaseError {
	return ErrForbidden.WithTemplateData(map[string]string{
		"object": object,
		"action": action,
		"domain": dom,
		"user":   p.UserID.String(),
	})
}

// configError standardizes configuration validation errors.
func configError(msg string, args ...any) error {
	return fmt.Errorf("authz: "+msg, args...)
}
