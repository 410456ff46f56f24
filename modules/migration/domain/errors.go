package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/iota-uz/legacy-migrator/pkg/serrors"
)

var (
	ErrMalformedInput    = serrors.NewError("MIGRATION_MALFORMED_INPUT", "malformed input file", "Migration.Errors.MalformedInput")
	ErrInvalidPlan       = serrors.NewError("MIGRATION_INVALID_MAPPING", "mapping is invalid", "Migration.Errors.InvalidMapping")
	ErrPermissionDenied  = serrors.NewError("MIGRATION_PERMISSION_DENIED", "caller is not a super administrator", "Migration.Errors.PermissionDenied")
	ErrTransientStore    = serrors.NewError("MIGRATION_STORE_TRANSIENT", "transient store error", "Migration.Errors.StoreTransient")
	ErrRowInvalid        = serrors.NewError("MIGRATION_ROW_INVALID", "row is not importable", "Migration.Errors.RowInvalid")
	ErrSessionNotFound   = serrors.NewError("MIGRATION_SESSION_NOT_FOUND", "migration session not found", "Migration.Errors.SessionNotFound")
	ErrInvalidTransition = serrors.NewError("MIGRATION_INVALID_STATE", "operation not allowed in the current session state", "Migration.Errors.InvalidState")
	ErrReportNotFound    = serrors.NewError("MIGRATION_REPORT_NOT_FOUND", "migration report not found", "Migration.Errors.ReportNotFound")
	ErrNoParsableFiles   = serrors.NewError("MIGRATION_NO_PARSABLE_FILES", "none of the uploaded files could be parsed", "Migration.Errors.NoParsableFiles")
)

// MalformedInputError is fatal to one file only.
type MalformedInputError struct {
	File   string
	Line   int
	Reason string
}

func (e *MalformedInputError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Reason)
}

func (e *MalformedInputError) Unwrap() error {
	return ErrMalformedInput
}

type ValidationIssue struct {
	Code    string `json:"code"`
	File    string `json:"file,omitempty"`
	Header  string `json:"header,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// ValidationError lists every problem found while resolving a plan.
type ValidationError struct {
	Issues []ValidationIssue
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		msgs = append(msgs, issue.Message)
	}
	return "invalid mapping: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidPlan
}

func (e *ValidationError) Add(issue ValidationIssue) {
	e.Issues = append(e.Issues, issue)
}

type PermissionDeniedError struct {
	UserID uuid.UUID
	Stage  string
	Cause  error
}

func (e *PermissionDeniedError) Error() string {
	msg := fmt.Sprintf("permission denied for user %s at stage %s", e.UserID, e.Stage)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *PermissionDeniedError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrPermissionDenied}
	}
	return []error{ErrPermissionDenied, e.Cause}
}

// TransientStoreError marks a store failure worth retrying.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("transient store error during %s: %v", e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() []error {
	return []error{ErrTransientStore, e.Err}
}

func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientStore)
}

// RowValidationFailure is recorded per row and never aborts a run.
type RowValidationFailure struct {
	Entity EntityType
	Reason string
}

func (e *RowValidationFailure) Error() string {
	if e.Entity == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Entity, e.Reason)
}

func (e *RowValidationFailure) Unwrap() error {
	return ErrRowInvalid
}

type InvalidTransitionError struct {
	From   SessionState
	Action string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s while session is %s", e.Action, e.From)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}
