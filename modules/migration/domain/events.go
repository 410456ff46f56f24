package domain

import (
	"time"

	"github.com/google/uuid"
)

type SessionStateChangedEvent struct {
	SessionID uuid.UUID
	TenantID  uuid.UUID
	From      SessionState
	To        SessionState
	Reason    string
	At        time.Time
}

type PlanRevisedEvent struct {
	SessionID   uuid.UUID
	PlanID      uuid.UUID
	Revision    int
	Fingerprint string
	Patch       []byte
}

type BatchCommittedEvent struct {
	SessionID uuid.UUID
	TenantID  uuid.UUID
	Batch     int
	Rows      int
	Attempts  int
	Err       error
}

type MigrationCompletedEvent struct {
	SessionID uuid.UUID
	Report    *MigrationReport
}
