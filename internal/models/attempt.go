package models

import "time"

// CredentialKind identifies which kind of credential an access attempt presented.
type CredentialKind string

const (
	CredentialKindToken   CredentialKind = "token"
	CredentialKindCode    CredentialKind = "code"
	CredentialKindSession CredentialKind = "session"
)

// AttemptOutcome is the recorded result of a single validation call.
type AttemptOutcome string

const (
	AttemptOutcomeSuccess AttemptOutcome = "success"
	AttemptOutcomeFailure AttemptOutcome = "failure"
	AttemptOutcomeExpired AttemptOutcome = "expired"
)

// AccessAttempt is a single validation attempt against a client-facing
// credential. Rows are append-only; they form the permanent audit trail
// behind the security dashboards and are never updated or purged.
type AccessAttempt struct {
	ID                   string         `db:"id"`
	Address              string         `db:"address"`
	CredentialIdentifier string         `db:"credential_identifier"`
	CredentialKind       CredentialKind `db:"credential_kind"`
	Outcome              AttemptOutcome `db:"outcome"`
	TargetEntityID       *string        `db:"target_entity_id"`
	AttemptedAt          time.Time      `db:"attempted_at"`
}
