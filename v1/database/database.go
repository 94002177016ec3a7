package database

import (
	"context"
	"errors"
	"time"

	"github.com/cabepi/lab-pbm-senasa/v1/models"
)

var (
	// ErrAuthorizationNotFound is returned when no row exists for a code
	ErrAuthorizationNotFound = errors.New("authorization not found")
	// ErrNotAuthorized is returned when a void targets a row whose status is not AUTHORIZED
	ErrNotAuthorized = errors.New("authorization is not in AUTHORIZED status")
)

// AuthorizationRepository persists committed authorizations
type AuthorizationRepository interface {
	// Save inserts the record and its optional caller and prescription rows.
	// A second save for the same authorization_code is a no-op and returns inserted=false.
	Save(ctx context.Context, bundle *models.AuthorizationBundle) (inserted bool, err error)

	// MarkVoided moves AUTHORIZED to VOIDED in a single conditional update
	MarkVoided(ctx context.Context, code, voiderEmail, reason string, at time.Time) error

	GetByCode(ctx context.Context, code string) (*models.AuthorizationRecord, error)
	List(ctx context.Context, limit int) ([]models.AuthorizationRecord, error)

	// ExistingCodes returns which of the given codes already have a row
	ExistingCodes(ctx context.Context, codes []string) (map[string]bool, error)
}

// TraceRepository appends and reads trace events. There is no update or delete.
type TraceRepository interface {
	Create(ctx context.Context, event *models.TraceEvent) error

	// List returns the newest events with authorization_code back-filled from
	// the authorization sharing the transaction_id
	List(ctx context.Context, limit int) ([]models.TraceEvent, error)

	// ListByTransaction returns one transaction's events, oldest first
	ListByTransaction(ctx context.Context, transactionID string) ([]models.TraceEvent, error)

	// ExistsForTransaction reports whether the transaction id already has
	// trace events or an authorization
	ExistsForTransaction(ctx context.Context, transactionID string) (bool, error)

	// ListCommittedSince returns successful AUTHORIZATION events carrying a code
	ListCommittedSince(ctx context.Context, since time.Time) ([]models.TraceEvent, error)
}
