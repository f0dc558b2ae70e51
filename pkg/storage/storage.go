// Package storage provides persistent storage abstraction for users, facts,
// and the scheduling audit log.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/nbalepur/fact-repetition/pkg/fact"
)

// Storage defines the interface for persistent storage operations.
type Storage interface {
	// User operations
	SaveUser(ctx context.Context, u *fact.User) error
	GetUser(ctx context.Context, id string) (*fact.User, error)
	ListUsers(ctx context.Context) ([]*fact.User, error)

	// Fact operations
	SaveFact(ctx context.Context, f *fact.Fact) error
	GetFact(ctx context.Context, id string) (*fact.Fact, error)

	// Decision operations
	SaveDecision(ctx context.Context, d *fact.Decision) error
	GetDecision(ctx context.Context, id string) (*fact.Decision, error)

	// Audit log reads
	GetRecord(ctx context.Context, id string) (*fact.Record, error)
	ListRecords(ctx context.Context, filter *RecordFilter) ([]*fact.Record, error)
	GetUserSnapshot(ctx context.Context, recordID string) (*fact.UserSnapshot, error)
	GetFactSnapshot(ctx context.Context, recordID string) (*fact.FactSnapshot, error)

	// ApplyUpdate commits the outcome of one response batch atomically.
	// Either every entity in the batch is persisted or none are. If the
	// batch's decision is already marked consumed in storage the commit
	// fails with a DuplicateKeyError, so a decision is consumed at most
	// once even across racing callers.
	ApplyUpdate(ctx context.Context, batch *UpdateBatch) error

	// Lifecycle
	Close() error
}

// UpdateBatch groups every write produced by one response batch so a backend
// can commit them in a single transaction.
type UpdateBatch struct {
	User          *fact.User           `json:"user"`
	Facts         []*fact.Fact         `json:"facts"`
	Decision      *fact.Decision       `json:"decision"`
	Records       []*fact.Record       `json:"records"`
	UserSnapshots []*fact.UserSnapshot `json:"user_snapshots"`
	FactSnapshots []*fact.FactSnapshot `json:"fact_snapshots"`
}

// RecordFilter defines filtering options for listing audit records.
type RecordFilter struct {
	UserID     string     `json:"user_id,omitempty"`
	DecisionID string     `json:"decision_id,omitempty"`
	DeckID     string     `json:"deck_id,omitempty"`
	From       *time.Time `json:"from,omitempty"`
	To         *time.Time `json:"to,omitempty"`
	Limit      int        `json:"limit"`
	Offset     int        `json:"offset"`
	NewOnly    bool       `json:"new_only,omitempty"`
}

// Matches reports whether a record passes the filter's predicates.
// Pagination is applied separately by the backend.
func (f *RecordFilter) Matches(r *fact.Record) bool {
	if f == nil {
		return true
	}
	if f.UserID != "" && r.UserID != f.UserID {
		return false
	}
	if f.DecisionID != "" && r.DecisionID != f.DecisionID {
		return false
	}
	if f.DeckID != "" && r.DeckID != f.DeckID {
		return false
	}
	if f.From != nil && r.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && !r.Date.Before(*f.To) {
		return false
	}
	if f.NewOnly && !r.IsNewFact {
		return false
	}
	return true
}

// NotFoundError indicates that the requested entity was not found.
type NotFoundError struct {
	EntityType string
	ID         string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.EntityType, e.ID)
}

// DuplicateKeyError indicates that an entity with the given ID already exists.
type DuplicateKeyError struct {
	EntityType string
	ID         string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.EntityType, e.ID)
}

// StorageUnavailableError indicates that the storage backend is unavailable.
type StorageUnavailableError struct {
	Cause error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable: %v", e.Cause)
}

func (e *StorageUnavailableError) Unwrap() error { return e.Cause }

// SerializationError indicates a failure in data serialization/deserialization.
type SerializationError struct {
	Operation string
	Cause     error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization error during %s: %v", e.Operation, e.Cause)
}

func (e *SerializationError) Unwrap() error { return e.Cause }
