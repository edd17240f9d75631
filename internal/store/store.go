// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/portal-treinamento/core/internal/domain"
)

var _ Repository = (*SQLStore)(nil)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Repository defines the interface for persisting portal data.
type Repository interface {
	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error

	// SaveExchange stores a finished chat exchange.
	SaveExchange(ctx context.Context, ex *domain.Exchange) error

	// ListExchanges returns an owner's exchanges, oldest first.
	ListExchanges(ctx context.Context, ownerID string) ([]*domain.Exchange, error)

	// DeleteExchanges removes an owner's chat history.
	DeleteExchanges(ctx context.Context, ownerID string) (int64, error)

	// UpsertClass creates or updates a training class.
	UpsertClass(ctx context.Context, c *domain.TrainingClass) error

	// GetClass retrieves a class by ID.
	GetClass(ctx context.Context, id string) (*domain.TrainingClass, error)

	// ListClasses returns a tenant's classes ordered by start date.
	ListClasses(ctx context.Context, tenantID string) ([]*domain.TrainingClass, error)

	// ListOpenClasses returns classes of every tenant whose status is not terminal.
	ListOpenClasses(ctx context.Context) ([]*domain.TrainingClass, error)

	// UpdateClassStatus changes only the status of a class.
	UpdateClassStatus(ctx context.Context, id string, status domain.ClassStatus) error

	// UpsertSegment creates or updates a segment.
	UpsertSegment(ctx context.Context, s *domain.Segment) error

	// GetSegment retrieves a segment by ID.
	GetSegment(ctx context.Context, id string) (*domain.Segment, error)

	// ReplaceChunks swaps every chunk of a source document in one transaction.
	ReplaceChunks(ctx context.Context, tenantID, sourceName string, chunks []*domain.DocumentChunk) error

	// ListChunks returns a tenant's embedded chunks.
	ListChunks(ctx context.Context, tenantID string) ([]*domain.DocumentChunk, error)
}
