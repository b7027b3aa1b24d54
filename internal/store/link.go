package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/companion-api/internal/domain"
)

// LinkStore defines the interface for companion link persistence.
type LinkStore interface {
	// Create saves a new companion link to the store.
	// Returns ErrLinkExists if a link already exists for the link's
	// care request; callers treating creation as idempotent should
	// re-read the existing link on that error.
	Create(ctx context.Context, link *domain.CompanionLink) error

	// GetByID retrieves a link by its unique ID.
	// Returns ErrLinkNotFound if the link does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.CompanionLink, error)

	// GetByCareRequestID retrieves the link for a care request.
	// Returns ErrLinkNotFound if no link exists for that care request.
	GetByCareRequestID(ctx context.Context, careRequestID int64) (*domain.CompanionLink, error)

	// Update persists changes to an existing link's mutable fields
	// (notification flags, auth counters, blocked flag).
	// Returns ErrLinkNotFound if the link does not exist.
	Update(ctx context.Context, link *domain.CompanionLink) error

	// WithTx returns a new LinkStore instance that uses the provided transaction.
	// The transaction should be created and managed by the caller (typically a service).
	WithTx(tx *sql.Tx) LinkStore
}
