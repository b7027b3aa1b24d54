package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/companion-api/internal/domain"
	"github.com/phrazzld/companion-api/internal/platform/logger"
	"github.com/phrazzld/companion-api/internal/store"
)

// PostgreSQL error codes
const pgUniqueViolationCode = "23505"

// isUniqueViolation checks if the given error is a PostgreSQL unique
// constraint violation, such as a second link for a care request.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolationCode
}

// PostgresLinkStore implements the store.LinkStore interface
// using a PostgreSQL database as the storage backend.
type PostgresLinkStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresLinkStore creates a new PostgreSQL implementation of the LinkStore interface.
// It accepts a database connection or transaction that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresLinkStore(db store.DBTX, logger *slog.Logger) *PostgresLinkStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresLinkStore{
		db:     db,
		logger: logger.With(slog.String("component", "link_store")),
	}
}

// Ensure PostgresLinkStore implements store.LinkStore interface
var _ store.LinkStore = (*PostgresLinkStore)(nil)

// Create implements store.LinkStore.Create
// Returns store.ErrLinkExists if a link already exists for the care request.
func (s *PostgresLinkStore) Create(ctx context.Context, link *domain.CompanionLink) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := link.Validate(); err != nil {
		log.Warn("link validation failed during create",
			slog.String("error", err.Error()),
			slog.String("link_id", link.ID.String()))
		return err
	}

	query := `
		INSERT INTO companion_links (
			id, care_request_id, invalid_auth_count, last_invalid_auth,
			is_blocked, created_notification_sent, on_route_notification_sent,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(
		ctx,
		query,
		link.ID,
		link.CareRequestID,
		link.InvalidAuthCount,
		link.LastInvalidAuth,
		link.IsBlocked,
		link.CreatedNotificationSent,
		link.OnRouteNotificationSent,
		link.CreatedAt,
		link.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			log.Debug("link already exists for care request",
				slog.Int64("care_request_id", link.CareRequestID))
			return store.ErrLinkExists
		}
		log.Error("failed to create link",
			slog.String("error", err.Error()),
			slog.String("link_id", link.ID.String()),
			slog.Int64("care_request_id", link.CareRequestID))
		return err
	}

	log.Info("companion link created",
		slog.String("link_id", link.ID.String()),
		slog.Int64("care_request_id", link.CareRequestID))
	return nil
}

const linkColumns = `
	id, care_request_id, invalid_auth_count, last_invalid_auth,
	is_blocked, created_notification_sent, on_route_notification_sent,
	created_at, updated_at
`

// GetByID implements store.LinkStore.GetByID
// Returns store.ErrLinkNotFound if the link does not exist.
func (s *PostgresLinkStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.CompanionLink, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT` + linkColumns + `FROM companion_links WHERE id = $1`
	link, err := s.scanLink(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("link not found", slog.String("link_id", id.String()))
			return nil, store.ErrLinkNotFound
		}
		log.Error("failed to get link by ID",
			slog.String("error", err.Error()),
			slog.String("link_id", id.String()))
		return nil, err
	}

	return link, nil
}

// GetByCareRequestID implements store.LinkStore.GetByCareRequestID
// Returns store.ErrLinkNotFound if no link exists for the care request.
func (s *PostgresLinkStore) GetByCareRequestID(ctx context.Context, careRequestID int64) (*domain.CompanionLink, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT` + linkColumns + `FROM companion_links WHERE care_request_id = $1`
	link, err := s.scanLink(s.db.QueryRowContext(ctx, query, careRequestID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("no link for care request",
				slog.Int64("care_request_id", careRequestID))
			return nil, store.ErrLinkNotFound
		}
		log.Error("failed to get link by care request ID",
			slog.String("error", err.Error()),
			slog.Int64("care_request_id", careRequestID))
		return nil, err
	}

	return link, nil
}

// Update implements store.LinkStore.Update
// Returns store.ErrLinkNotFound if the link does not exist.
func (s *PostgresLinkStore) Update(ctx context.Context, link *domain.CompanionLink) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	link.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE companion_links
		SET invalid_auth_count = $2,
			last_invalid_auth = $3,
			is_blocked = $4,
			created_notification_sent = $5,
			on_route_notification_sent = $6,
			updated_at = $7
		WHERE id = $1
	`
	result, err := s.db.ExecContext(
		ctx,
		query,
		link.ID,
		link.InvalidAuthCount,
		link.LastInvalidAuth,
		link.IsBlocked,
		link.CreatedNotificationSent,
		link.OnRouteNotificationSent,
		link.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to update link",
			slog.String("error", err.Error()),
			slog.String("link_id", link.ID.String()))
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return store.ErrLinkNotFound
	}

	return nil
}

// WithTx implements store.LinkStore.WithTx
// It returns a new store instance bound to the given transaction.
func (s *PostgresLinkStore) WithTx(tx *sql.Tx) store.LinkStore {
	return &PostgresLinkStore{
		db:     tx,
		logger: s.logger,
	}
}

func (s *PostgresLinkStore) scanLink(row *sql.Row) (*domain.CompanionLink, error) {
	var link domain.CompanionLink
	err := row.Scan(
		&link.ID,
		&link.CareRequestID,
		&link.InvalidAuthCount,
		&link.LastInvalidAuth,
		&link.IsBlocked,
		&link.CreatedNotificationSent,
		&link.OnRouteNotificationSent,
		&link.CreatedAt,
		&link.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &link, nil
}
