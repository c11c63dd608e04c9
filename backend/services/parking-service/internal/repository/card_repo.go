package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	libdb "parkpay/backend/libs/db"
	"parkpay/backend/services/parking-service/internal/models"
)

const cardColumns = `id, code, COALESCE(barcode, ''), lost, state, created_at, updated_at`

// CardRepository persists physical cards and their binding state.
type CardRepository struct {
	db *sql.DB
}

// NewCardRepository returns repository.
func NewCardRepository(db *sql.DB) *CardRepository {
	return &CardRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (*models.Card, error) {
	var c models.Card
	if err := row.Scan(
		&c.ID,
		&c.Code,
		&c.Barcode,
		&c.Lost,
		&c.State,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrCardNotFound
		}
		return nil, err
	}
	return &c, nil
}

// FindByAlias resolves a scanned value against the card code first, then the barcode.
func (r *CardRepository) FindByAlias(ctx context.Context, alias string) (*models.Card, error) {
	alias = strings.TrimSpace(alias)
	if alias == "" {
		return nil, models.ErrCardNotFound
	}
	query := `
		SELECT ` + cardColumns + `
		FROM cards
		WHERE code = $1 OR barcode = $1
		ORDER BY (code = $1) DESC
		LIMIT 1
	`
	card, err := scanCard(r.db.QueryRowContext(ctx, query, alias))
	if err != nil && !errors.Is(err, models.ErrCardNotFound) {
		return nil, fmt.Errorf("find card by alias: %w", err)
	}
	return card, err
}

// GetByID returns a card by id.
func (r *CardRepository) GetByID(ctx context.Context, id int64) (*models.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards WHERE id = $1`
	card, err := scanCard(r.db.QueryRowContext(ctx, query, id))
	if err != nil && !errors.Is(err, models.ErrCardNotFound) {
		return nil, fmt.Errorf("get card: %w", err)
	}
	return card, err
}

// MarkBound flips a free, not-lost card to bound in a single conditional write.
func (r *CardRepository) MarkBound(ctx context.Context, id int64) error {
	const query = `
		UPDATE cards
		SET state = 'bound', updated_at = NOW()
		WHERE id = $1 AND state = 'free' AND NOT lost
	`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("bind card: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("bind card rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}

	// nothing updated: find out why
	card, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if card.IsLost() {
		return models.ErrCardLost
	}
	return models.ErrAlreadyBound
}

// MarkFree releases a card. Freeing a free card is a no-op.
func (r *CardRepository) MarkFree(ctx context.Context, id int64) error {
	const query = `
		UPDATE cards
		SET state = 'free', updated_at = NOW()
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("free card: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("free card rows affected: %w", err)
	}
	if affected == 0 {
		return models.ErrCardNotFound
	}
	return nil
}

// ReleaseIfIdle frees a bound card only while no open session references it.
// It reports false when an open session keeps the card bound.
func (r *CardRepository) ReleaseIfIdle(ctx context.Context, id int64) (bool, error) {
	const query = `
		UPDATE cards
		SET state = 'free', updated_at = NOW()
		WHERE id = $1 AND state = 'bound'
		  AND NOT EXISTS (
			SELECT 1 FROM parking_sessions
			WHERE card_id = $1 AND state = 'open'
		  )
	`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("release idle card: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("release idle card rows affected: %w", err)
	}
	if affected == 1 {
		return true, nil
	}

	card, err := r.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return !card.IsBound(), nil
}

// Create registers a new free card.
func (r *CardRepository) Create(ctx context.Context, card *models.Card) error {
	const query = `
		INSERT INTO cards (code, barcode, lost, state, created_at, updated_at)
		VALUES ($1, NULLIF($2, ''), $3, 'free', NOW(), NOW())
		RETURNING id, state, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		strings.TrimSpace(card.Code),
		strings.TrimSpace(card.Barcode),
		card.Lost,
	).Scan(&card.ID, &card.State, &card.CreatedAt, &card.UpdatedAt)
	if err != nil {
		if libdb.IsUniqueViolation(err, "") {
			return models.ErrCardExists
		}
		return fmt.Errorf("create card: %w", err)
	}
	return nil
}

// SetLost sets or clears the lost flag.
func (r *CardRepository) SetLost(ctx context.Context, id int64, lost bool) (*models.Card, error) {
	query := `
		UPDATE cards
		SET lost = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + cardColumns
	card, err := scanCard(r.db.QueryRowContext(ctx, query, id, lost))
	if err != nil && !errors.Is(err, models.ErrCardNotFound) {
		return nil, fmt.Errorf("set card lost: %w", err)
	}
	return card, err
}
