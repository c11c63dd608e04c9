package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	libdb "parkpay/backend/libs/db"
	"parkpay/backend/services/parking-service/internal/models"
)

const (
	sessionColumns = `id, card_id, vehicle_class, state, entry_time, exit_time, cost, discount, total_paid, payment_method, cashier, created_at, updated_at`

	openSessionIndex = "parking_sessions_open_card_idx"
	foreignKeyCode   = "23503"
)

// SessionRepository handles persistence of parking sessions.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository returns repository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		s    models.Session
		exit sql.NullTime
	)
	if err := row.Scan(
		&s.ID,
		&s.CardID,
		&s.VehicleClass,
		&s.State,
		&s.EntryTime,
		&exit,
		&s.Cost,
		&s.Discount,
		&s.TotalPaid,
		&s.PaymentMethod,
		&s.Cashier,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrSessionNotFound
		}
		return nil, err
	}
	if exit.Valid {
		t := exit.Time.UTC()
		s.ExitTime = &t
	}
	s.EntryTime = s.EntryTime.UTC()
	return &s, nil
}

// Open inserts an open session. The partial unique index on (card_id) WHERE state = 'open'
// rejects a second open session for the same card.
func (r *SessionRepository) Open(ctx context.Context, cardID int64, vehicleClass string, entry time.Time) (*models.Session, error) {
	query := `
		INSERT INTO parking_sessions (card_id, vehicle_class, state, entry_time, created_at, updated_at)
		VALUES ($1, $2, 'open', $3, NOW(), NOW())
		RETURNING ` + sessionColumns
	session, err := scanSession(r.db.QueryRowContext(ctx, query, cardID, vehicleClass, entry.UTC()))
	if err != nil {
		if libdb.IsUniqueViolation(err, openSessionIndex) {
			return nil, models.ErrDuplicateOpenSession
		}
		if isForeignKeyViolation(err) {
			return nil, models.ErrCardNotFound
		}
		return nil, fmt.Errorf("open session: %w", err)
	}
	return session, nil
}

// FindOpenByCard returns the open session bound to the card.
func (r *SessionRepository) FindOpenByCard(ctx context.Context, cardID int64) (*models.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM parking_sessions
		WHERE card_id = $1 AND state = 'open'
	`
	return r.queryOne(ctx, "find open session", query, cardID)
}

// LatestByCard returns the most recent session of the card in any state.
func (r *SessionRepository) LatestByCard(ctx context.Context, cardID int64) (*models.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM parking_sessions
		WHERE card_id = $1
		ORDER BY entry_time DESC, id DESC
		LIMIT 1
	`
	return r.queryOne(ctx, "latest session", query, cardID)
}

// GetByID returns a session by id.
func (r *SessionRepository) GetByID(ctx context.Context, id int64) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM parking_sessions WHERE id = $1`
	return r.queryOne(ctx, "get session", query, id)
}

// Close transitions an open session to closed exactly once.
func (r *SessionRepository) Close(ctx context.Context, in models.CloseSessionInput) (*models.Session, error) {
	query := `
		UPDATE parking_sessions
		SET state = 'closed',
		    exit_time = $2,
		    cost = $3,
		    discount = $4,
		    total_paid = $5,
		    payment_method = $6,
		    cashier = $7,
		    updated_at = NOW()
		WHERE id = $1 AND state = 'open'
		RETURNING ` + sessionColumns
	session, err := scanSession(r.db.QueryRowContext(ctx, query,
		in.SessionID,
		in.ExitTime.UTC(),
		in.Cost,
		in.Discount,
		in.TotalPaid,
		in.PaymentMethod,
		in.Cashier,
	))
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, models.ErrSessionNotFound) {
		return nil, fmt.Errorf("close session: %w", err)
	}

	// nothing updated: missing or already closed
	if _, getErr := r.GetByID(ctx, in.SessionID); getErr != nil {
		return nil, getErr
	}
	return nil, models.ErrAlreadyClosed
}

// ListOpen returns sessions still awaiting payment, oldest first.
func (r *SessionRepository) ListOpen(ctx context.Context, limit int) ([]models.Session, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + sessionColumns + `
		FROM parking_sessions
		WHERE state = 'open'
		ORDER BY entry_time ASC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list open sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan open session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *SessionRepository) queryOne(ctx context.Context, op, query string, args ...any) (*models.Session, error) {
	session, err := scanSession(r.db.QueryRowContext(ctx, query, args...))
	if err != nil && !errors.Is(err, models.ErrSessionNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return session, err
}

func isForeignKeyViolation(err error) bool {
	var coded interface{ SQLState() string }
	return errors.As(err, &coded) && coded.SQLState() == foreignKeyCode
}
