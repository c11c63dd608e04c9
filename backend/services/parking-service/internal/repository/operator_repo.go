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

// OperatorRepository handles the operators table.
type OperatorRepository struct {
	db *sql.DB
}

// NewOperatorRepository returns repository instance.
func NewOperatorRepository(db *sql.DB) *OperatorRepository {
	return &OperatorRepository{db: db}
}

// Create inserts a new operator.
func (r *OperatorRepository) Create(ctx context.Context, op *models.Operator) error {
	op.Login = strings.ToLower(strings.TrimSpace(op.Login))
	const query = `
		INSERT INTO operators (login, display_name, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query, op.Login, op.DisplayName, op.PasswordHash, op.Role).
		Scan(&op.ID, &op.CreatedAt)
	if err != nil {
		if libdb.IsUniqueViolation(err, "") {
			return models.ErrOperatorExists
		}
		return fmt.Errorf("create operator: %w", err)
	}
	return nil
}

// GetByLogin fetches an operator by login.
func (r *OperatorRepository) GetByLogin(ctx context.Context, login string) (*models.Operator, error) {
	const query = `
		SELECT id, login, display_name, password_hash, role, created_at
		FROM operators
		WHERE login = $1
	`
	var op models.Operator
	err := r.db.QueryRowContext(ctx, query, strings.ToLower(strings.TrimSpace(login))).Scan(
		&op.ID,
		&op.Login,
		&op.DisplayName,
		&op.PasswordHash,
		&op.Role,
		&op.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrOperatorNotFound
		}
		return nil, fmt.Errorf("get operator: %w", err)
	}
	return &op, nil
}
