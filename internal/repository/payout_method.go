package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/myanjobs/payments/internal/domain"
)

type PayoutMethodRepository struct {
	db *sql.DB
}

func NewPayoutMethodRepository(db *sql.DB) *PayoutMethodRepository {
	return &PayoutMethodRepository{db: db}
}

func (r *PayoutMethodRepository) Create(ctx context.Context, m *domain.PayoutMethod) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payout_methods (id, user_id, provider, phone, name, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.UserID, m.Provider, m.Phone, m.Name, m.Status, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *PayoutMethodRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.PayoutMethod, error) {
	var m domain.PayoutMethod
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, provider, phone, name, status, created_at, updated_at
		 FROM payout_methods WHERE id = $1`, id,
	).Scan(&m.ID, &m.UserID, &m.Provider, &m.Phone, &m.Name, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return &m, nil
}

func (r *PayoutMethodRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.PayoutMethodStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payout_methods SET status = $2, updated_at = now() WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return fmt.Errorf("UpdateStatus: %w", err)
	}
	return requireRow(res, "UpdateStatus")
}
