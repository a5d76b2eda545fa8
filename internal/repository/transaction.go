package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/myanjobs/payments/internal/domain"
)

type scanner interface {
	Scan(dest ...any) error
}

const txnColumns = `id, transaction_number, order_id, idempotency_key, type, provider,
	status, amount, currency, provider_order_id, provider_transaction_id,
	qr_data, qr_image_url, qr_expires_at,
	user_id, recipient_phone, recipient_name, payout_method_id,
	error_message, error_code, initiated_at, completed_at, failed_at, updated_at,
	COALESCE((SELECT SUM(amount) FROM payment_refunds WHERE transaction_id = payment_transactions.id), 0) AS refunded_amount`

var terminalStatuses = []string{
	string(domain.TransactionStatusCompleted),
	string(domain.TransactionStatusFailed),
	string(domain.TransactionStatusCancelled),
}

type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, t *domain.PaymentTransaction) error {
	var recipientPhone, recipientName *string
	if t.Recipient != nil {
		recipientPhone = &t.Recipient.Phone
		recipientName = &t.Recipient.Name
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payment_transactions (
			id, transaction_number, order_id, idempotency_key, type, provider,
			status, amount, currency, user_id, recipient_phone, recipient_name,
			payout_method_id, initiated_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		t.ID, t.TransactionNumber, t.OrderID, t.IdempotencyKey, t.Type, t.Provider,
		t.Status, t.Amount, t.Currency, t.UserID, recipientPhone, recipientName,
		t.PayoutMethodID, t.InitiatedAt, t.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "payment_transactions_idempotency_key_key") {
			return fmt.Errorf("Create: %w", domain.ErrDuplicateIdempotencyKey)
		}
		if isUniqueViolation(err, "payment_transactions_order_id_key") {
			return fmt.Errorf("Create: %w", domain.ErrDuplicateOrderID)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentTransaction, error) {
	return r.getBy(ctx, "GetByID", `id = $1`, id)
}

func (r *TransactionRepository) GetByOrderID(ctx context.Context, orderID string) (*domain.PaymentTransaction, error) {
	return r.getBy(ctx, "GetByOrderID", `order_id = $1`, orderID)
}

func (r *TransactionRepository) GetByTransactionNumber(ctx context.Context, number string) (*domain.PaymentTransaction, error) {
	return r.getBy(ctx, "GetByTransactionNumber", `transaction_number = $1`, number)
}

func (r *TransactionRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.PaymentTransaction, error) {
	return r.getBy(ctx, "GetByIdempotencyKey", `idempotency_key = $1`, key)
}

func (r *TransactionRepository) getBy(ctx context.Context, op, where string, arg any) (*domain.PaymentTransaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+txnColumns+` FROM payment_transactions WHERE `+where, arg,
	)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := r.loadRefunds(ctx, t); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return t, nil
}

// MarkInitiated records the successful provider handoff: linkage, QR
// presentation data, and the post-creation status. Guarded so a
// terminal transition that raced ahead (an instant webhook) is never
// regressed; that case returns false, not an error.
func (r *TransactionRepository) MarkInitiated(ctx context.Context, id uuid.UUID, status domain.TransactionStatus, providerOrderID string, qr *domain.QRCode) (bool, error) {
	var qrData, qrImageURL *string
	var qrExpiresAt *time.Time
	if qr != nil {
		qrData = &qr.Data
		qrImageURL = qr.ImageURL
		qrExpiresAt = qr.ExpiresAt
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE payment_transactions
		 SET status = $2, provider_order_id = $3, qr_data = $4, qr_image_url = $5,
		     qr_expires_at = $6, updated_at = now()
		 WHERE id = $1 AND NOT (status = ANY($7))`,
		id, status, providerOrderID, qrData, qrImageURL, qrExpiresAt,
		pq.Array(terminalStatuses),
	)
	if err != nil {
		return false, fmt.Errorf("MarkInitiated: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("MarkInitiated: rows affected: %w", err)
	}
	return rows > 0, nil
}

// TransitionStatus applies a guarded status change. It returns false
// without error when the row is already terminal, which makes
// re-applied transitions idempotent under concurrent writers.
func (r *TransactionRepository) TransitionStatus(ctx context.Context, id uuid.UUID, change domain.StatusChange) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payment_transactions
		 SET status = $2,
		     provider_transaction_id = COALESCE($3, provider_transaction_id),
		     error_message = COALESCE($4, error_message),
		     error_code = COALESCE($5, error_code),
		     completed_at = COALESCE($6, completed_at),
		     failed_at = COALESCE($7, failed_at),
		     updated_at = now()
		 WHERE id = $1 AND NOT (status = ANY($8))`,
		id, change.Status, change.ProviderTransactionID, change.ErrorMessage,
		change.ErrorCode, change.CompletedAt, change.FailedAt,
		pq.Array(terminalStatuses),
	)
	if err != nil {
		return false, fmt.Errorf("TransitionStatus: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("TransitionStatus: rows affected: %w", err)
	}
	return rows > 0, nil
}

// AppendRefund inserts the next refund record inside a transaction,
// re-checking the refund bound against concurrently appended rows.
func (r *TransactionRepository) AppendRefund(ctx context.Context, refund *domain.Refund) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("AppendRefund: begin tx: %w", err)
	}
	defer tx.Rollback()

	var amount, refunded decimal.Decimal
	err = tx.QueryRowContext(ctx,
		`SELECT amount,
		        COALESCE((SELECT SUM(amount) FROM payment_refunds WHERE transaction_id = $1), 0)
		 FROM payment_transactions WHERE id = $1 FOR UPDATE`,
		refund.TransactionID,
	).Scan(&amount, &refunded)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("AppendRefund: %w", domain.ErrNotFound)
		}
		return fmt.Errorf("AppendRefund: %w", err)
	}

	if refunded.Add(refund.Amount).GreaterThan(amount) {
		return fmt.Errorf("AppendRefund: %w", domain.ErrRefundExceedsRemaining)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO payment_refunds (
			id, transaction_id, amount, reason, status, provider_refund_id,
			processed_by, processed_at, position
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8,
			(SELECT COALESCE(MAX(position), 0) + 1 FROM payment_refunds WHERE transaction_id = $2))`,
		refund.ID, refund.TransactionID, refund.Amount, refund.Reason, refund.Status,
		refund.ProviderRefundID, refund.ProcessedBy, refund.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("AppendRefund: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("AppendRefund: commit: %w", err)
	}
	return nil
}

// ListStale returns non-terminal transactions initiated before the
// cutoff, oldest first, for reconciliation.
func (r *TransactionRepository) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]domain.PaymentTransaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+txnColumns+` FROM payment_transactions
		 WHERE NOT (status = ANY($1)) AND initiated_at < $2
		 ORDER BY initiated_at ASC
		 LIMIT $3`,
		pq.Array(terminalStatuses), cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ListStale: %w", err)
	}
	defer rows.Close()

	var out []domain.PaymentTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("ListStale: %w", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListStale: %w", err)
	}
	return out, nil
}

func (r *TransactionRepository) loadRefunds(ctx context.Context, t *domain.PaymentTransaction) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, transaction_id, amount, reason, status, provider_refund_id,
		        processed_by, processed_at
		 FROM payment_refunds WHERE transaction_id = $1 ORDER BY position ASC`,
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("loadRefunds: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ref domain.Refund
		if err := rows.Scan(
			&ref.ID, &ref.TransactionID, &ref.Amount, &ref.Reason, &ref.Status,
			&ref.ProviderRefundID, &ref.ProcessedBy, &ref.ProcessedAt,
		); err != nil {
			return fmt.Errorf("loadRefunds: %w", err)
		}
		t.Refunds = append(t.Refunds, ref)
	}
	return rows.Err()
}

func scanTransaction(s scanner) (*domain.PaymentTransaction, error) {
	var t domain.PaymentTransaction
	var recipientPhone, recipientName *string
	var qrData, qrImageURL *string
	var qrExpiresAt *time.Time
	var payoutMethodID uuid.NullUUID

	err := s.Scan(
		&t.ID, &t.TransactionNumber, &t.OrderID, &t.IdempotencyKey, &t.Type, &t.Provider,
		&t.Status, &t.Amount, &t.Currency, &t.ProviderOrderID, &t.ProviderTransactionID,
		&qrData, &qrImageURL, &qrExpiresAt,
		&t.UserID, &recipientPhone, &recipientName, &payoutMethodID,
		&t.ErrorMessage, &t.ErrorCode, &t.InitiatedAt, &t.CompletedAt, &t.FailedAt, &t.UpdatedAt,
		&t.RefundedAmount,
	)
	if err != nil {
		return nil, err
	}

	if recipientPhone != nil || recipientName != nil {
		t.Recipient = &domain.RecipientInfo{}
		if recipientPhone != nil {
			t.Recipient.Phone = *recipientPhone
		}
		if recipientName != nil {
			t.Recipient.Name = *recipientName
		}
	}
	if qrData != nil {
		t.QRCode = &domain.QRCode{Data: *qrData, ImageURL: qrImageURL, ExpiresAt: qrExpiresAt}
	}
	if payoutMethodID.Valid {
		t.PayoutMethodID = &payoutMethodID.UUID
	}

	return &t, nil
}

func requireRow(res sql.Result, op string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == constraint
}
