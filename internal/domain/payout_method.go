package domain

import (
	"time"

	"github.com/google/uuid"
)

type PayoutMethodStatus string

const (
	PayoutMethodStatusPending  PayoutMethodStatus = "pending"
	PayoutMethodStatusVerified PayoutMethodStatus = "verified"
	PayoutMethodStatusRejected PayoutMethodStatus = "rejected"
)

// PayoutMethod is a stored withdrawal destination. Withdrawals that
// reference one are rejected unless it has been verified.
type PayoutMethod struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Provider  string
	Phone     string
	Name      string
	Status    PayoutMethodStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}
