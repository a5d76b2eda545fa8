package domain

import "time"

type Operation string

const (
	OperationDeposit    Operation = "deposit"
	OperationWithdrawal Operation = "withdrawal"
	OperationRefund     Operation = "refund"
	OperationQRCode     Operation = "qr_code"
)

// ProviderCapability is read-mostly configuration for one payment
// network. Only the health fields change at runtime.
type ProviderCapability struct {
	Name        string
	DisplayName string
	Operations  []Operation
	Currencies  []string

	// MMQR merchant account block fields for this network.
	NetworkID  string
	MerchantID string
	NetworkTag string

	Healthy       bool
	LastCheckedAt *time.Time
}

func (c *ProviderCapability) Supports(op Operation) bool {
	for _, o := range c.Operations {
		if o == op {
			return true
		}
	}
	return false
}

type ProviderHealth struct {
	Provider  string
	Healthy   bool
	LatencyMS int64
	Error     string
	CheckedAt time.Time
}
