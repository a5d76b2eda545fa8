package payments

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myanjobs/payments/internal/config"
	"github.com/myanjobs/payments/internal/domain"
	"github.com/myanjobs/payments/internal/logging"
	"github.com/myanjobs/payments/internal/mmqr"
	"github.com/myanjobs/payments/internal/provider"
)

// fakeStore is an in-memory transactionStore with the same semantics
// as the Postgres repository: unique idempotency keys, guarded
// terminal transitions, and the refund bound re-checked on append.
type fakeStore struct {
	mu      sync.Mutex
	txns    map[uuid.UUID]*domain.PaymentTransaction
	byOrder map[string]uuid.UUID
	byKey   map[string]uuid.UUID

	// beforeCreate runs once under the lock ahead of the next insert,
	// letting a test interleave a rival writer
	beforeCreate func(f *fakeStore) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		txns:    map[uuid.UUID]*domain.PaymentTransaction{},
		byOrder: map[string]uuid.UUID{},
		byKey:   map[string]uuid.UUID{},
	}
}

func (f *fakeStore) Create(_ context.Context, t *domain.PaymentTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.beforeCreate != nil {
		hook := f.beforeCreate
		f.beforeCreate = nil
		if err := hook(f); err != nil {
			return err
		}
	}

	if t.IdempotencyKey != nil {
		if _, exists := f.byKey[*t.IdempotencyKey]; exists {
			return domain.ErrDuplicateIdempotencyKey
		}
	}
	if _, exists := f.byOrder[t.OrderID]; exists {
		return domain.ErrDuplicateOrderID
	}

	cp := *t
	f.txns[t.ID] = &cp
	f.byOrder[t.OrderID] = t.ID
	if t.IdempotencyKey != nil {
		f.byKey[*t.IdempotencyKey] = t.ID
	}
	return nil
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*domain.PaymentTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.get(id)
}

func (f *fakeStore) GetByOrderID(_ context.Context, orderID string) (*domain.PaymentTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id, ok := f.byOrder[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return f.get(id)
}

func (f *fakeStore) GetByIdempotencyKey(_ context.Context, key string) (*domain.PaymentTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id, ok := f.byKey[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return f.get(id)
}

func (f *fakeStore) MarkInitiated(_ context.Context, id uuid.UUID, status domain.TransactionStatus, providerOrderID string, qr *domain.QRCode) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.txns[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if t.Status.Terminal() {
		return false, nil
	}
	t.Status = status
	if providerOrderID != "" {
		t.ProviderOrderID = &providerOrderID
	}
	t.QRCode = qr
	t.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (f *fakeStore) TransitionStatus(_ context.Context, id uuid.UUID, change domain.StatusChange) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.txns[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if t.Status.Terminal() {
		return false, nil
	}
	t.Status = change.Status
	if change.ProviderOrderID != nil {
		t.ProviderOrderID = change.ProviderOrderID
	}
	if change.ProviderTransactionID != nil {
		t.ProviderTransactionID = change.ProviderTransactionID
	}
	if change.ErrorMessage != nil {
		t.ErrorMessage = change.ErrorMessage
	}
	if change.ErrorCode != nil {
		t.ErrorCode = change.ErrorCode
	}
	if change.CompletedAt != nil {
		t.CompletedAt = change.CompletedAt
	}
	if change.FailedAt != nil {
		t.FailedAt = change.FailedAt
	}
	t.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (f *fakeStore) AppendRefund(_ context.Context, refund *domain.Refund) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.txns[refund.TransactionID]
	if !ok {
		return domain.ErrNotFound
	}
	refunded := decimal.Zero
	for _, r := range t.Refunds {
		refunded = refunded.Add(r.Amount)
	}
	if refunded.Add(refund.Amount).GreaterThan(t.Amount) {
		return domain.ErrRefundExceedsRemaining
	}
	t.Refunds = append(t.Refunds, *refund)
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeStore) ListStale(_ context.Context, cutoff time.Time, limit int) ([]domain.PaymentTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []domain.PaymentTransaction
	for _, t := range f.txns {
		if t.Status.Terminal() || !t.UpdatedAt.Before(cutoff) {
			continue
		}
		cp, _ := f.get(t.ID)
		out = append(out, *cp)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) Stats(_ context.Context, _, _ *time.Time) (*domain.Statistics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stats := &domain.Statistics{
		ByStatus:   map[domain.TransactionStatus]int64{},
		ByProvider: map[string]int64{},
	}
	for _, t := range f.txns {
		stats.TotalTransactions++
		stats.ByStatus[t.Status]++
		stats.ByProvider[t.Provider]++
	}
	return stats, nil
}

// get clones the record and recomputes the derived refunded amount.
// Callers hold f.mu.
func (f *fakeStore) get(id uuid.UUID) (*domain.PaymentTransaction, error) {
	t, ok := f.txns[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	cp.Refunds = append([]domain.Refund(nil), t.Refunds...)
	cp.RefundedAmount = decimal.Zero
	for _, r := range t.Refunds {
		cp.RefundedAmount = cp.RefundedAmount.Add(r.Amount)
	}
	return &cp, nil
}

type fakePayoutStore struct {
	methods map[uuid.UUID]*domain.PayoutMethod
}

func (f *fakePayoutStore) GetByID(_ context.Context, id uuid.UUID) (*domain.PayoutMethod, error) {
	m, ok := f.methods[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return m, nil
}

// fakeAdapter counts calls and answers from canned fields. Per-method
// err fields force failures.
type fakeAdapter struct {
	name string

	depositCalls    int
	withdrawalCalls int
	statusCalls     int
	cancelCalls     int
	healthCalls     int

	depositErr error
	statusErr  error
	cancelErr  error
	healthErr  error

	status        domain.TransactionStatus
	webhookEvent  *provider.WebhookEvent
	goodSignature string
}

func (a *fakeAdapter) Name() string { return a.name }

func (a *fakeAdapter) CreateDeposit(_ context.Context, req provider.DepositRequest) (*provider.DepositResult, error) {
	a.depositCalls++
	if a.depositErr != nil {
		return nil, a.depositErr
	}
	return &provider.DepositResult{
		ProviderOrderID: "prov-" + req.OrderID,
		PaymentURL:      "https://pay.example/" + req.OrderID,
		QRData:          "qr-" + req.OrderID,
	}, nil
}

func (a *fakeAdapter) CreateWithdrawal(_ context.Context, req provider.WithdrawalRequest) (*provider.WithdrawalResult, error) {
	a.withdrawalCalls++
	return &provider.WithdrawalResult{ProviderOrderID: "prov-" + req.OrderID}, nil
}

func (a *fakeAdapter) CheckStatus(_ context.Context, _ provider.StatusRequest) (*provider.StatusResult, error) {
	a.statusCalls++
	if a.statusErr != nil {
		return nil, a.statusErr
	}
	status := a.status
	if status == "" {
		status = domain.TransactionStatusProcessing
	}
	res := &provider.StatusResult{Status: status, ProviderTransactionID: "ptx-1"}
	if status == domain.TransactionStatusFailed {
		res.FailureReason = "insufficient funds"
		res.FailureCode = "E402"
	}
	return res, nil
}

func (a *fakeAdapter) Cancel(_ context.Context, _ provider.CancelRequest) (*provider.CancelResult, error) {
	a.cancelCalls++
	if a.cancelErr != nil {
		return nil, a.cancelErr
	}
	return &provider.CancelResult{ProviderRefundID: "ref-1", Status: domain.RefundStatusCompleted}, nil
}

func (a *fakeAdapter) VerifyWebhook(_ []byte, signature string) error {
	if signature != a.goodSignature {
		return domain.ErrInvalidSignature
	}
	return nil
}

func (a *fakeAdapter) ParseWebhook(_ []byte) (*provider.WebhookEvent, error) {
	if a.webhookEvent == nil {
		return nil, errors.New("unparseable payload")
	}
	return a.webhookEvent, nil
}

func (a *fakeAdapter) GenerateQRCode(_ context.Context, req provider.QRRequest) (*provider.QRResult, error) {
	return &provider.QRResult{Data: "native-qr-" + req.OrderID}, nil
}

func (a *fakeAdapter) HealthCheck(_ context.Context) error {
	a.healthCalls++
	return a.healthErr
}

func testConfig() *config.Config {
	return &config.Config{
		MerchantName:         "MyanJobs",
		MerchantCity:         "Yangon",
		MerchantCountryCode:  "MM",
		MerchantCategoryCode: "7361",
		DefaultCurrency:      "MMK",
		ProviderTimeoutS:     5,
		QRExpiryMinutes:      15,
		ReconcileMaxAgeS:     300,
		ReconcileBatchSize:   100,
	}
}

func allOps() []domain.Operation {
	return []domain.Operation{
		domain.OperationDeposit,
		domain.OperationWithdrawal,
		domain.OperationRefund,
		domain.OperationQRCode,
	}
}

func newTestService(t *testing.T, adapters ...*fakeAdapter) (*Service, *fakeStore, *fakePayoutStore) {
	t.Helper()

	store := newFakeStore()
	payouts := &fakePayoutStore{methods: map[uuid.UUID]*domain.PayoutMethod{}}
	registry := provider.NewRegistry()
	for _, a := range adapters {
		require.NoError(t, registry.Register(a, domain.ProviderCapability{
			DisplayName: strings.ToUpper(a.name),
			Operations:  allOps(),
			Currencies:  []string{"MMK"},
			NetworkID:   "mm.example." + a.name,
			MerchantID:  "M-" + a.name,
			NetworkTag:  "01",
		}))
	}
	return NewService(store, payouts, registry, testConfig()), store, payouts
}

func testCtx() context.Context {
	return logging.WithLogger(context.Background(), logging.Discard())
}

func TestCreateDeposit(t *testing.T) {
	ctx := testCtx()
	userID := uuid.New()

	t.Run("happy path", func(t *testing.T) {
		adapter := &fakeAdapter{name: "wavepay"}
		svc, _, _ := newTestService(t, adapter)

		res, err := svc.CreateDeposit(ctx, DepositParams{
			UserID:   userID,
			Provider: "wavepay",
			Amount:   decimal.NewFromInt(15000),
			Currency: "MMK",
		})
		require.NoError(t, err)
		require.NotNil(t, res.Transaction)

		txn := res.Transaction
		assert.False(t, res.IsDuplicate)
		assert.Equal(t, domain.TransactionTypeDeposit, txn.Type)
		assert.Equal(t, domain.TransactionStatusInitiated, txn.Status)
		assert.Equal(t, "wavepay", txn.Provider)
		require.NotNil(t, txn.ProviderOrderID)
		assert.Equal(t, "prov-"+txn.OrderID, *txn.ProviderOrderID)
		require.NotNil(t, txn.QRCode)
		assert.Equal(t, "qr-"+txn.OrderID, txn.QRCode.Data)
		assert.True(t, strings.HasPrefix(txn.OrderID, "DEP-"))
		assert.True(t, strings.HasPrefix(txn.TransactionNumber, "TXN-"))
		assert.Equal(t, 1, adapter.depositCalls)
	})

	t.Run("idempotency key replays without provider call", func(t *testing.T) {
		adapter := &fakeAdapter{name: "wavepay"}
		svc, _, _ := newTestService(t, adapter)

		params := DepositParams{
			UserID:         userID,
			Provider:       "wavepay",
			Amount:         decimal.NewFromInt(5000),
			Currency:       "MMK",
			IdempotencyKey: "idem-1",
		}
		first, err := svc.CreateDeposit(ctx, params)
		require.NoError(t, err)

		second, err := svc.CreateDeposit(ctx, params)
		require.NoError(t, err)

		assert.True(t, second.IsDuplicate)
		assert.Equal(t, first.Transaction.ID, second.Transaction.ID)
		assert.Equal(t, 1, adapter.depositCalls)
	})

	t.Run("losing the insert race replays the rival transaction", func(t *testing.T) {
		adapter := &fakeAdapter{name: "wavepay"}
		svc, store, _ := newTestService(t, adapter)

		// a concurrent request with the same key commits between our
		// key lookup and our insert
		key := "idem-race"
		rival := &domain.PaymentTransaction{
			ID:                uuid.New(),
			TransactionNumber: "TXN-20260831-aaaa1111",
			OrderID:           "DEP-rival",
			IdempotencyKey:    &key,
			Type:              domain.TransactionTypeDeposit,
			Provider:          "wavepay",
			Status:            domain.TransactionStatusInitiated,
			Amount:            decimal.NewFromInt(5000),
			Currency:          "MMK",
			UserID:            userID,
		}
		store.beforeCreate = func(f *fakeStore) error {
			f.txns[rival.ID] = rival
			f.byOrder[rival.OrderID] = rival.ID
			f.byKey[key] = rival.ID
			return domain.ErrDuplicateIdempotencyKey
		}

		res, err := svc.CreateDeposit(ctx, DepositParams{
			UserID:         userID,
			Provider:       "wavepay",
			Amount:         decimal.NewFromInt(5000),
			Currency:       "MMK",
			IdempotencyKey: key,
		})
		require.NoError(t, err)

		assert.True(t, res.IsDuplicate)
		assert.Equal(t, rival.ID, res.Transaction.ID)
		assert.Equal(t, 0, adapter.depositCalls, "race loser must not reach the provider")
	})

	t.Run("validation rejects before any provider call", func(t *testing.T) {
		adapter := &fakeAdapter{name: "wavepay"}
		svc, _, _ := newTestService(t, adapter)

		cases := []struct {
			name    string
			params  DepositParams
			wantErr error
		}{
			{
				name:    "zero amount",
				params:  DepositParams{UserID: userID, Provider: "wavepay", Amount: decimal.Zero, Currency: "MMK"},
				wantErr: domain.ErrInvalidAmount,
			},
			{
				name:    "negative amount",
				params:  DepositParams{UserID: userID, Provider: "wavepay", Amount: decimal.NewFromInt(-1), Currency: "MMK"},
				wantErr: domain.ErrInvalidAmount,
			},
			{
				name:    "unknown currency",
				params:  DepositParams{UserID: userID, Provider: "wavepay", Amount: decimal.NewFromInt(100), Currency: "XXX"},
				wantErr: domain.ErrInvalidCurrency,
			},
			{
				name:    "unknown provider",
				params:  DepositParams{UserID: userID, Provider: "ghost", Amount: decimal.NewFromInt(100), Currency: "MMK"},
				wantErr: domain.ErrProviderNotConfigured,
			},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := svc.CreateDeposit(ctx, tc.params)
				require.ErrorIs(t, err, tc.wantErr)
			})
		}
		assert.Equal(t, 0, adapter.depositCalls)
	})

	t.Run("provider failure marks transaction failed", func(t *testing.T) {
		adapter := &fakeAdapter{name: "wavepay", depositErr: errors.New("gateway timeout")}
		svc, store, _ := newTestService(t, adapter)

		_, err := svc.CreateDeposit(ctx, DepositParams{
			UserID:         userID,
			Provider:       "wavepay",
			Amount:         decimal.NewFromInt(1000),
			Currency:       "MMK",
			IdempotencyKey: "idem-fail",
		})
		require.ErrorIs(t, err, domain.ErrProviderOperation)

		txn, err := store.GetByIdempotencyKey(ctx, "idem-fail")
		require.NoError(t, err)
		assert.Equal(t, domain.TransactionStatusFailed, txn.Status)
		require.NotNil(t, txn.ErrorMessage)
		assert.Contains(t, *txn.ErrorMessage, "gateway timeout")
	})
}

func TestCreateWithdrawal(t *testing.T) {
	ctx := testCtx()
	userID := uuid.New()

	t.Run("inline recipient moves to processing", func(t *testing.T) {
		adapter := &fakeAdapter{name: "kbzpay"}
		svc, _, _ := newTestService(t, adapter)

		res, err := svc.CreateWithdrawal(ctx, WithdrawalParams{
			UserID:    userID,
			Provider:  "kbzpay",
			Amount:    decimal.NewFromInt(20000),
			Currency:  "MMK",
			Recipient: &domain.RecipientInfo{Phone: "+959123456789", Name: "Aung Aung"},
		})
		require.NoError(t, err)

		txn := res.Transaction
		assert.Equal(t, domain.TransactionTypeWithdrawal, txn.Type)
		assert.Equal(t, domain.TransactionStatusProcessing, txn.Status)
		assert.True(t, strings.HasPrefix(txn.OrderID, "WDR-"))
		assert.Equal(t, 1, adapter.withdrawalCalls)
	})

	t.Run("missing recipient", func(t *testing.T) {
		adapter := &fakeAdapter{name: "kbzpay"}
		svc, _, _ := newTestService(t, adapter)

		_, err := svc.CreateWithdrawal(ctx, WithdrawalParams{
			UserID:   userID,
			Provider: "kbzpay",
			Amount:   decimal.NewFromInt(1000),
			Currency: "MMK",
		})
		require.ErrorIs(t, err, domain.ErrInvalidRequest)
		assert.Equal(t, 0, adapter.withdrawalCalls)
	})

	t.Run("stored payout method must be verified", func(t *testing.T) {
		adapter := &fakeAdapter{name: "kbzpay"}
		svc, _, payouts := newTestService(t, adapter)

		pending := uuid.New()
		verified := uuid.New()
		payouts.methods[pending] = &domain.PayoutMethod{
			ID: pending, Status: domain.PayoutMethodStatusPending, Phone: "+959111", Name: "Su Su",
		}
		payouts.methods[verified] = &domain.PayoutMethod{
			ID: verified, Status: domain.PayoutMethodStatusVerified, Phone: "+959222", Name: "Su Su",
		}

		_, err := svc.CreateWithdrawal(ctx, WithdrawalParams{
			UserID:         userID,
			Provider:       "kbzpay",
			Amount:         decimal.NewFromInt(1000),
			Currency:       "MMK",
			PayoutMethodID: &pending,
		})
		require.ErrorIs(t, err, domain.ErrPayoutMethodNotVerified)
		assert.Equal(t, 0, adapter.withdrawalCalls)

		res, err := svc.CreateWithdrawal(ctx, WithdrawalParams{
			UserID:         userID,
			Provider:       "kbzpay",
			Amount:         decimal.NewFromInt(1000),
			Currency:       "MMK",
			PayoutMethodID: &verified,
		})
		require.NoError(t, err)
		require.NotNil(t, res.Transaction.Recipient)
		assert.Equal(t, "+959222", res.Transaction.Recipient.Phone)
	})
}

// seedCompletedDeposit plants a completed deposit directly in the
// store, bypassing the provider round trip.
func seedCompletedDeposit(t *testing.T, store *fakeStore, amount int64) *domain.PaymentTransaction {
	t.Helper()

	now := time.Now().UTC()
	txn := &domain.PaymentTransaction{
		ID:                uuid.New(),
		TransactionNumber: newTransactionNumber(now),
		OrderID:           newOrderID(domain.TransactionTypeDeposit),
		Type:              domain.TransactionTypeDeposit,
		Provider:          "wavepay",
		Status:            domain.TransactionStatusCompleted,
		Amount:            decimal.NewFromInt(amount),
		Currency:          "MMK",
		UserID:            uuid.New(),
		InitiatedAt:       now,
		CompletedAt:       &now,
		UpdatedAt:         now,
	}
	require.NoError(t, store.Create(context.Background(), txn))
	return txn
}

func TestProcessRefund(t *testing.T) {
	ctx := testCtx()

	t.Run("partial refunds accumulate up to the original amount", func(t *testing.T) {
		adapter := &fakeAdapter{name: "wavepay"}
		svc, store, _ := newTestService(t, adapter)
		txn := seedCompletedDeposit(t, store, 10000)

		_, err := svc.ProcessRefund(ctx, RefundParams{
			TransactionID: txn.ID, Amount: decimal.NewFromInt(7000), Reason: "partial", ProcessedBy: "admin@myanjobs.com",
		})
		require.NoError(t, err)

		_, err = svc.ProcessRefund(ctx, RefundParams{
			TransactionID: txn.ID, Amount: decimal.NewFromInt(4000), Reason: "too much", ProcessedBy: "admin@myanjobs.com",
		})
		require.ErrorIs(t, err, domain.ErrRefundExceedsRemaining)

		refund, err := svc.ProcessRefund(ctx, RefundParams{
			TransactionID: txn.ID, Amount: decimal.NewFromInt(3000), Reason: "rest", ProcessedBy: "admin@myanjobs.com",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.RefundStatusCompleted, refund.Status)

		after, err := store.GetByID(ctx, txn.ID)
		require.NoError(t, err)
		assert.True(t, after.RefundedAmount.Equal(decimal.NewFromInt(10000)),
			"refunded %s", after.RefundedAmount)
		assert.True(t, after.FullyRefunded())
		assert.Len(t, after.Refunds, 2)
		assert.Equal(t, 2, adapter.cancelCalls)
	})

	t.Run("only completed deposits are refundable", func(t *testing.T) {
		adapter := &fakeAdapter{name: "wavepay"}
		svc, store, _ := newTestService(t, adapter)

		now := time.Now().UTC()
		pending := &domain.PaymentTransaction{
			ID:                uuid.New(),
			TransactionNumber: newTransactionNumber(now),
			OrderID:           newOrderID(domain.TransactionTypeDeposit),
			Type:              domain.TransactionTypeDeposit,
			Provider:          "wavepay",
			Status:            domain.TransactionStatusProcessing,
			Amount:            decimal.NewFromInt(5000),
			Currency:          "MMK",
			UserID:            uuid.New(),
			InitiatedAt:       now,
			UpdatedAt:         now,
		}
		require.NoError(t, store.Create(ctx, pending))

		_, err := svc.ProcessRefund(ctx, RefundParams{
			TransactionID: pending.ID, Amount: decimal.NewFromInt(100), ProcessedBy: "admin",
		})
		require.ErrorIs(t, err, domain.ErrRefundNotAllowed)
		assert.Equal(t, 0, adapter.cancelCalls)
	})

	t.Run("provider failure leaves no refund record", func(t *testing.T) {
		adapter := &fakeAdapter{name: "wavepay", cancelErr: errors.New("refund rejected")}
		svc, store, _ := newTestService(t, adapter)
		txn := seedCompletedDeposit(t, store, 5000)

		_, err := svc.ProcessRefund(ctx, RefundParams{
			TransactionID: txn.ID, Amount: decimal.NewFromInt(1000), ProcessedBy: "admin",
		})
		require.ErrorIs(t, err, domain.ErrProviderOperation)

		after, err := store.GetByID(ctx, txn.ID)
		require.NoError(t, err)
		assert.Empty(t, after.Refunds)
	})
}

func TestCheckStatus(t *testing.T) {
	ctx := testCtx()

	t.Run("terminal transaction skips the provider", func(t *testing.T) {
		adapter := &fakeAdapter{name: "wavepay"}
		svc, store, _ := newTestService(t, adapter)
		txn := seedCompletedDeposit(t, store, 1000)

		got, err := svc.CheckStatus(ctx, txn.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TransactionStatusCompleted, got.Status)
		assert.Equal(t, 0, adapter.statusCalls)
	})

	t.Run("provider transition is persisted", func(t *testing.T) {
		adapter := &fakeAdapter{name: "wavepay", status: domain.TransactionStatusCompleted}
		svc, store, _ := newTestService(t, adapter)

		res, err := svc.CreateDeposit(ctx, DepositParams{
			UserID: uuid.New(), Provider: "wavepay", Amount: decimal.NewFromInt(1000), Currency: "MMK",
		})
		require.NoError(t, err)

		got, err := svc.CheckStatus(ctx, res.Transaction.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TransactionStatusCompleted, got.Status)
		assert.NotNil(t, got.CompletedAt)
		require.NotNil(t, got.ProviderTransactionID)
		assert.Equal(t, "ptx-1", *got.ProviderTransactionID)

		stored, err := store.GetByID(ctx, res.Transaction.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TransactionStatusCompleted, stored.Status)
	})

	t.Run("failed status records the provider reason", func(t *testing.T) {
		adapter := &fakeAdapter{name: "wavepay", status: domain.TransactionStatusFailed}
		svc, _, _ := newTestService(t, adapter)

		res, err := svc.CreateDeposit(ctx, DepositParams{
			UserID: uuid.New(), Provider: "wavepay", Amount: decimal.NewFromInt(1000), Currency: "MMK",
		})
		require.NoError(t, err)

		got, err := svc.CheckStatus(ctx, res.Transaction.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TransactionStatusFailed, got.Status)
		require.NotNil(t, got.ErrorMessage)
		assert.Equal(t, "insufficient funds", *got.ErrorMessage)
		require.NotNil(t, got.ErrorCode)
		assert.Equal(t, "E402", *got.ErrorCode)
		assert.NotNil(t, got.FailedAt)
	})
}

func TestHandleWebhook(t *testing.T) {
	ctx := testCtx()

	newDeposit := func(t *testing.T, svc *Service) *domain.PaymentTransaction {
		t.Helper()
		res, err := svc.CreateDeposit(ctx, DepositParams{
			UserID: uuid.New(), Provider: "wavepay", Amount: decimal.NewFromInt(2500), Currency: "MMK",
		})
		require.NoError(t, err)
		return res.Transaction
	}

	t.Run("valid webhook applies the transition", func(t *testing.T) {
		adapter := &fakeAdapter{name: "wavepay", goodSignature: "sig-ok"}
		svc, store, _ := newTestService(t, adapter)
		txn := newDeposit(t, svc)

		adapter.webhookEvent = &provider.WebhookEvent{
			OrderID:               txn.OrderID,
			ProviderTransactionID: "ptx-9",
			Status:                domain.TransactionStatusCompleted,
		}
		res, err := svc.HandleWebhook(ctx, "wavepay", []byte(`{}`), map[string]string{"X-Signature": "sig-ok"})
		require.NoError(t, err)
		assert.True(t, res.Found)
		assert.True(t, res.Applied)

		after, err := store.GetByID(ctx, txn.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TransactionStatusCompleted, after.Status)
	})

	t.Run("bad signature mutates nothing", func(t *testing.T) {
		adapter := &fakeAdapter{name: "wavepay", goodSignature: "sig-ok"}
		svc, store, _ := newTestService(t, adapter)
		txn := newDeposit(t, svc)

		adapter.webhookEvent = &provider.WebhookEvent{
			OrderID: txn.OrderID, Status: domain.TransactionStatusCompleted,
		}
		_, err := svc.HandleWebhook(ctx, "wavepay", []byte(`{}`), map[string]string{"X-Signature": "forged"})
		require.ErrorIs(t, err, domain.ErrInvalidSignature)

		after, err := store.GetByID(ctx, txn.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TransactionStatusInitiated, after.Status)
	})

	t.Run("missing signature rejected", func(t *testing.T) {
		adapter := &fakeAdapter{name: "wavepay", goodSignature: "sig-ok"}
		svc, _, _ := newTestService(t, adapter)

		_, err := svc.HandleWebhook(ctx, "wavepay", []byte(`{}`), map[string]string{})
		require.ErrorIs(t, err, domain.ErrInvalidSignature)
	})

	t.Run("unknown order acknowledged without error", func(t *testing.T) {
		adapter := &fakeAdapter{name: "wavepay", goodSignature: "sig-ok"}
		svc, _, _ := newTestService(t, adapter)

		adapter.webhookEvent = &provider.WebhookEvent{
			OrderID: "DEP-never-created", Status: domain.TransactionStatusCompleted,
		}
		res, err := svc.HandleWebhook(ctx, "wavepay", []byte(`{}`), map[string]string{"X-Signature": "sig-ok"})
		require.NoError(t, err)
		assert.False(t, res.Found)
		assert.False(t, res.Applied)
	})

	t.Run("terminal transaction is never regressed", func(t *testing.T) {
		adapter := &fakeAdapter{name: "wavepay", goodSignature: "sig-ok"}
		svc, store, _ := newTestService(t, adapter)
		txn := seedCompletedDeposit(t, store, 1000)

		adapter.webhookEvent = &provider.WebhookEvent{
			OrderID: txn.OrderID, Status: domain.TransactionStatusFailed,
		}
		res, err := svc.HandleWebhook(ctx, "wavepay", []byte(`{}`), map[string]string{"X-Signature": "sig-ok"})
		require.NoError(t, err)
		assert.True(t, res.Found)
		assert.False(t, res.Applied)

		after, err := store.GetByID(ctx, txn.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TransactionStatusCompleted, after.Status)
	})
}

func TestReconcileTransactions(t *testing.T) {
	ctx := testCtx()

	seedStale := func(t *testing.T, store *fakeStore, provider string) *domain.PaymentTransaction {
		t.Helper()
		old := time.Now().UTC().Add(-time.Hour)
		txn := &domain.PaymentTransaction{
			ID:                uuid.New(),
			TransactionNumber: newTransactionNumber(old),
			OrderID:           newOrderID(domain.TransactionTypeDeposit),
			Type:              domain.TransactionTypeDeposit,
			Provider:          provider,
			Status:            domain.TransactionStatusInitiated,
			Amount:            decimal.NewFromInt(1000),
			Currency:          "MMK",
			UserID:            uuid.New(),
			InitiatedAt:       old,
			UpdatedAt:         old,
		}
		require.NoError(t, store.Create(ctx, txn))
		return txn
	}

	t.Run("one failing item does not abort the sweep", func(t *testing.T) {
		good := &fakeAdapter{name: "wavepay", status: domain.TransactionStatusCompleted}
		bad := &fakeAdapter{name: "kbzpay", statusErr: errors.New("unreachable")}
		svc, store, _ := newTestService(t, good, bad)

		seedStale(t, store, "wavepay")
		seedStale(t, store, "wavepay")
		broken := seedStale(t, store, "kbzpay")

		res, err := svc.ReconcileTransactions(ctx, ReconcileOptions{})
		require.NoError(t, err)

		assert.Equal(t, 3, res.Checked)
		assert.Equal(t, 2, res.Updated)
		assert.Equal(t, 1, res.Failed)
		require.Len(t, res.Errors, 1)
		assert.Equal(t, broken.ID, res.Errors[0].TransactionID)
		assert.Contains(t, res.Errors[0].Err, "unreachable")
	})

	t.Run("fresh and terminal transactions are skipped", func(t *testing.T) {
		adapter := &fakeAdapter{name: "wavepay", status: domain.TransactionStatusCompleted}
		svc, store, _ := newTestService(t, adapter)

		seedCompletedDeposit(t, store, 1000)
		_, err := svc.CreateDeposit(ctx, DepositParams{
			UserID: uuid.New(), Provider: "wavepay", Amount: decimal.NewFromInt(500), Currency: "MMK",
		})
		require.NoError(t, err)

		res, err := svc.ReconcileTransactions(ctx, ReconcileOptions{})
		require.NoError(t, err)
		assert.Equal(t, 0, res.Checked)
		assert.Equal(t, 0, adapter.statusCalls)
	})
}

func TestGetProviderHealth(t *testing.T) {
	ctx := testCtx()

	up := &fakeAdapter{name: "wavepay"}
	down := &fakeAdapter{name: "kbzpay", healthErr: errors.New("connection refused")}
	svc, _, _ := newTestService(t, up, down)

	reports := svc.GetProviderHealth(ctx)
	require.Len(t, reports, 2)

	byName := map[string]domain.ProviderHealth{}
	for _, r := range reports {
		byName[r.Provider] = r
	}
	assert.True(t, byName["wavepay"].Healthy)
	assert.False(t, byName["kbzpay"].Healthy)
	assert.Contains(t, byName["kbzpay"].Error, "connection refused")

	for _, cap := range svc.Capabilities() {
		switch cap.Name {
		case "wavepay":
			assert.True(t, cap.Healthy)
		case "kbzpay":
			assert.False(t, cap.Healthy)
		}
		assert.NotNil(t, cap.LastCheckedAt)
	}
}

func TestGenerateQRCode(t *testing.T) {
	ctx := testCtx()

	t.Run("unified payload carries every network", func(t *testing.T) {
		a := &fakeAdapter{name: "wavepay"}
		b := &fakeAdapter{name: "kbzpay"}
		svc, _, _ := newTestService(t, a, b)

		res, err := svc.GenerateQRCode(ctx, QRParams{
			Amount:  decimal.NewFromInt(1500),
			OrderID: "ORD-777",
			Purpose: "Job posting fee",
		})
		require.NoError(t, err)
		require.NotEmpty(t, res.Data)
		assert.True(t, strings.HasPrefix(res.ImageDataURL, "data:image/png;base64,"))
		assert.False(t, res.ExpiresAt.IsZero())

		payload, err := mmqr.Parse(res.Data)
		require.NoError(t, err)
		require.Len(t, payload.Accounts, 2)
		assert.Equal(t, "mm.example.kbzpay", payload.Accounts[0].NetworkID)
		assert.Equal(t, "mm.example.wavepay", payload.Accounts[1].NetworkID)
		assert.Equal(t, "1500.00", payload.Amount)
		assert.Equal(t, "ORD-777", payload.OrderID)
		assert.True(t, payload.Dynamic())
	})

	t.Run("provider-native QR", func(t *testing.T) {
		a := &fakeAdapter{name: "wavepay"}
		svc, _, _ := newTestService(t, a)

		res, err := svc.GenerateQRCode(ctx, QRParams{
			Provider: "wavepay",
			Amount:   decimal.NewFromInt(900),
			OrderID:  "ORD-1",
		})
		require.NoError(t, err)
		assert.Equal(t, "native-qr-ORD-1", res.Data)
		assert.NotEmpty(t, res.ImageDataURL)
	})

	t.Run("no QR-capable providers", func(t *testing.T) {
		svc, _, _ := newTestService(t)

		_, err := svc.GenerateQRCode(ctx, QRParams{OrderID: "ORD-2"})
		require.ErrorIs(t, err, domain.ErrUnsupportedOperation)
	})

	t.Run("negative amount rejected", func(t *testing.T) {
		a := &fakeAdapter{name: "wavepay"}
		svc, _, _ := newTestService(t, a)

		_, err := svc.GenerateQRCode(ctx, QRParams{Amount: decimal.NewFromInt(-5)})
		require.ErrorIs(t, err, domain.ErrInvalidAmount)
	})
}

func TestGetStatistics(t *testing.T) {
	ctx := testCtx()
	adapter := &fakeAdapter{name: "wavepay"}
	svc, store, _ := newTestService(t, adapter)

	seedCompletedDeposit(t, store, 1000)
	seedCompletedDeposit(t, store, 2000)

	stats, err := svc.GetStatistics(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalTransactions)
	assert.Equal(t, int64(2), stats.ByStatus[domain.TransactionStatusCompleted])
	assert.Equal(t, int64(2), stats.ByProvider["wavepay"])
}

func TestGetTransaction(t *testing.T) {
	ctx := testCtx()
	adapter := &fakeAdapter{name: "wavepay"}
	svc, store, _ := newTestService(t, adapter)
	txn := seedCompletedDeposit(t, store, 1000)

	got, err := svc.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, txn.ID, got.ID)

	_, err = svc.GetTransaction(ctx, uuid.New())
	require.ErrorIs(t, err, domain.ErrNotFound)
}
