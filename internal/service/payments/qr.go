package payments

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/myanjobs/payments/internal/domain"
	"github.com/myanjobs/payments/internal/logging"
	"github.com/myanjobs/payments/internal/mmqr"
	"github.com/myanjobs/payments/internal/provider"
)

type QRParams struct {
	// Provider selects a single network's native QR. Empty means the
	// unified payload carrying every QR-capable network's account
	// block.
	Provider string
	Amount   decimal.Decimal
	Currency string
	OrderID  string
	Purpose  string
}

type QRCodeResult struct {
	Data string
	// ImageDataURL is a base64 PNG data URL rendered from Data, empty
	// when the provider supplied its own hosted image instead.
	ImageDataURL string
	ImageURL     string
	ExpiresAt    time.Time
}

// GenerateQRCode produces a scannable payment payload, either through
// one provider's native API or as a unified merchant-presented payload
// assembled locally.
func (s *Service) GenerateQRCode(ctx context.Context, params QRParams) (*QRCodeResult, error) {
	log := logging.FromContext(ctx)

	currency := params.Currency
	if currency == "" {
		currency = s.config.DefaultCurrency
	}
	if params.Amount.IsNegative() {
		return nil, fmt.Errorf("GenerateQRCode: %w", domain.ErrInvalidAmount)
	}

	expiresAt := time.Now().UTC().Add(s.config.QRExpiry())

	if params.Provider != "" {
		return s.providerQR(ctx, params, currency, expiresAt)
	}

	accounts := s.qrAccounts(params.OrderID)
	if len(accounts) == 0 {
		return nil, fmt.Errorf("GenerateQRCode: no QR-capable provider registered: %w", domain.ErrUnsupportedOperation)
	}

	data, err := mmqr.Build(mmqr.BuildParams{
		Accounts:             accounts,
		MerchantName:         s.config.MerchantName,
		MerchantCity:         s.config.MerchantCity,
		CountryCode:          s.config.MerchantCountryCode,
		MerchantCategoryCode: s.config.MerchantCategoryCode,
		Currency:             currency,
		Amount:               params.Amount,
		OrderID:              params.OrderID,
		Purpose:              params.Purpose,
	})
	if err != nil {
		return nil, fmt.Errorf("GenerateQRCode: %w", err)
	}

	image, err := renderPNG(data)
	if err != nil {
		return nil, fmt.Errorf("GenerateQRCode: %w", err)
	}

	log.Info("generated unified QR payload",
		"order_id", params.OrderID,
		"networks", len(accounts),
		"dynamic", params.Amount.IsPositive(),
	)
	return &QRCodeResult{
		Data:         data,
		ImageDataURL: image,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) providerQR(ctx context.Context, params QRParams, currency string, expiresAt time.Time) (*QRCodeResult, error) {
	adapter, err := s.providers.Get(params.Provider)
	if err != nil {
		return nil, fmt.Errorf("GenerateQRCode: %w", err)
	}
	if !s.providers.Supports(params.Provider, domain.OperationQRCode) {
		return nil, fmt.Errorf("GenerateQRCode: provider %q: %w", params.Provider, domain.ErrUnsupportedOperation)
	}

	pctx, cancel := s.providerCtx(ctx)
	defer cancel()

	res, err := adapter.GenerateQRCode(pctx, provider.QRRequest{
		OrderID:  params.OrderID,
		Amount:   params.Amount,
		Currency: currency,
	})
	if err != nil {
		return nil, providerFailure("GenerateQRCode", err)
	}

	result := &QRCodeResult{
		Data:      res.Data,
		ImageURL:  res.ImageURL,
		ExpiresAt: expiresAt,
	}
	if res.ExpiresAt != nil {
		result.ExpiresAt = *res.ExpiresAt
	}
	if result.ImageURL == "" && result.Data != "" {
		image, err := renderPNG(result.Data)
		if err != nil {
			return nil, fmt.Errorf("GenerateQRCode: %w", err)
		}
		result.ImageDataURL = image
	}
	return result, nil
}

// qrAccounts assembles one merchant account block per QR-capable
// provider, in the registry's stable order.
func (s *Service) qrAccounts(orderID string) []mmqr.MerchantAccount {
	var accounts []mmqr.MerchantAccount
	for _, cap := range s.providers.Capabilities() {
		if !cap.Supports(domain.OperationQRCode) || cap.NetworkID == "" {
			continue
		}
		accounts = append(accounts, mmqr.MerchantAccount{
			NetworkID:  cap.NetworkID,
			MerchantID: cap.MerchantID,
			OrderRef:   orderID,
			NetworkTag: cap.NetworkTag,
		})
	}
	return accounts
}

func renderPNG(data string) (string, error) {
	png, err := qrcode.Encode(data, qrcode.Medium, 512)
	if err != nil {
		return "", fmt.Errorf("renderPNG: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
