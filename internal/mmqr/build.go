package mmqr

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MerchantAccount describes one payment network's merchant account
// information block (tag 26 onward).
type MerchantAccount struct {
	NetworkID  string // reverse-domain network identifier
	MerchantID string
	OrderRef   string
	NetworkTag string
}

// BuildParams is the semantic field set a payload is assembled from.
// A payload with at least one account in Accounts beyond the first is
// the "unified" form: any compatible scanner picks the network block
// it supports.
type BuildParams struct {
	Accounts []MerchantAccount

	MerchantName         string
	MerchantCity         string
	CountryCode          string
	MerchantCategoryCode string

	Currency string          // ISO-4217 alpha code, e.g. "MMK"
	Amount   decimal.Decimal // zero means static (no amount) payload

	OrderID string
	Purpose string
	// Extra sub-fields appended to the additional data template,
	// keyed by 2-digit sub-tag.
	Extra map[string]string
}

// Build assembles the TLV payload in the mandated field order and
// appends the CRC.
func Build(p BuildParams) (string, error) {
	if len(p.Accounts) == 0 {
		return "", fmt.Errorf("Build: at least one merchant account required: %w", ErrInvalidPayload)
	}

	var sb []byte
	add := func(tag, value string) error {
		unit, err := tlv(tag, value)
		if err != nil {
			return err
		}
		sb = append(sb, unit...)
		return nil
	}

	if err := add(tagPayloadFormat, payloadFormatValue); err != nil {
		return "", fmt.Errorf("Build: %w", err)
	}

	initiation := initiationStatic
	if p.Amount.IsPositive() {
		initiation = initiationDynamic
	}
	if err := add(tagInitiationMethod, initiation); err != nil {
		return "", fmt.Errorf("Build: %w", err)
	}

	tag := tagMerchantAccount
	for i, acct := range p.Accounts {
		if i > 0 {
			next, err := incrementTag(tag)
			if err != nil {
				return "", fmt.Errorf("Build: %w", err)
			}
			tag = next
		}
		block, err := buildAccountBlock(acct)
		if err != nil {
			return "", fmt.Errorf("Build: account %d: %w", i, err)
		}
		if err := add(tag, block); err != nil {
			return "", fmt.Errorf("Build: account %d: %w", i, err)
		}
	}

	if err := add(tagCategoryCode, p.MerchantCategoryCode); err != nil {
		return "", fmt.Errorf("Build: %w", err)
	}

	numeric, ok := NumericCurrencyCode(p.Currency)
	if !ok {
		return "", fmt.Errorf("Build: currency %q: %w", p.Currency, ErrInvalidPayload)
	}
	if err := add(tagCurrency, numeric); err != nil {
		return "", fmt.Errorf("Build: %w", err)
	}

	if p.Amount.IsPositive() {
		if err := add(tagAmount, p.Amount.StringFixed(2)); err != nil {
			return "", fmt.Errorf("Build: %w", err)
		}
	}

	if err := add(tagCountryCode, p.CountryCode); err != nil {
		return "", fmt.Errorf("Build: %w", err)
	}
	if err := add(tagMerchantName, p.MerchantName); err != nil {
		return "", fmt.Errorf("Build: %w", err)
	}
	if err := add(tagMerchantCity, p.MerchantCity); err != nil {
		return "", fmt.Errorf("Build: %w", err)
	}

	additional, err := buildAdditionalData(p)
	if err != nil {
		return "", fmt.Errorf("Build: %w", err)
	}
	if err := add(tagAdditionalData, additional); err != nil {
		return "", fmt.Errorf("Build: %w", err)
	}

	return appendCRC(string(sb)), nil
}

func buildAccountBlock(acct MerchantAccount) (string, error) {
	var block string
	for _, f := range []struct{ tag, value string }{
		{subTagNetworkID, acct.NetworkID},
		{subTagMerchantID, acct.MerchantID},
		{subTagOrderRef, acct.OrderRef},
		{subTagNetworkTag, acct.NetworkTag},
	} {
		unit, err := tlv(f.tag, f.value)
		if err != nil {
			return "", err
		}
		block += unit
	}
	if block == "" {
		return "", fmt.Errorf("empty merchant account block: %w", ErrInvalidPayload)
	}
	return block, nil
}

func buildAdditionalData(p BuildParams) (string, error) {
	var block string

	unit, err := tlv(subTagBillNumber, p.OrderID)
	if err != nil {
		return "", err
	}
	block += unit

	unit, err = tlv(subTagPurpose, truncateBytes(p.Purpose, maxPurposeLen))
	if err != nil {
		return "", err
	}
	block += unit

	for _, tag := range sortedKeys(p.Extra) {
		unit, err = tlv(tag, p.Extra[tag])
		if err != nil {
			return "", err
		}
		block += unit
	}

	return block, nil
}
