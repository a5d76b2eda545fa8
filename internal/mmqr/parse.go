package mmqr

import (
	"fmt"
	"strconv"
)

// Payload is the decoded form of an MMQR string.
type Payload struct {
	PayloadFormat    string
	InitiationMethod string

	Accounts []MerchantAccount

	MerchantCategoryCode string
	CurrencyNumeric      string
	Currency             string // alpha code, empty when the numeric code is unknown
	Amount               string

	CountryCode  string
	MerchantName string
	MerchantCity string

	OrderID    string
	Purpose    string
	Additional map[string]string

	CRC string
}

// Dynamic reports whether the payload carries the dynamic point of
// initiation method.
func (p *Payload) Dynamic() bool {
	return p.InitiationMethod == initiationDynamic
}

type tlvUnit struct {
	tag   string
	value string
}

// Parse walks the top-level TLV sequence, recursing into merchant
// account blocks and the additional data template. Decoding stops
// once the CRC field is consumed; Parse does not verify the checksum,
// use Validate for that.
func Parse(payload string) (*Payload, error) {
	units, err := parseTLV(payload, true)
	if err != nil {
		return nil, fmt.Errorf("Parse: %w", err)
	}

	out := &Payload{Additional: map[string]string{}}
	for _, u := range units {
		switch {
		case u.tag == tagPayloadFormat:
			out.PayloadFormat = u.value
		case u.tag == tagInitiationMethod:
			out.InitiationMethod = u.value
		case isAccountTag(u.tag):
			acct, err := parseAccountBlock(u.value)
			if err != nil {
				return nil, fmt.Errorf("Parse: tag %s: %w", u.tag, err)
			}
			out.Accounts = append(out.Accounts, acct)
		case u.tag == tagCategoryCode:
			out.MerchantCategoryCode = u.value
		case u.tag == tagCurrency:
			out.CurrencyNumeric = u.value
			out.Currency, _ = AlphaCurrencyCode(u.value)
		case u.tag == tagAmount:
			out.Amount = u.value
		case u.tag == tagCountryCode:
			out.CountryCode = u.value
		case u.tag == tagMerchantName:
			out.MerchantName = u.value
		case u.tag == tagMerchantCity:
			out.MerchantCity = u.value
		case u.tag == tagAdditionalData:
			if err := parseAdditionalData(u.value, out); err != nil {
				return nil, fmt.Errorf("Parse: %w", err)
			}
		case u.tag == tagCRC:
			out.CRC = u.value
		}
	}
	return out, nil
}

// parseTLV splits a TLV sequence into units. At the top level the walk
// stops after the CRC tag; trailing garbage beyond it is ignored the
// way scanners ignore it.
func parseTLV(s string, topLevel bool) ([]tlvUnit, error) {
	var units []tlvUnit
	for i := 0; i < len(s); {
		if i+4 > len(s) {
			return nil, fmt.Errorf("truncated TLV header at offset %d: %w", i, ErrInvalidPayload)
		}
		tag := s[i : i+2]
		length, err := strconv.Atoi(s[i+2 : i+4])
		if err != nil {
			return nil, fmt.Errorf("bad length for tag %s: %w", tag, ErrInvalidPayload)
		}
		if i+4+length > len(s) {
			return nil, fmt.Errorf("truncated value for tag %s: %w", tag, ErrInvalidPayload)
		}
		units = append(units, tlvUnit{tag: tag, value: s[i+4 : i+4+length]})
		i += 4 + length

		if topLevel && tag == tagCRC {
			break
		}
	}
	return units, nil
}

// Tags 26 through 51 are merchant account information per EMVCo; this
// codec emits 26, 27, ... consecutively in unified mode.
func isAccountTag(tag string) bool {
	n, err := strconv.Atoi(tag)
	if err != nil {
		return false
	}
	return n >= 26 && n <= maxAccountTag
}

func parseAccountBlock(block string) (MerchantAccount, error) {
	units, err := parseTLV(block, false)
	if err != nil {
		return MerchantAccount{}, err
	}
	var acct MerchantAccount
	for _, u := range units {
		switch u.tag {
		case subTagNetworkID:
			acct.NetworkID = u.value
		case subTagMerchantID:
			acct.MerchantID = u.value
		case subTagOrderRef:
			acct.OrderRef = u.value
		case subTagNetworkTag:
			acct.NetworkTag = u.value
		}
	}
	return acct, nil
}

func parseAdditionalData(block string, out *Payload) error {
	units, err := parseTLV(block, false)
	if err != nil {
		return err
	}
	for _, u := range units {
		switch u.tag {
		case subTagBillNumber:
			out.OrderID = u.value
		case subTagPurpose:
			out.Purpose = u.value
		default:
			out.Additional[u.tag] = u.value
		}
	}
	return nil
}
