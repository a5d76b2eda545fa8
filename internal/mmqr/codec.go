// Package mmqr builds and parses MMQR payment payloads, the Myanmar
// profile of the EMVCo merchant-presented QR specification. The
// emitted string is a flat sequence of tag(2)+length(2)+value TLV
// units, terminated by a CRC16-CCITT checksum; tags 26/27 (merchant
// account information) and 62 (additional data) nest a further TLV
// level. Lengths and the checksum are both computed over UTF-8 bytes.
package mmqr

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	tagPayloadFormat    = "00"
	tagInitiationMethod = "01"
	tagMerchantAccount  = "26" // first network; each additional one increments
	maxAccountTag       = 51   // last tag EMVCo reserves for merchant accounts
	tagCategoryCode     = "52"
	tagCurrency         = "53"
	tagAmount           = "54"
	tagCountryCode      = "58"
	tagMerchantName     = "59"
	tagMerchantCity     = "60"
	tagAdditionalData   = "62"
	tagCRC              = "63"

	subTagNetworkID  = "00"
	subTagMerchantID = "01"
	subTagOrderRef   = "02"
	subTagNetworkTag = "03"

	subTagBillNumber = "01"
	subTagPurpose    = "08"

	payloadFormatValue = "01"
	initiationStatic   = "11"
	initiationDynamic  = "12"

	maxValueLen   = 99
	maxPurposeLen = 25

	// shortest well-formed payload: format indicator + CRC field
	minPayloadLen = 14
)

var (
	ErrInvalidPayload = errors.New("invalid payload")
	ErrCRCMismatch    = errors.New("CRC mismatch")
	ErrValueTooLong   = errors.New("TLV value exceeds 99 bytes")
)

// tlv renders one tag/length/value unit. Absent values are omitted
// entirely rather than emitted as zero-length entries.
func tlv(tag, value string) (string, error) {
	n := len(value)
	if n == 0 {
		return "", nil
	}
	if n > maxValueLen {
		return "", fmt.Errorf("tag %s: %w", tag, ErrValueTooLong)
	}
	return fmt.Sprintf("%s%02d%s", tag, n, value), nil
}

// appendCRC checksums the assembled payload including the literal
// "6304" prefix of the CRC field itself, then appends the 4 uppercase
// hex digits.
func appendCRC(payload string) string {
	payload += tagCRC + "04"
	return payload + fmt.Sprintf("%04X", crc16([]byte(payload)))
}

// Validate checks the structural prefix and recomputes the checksum
// over everything except the trailing 4 CRC digits. The comparison is
// case-insensitive so lowercase-hex emitters still verify.
func Validate(payload string) error {
	if len(payload) < minPayloadLen {
		return fmt.Errorf("payload too short: %w", ErrInvalidPayload)
	}
	if !strings.HasPrefix(payload, tagPayloadFormat+"02") {
		return fmt.Errorf("missing payload format indicator: %w", ErrInvalidPayload)
	}
	body := payload[:len(payload)-4]
	want := fmt.Sprintf("%04X", crc16([]byte(body)))
	if !strings.EqualFold(want, payload[len(payload)-4:]) {
		return ErrCRCMismatch
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// back up so a multi-byte rune is never split
	for n > 0 && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n]
}

func incrementTag(tag string) (string, error) {
	n, err := strconv.Atoi(tag)
	if err != nil {
		return "", fmt.Errorf("incrementTag: %w", err)
	}
	if n+1 > maxAccountTag {
		return "", fmt.Errorf("incrementTag: merchant account tags exhausted: %w", ErrInvalidPayload)
	}
	return fmt.Sprintf("%02d", n+1), nil
}
