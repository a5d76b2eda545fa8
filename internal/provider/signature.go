package provider

import "encoding/json"

// Header names providers are known to deliver signatures under.
// Checked in order; the first non-empty value wins.
var signatureHeaders = []string{
	"X-Wallet-Signature",
	"X-Signature",
	"Signature",
}

// ExtractSignature locates a webhook signature in whichever of the
// known header or body locations is present. Headers are expected
// pre-canonicalized by the transport layer.
func ExtractSignature(headers map[string]string, payload []byte) (string, bool) {
	for _, h := range signatureHeaders {
		if v, ok := headers[h]; ok && v != "" {
			return v, true
		}
	}

	// some networks embed the signature in the payload itself
	var body struct {
		Signature string `json:"signature"`
	}
	if err := json.Unmarshal(payload, &body); err == nil && body.Signature != "" {
		return body.Signature, true
	}

	return "", false
}
