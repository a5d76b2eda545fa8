package mmqr

// ISO-4217 numeric codes for the currencies the platform settles in.
var currencyNumeric = map[string]string{
	"MMK": "104",
	"USD": "840",
	"EUR": "978",
	"SGD": "702",
	"THB": "764",
}

var currencyAlpha = func() map[string]string {
	m := make(map[string]string, len(currencyNumeric))
	for alpha, numeric := range currencyNumeric {
		m[numeric] = alpha
	}
	return m
}()

func NumericCurrencyCode(alpha string) (string, bool) {
	code, ok := currencyNumeric[alpha]
	return code, ok
}

func AlphaCurrencyCode(numeric string) (string, bool) {
	code, ok := currencyAlpha[numeric]
	return code, ok
}
