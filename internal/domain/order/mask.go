package order

import "strings"

const maskPrefix = "**** "

// MaskPaymentToken keeps only the last four digits of a payment token, e.g.
// "4111 1111 1111 4242" becomes "**** 4242". Tokens with fewer than four
// digits are masked completely.
func MaskPaymentToken(raw string) string {
	digits := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		if c := raw[i]; c >= '0' && c <= '9' {
			digits = append(digits, c)
		}
	}
	if len(digits) < 4 {
		return strings.TrimSpace(maskPrefix)
	}
	return maskPrefix + string(digits[len(digits)-4:])
}
