package orders

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/ariefcatur/go-laundry-orders/internal/apperr"
)

var pkMobile = regexp.MustCompile(`^(\+92|0)?(3[0-9]{9})$`)

// NormalizePhone validates a Pakistani mobile number and returns it as
// +92XXXXXXXXXX. Whitespace and dashes are ignored.
func NormalizePhone(raw string) (string, error) {
	s := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '-' {
			return -1
		}
		return r
	}, raw)
	if s == "" {
		return "", apperr.Validation("phone", "phone is required")
	}
	m := pkMobile.FindStringSubmatch(s)
	if m == nil {
		return "", apperr.Validation("phone", "enter a valid Pakistani mobile number (03XXXXXXXXX)")
	}
	return "+92" + m[2], nil
}
