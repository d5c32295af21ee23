package session

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	phoneRegexp = regexp.MustCompile(`^\+[0-9]{7,15}$`)
	codeRegexp  = regexp.MustCompile(`^[0-9]{4,7}$`)
)

// NormalizePhone strips common separators from a user-supplied phone number
// and validates the result as an international number. A missing leading
// "+" is added rather than rejected; everything else must be digits.
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch r {
		case ' ', '-', '(', ')', '.':
		default:
			b.WriteRune(r)
		}
	}
	phone := b.String()
	if phone == "" {
		return "", fmt.Errorf("phone number is empty")
	}
	if !strings.HasPrefix(phone, "+") {
		phone = "+" + phone
	}
	if !phoneRegexp.MatchString(phone) {
		return "", fmt.Errorf("invalid phone number %q: want +<7-15 digits>", raw)
	}
	return phone, nil
}

// ValidateCode checks a user-supplied one-time login code.
func ValidateCode(code string) error {
	if !codeRegexp.MatchString(strings.TrimSpace(code)) {
		return fmt.Errorf("invalid login code: want 4-7 digits")
	}
	return nil
}
