package service

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

const (
	minPasswordLen = 6
	// bcrypt ignores everything past 72 bytes.
	maxPasswordBytes = 72
	maxEmailLen      = 255
)

func normalizeEmail(raw string) (string, error) {
	email := strings.TrimSpace(raw)
	if email == "" {
		return "", validation("Email is required.")
	}
	if len(email) > maxEmailLen {
		return "", validation("Email is too long.")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", validation("Not a valid email address.")
	}
	return email, nil
}

// checkPassword counts length in characters; only ASCII letters and digits
// satisfy the character class rules.
func checkPassword(p string) error {
	if utf8.RuneCountInString(p) < minPasswordLen {
		return validation("Password length should be at least 6 symbols.")
	}
	if len(p) > maxPasswordBytes {
		return validation("Password must not exceed 72 bytes.")
	}
	var letter, digit bool
	for _, r := range p {
		switch {
		case 'a' <= r && r <= 'z', 'A' <= r && r <= 'Z':
			letter = true
		case '0' <= r && r <= '9':
			digit = true
		}
	}
	if !letter {
		return validation("Password should contain letters.")
	}
	if !digit {
		return validation("Password should contain numbers.")
	}
	return nil
}
