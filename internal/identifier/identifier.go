package identifier

import (
	"errors"
	"net/mail"
	"regexp"
	"strings"
)

// Kind is the channel a raw identifier resolves to.
type Kind int

const (
	KindEmail Kind = iota + 1
	KindPhone
)

func (k Kind) String() string {
	switch k {
	case KindEmail:
		return "email"
	case KindPhone:
		return "phone"
	default:
		return "unknown"
	}
}

// ErrInvalidFormat is returned when a raw identifier is neither a valid
// email address nor a valid phone number.
var ErrInvalidFormat = errors.New("invalid identifier format")

// Identifier is a classified and normalized contact value.
type Identifier struct {
	Kind  Kind
	Value string
}

// Phone numbers are 11 digits with the local trunk prefix, e.g. 09123456789.
var phonePattern = regexp.MustCompile(`^09\d{9}$`)

// Classify decides whether raw is an email address or a phone number and
// returns the normalized value. Anything containing '@' is held to email
// grammar and never falls through to phone validation. Phone input is
// normalized from Persian and Arabic-Indic numerals before the shape check.
func Classify(raw string) (Identifier, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identifier{}, ErrInvalidFormat
	}

	if strings.Contains(raw, "@") {
		email, err := NormalizeEmail(raw)
		if err != nil {
			return Identifier{}, err
		}
		return Identifier{Kind: KindEmail, Value: email}, nil
	}

	phone, err := NormalizePhone(raw)
	if err != nil {
		return Identifier{}, err
	}
	return Identifier{Kind: KindPhone, Value: phone}, nil
}

// NormalizeEmail validates raw against address grammar and lower-cases it.
func NormalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		// Reject display names, comments and other envelope decoration;
		// only a bare address is a valid identifier.
		return "", ErrInvalidFormat
	}
	return strings.ToLower(addr.Address), nil
}

// NormalizePhone converts locale numerals to ASCII digits and validates the
// phone number shape.
func NormalizePhone(raw string) (string, error) {
	normalized := normalizeDigits(strings.TrimSpace(raw))
	if !phonePattern.MatchString(normalized) {
		return "", ErrInvalidFormat
	}
	return normalized, nil
}

// normalizeDigits maps Persian (U+06F0..U+06F9) and Arabic-Indic
// (U+0660..U+0669) numerals to their ASCII equivalents. Other runes pass
// through untouched so the shape check rejects them.
func normalizeDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= '۰' && r <= '۹':
			r = '0' + (r - '۰')
		case r >= '٠' && r <= '٩':
			r = '0' + (r - '٠')
		}
		b.WriteRune(r)
	}
	return b.String()
}
