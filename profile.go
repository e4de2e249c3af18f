package auth

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultPhoneRegion is used to parse numbers without a country prefix
var DefaultPhoneRegion = "US"

// NormalizeEmail trims and lower cases an email, the form used for uniqueness
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone formats a phone number as E.164. Numbers that cannot be
// parsed are returned trimmed.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return ""
	}

	num, err := phonenumbers.Parse(phone, DefaultPhoneRegion)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return phone
	}

	return phonenumbers.Format(num, phonenumbers.E164)
}

// Profile holds the optional registration profile
type Profile struct {
	FirstName string         `json:"first_name"`
	LastName  string         `json:"last_name"`
	Phone     string         `json:"phone"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (p Profile) apply(a *Account) {
	a.FirstName = strings.TrimSpace(p.FirstName)
	a.LastName = strings.TrimSpace(p.LastName)
	a.Phone = NormalizePhone(p.Phone)
	for k, v := range p.Metadata {
		a.AddMetadata(k, v)
	}
}
