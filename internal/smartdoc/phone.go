package smartdoc

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// PhoneStyle selects the output format for normalized phone numbers.
type PhoneStyle string

const (
	// PhoneLocal is the national format, e.g. "050 123 4567".
	PhoneLocal PhoneStyle = "local"
	// PhoneInternational is E.164, e.g. "+971501234567".
	PhoneInternational PhoneStyle = "international"
	// PhoneSpaced is the grouped international format, e.g. "+971 50 123 4567".
	PhoneSpaced PhoneStyle = "spaced"
)

var phoneLabelHints = []string{"phone", "mobile", "telephone", "tel.", "tel ", "contact number", "cell"}

func isPhoneLabel(label string) bool {
	l := strings.ToLower(label) + " "
	for _, hint := range phoneLabelHints {
		if strings.Contains(l, hint) {
			return true
		}
	}
	return false
}

// NormalizePhone reformats a number for the region. It returns false for
// numbers that do not parse or are not valid in the region.
func NormalizePhone(value, region string, style PhoneStyle) (string, bool) {
	if strings.TrimSpace(value) == "" || region == "" {
		return "", false
	}
	num, err := phonenumbers.Parse(value, strings.ToUpper(region))
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", false
	}

	switch style {
	case PhoneLocal:
		return phonenumbers.Format(num, phonenumbers.NATIONAL), true
	case PhoneSpaced:
		return phonenumbers.Format(num, phonenumbers.INTERNATIONAL), true
	default:
		return phonenumbers.Format(num, phonenumbers.E164), true
	}
}
