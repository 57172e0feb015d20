package matcher

import (
	"strings"
	"time"

	"formintel/pkg/models"
)

// Category groups canonical fields by profile section.
type Category string

const (
	CategoryPersonal   Category = "personal"
	CategoryPassport   Category = "passport"
	CategoryEmployment Category = "employment"
	CategoryEducation  Category = "education"
	CategoryFamily     Category = "family"
	CategoryTravel     Category = "travel"
)

// FieldID identifies a canonical profile field. Its string form is the
// dot-addressable path into the profile.
type FieldID string

const (
	GivenName      FieldID = "personal.givenName"
	MiddleName     FieldID = "personal.middleName"
	Surname        FieldID = "personal.surname"
	FullName       FieldID = "personal.fullName"
	DateOfBirth    FieldID = "personal.dateOfBirth"
	PlaceOfBirth   FieldID = "personal.placeOfBirth"
	CountryOfBirth FieldID = "personal.countryOfBirth"
	Gender         FieldID = "personal.gender"
	Nationality    FieldID = "personal.nationality"
	MaritalStatus  FieldID = "personal.maritalStatus"
	Email          FieldID = "personal.email"
	Phone          FieldID = "personal.phone"
	AddressLine1   FieldID = "personal.address.line1"
	AddressCity    FieldID = "personal.address.city"
	PostalCode     FieldID = "personal.address.postalCode"
	AddressCountry FieldID = "personal.address.country"

	PassportNumber         FieldID = "passport.number"
	PassportIssuingCountry FieldID = "passport.issuingCountry"
	PassportPlaceOfIssue   FieldID = "passport.placeOfIssue"
	PassportIssueDate      FieldID = "passport.issueDate"
	PassportExpiryDate     FieldID = "passport.expiryDate"

	EmployerName    FieldID = "employment.current.employerName"
	JobTitle        FieldID = "employment.current.jobTitle"
	EmployerAddress FieldID = "employment.current.employerAddress"
	EmployerPhone   FieldID = "employment.current.employerPhone"
	MonthlyIncome   FieldID = "employment.current.monthlyIncome"

	HighestQualification FieldID = "education.highestQualification"
	InstitutionName      FieldID = "education.institutionName"

	FatherName FieldID = "family.fatherName"
	MotherName FieldID = "family.motherName"
	SpouseName FieldID = "family.spouseName"

	PurposeOfVisit       FieldID = "travel.purposeOfVisit"
	IntendedArrival      FieldID = "travel.intendedArrival"
	IntendedDeparture    FieldID = "travel.intendedDeparture"
	AccommodationAddress FieldID = "travel.accommodationAddress"
)

// Path returns the dot path of the field.
func (id FieldID) Path() string { return string(id) }

var dateFields = map[FieldID]bool{
	DateOfBirth:        true,
	PassportIssueDate:  true,
	PassportExpiryDate: true,
	IntendedArrival:    true,
	IntendedDeparture:  true,
}

// IsDate reports whether the field holds a calendar date.
func (id FieldID) IsDate() bool { return dateFields[id] }

// Label returns a readable name for messages, e.g. "Employer Name".
func (id FieldID) Label() string {
	path := string(id)
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		path = path[i+1:]
	}
	var b strings.Builder
	for i, r := range path {
		switch {
		case i == 0:
			b.WriteString(strings.ToUpper(string(r)))
		case r >= 'A' && r <= 'Z':
			b.WriteByte(' ')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CanonicalField ties an identifier to its known label variants and a typed
// accessor into the profile.
type CanonicalField struct {
	ID       FieldID
	Category Category
	Variants []string
	Value    func(p *models.Profile) string
}

func isoDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}

// canonicalFields is built once and read-only afterwards.
var canonicalFields = []CanonicalField{
	{GivenName, CategoryPersonal, []string{"given name", "given names", "first name", "forename", "forenames", "first given name"},
		func(p *models.Profile) string { return p.Personal.GivenName }},
	{MiddleName, CategoryPersonal, []string{"middle name", "middle names", "second name", "other names"},
		func(p *models.Profile) string { return p.Personal.MiddleName }},
	{Surname, CategoryPersonal, []string{"surname", "last name", "family name", "surnames"},
		func(p *models.Profile) string { return p.Personal.Surname }},
	{FullName, CategoryPersonal, []string{"full name", "name", "applicant name", "name in full", "full name as in passport"},
		func(p *models.Profile) string {
			parts := []string{p.Personal.GivenName, p.Personal.MiddleName, p.Personal.Surname}
			return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
		}},
	{DateOfBirth, CategoryPersonal, []string{"date of birth", "dob", "birth date", "birthdate", "d o b"},
		func(p *models.Profile) string { return isoDate(p.Personal.DateOfBirth) }},
	{PlaceOfBirth, CategoryPersonal, []string{"place of birth", "birth place", "city of birth", "town of birth"},
		func(p *models.Profile) string { return p.Personal.PlaceOfBirth }},
	{CountryOfBirth, CategoryPersonal, []string{"country of birth", "birth country"},
		func(p *models.Profile) string { return p.Personal.CountryOfBirth }},
	{Gender, CategoryPersonal, []string{"gender", "sex"},
		func(p *models.Profile) string { return p.Personal.Gender }},
	{Nationality, CategoryPersonal, []string{"nationality", "citizenship", "present nationality", "current nationality", "country of citizenship"},
		func(p *models.Profile) string { return p.Personal.Nationality }},
	{MaritalStatus, CategoryPersonal, []string{"marital status", "civil status", "martial status"},
		func(p *models.Profile) string { return p.Personal.MaritalStatus }},
	{Email, CategoryPersonal, []string{"email", "email address", "e mail", "e mail address"},
		func(p *models.Profile) string { return p.Personal.Email }},
	{Phone, CategoryPersonal, []string{"phone", "phone number", "telephone", "telephone number", "mobile", "mobile number", "contact number", "cell phone"},
		func(p *models.Profile) string { return p.Personal.Phone }},
	{AddressLine1, CategoryPersonal, []string{"address", "home address", "residential address", "street address", "permanent address", "current address"},
		func(p *models.Profile) string { return p.Personal.Address.Line1 }},
	{AddressCity, CategoryPersonal, []string{"city", "town", "city town", "city of residence"},
		func(p *models.Profile) string { return p.Personal.Address.City }},
	{PostalCode, CategoryPersonal, []string{"postal code", "post code", "postcode", "zip code", "zip", "po box"},
		func(p *models.Profile) string { return p.Personal.Address.PostalCode }},
	{AddressCountry, CategoryPersonal, []string{"country", "country of residence", "residence country"},
		func(p *models.Profile) string { return p.Personal.Address.Country }},

	{PassportNumber, CategoryPassport, []string{"passport number", "passport no", "passport", "travel document number", "document number"},
		func(p *models.Profile) string { return p.Passport.Number }},
	{PassportIssuingCountry, CategoryPassport, []string{"issuing country", "country of issue", "issuing state", "issuing authority"},
		func(p *models.Profile) string { return p.Passport.IssuingCountry }},
	{PassportPlaceOfIssue, CategoryPassport, []string{"place of issue", "issued at", "issue place"},
		func(p *models.Profile) string { return p.Passport.PlaceOfIssue }},
	{PassportIssueDate, CategoryPassport, []string{"date of issue", "issue date", "passport issue date", "issued on"},
		func(p *models.Profile) string { return isoDate(p.Passport.IssueDate) }},
	{PassportExpiryDate, CategoryPassport, []string{"date of expiry", "expiry date", "expiration date", "passport expiry date", "valid until", "date of expiration"},
		func(p *models.Profile) string { return isoDate(p.Passport.ExpiryDate) }},

	{EmployerName, CategoryEmployment, []string{"employer", "employer name", "name of employer", "company name", "current employer", "name of company"},
		func(p *models.Profile) string { return p.Employment.Current.EmployerName }},
	{JobTitle, CategoryEmployment, []string{"occupation", "job title", "profession", "designation", "position", "current occupation"},
		func(p *models.Profile) string { return p.Employment.Current.JobTitle }},
	{EmployerAddress, CategoryEmployment, []string{"employer address", "address", "company address", "work address", "address of employer"},
		func(p *models.Profile) string { return p.Employment.Current.EmployerAddress }},
	{EmployerPhone, CategoryEmployment, []string{"employer phone", "phone", "work phone", "office phone", "company phone", "employer telephone"},
		func(p *models.Profile) string { return p.Employment.Current.EmployerPhone }},
	{MonthlyIncome, CategoryEmployment, []string{"monthly income", "monthly salary", "salary", "income", "monthly earnings"},
		func(p *models.Profile) string { return p.Employment.Current.MonthlyIncome }},

	{HighestQualification, CategoryEducation, []string{"highest qualification", "education", "educational qualification", "qualification", "degree", "level of education"},
		func(p *models.Profile) string { return p.Education.HighestQualification }},
	{InstitutionName, CategoryEducation, []string{"institution", "name of institution", "university", "school", "college", "institution name"},
		func(p *models.Profile) string { return p.Education.InstitutionName }},

	{FatherName, CategoryFamily, []string{"father name", "father full name", "name of father", "father"},
		func(p *models.Profile) string { return p.Family.FatherName }},
	{MotherName, CategoryFamily, []string{"mother name", "mother full name", "name of mother", "mother", "mother maiden name"},
		func(p *models.Profile) string { return p.Family.MotherName }},
	{SpouseName, CategoryFamily, []string{"spouse name", "name of spouse", "husband wife name", "spouse", "spouse full name"},
		func(p *models.Profile) string { return p.Family.SpouseName }},

	{PurposeOfVisit, CategoryTravel, []string{"purpose of visit", "purpose of travel", "purpose of journey", "reason for visit", "purpose of trip"},
		func(p *models.Profile) string { return p.Travel.PurposeOfVisit }},
	{IntendedArrival, CategoryTravel, []string{"date of arrival", "arrival date", "intended date of arrival", "expected arrival date", "travel date", "date of travel"},
		func(p *models.Profile) string { return isoDate(p.Travel.IntendedArrival) }},
	{IntendedDeparture, CategoryTravel, []string{"date of departure", "departure date", "intended date of departure", "return date"},
		func(p *models.Profile) string { return isoDate(p.Travel.IntendedDeparture) }},
	{AccommodationAddress, CategoryTravel, []string{"address in destination", "address", "accommodation address", "hotel address", "address during stay", "hotel name and address"},
		func(p *models.Profile) string { return p.Travel.AccommodationAddress }},
}

var canonicalIndex = func() map[FieldID]*CanonicalField {
	idx := make(map[FieldID]*CanonicalField, len(canonicalFields))
	for i := range canonicalFields {
		idx[canonicalFields[i].ID] = &canonicalFields[i]
	}
	return idx
}()

// Fields returns the canonical dictionary in declaration order.
func Fields() []CanonicalField {
	out := make([]CanonicalField, len(canonicalFields))
	copy(out, canonicalFields)
	return out
}

// Lookup returns the canonical field with the given path.
func Lookup(path string) (CanonicalField, bool) {
	f, ok := canonicalIndex[FieldID(path)]
	if !ok {
		return CanonicalField{}, false
	}
	return *f, true
}

// GetValueFromProfile resolves a canonical path against the profile. It
// returns false, not an error, for unknown paths and unset values.
func GetValueFromProfile(profile *models.Profile, path string) (string, bool) {
	if profile == nil {
		return "", false
	}
	f, ok := canonicalIndex[FieldID(path)]
	if !ok {
		return "", false
	}
	v := strings.TrimSpace(f.Value(profile))
	return v, v != ""
}
