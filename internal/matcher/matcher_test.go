package matcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formintel/pkg/models"
)

func testProfile() *models.Profile {
	dob := time.Date(1990, 3, 12, 0, 0, 0, 0, time.UTC)
	return &models.Profile{
		Personal: models.PersonalInfo{
			GivenName:   "Fatima",
			Surname:     "Khan",
			DateOfBirth: &dob,
			Nationality: "PK",
			Address:     models.Address{Line1: "12 Palm Street"},
		},
		Passport:   models.PassportInfo{Number: "AB1234567"},
		Employment: models.EmploymentInfo{Current: models.CurrentEmployment{EmployerName: "Acme LLC"}},
		Family:     models.FamilyInfo{FatherName: "Imran Khan"},
	}
}

func TestMatch_Variants(t *testing.T) {
	tests := []struct {
		label string
		want  FieldID
	}{
		{"First Name", GivenName},
		{"Forename", GivenName},
		{"Given Name(s)", GivenName},
		{"Last Name:", Surname},
		{"Surnme", Surname},
		{"D.O.B.", DateOfBirth},
		{"Date of Birth", DateOfBirth},
		{"Passport No.", PassportNumber},
		{"Name of Father", FatherName},
		{"Father's Name", FatherName},
		{"Mother’s Maiden Name", MotherName},
		{"Nationalité", Nationality},
		{"E-mail Address", Email},
		{"Name of Employer", EmployerName},
		{"Purpose of Visit", PurposeOfVisit},
		{"Date of Expiry", PassportExpiryDate},
	}

	m := New(0)
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			matches := m.Match([]models.ExtractedField{{Label: tt.label, Value: "v"}})
			require.Len(t, matches, 1)
			require.True(t, matches[0].Matched(), "no match for %q", tt.label)
			assert.Equal(t, tt.want.Path(), *matches[0].CanonicalPath)
			assert.GreaterOrEqual(t, matches[0].MatchConfidence, DefaultAcceptanceThreshold)
		})
	}
}

func TestMatch_UnmatchedKeepsExtractedValue(t *testing.T) {
	fields := []models.ExtractedField{
		{Label: "Favourite colour", Value: "blue"},
		{Label: "", Value: "orphan"},
		{Label: "???", Value: "x"},
	}

	matches := New(0).Match(fields, WithProfile(testProfile()))
	for i, m := range matches {
		assert.Nil(t, m.CanonicalPath)
		assert.Equal(t, fields[i].Value, m.PopulatedValue)
		assert.Equal(t, models.ValueFromExtraction, m.ValueSource)
		assert.Same(t, &fields[i], m.ExtractedField)
	}
}

func TestMatch_NullPathInvariant(t *testing.T) {
	fields := []models.ExtractedField{
		{Label: "Surname", Value: "KHAN"},
		{Label: "Blood group", Value: "O+"},
		{Label: "Given name", Value: "Fatma"},
		{Label: "Lucky number", Value: "7"},
		{Label: "Spouse name", Value: ""},
	}
	for _, m := range New(0).Match(fields, WithProfile(testProfile())) {
		if m.CanonicalPath == nil {
			assert.Equal(t, m.ExtractedField.Value, m.PopulatedValue)
		}
	}
}

func TestMatch_PopulatesFromProfile(t *testing.T) {
	fields := []models.ExtractedField{
		{Label: "Given name", Value: "Fatma"},
		{Label: "Date of birth", Value: "12/03/1990"},
		{Label: "Spouse name", Value: "Ali"},
	}

	matches := New(0).Match(fields, WithProfile(testProfile()))

	assert.Equal(t, "Fatima", matches[0].PopulatedValue)
	assert.Equal(t, models.ValueFromProfile, matches[0].ValueSource)
	assert.Equal(t, "1990-03-12", matches[1].PopulatedValue)

	// matched, but the profile has no spouse
	assert.True(t, matches[2].Matched())
	assert.Equal(t, "Ali", matches[2].PopulatedValue)
	assert.Equal(t, models.ValueFromExtraction, matches[2].ValueSource)
}

func TestMatch_TieBreakByDataSource(t *testing.T) {
	fields := []models.ExtractedField{{Label: "Address", Value: "x"}}
	m := New(0)

	assert.Equal(t, AddressLine1.Path(), m.Match(fields)[0].Field)
	assert.Equal(t, EmployerAddress.Path(), m.Match(fields, WithDataSource(CategoryEmployment))[0].Field)
	assert.Equal(t, AccommodationAddress.Path(), m.Match(fields, WithDataSource(CategoryTravel))[0].Field)

	phone := []models.ExtractedField{{Label: "Phone", Value: "x"}}
	assert.Equal(t, Phone.Path(), m.Match(phone)[0].Field)
	assert.Equal(t, EmployerPhone.Path(), m.Match(phone, WithDataSource(CategoryEmployment))[0].Field)
}

func TestMatch_ThresholdIsConfigurable(t *testing.T) {
	fields := []models.ExtractedField{{Label: "Surnme", Value: "x"}}
	assert.True(t, New(0.8).Match(fields)[0].Matched())
	assert.False(t, New(0.95).Match(fields)[0].Matched())
}

func TestGetValueFromProfile(t *testing.T) {
	p := testProfile()

	v, ok := GetValueFromProfile(p, "employment.current.employerName")
	assert.True(t, ok)
	assert.Equal(t, "Acme LLC", v)

	v, ok = GetValueFromProfile(p, "personal.fullName")
	assert.True(t, ok)
	assert.Equal(t, "Fatima Khan", v)

	_, ok = GetValueFromProfile(p, "passport.expiryDate")
	assert.False(t, ok, "unset nested value")

	_, ok = GetValueFromProfile(p, "personal.shoeSize")
	assert.False(t, ok, "unknown path")

	_, ok = GetValueFromProfile(nil, "personal.givenName")
	assert.False(t, ok)
}

func TestDictionary(t *testing.T) {
	var variants int
	seen := map[FieldID]bool{}
	for _, f := range Fields() {
		assert.False(t, seen[f.ID], "duplicate %s", f.ID)
		seen[f.ID] = true
		assert.NotEmpty(t, f.Variants)
		assert.NotNil(t, f.Value)
		variants += len(f.Variants)

		_, ok := Lookup(f.ID.Path())
		assert.True(t, ok)
	}
	assert.GreaterOrEqual(t, variants, 50)
}

func TestFieldID_Helpers(t *testing.T) {
	assert.Equal(t, "Employer Name", EmployerName.Label())
	assert.Equal(t, "Line1", AddressLine1.Label())
	assert.True(t, PassportExpiryDate.IsDate())
	assert.False(t, Surname.IsDate())
}
