package smartdoc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formintel/pkg/models"
)

func TestInferCountry(t *testing.T) {
	tests := []struct {
		name      string
		languages []models.LanguageDetection
		want      string
	}{
		{"empty", nil, ""},
		{"arabic and english comparable", []models.LanguageDetection{{Code: "ar", Confidence: 0.8}, {Code: "en", Confidence: 0.75}}, "SA"},
		{"english dominant", []models.LanguageDetection{{Code: "en", Confidence: 0.9}, {Code: "ar", Confidence: 0.3}}, "US"},
		{"region subtag", []models.LanguageDetection{{Code: "en-GB", Confidence: 0.9}}, "GB"},
		{"underscore locale", []models.LanguageDetection{{Code: "fr_CA", Confidence: 0.9}}, "CA"},
		{"arabic only", []models.LanguageDetection{{Code: "ar", Confidence: 0.95}}, "SA"},
		{"french", []models.LanguageDetection{{Code: "fr", Confidence: 0.6}, {Code: "en", Confidence: 0.2}}, "FR"},
		{"unknown", []models.LanguageDetection{{Code: "xx", Confidence: 0.9}}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := inferCountry(tt.languages, "SA")
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		value, country, want string
		ok                   bool
	}{
		{"1990-03-12", "AE", "12/03/1990", true},
		{"12/03/1990", "US", "03/12/1990", true},
		{"04/13/2020", "GB", "13/04/2020", true},
		{"3 Jan 2021", "DE", "03.01.2021", true},
		{"January 5, 2022", "", "2022-01-05", true},
		{"13/25/2020", "AE", "13/25/2020", false},
		{"2024-02-30", "AE", "2024-02-30", false},
		{"soon", "AE", "soon", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, ok := normalizeDate(tt.value, tt.country)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizePhone(t *testing.T) {
	got, ok := NormalizePhone("0501234567", "AE", PhoneInternational)
	require.True(t, ok)
	assert.Equal(t, "+971501234567", got)

	got, ok = NormalizePhone("0501234567", "AE", PhoneSpaced)
	require.True(t, ok)
	assert.Equal(t, "+971 50 123 4567", got)

	got, ok = NormalizePhone("+971501234567", "AE", PhoneLocal)
	require.True(t, ok)
	assert.Equal(t, "050 123 4567", got)

	_, ok = NormalizePhone("12345", "AE", PhoneInternational)
	assert.False(t, ok)

	_, ok = NormalizePhone("not a number", "AE", PhoneInternational)
	assert.False(t, ok)
}

func TestFamilyTable_HeaderWithOneRow(t *testing.T) {
	rows := [][]string{
		{"Name", "Relationship", "Date of Birth"},
		{"Sara Khan", "Spouse", "1992-07-04"},
	}

	rec := FamilyTable{}.Reconstruct(rows)
	require.NotNil(t, rec)
	require.Len(t, rec.Family, 1)
	assert.Equal(t, models.FamilyMember{Name: "Sara Khan", Relationship: "Spouse", DOB: "1992-07-04"}, rec.Family[0])
	assert.Nil(t, TravelTable{}.Reconstruct(rows))
}

func TestTravelTable(t *testing.T) {
	rows := [][]string{
		{"Country Visited", "From", "To", "Purpose"},
		{"Oman", "2023-01-02", "2023-01-09", "Tourism"},
		{"", "", "", ""},
		{"Qatar", "2022-05-01", "", "Business"},
	}

	rec := TravelTable{}.Reconstruct(rows)
	require.NotNil(t, rec)
	require.Len(t, rec.Travel, 2)
	assert.Equal(t, models.TravelRecord{Country: "Oman", FromDate: "2023-01-02", ToDate: "2023-01-09", Purpose: "Tourism"}, rec.Travel[0])
	assert.Equal(t, "Qatar", rec.Travel[1].Country)
	assert.Nil(t, FamilyTable{}.Reconstruct(rows))
}

func TestTables_IgnoreUnrelated(t *testing.T) {
	rows := [][]string{{"Item", "Amount"}, {"Fee", "300"}}
	assert.Nil(t, FamilyTable{}.Reconstruct(rows))
	assert.Nil(t, TravelTable{}.Reconstruct(rows))
	assert.Nil(t, FamilyTable{}.Reconstruct([][]string{{"Name", "Relationship"}}))
}

func TestNormalizeSelection(t *testing.T) {
	for _, v := range []string{"selected", "Yes", " X ", "☑", ":selected:"} {
		assert.Equal(t, "selected", NormalizeSelection(v), v)
	}
	for _, v := range []string{"", "no", "unselected", "☐"} {
		assert.Equal(t, "unselected", NormalizeSelection(v), v)
	}
}

func TestProcess(t *testing.T) {
	input := &models.ExtractionResult{
		Languages: []models.LanguageDetection{{Code: "ar", Confidence: 0.82}, {Code: "en", Confidence: 0.8}},
		Fields: []models.ExtractedField{
			{Label: "Date of Birth", Value: "1990-03-12", Type: models.FieldTypeText, Confidence: 90},
			{Label: "Mobile Number", Value: "0501234567", Type: models.FieldTypeText, Confidence: 88},
			{Label: "Have you ever been convicted of a criminal offence?", Value: "yes", Type: models.FieldTypeCheckbox, Confidence: 95},
			{Label: "Have you ever been refused a visa?", Value: "", Type: models.FieldTypeCheckbox, Confidence: 95},
			{Label: "Married", Value: "x", Type: models.FieldTypeCheckbox, Confidence: 95},
			{Label: "Arrival date", Value: "sometime in May", Type: models.FieldTypeDate, Confidence: 70},
		},
		Tables: []models.ExtractedTable{{
			Cells: []models.TableCell{
				{RowIndex: 0, ColumnIndex: 0, Content: "Name"},
				{RowIndex: 0, ColumnIndex: 1, Content: "Relationship"},
				{RowIndex: 0, ColumnIndex: 2, Content: "Date of Birth"},
				{RowIndex: 1, ColumnIndex: 0, Content: "Omar"},
				{RowIndex: 1, ColumnIndex: 1, Content: "Son"},
				{RowIndex: 1, ColumnIndex: 2, Content: "2015-09-01"},
			},
		}},
	}
	original := append([]models.ExtractedField(nil), input.Fields...)

	p := NewProcessor(Config{GulfDefaultCountry: "AE"})
	out := p.Process(input)

	assert.Equal(t, "AE", out.InferredCountry)
	require.Len(t, out.EnhancedFields, len(input.Fields))
	assert.Equal(t, "12/03/1990", out.EnhancedFields[0].Value)
	assert.Equal(t, models.FieldTypeDate, out.EnhancedFields[0].Type)
	assert.Equal(t, "+971501234567", out.EnhancedFields[1].Value)
	assert.Equal(t, "selected", out.EnhancedFields[2].Value)
	assert.Equal(t, "unselected", out.EnhancedFields[3].Value)
	assert.Equal(t, "selected", out.EnhancedFields[4].Value)
	assert.Equal(t, "sometime in May", out.EnhancedFields[5].Value)

	require.Len(t, out.CriticalAnswers, 2)
	assert.True(t, out.CriticalAnswers[0].Selected)
	assert.False(t, out.CriticalAnswers[1].Selected)
	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.Warnings[0], "CRITICAL")

	require.Len(t, out.FamilyMembers, 1)
	assert.Equal(t, "Omar", out.FamilyMembers[0].Name)

	assert.Equal(t, original, input.Fields, "input fields must not be mutated")
}

func TestProcess_DestinationOverridesDateConvention(t *testing.T) {
	p := NewProcessor(Config{DestinationCountry: "US"})
	out := p.Process(&models.ExtractionResult{
		Languages: []models.LanguageDetection{{Code: "en-GB", Confidence: 0.9}},
		Fields:    []models.ExtractedField{{Label: "Passport expiry", Value: "2030-06-01", Confidence: 90}},
	})
	assert.Equal(t, "GB", out.InferredCountry)
	assert.Equal(t, "06/01/2030", out.EnhancedFields[0].Value)
}

func TestProcess_PhoneFallsBackToDestination(t *testing.T) {
	input := &models.ExtractionResult{
		Fields: []models.ExtractedField{{Label: "Mobile Number", Value: "0501234567", Confidence: 88}},
	}

	out := NewProcessor(Config{DestinationCountry: "AE"}).Process(input)
	assert.Empty(t, out.InferredCountry)
	assert.Equal(t, "+971501234567", out.EnhancedFields[0].Value)
	assert.Contains(t, out.Insights, "Normalized 1 phone number(s) for region AE")

	out = NewProcessor(Config{}).Process(input)
	assert.Equal(t, "0501234567", out.EnhancedFields[0].Value)
}

func TestProcess_Nil(t *testing.T) {
	out := NewProcessor(Config{}).Process(nil)
	assert.Empty(t, out.EnhancedFields)
}

func TestParseDateIn(t *testing.T) {
	us, ok := ParseDateIn("03/12/1990", "US")
	require.True(t, ok)
	assert.Equal(t, time.March, us.Month())

	gb, ok := ParseDateIn("03/12/1990", "GB")
	require.True(t, ok)
	assert.Equal(t, time.December, gb.Month())

	_, ok = ParseDateIn("", "US")
	assert.False(t, ok)
}
