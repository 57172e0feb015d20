// Package smartdoc enriches an extraction result after the backends have run:
// it infers the document's country, normalizes dates and phone numbers to that
// country's conventions, surfaces legally sensitive checkbox answers and
// reconstructs family and travel records from tables. It performs no I/O.
package smartdoc

import (
	"fmt"

	"github.com/rs/zerolog"

	"formintel/internal/extraction"
	"formintel/internal/logger"
	"formintel/pkg/models"
)

// Config tunes the processor.
type Config struct {
	// GulfDefaultCountry is used when Arabic and English are co-detected. Placeholder policy.
	GulfDefaultCountry string

	// DestinationCountry, when set, selects the date convention instead of the inferred country.
	DestinationCountry string

	PhoneStyle PhoneStyle
}

// Result is the enriched view of an extraction.
type Result struct {
	EnhancedFields  []models.ExtractedField `json:"enhanced_fields"`
	Warnings        []string                `json:"warnings,omitempty"`
	Insights        []string                `json:"insights,omitempty"`
	InferredCountry string                  `json:"inferred_country,omitempty"`
	CriticalAnswers []CriticalAnswer        `json:"critical_answers,omitempty"`
	FamilyMembers   []models.FamilyMember   `json:"family_members,omitempty"`
	TravelHistory   []models.TravelRecord   `json:"travel_history,omitempty"`
}

// Processor is safe for concurrent use; it holds no mutable state.
type Processor struct {
	config         Config
	reconstructors []TableReconstructor
	log            zerolog.Logger
}

// NewProcessor creates a processor. Nil reconstructors selects DefaultReconstructors.
func NewProcessor(config Config, reconstructors ...TableReconstructor) *Processor {
	if config.GulfDefaultCountry == "" {
		config.GulfDefaultCountry = "AE"
	}
	if config.PhoneStyle == "" {
		config.PhoneStyle = PhoneInternational
	}
	if len(reconstructors) == 0 {
		reconstructors = DefaultReconstructors()
	}
	return &Processor{
		config:         config,
		reconstructors: reconstructors,
		log:            logger.WithComponent("smartdoc"),
	}
}

// Process enriches the extraction result. Input fields are never modified.
func (p *Processor) Process(result *models.ExtractionResult) *Result {
	out := &Result{}
	if result == nil {
		return out
	}

	country, reason := inferCountry(result.Languages, p.config.GulfDefaultCountry)
	out.InferredCountry = country
	if country != "" {
		out.Insights = append(out.Insights, fmt.Sprintf("Inferred document country %s (%s)", country, reason))
	}

	dateCountry := country
	if p.config.DestinationCountry != "" {
		dateCountry = p.config.DestinationCountry
	}

	// Without a detected language the destination is the best guess for local numbers.
	phoneRegion := country
	if phoneRegion == "" {
		phoneRegion = p.config.DestinationCountry
	}

	var datesNormalized, phonesNormalized int
	out.EnhancedFields = make([]models.ExtractedField, 0, len(result.Fields))
	for _, field := range result.Fields {
		enhanced := field

		switch {
		case field.Type == models.FieldTypeCheckbox:
			var critical *CriticalAnswer
			enhanced, critical = analyzeCheckbox(field)
			if critical != nil {
				out.CriticalAnswers = append(out.CriticalAnswers, *critical)
				if critical.Selected {
					out.Warnings = append(out.Warnings,
						fmt.Sprintf("CRITICAL: %q is answered YES on page %d; confirm with the applicant before submission", field.Label, field.PageIndex+1))
				}
			}

		case field.Type == models.FieldTypeDate || extraction.LabelSuggestsDate(field.Label):
			if v, ok := normalizeDate(field.Value, dateCountry); ok {
				if v != field.Value {
					datesNormalized++
				}
				enhanced.Value = v
				enhanced.Type = models.FieldTypeDate
			}

		case isPhoneLabel(field.Label) && phoneRegion != "":
			if v, ok := NormalizePhone(field.Value, phoneRegion, p.config.PhoneStyle); ok {
				if v != field.Value {
					phonesNormalized++
				}
				enhanced.Value = v
			}
		}

		out.EnhancedFields = append(out.EnhancedFields, enhanced)
	}

	if datesNormalized > 0 {
		out.Insights = append(out.Insights, fmt.Sprintf("Normalized %d date(s) to %s", datesNormalized, DateLayout(dateCountry)))
	}
	if phonesNormalized > 0 {
		out.Insights = append(out.Insights, fmt.Sprintf("Normalized %d phone number(s) for region %s", phonesNormalized, phoneRegion))
	}

	p.reconstructTables(result.Tables, out)

	p.log.Debug().
		Str("country", country).
		Int("fields", len(out.EnhancedFields)).
		Int("critical", len(out.CriticalAnswers)).
		Int("family", len(out.FamilyMembers)).
		Int("travel", len(out.TravelHistory)).
		Msg("Document enriched")

	return out
}

func (p *Processor) reconstructTables(tables []models.ExtractedTable, out *Result) {
	for i, table := range tables {
		rows := table.Rows()
		for _, r := range p.reconstructors {
			rec := r.Reconstruct(rows)
			if rec == nil || (len(rec.Family) == 0 && len(rec.Travel) == 0) {
				continue
			}
			out.FamilyMembers = append(out.FamilyMembers, rec.Family...)
			out.TravelHistory = append(out.TravelHistory, rec.Travel...)
			out.Insights = append(out.Insights,
				fmt.Sprintf("Reconstructed %d %s record(s) from table %d", len(rec.Family)+len(rec.Travel), r.Name(), i+1))
			break
		}
	}
}
