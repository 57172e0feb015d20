package validation

import (
	"sort"
	"strings"
	"time"

	"formintel/internal/matcher"
	"formintel/internal/smartdoc"
	"formintel/pkg/models"
)

// Context is the optional application context. Absent values degrade to generic rules.
type Context struct {
	DestinationCountry string
	VisaType           string
	TravelDate         *time.Time

	// DateLocale is the country whose date convention the field values use.
	DateLocale string
}

// Input is everything the tiers look at.
type Input struct {
	Matches              []models.FieldMatch
	ExtractionConfidence float64
	Context              Context

	// CriticalSelections are labels of legally sensitive questions answered yes.
	CriticalSelections []string

	// AIOptIn requests semantic review regardless of the other gate inputs.
	AIOptIn bool
}

// fieldValue is the first non-empty populated value seen for a canonical path.
type fieldValue struct {
	value string
	label string
}

// fieldSet indexes matched fields by canonical path.
type fieldSet struct {
	values map[matcher.FieldID]fieldValue
	order  []matcher.FieldID
	locale string
}

func newFieldSet(matches []models.FieldMatch, locale string) *fieldSet {
	fs := &fieldSet{values: make(map[matcher.FieldID]fieldValue), locale: locale}
	for _, m := range matches {
		if !m.Matched() {
			continue
		}
		id := matcher.FieldID(*m.CanonicalPath)
		v := strings.TrimSpace(m.PopulatedValue)
		label := id.Label()
		if m.ExtractedField != nil && m.ExtractedField.Label != "" {
			label = m.ExtractedField.Label
		}
		existing, seen := fs.values[id]
		if !seen {
			fs.order = append(fs.order, id)
			fs.values[id] = fieldValue{value: v, label: label}
			continue
		}
		if existing.value == "" && v != "" {
			fs.values[id] = fieldValue{value: v, label: label}
		}
	}
	return fs
}

func (fs *fieldSet) has(id matcher.FieldID) bool {
	_, ok := fs.values[id]
	return ok
}

func (fs *fieldSet) value(id matcher.FieldID) string {
	return fs.values[id].value
}

func (fs *fieldSet) label(id matcher.FieldID) string {
	if v, ok := fs.values[id]; ok {
		return v.label
	}
	return id.Label()
}

// date parses a date-valued field in the document's locale.
func (fs *fieldSet) date(id matcher.FieldID) (time.Time, bool) {
	v := fs.value(id)
	if v == "" {
		return time.Time{}, false
	}
	return smartdoc.ParseDateIn(v, fs.locale)
}

func issue(field *string, code, message string, severity models.Severity, source models.IssueSource) models.ValidationIssue {
	return models.ValidationIssue{
		FieldID:  field,
		Code:     code,
		Message:  message,
		Severity: severity,
		Source:   source,
	}
}

func fieldRef(id matcher.FieldID) *string {
	return models.StringPtr(id.Path())
}

// sortIssues orders issues by form-wide first, then field order on the form, then code.
func sortIssues(issues []models.ValidationIssue, order []matcher.FieldID) {
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id.Path()] = i + 1
	}
	rank := func(is models.ValidationIssue) int {
		if is.FieldID == nil {
			return 0
		}
		if p, ok := pos[*is.FieldID]; ok {
			return p
		}
		return len(order) + 1
	}
	sort.SliceStable(issues, func(i, j int) bool {
		ri, rj := rank(issues[i]), rank(issues[j])
		if ri != rj {
			return ri < rj
		}
		if issues[i].FieldKey() != issues[j].FieldKey() {
			return issues[i].FieldKey() < issues[j].FieldKey()
		}
		return issues[i].Code < issues[j].Code
	})
}
