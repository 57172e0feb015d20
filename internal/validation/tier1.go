package validation

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"formintel/internal/matcher"
	"formintel/pkg/models"
)

//go:embed schema/tier1.schema.json
var tier1Schema []byte

const tier1SchemaURL = "tier1.schema.json"

// maxPlausibleAge bounds date-of-birth plausibility.
const maxPlausibleAge = 120

// coreFields are checked for presence whenever the form carries them.
var coreFields = map[matcher.FieldID]bool{
	matcher.GivenName:      true,
	matcher.Surname:        true,
	matcher.FullName:       true,
	matcher.DateOfBirth:    true,
	matcher.Nationality:    true,
	matcher.PassportNumber: true,
}

// SchemaValidator is Tier 1: structural and format conformance. It produces
// only error-severity issues and is deterministic for a fixed clock.
type SchemaValidator struct {
	schema *jsonschema.Schema
	now    func() time.Time
}

// NewSchemaValidator compiles the embedded schema. now may be nil.
func NewSchemaValidator(now func() time.Time) (*SchemaValidator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	compiler.AssertFormat = true
	if err := compiler.AddResource(tier1SchemaURL, bytes.NewReader(tier1Schema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile(tier1SchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	if now == nil {
		now = time.Now
	}
	return &SchemaValidator{schema: schema, now: now}, nil
}

// Validate returns the Tier 1 issues for the field set.
func (v *SchemaValidator) Validate(in Input) []models.ValidationIssue {
	fs := newFieldSet(in.Matches, in.Context.DateLocale)
	doc := v.document(fs)

	var issues []models.ValidationIssue
	if err := v.schema.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			seen := make(map[string]bool)
			for _, leaf := range leaves(verr) {
				if is, ok := v.schemaIssue(fs, leaf); ok && !seen[is.FieldKey()+is.Code] {
					seen[is.FieldKey()+is.Code] = true
					issues = append(issues, is)
				}
			}
		}
	}

	issues = dropShadowedByRequired(issues)
	issues = append(issues, v.checkDates(fs)...)
	sortIssues(issues, fs.order)
	return issues
}

// dropShadowedByRequired keeps only the presence issue for empty fields.
func dropShadowedByRequired(issues []models.ValidationIssue) []models.ValidationIssue {
	required := make(map[string]bool)
	for _, is := range issues {
		if is.Code == CodeRequired {
			required[is.FieldKey()] = true
		}
	}
	out := issues[:0]
	for _, is := range issues {
		if required[is.FieldKey()] && is.Code != CodeRequired {
			continue
		}
		out = append(out, is)
	}
	return out
}

// document builds the instance validated against the schema: one string per
// canonical path, with dates rewritten to ISO form when they parse.
func (v *SchemaValidator) document(fs *fieldSet) map[string]any {
	doc := make(map[string]any, len(fs.order))
	for _, id := range fs.order {
		val := fs.value(id)
		if val == "" && !coreFields[id] {
			continue
		}
		if id.IsDate() && val != "" {
			if t, ok := fs.date(id); ok {
				val = t.Format(time.DateOnly)
			}
		}
		doc[id.Path()] = val
	}
	return doc
}

// leaves flattens a validation error tree to its most specific causes.
func leaves(e *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(e.Causes) == 0 {
		return []*jsonschema.ValidationError{e}
	}
	var out []*jsonschema.ValidationError
	for _, c := range e.Causes {
		out = append(out, leaves(c)...)
	}
	return out
}

func (v *SchemaValidator) schemaIssue(fs *fieldSet, leaf *jsonschema.ValidationError) (models.ValidationIssue, bool) {
	path := strings.TrimPrefix(leaf.InstanceLocation, "/")
	if path == "" {
		return models.ValidationIssue{}, false
	}
	id := matcher.FieldID(path)
	label := fs.label(id)

	keyword := leaf.KeywordLocation
	if i := strings.LastIndexByte(keyword, '/'); i >= 0 {
		keyword = keyword[i+1:]
	}

	var code, msg string
	switch keyword {
	case "minLength":
		code, msg = CodeRequired, fmt.Sprintf("%s is required", label)
	case "maxLength":
		code, msg = CodeLength, fmt.Sprintf("%s is too long", label)
	case "format":
		if id.IsDate() {
			code, msg = CodeInvalidDate, fmt.Sprintf("%s is not a recognizable date: %q", label, fs.value(id))
		} else {
			code, msg = CodeInvalidEmail, fmt.Sprintf("%s is not a valid email address", label)
		}
	case "pattern":
		code, msg = CodeFormat, fmt.Sprintf("%s has an invalid format: %q", label, fs.value(id))
	default:
		code, msg = CodeFormat, fmt.Sprintf("%s: %s", label, leaf.Message)
	}
	return issue(fieldRef(id), code, msg, models.SeverityError, models.SourceTier1), true
}

// checkDates applies the clock-dependent plausibility checks.
func (v *SchemaValidator) checkDates(fs *fieldSet) []models.ValidationIssue {
	var issues []models.ValidationIssue
	today := truncateDay(v.now())

	if dob, ok := fs.date(matcher.DateOfBirth); ok {
		age := ageAt(dob, today)
		if dob.After(today) || age > maxPlausibleAge {
			issues = append(issues, issue(fieldRef(matcher.DateOfBirth), CodeImplausibleDOB,
				fmt.Sprintf("%s %s gives an implausible age of %d", fs.label(matcher.DateOfBirth), dob.Format(time.DateOnly), age),
				models.SeverityError, models.SourceTier1))
		}
	}

	if expiry, ok := fs.date(matcher.PassportExpiryDate); ok && !expiry.After(today) {
		issues = append(issues, issue(fieldRef(matcher.PassportExpiryDate), CodePassportExpired,
			fmt.Sprintf("Passport expired on %s", expiry.Format(time.DateOnly)),
			models.SeverityError, models.SourceTier1))
	}
	return issues
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ageAt returns completed years between dob and at.
func ageAt(dob, at time.Time) int {
	years := at.Year() - dob.Year()
	if at.Month() < dob.Month() || (at.Month() == dob.Month() && at.Day() < dob.Day()) {
		years--
	}
	return years
}
