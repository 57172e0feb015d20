package validation

import (
	_ "embed"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-yaml"

	"formintel/internal/matcher"
	"formintel/pkg/models"
)

//go:embed rules/rules.yaml
var defaultRules []byte

// DefaultPassportValidityMonths applies when a rule set does not name its own window.
const DefaultPassportValidityMonths = 6

// RuleSet is one level of the rule hierarchy. Nil pointers inherit from the parent level.
type RuleSet struct {
	Name                   string             `yaml:"name"`
	PassportValidityMonths *int               `yaml:"passportValidityMonths"`
	MinimumAge             *int               `yaml:"minimumAge"`
	Required               []string           `yaml:"required"`
	Limits                 map[string]int     `yaml:"limits"`
	VisaTypes              map[string]RuleSet `yaml:"visaTypes"`
}

type mistakeRule struct {
	Code    string   `yaml:"code"`
	Fields  []string `yaml:"fields"`
	Pattern string   `yaml:"pattern"`
	Message string   `yaml:"message"`

	re *regexp.Regexp
}

type ruleFile struct {
	Generic        RuleSet            `yaml:"generic"`
	Countries      map[string]RuleSet `yaml:"countries"`
	CommonMistakes []mistakeRule      `yaml:"commonMistakes"`
}

// Rules is the effective, flattened rule set for one application.
type Rules struct {
	Name                   string
	PassportValidityMonths int
	MinimumAge             int
	Required               []matcher.FieldID
	Limits                 map[matcher.FieldID]int
	Generic                bool
}

// RuleValidator is Tier 2: business rules keyed by destination country and visa type.
type RuleValidator struct {
	file ruleFile
	now  func() time.Time
}

// NewRuleValidator loads the embedded rules. now may be nil.
func NewRuleValidator(now func() time.Time) (*RuleValidator, error) {
	return NewRuleValidatorFromYAML(defaultRules, now)
}

// NewRuleValidatorFromYAML loads rules from a YAML document.
func NewRuleValidatorFromYAML(data []byte, now func() time.Time) (*RuleValidator, error) {
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}
	if err := checkRuleSet("generic", file.Generic); err != nil {
		return nil, err
	}
	for code, rs := range file.Countries {
		if err := checkRuleSet(code, rs); err != nil {
			return nil, err
		}
	}
	for i := range file.CommonMistakes {
		m := &file.CommonMistakes[i]
		re, err := regexp.Compile(m.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: mistake %s: %v", ErrInvalidRules, m.Code, err)
		}
		m.re = re
		for _, f := range m.Fields {
			if f == "*" {
				continue
			}
			if _, ok := matcher.Lookup(f); !ok {
				return nil, fmt.Errorf("%w: mistake %s: unknown field %s", ErrInvalidRules, m.Code, f)
			}
		}
	}
	if now == nil {
		now = time.Now
	}
	return &RuleValidator{file: file, now: now}, nil
}

func checkRuleSet(name string, rs RuleSet) error {
	for _, f := range rs.Required {
		if _, ok := matcher.Lookup(f); !ok {
			return fmt.Errorf("%w: %s: unknown required field %s", ErrInvalidRules, name, f)
		}
	}
	for f := range rs.Limits {
		if _, ok := matcher.Lookup(f); !ok {
			return fmt.Errorf("%w: %s: unknown limited field %s", ErrInvalidRules, name, f)
		}
	}
	for visa, child := range rs.VisaTypes {
		if err := checkRuleSet(name+"/"+visa, child); err != nil {
			return err
		}
	}
	return nil
}

// Resolve flattens the rules for a destination and visa type. The returned
// issues report a missing country or visa type; resolution never fails.
func (v *RuleValidator) Resolve(ctx Context) (Rules, []models.ValidationIssue) {
	rules := Rules{
		Name:                   "Generic",
		PassportValidityMonths: DefaultPassportValidityMonths,
		Limits:                 make(map[matcher.FieldID]int),
		Generic:                true,
	}
	apply(&rules, v.file.Generic)

	country := strings.ToUpper(strings.TrimSpace(ctx.DestinationCountry))
	if country == "" {
		return rules, nil
	}

	var issues []models.ValidationIssue
	rs, ok := v.file.Countries[country]
	if !ok {
		issues = append(issues, issue(nil, CodeRuleMissing,
			fmt.Sprintf("No validation rules for destination %s; generic rules applied", country),
			models.SeverityWarning, models.SourceTier2))
		return rules, issues
	}
	apply(&rules, rs)
	rules.Generic = false

	visa := strings.ToLower(strings.TrimSpace(ctx.VisaType))
	if visa == "" {
		return rules, issues
	}
	child, ok := rs.VisaTypes[visa]
	if !ok {
		issues = append(issues, issue(nil, CodeRuleMissing,
			fmt.Sprintf("No validation rules for %s visa type %q; country rules applied", country, ctx.VisaType),
			models.SeverityWarning, models.SourceTier2))
		return rules, issues
	}
	apply(&rules, child)
	rules.Name = rules.Name + " / " + visa
	return rules, issues
}

func apply(rules *Rules, rs RuleSet) {
	if rs.Name != "" {
		rules.Name = rs.Name
	}
	if rs.PassportValidityMonths != nil {
		rules.PassportValidityMonths = *rs.PassportValidityMonths
	}
	if rs.MinimumAge != nil {
		rules.MinimumAge = *rs.MinimumAge
	}
	for _, f := range rs.Required {
		id := matcher.FieldID(f)
		if !slices.Contains(rules.Required, id) {
			rules.Required = append(rules.Required, id)
		}
	}
	for f, n := range rs.Limits {
		rules.Limits[matcher.FieldID(f)] = n
	}
}

// Validate returns the Tier 2 issues.
func (v *RuleValidator) Validate(in Input) []models.ValidationIssue {
	fs := newFieldSet(in.Matches, in.Context.DateLocale)
	rules, issues := v.Resolve(in.Context)

	travel, haveTravel := v.travelDate(in.Context, fs)
	if !haveTravel {
		travel = truncateDay(v.now())
	}

	issues = append(issues, v.passportWindow(fs, rules, travel)...)
	issues = append(issues, v.minimumAge(fs, rules, travel, haveTravel)...)
	issues = append(issues, v.required(fs, rules)...)
	issues = append(issues, v.limits(fs, rules)...)
	issues = append(issues, v.crossField(fs)...)
	issues = append(issues, v.commonMistakes(fs)...)

	for _, label := range in.CriticalSelections {
		issues = append(issues, issue(models.StringPtr(label), CodeCriticalDeclaration,
			fmt.Sprintf("Answered YES to %q; this declaration has legal consequences and must be confirmed with the applicant", label),
			models.SeverityWarning, models.SourceTier2))
	}

	sortIssues(issues, fs.order)
	return issues
}

// travelDate prefers the explicit context date, then the form's arrival date.
func (v *RuleValidator) travelDate(ctx Context, fs *fieldSet) (time.Time, bool) {
	if ctx.TravelDate != nil && !ctx.TravelDate.IsZero() {
		return truncateDay(*ctx.TravelDate), true
	}
	if t, ok := fs.date(matcher.IntendedArrival); ok {
		return t, true
	}
	return time.Time{}, false
}

func (v *RuleValidator) passportWindow(fs *fieldSet, rules Rules, travel time.Time) []models.ValidationIssue {
	expiry, ok := fs.date(matcher.PassportExpiryDate)
	if !ok {
		return nil
	}
	if err := CheckPassportValidity(expiry, travel, rules.PassportValidityMonths); err != nil {
		return []models.ValidationIssue{issue(fieldRef(matcher.PassportExpiryDate), CodePassportValidity,
			err.Error(), models.SeverityError, models.SourceTier2)}
	}
	return nil
}

// CheckPassportValidity fails when the passport expires on or before the
// travel date, or less than requiredMonths whole months after it.
func CheckPassportValidity(expiry, travel time.Time, requiredMonths int) error {
	if !expiry.After(travel) {
		return fmt.Errorf("passport expires on %s, on or before the travel date %s",
			expiry.Format(time.DateOnly), travel.Format(time.DateOnly))
	}
	if months := monthsBetween(travel, expiry); months < requiredMonths {
		return fmt.Errorf("passport must be valid for at least %d months after the travel date %s; it expires on %s (%d months)",
			requiredMonths, travel.Format(time.DateOnly), expiry.Format(time.DateOnly), months)
	}
	return nil
}

// monthsBetween counts whole calendar months from a to b.
func monthsBetween(a, b time.Time) int {
	months := (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
	if b.Day() < a.Day() {
		months--
	}
	return months
}

func (v *RuleValidator) minimumAge(fs *fieldSet, rules Rules, at time.Time, atTravel bool) []models.ValidationIssue {
	if rules.MinimumAge <= 0 {
		return nil
	}
	dob, ok := fs.date(matcher.DateOfBirth)
	if !ok {
		return nil
	}
	if err := CheckMinimumAge(dob, at, rules.MinimumAge); err != nil {
		msg := err.Error()
		if !atTravel {
			msg += " today"
		}
		return []models.ValidationIssue{issue(fieldRef(matcher.DateOfBirth), CodeMinimumAge,
			msg, models.SeverityError, models.SourceTier2)}
	}
	return nil
}

// CheckMinimumAge fails when the applicant is younger than minimumAge on date at.
func CheckMinimumAge(dob, at time.Time, minimumAge int) error {
	if age := ageAt(dob, at); age < minimumAge {
		return fmt.Errorf("applicant must be at least %d years old; age is %d on %s",
			minimumAge, age, at.Format(time.DateOnly))
	}
	return nil
}

func (v *RuleValidator) required(fs *fieldSet, rules Rules) []models.ValidationIssue {
	var issues []models.ValidationIssue
	for _, id := range rules.Required {
		if fs.value(id) != "" {
			continue
		}
		issues = append(issues, issue(fieldRef(id), CodeMissingRequired,
			fmt.Sprintf("%s is required for %s", fs.label(id), rules.Name),
			models.SeverityError, models.SourceTier2))
	}
	return issues
}

func (v *RuleValidator) limits(fs *fieldSet, rules Rules) []models.ValidationIssue {
	ids := make([]matcher.FieldID, 0, len(rules.Limits))
	for id := range rules.Limits {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var issues []models.ValidationIssue
	for _, id := range ids {
		limit := rules.Limits[id]
		if n := utf8.RuneCountInString(fs.value(id)); n > limit {
			issues = append(issues, issue(fieldRef(id), CodeCharacterLimit,
				fmt.Sprintf("%s has %d characters; %s allows %d", fs.label(id), n, rules.Name, limit),
				models.SeverityError, models.SourceTier2))
		}
	}
	return issues
}

func (v *RuleValidator) crossField(fs *fieldSet) []models.ValidationIssue {
	var issues []models.ValidationIssue

	issued, haveIssued := fs.date(matcher.PassportIssueDate)
	expiry, haveExpiry := fs.date(matcher.PassportExpiryDate)
	dob, haveDOB := fs.date(matcher.DateOfBirth)

	if haveIssued && haveExpiry && !issued.Before(expiry) {
		issues = append(issues, issue(fieldRef(matcher.PassportIssueDate), CodeCrossField,
			"Passport issue date is not before its expiry date", models.SeverityError, models.SourceTier2))
	}
	if haveIssued && haveDOB && issued.Before(dob) {
		issues = append(issues, issue(fieldRef(matcher.PassportIssueDate), CodeCrossField,
			"Passport issue date is before the date of birth", models.SeverityError, models.SourceTier2))
	}

	arrival, haveArrival := fs.date(matcher.IntendedArrival)
	departure, haveDeparture := fs.date(matcher.IntendedDeparture)
	if haveArrival && haveDeparture && departure.Before(arrival) {
		issues = append(issues, issue(fieldRef(matcher.IntendedDeparture), CodeCrossField,
			"Departure date is before the arrival date", models.SeverityError, models.SourceTier2))
	}

	if spouse := fs.value(matcher.SpouseName); spouse != "" {
		status := strings.ToLower(fs.value(matcher.MaritalStatus))
		if status == "single" || status == "unmarried" || status == "never married" {
			issues = append(issues, issue(fieldRef(matcher.SpouseName), CodeCrossField,
				fmt.Sprintf("Spouse name is filled in but marital status is %q", fs.value(matcher.MaritalStatus)),
				models.SeverityWarning, models.SourceTier2))
		}
	}

	given, surname := fs.value(matcher.GivenName), fs.value(matcher.Surname)
	if given != "" && strings.EqualFold(given, surname) {
		issues = append(issues, issue(fieldRef(matcher.Surname), CodeCrossField,
			"Given name and surname are identical; check that they were not entered twice",
			models.SeverityWarning, models.SourceTier2))
	}
	return issues
}

func (v *RuleValidator) commonMistakes(fs *fieldSet) []models.ValidationIssue {
	var issues []models.ValidationIssue
	for _, id := range fs.order {
		val := fs.value(id)
		if val == "" {
			continue
		}
		for _, m := range v.file.CommonMistakes {
			if !m.appliesTo(id) || !m.re.MatchString(val) {
				continue
			}
			issues = append(issues, issue(fieldRef(id), CodeCommonMistake,
				fmt.Sprintf("%s %s", fs.label(id), m.Message), models.SeverityWarning, models.SourceTier2))
		}
	}
	return issues
}

func (m mistakeRule) appliesTo(id matcher.FieldID) bool {
	for _, f := range m.Fields {
		if f == "*" || matcher.FieldID(f) == id {
			return true
		}
	}
	return false
}
