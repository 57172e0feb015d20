// Package matcher resolves free-form form labels to canonical profile fields
// and pulls the corresponding values from the applicant's profile.
package matcher

import (
	"math"

	"github.com/agext/levenshtein"
	"github.com/rs/zerolog"

	"formintel/internal/logger"
	"formintel/pkg/models"
)

// DefaultAcceptanceThreshold is the minimum similarity for a label to match.
const DefaultAcceptanceThreshold = 0.72

const scoreEpsilon = 1e-9

type preparedVariant struct {
	text   string
	tokens map[string]struct{}
}

type preparedField struct {
	field    *CanonicalField
	variants []preparedVariant
}

// prepared holds the normalized dictionary; read-only after init.
var prepared = func() []preparedField {
	out := make([]preparedField, len(canonicalFields))
	for i := range canonicalFields {
		f := &canonicalFields[i]
		pf := preparedField{field: f}
		for _, v := range f.Variants {
			toks := tokens(v)
			pf.variants = append(pf.variants, preparedVariant{text: normalizeLabel(v), tokens: tokenSet(toks)})
		}
		out[i] = pf
	}
	return out
}()

func tokenSet(toks []string) map[string]struct{} {
	set := make(map[string]struct{}, len(toks))
	for _, t := range toks {
		set[t] = struct{}{}
	}
	return set
}

// Matcher scores labels against the canonical dictionary. It is safe for concurrent use.
type Matcher struct {
	threshold float64
	log       zerolog.Logger
}

// New creates a matcher. A non-positive threshold selects DefaultAcceptanceThreshold.
func New(threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = DefaultAcceptanceThreshold
	}
	return &Matcher{
		threshold: threshold,
		log:       logger.WithComponent("matcher"),
	}
}

type matchOptions struct {
	profile    *models.Profile
	dataSource Category
}

// MatchOption configures a single Match call.
type MatchOption func(*matchOptions)

// WithProfile supplies the profile used to populate matched fields.
func WithProfile(p *models.Profile) MatchOption {
	return func(o *matchOptions) { o.profile = p }
}

// WithDataSource prefers canonical fields of this category when scores tie.
func WithDataSource(c Category) MatchOption {
	return func(o *matchOptions) { o.dataSource = c }
}

// candidate is the best variant of one canonical field for a label.
type candidate struct {
	field    *CanonicalField
	score    float64
	distance int
}

// Match resolves every field. Results are in input order and reference the input fields.
func (m *Matcher) Match(fields []models.ExtractedField, opts ...MatchOption) []models.FieldMatch {
	var o matchOptions
	for _, opt := range opts {
		opt(&o)
	}

	matches := make([]models.FieldMatch, len(fields))
	var matched, fromProfile int
	for i := range fields {
		matches[i] = m.matchField(&fields[i], o)
		if matches[i].Matched() {
			matched++
		}
		if matches[i].ValueSource == models.ValueFromProfile {
			fromProfile++
		}
	}

	m.log.Debug().
		Int("fields", len(fields)).
		Int("matched", matched).
		Int("from_profile", fromProfile).
		Msg("Labels matched")

	return matches
}

func (m *Matcher) matchField(field *models.ExtractedField, o matchOptions) models.FieldMatch {
	result := models.FieldMatch{
		ExtractedField: field,
		PopulatedValue: field.Value,
		ValueSource:    models.ValueFromExtraction,
	}

	best, ok := m.best(field.Label, o.dataSource)
	if !ok {
		return result
	}

	result.CanonicalPath = models.StringPtr(best.field.ID.Path())
	result.Field = best.field.ID.Path()
	result.MatchConfidence = best.score
	if o.profile != nil {
		if v, ok := GetValueFromProfile(o.profile, best.field.ID.Path()); ok {
			result.PopulatedValue = v
			result.ValueSource = models.ValueFromProfile
		}
	}
	return result
}

// best returns the highest-scoring canonical field above the threshold.
// Ties prefer the data-source category, then the smaller edit distance, then
// declaration order.
func (m *Matcher) best(label string, dataSource Category) (candidate, bool) {
	labelToks := tokens(label)
	if len(labelToks) == 0 {
		return candidate{}, false
	}
	labelText := normalizeLabel(label)
	labelSet := tokenSet(labelToks)

	var winner candidate
	found := false
	for _, pf := range prepared {
		c := candidate{field: pf.field, score: -1, distance: math.MaxInt}
		for _, v := range pf.variants {
			s := score(labelText, labelSet, v)
			d := levenshtein.Distance(labelText, v.text, nil)
			if s > c.score+scoreEpsilon || (math.Abs(s-c.score) <= scoreEpsilon && d < c.distance) {
				c.score, c.distance = s, d
			}
		}
		if c.score < m.threshold {
			continue
		}
		if !found || better(c, winner, dataSource) {
			winner, found = c, true
		}
	}
	return winner, found
}

func better(c, current candidate, dataSource Category) bool {
	if c.score > current.score+scoreEpsilon {
		return true
	}
	if c.score < current.score-scoreEpsilon {
		return false
	}
	if dataSource != "" {
		cIn, curIn := c.field.Category == dataSource, current.field.Category == dataSource
		if cIn != curIn {
			return cIn
		}
	}
	return c.distance < current.distance
}

// score combines character similarity with token overlap so reordered labels
// ("Name of Father" and "Father's Name") still match.
func score(label string, labelSet map[string]struct{}, v preparedVariant) float64 {
	if label == v.text {
		return 1
	}
	sim := levenshtein.Similarity(label, v.text, nil)

	var shared int
	for t := range labelSet {
		if _, ok := v.tokens[t]; ok {
			shared++
		}
	}
	dice := 2 * float64(shared) / float64(len(labelSet)+len(v.tokens))
	if overlap := 0.95 * dice; overlap > sim {
		return overlap
	}
	return sim
}
