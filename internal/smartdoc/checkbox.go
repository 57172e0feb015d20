package smartdoc

import (
	"strings"

	"formintel/pkg/models"
)

// criticalKeywords mark checkbox questions with legal consequence for the applicant.
var criticalKeywords = []string{
	"criminal",
	"convicted",
	"conviction",
	"arrested",
	"offence",
	"offense",
	"deport",
	"removed from",
	"refused",
	"refusal",
	"denied",
	"overstay",
	"over-stay",
	"visa cancel",
	"banned",
	"terroris",
	"espionage",
	"war crime",
	"genocide",
	"trafficking",
	"narcotic",
}

var selectedValues = map[string]bool{
	"selected":   true,
	"checked":    true,
	"yes":        true,
	"y":          true,
	"true":       true,
	"on":         true,
	"x":          true,
	"✓":          true,
	"✔":          true,
	"☑":          true,
	"☒":          true,
	":selected:": true,
}

// CriticalAnswer is a legally sensitive checkbox question and its normalized state.
type CriticalAnswer struct {
	Label     string `json:"label"`
	Selected  bool   `json:"selected"`
	PageIndex int    `json:"page_index"`
}

// NormalizeSelection maps the many spellings of a ticked box to selected/unselected.
func NormalizeSelection(value string) string {
	if selectedValues[strings.ToLower(strings.TrimSpace(value))] {
		return "selected"
	}
	return "unselected"
}

func criticalKeyword(label string) (string, bool) {
	l := strings.ToLower(label)
	for _, kw := range criticalKeywords {
		if strings.Contains(l, kw) {
			return kw, true
		}
	}
	return "", false
}

// IsCriticalLabel reports whether a checkbox label asks a legally sensitive question.
func IsCriticalLabel(label string) bool {
	_, ok := criticalKeyword(label)
	return ok
}

func analyzeCheckbox(field models.ExtractedField) (models.ExtractedField, *CriticalAnswer) {
	out := field
	out.Value = NormalizeSelection(field.Value)
	if !IsCriticalLabel(field.Label) {
		return out, nil
	}
	return out, &CriticalAnswer{
		Label:     field.Label,
		Selected:  out.Value == "selected",
		PageIndex: field.PageIndex,
	}
}
