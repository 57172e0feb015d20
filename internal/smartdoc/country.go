package smartdoc

import (
	"math"
	"sort"
	"strings"

	"formintel/pkg/models"
)

// comparableConfidence is the gap under which Arabic and English count as co-detected.
const comparableConfidence = 0.15

// languageCountries maps a base language to the country assumed when no region subtag is present.
var languageCountries = map[string]string{
	"en":  "US",
	"fr":  "FR",
	"de":  "DE",
	"es":  "ES",
	"it":  "IT",
	"pt":  "PT",
	"nl":  "NL",
	"ru":  "RU",
	"tr":  "TR",
	"fa":  "IR",
	"ur":  "PK",
	"hi":  "IN",
	"bn":  "BD",
	"ta":  "IN",
	"ml":  "IN",
	"zh":  "CN",
	"ja":  "JP",
	"ko":  "KR",
	"th":  "TH",
	"vi":  "VN",
	"id":  "ID",
	"ms":  "MY",
	"tl":  "PH",
	"fil": "PH",
	"sw":  "KE",
	"am":  "ET",
}

// inferCountry picks the highest-confidence language and maps it to an ISO
// country code. Arabic, and Arabic co-detected with English at comparable
// confidence, resolve to the configured Gulf default.
func inferCountry(languages []models.LanguageDetection, gulfDefault string) (string, string) {
	if len(languages) == 0 {
		return "", ""
	}

	ranked := make([]models.LanguageDetection, len(languages))
	copy(ranked, languages)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Confidence > ranked[j].Confidence
	})

	if len(ranked) > 1 {
		a, b := baseLanguage(ranked[0].Code), baseLanguage(ranked[1].Code)
		if ((a == "ar" && b == "en") || (a == "en" && b == "ar")) &&
			math.Abs(ranked[0].Confidence-ranked[1].Confidence) <= comparableConfidence {
			return gulfDefault, "arabic and english co-detected"
		}
	}

	top := ranked[0].Code
	if region := regionSubtag(top); region != "" {
		return region, "locale " + top
	}
	base := baseLanguage(top)
	if base == "ar" {
		return gulfDefault, "arabic detected without region"
	}
	if country, ok := languageCountries[base]; ok {
		return country, "language " + base
	}
	return "", ""
}

func baseLanguage(code string) string {
	code = strings.ToLower(strings.ReplaceAll(code, "_", "-"))
	if i := strings.IndexByte(code, '-'); i >= 0 {
		return code[:i]
	}
	return code
}

// regionSubtag returns the two-letter region of a BCP-47 code such as "en-GB".
func regionSubtag(code string) string {
	parts := strings.Split(strings.ReplaceAll(code, "_", "-"), "-")
	for _, p := range parts[1:] {
		if len(p) == 2 && isAlpha(p) {
			return strings.ToUpper(p)
		}
	}
	return ""
}

func isAlpha(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}
