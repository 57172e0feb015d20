package validation

import "errors"

var (
	// ErrAIValidationUnavailable is returned by the semantic tier when the
	// reviewer fails or times out. The engine swallows it unless soft-fail is off.
	ErrAIValidationUnavailable = errors.New("AI validation unavailable")

	// ErrAIValidationTimeout marks a semantic review that exceeded its time budget.
	// It is always reported together with ErrAIValidationUnavailable.
	ErrAIValidationTimeout = errors.New("AI validation timed out")

	// ErrInvalidRules is returned when a rule file references unknown fields.
	ErrInvalidRules = errors.New("invalid validation rules")
)

// Issue codes.
const (
	CodeRequired        = "T1_REQUIRED"
	CodeFormat          = "T1_FORMAT"
	CodeLength          = "T1_LENGTH"
	CodeInvalidDate     = "T1_INVALID_DATE"
	CodeInvalidEmail    = "T1_INVALID_EMAIL"
	CodeImplausibleDOB  = "T1_IMPLAUSIBLE_DOB"
	CodePassportExpired = "T1_PASSPORT_EXPIRED"

	CodePassportValidity    = "T2_PASSPORT_VALIDITY"
	CodeMinimumAge          = "T2_MINIMUM_AGE"
	CodeMissingRequired     = "T2_REQUIRED_FIELD"
	CodeCharacterLimit      = "T2_CHARACTER_LIMIT"
	CodeCrossField          = "T2_CROSS_FIELD"
	CodeCommonMistake       = "T2_COMMON_MISTAKE"
	CodeCriticalDeclaration = "T2_CRITICAL_DECLARATION"
	CodeRuleMissing         = "VALIDATION_RULE_MISSING"

	CodeContradiction = "T3_CONTRADICTION"
	CodeImplausible   = "T3_IMPLAUSIBLE"
)
