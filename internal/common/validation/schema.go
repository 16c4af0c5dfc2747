package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Well-known dataset column names. Question columns are NO1..NO43.
const (
	ColumnTeam       = "team"
	ColumnRespondent = "respondent_id"
	ColumnSubmitted  = "submitted_at"
)

// QuestionKeyPattern matches the survey question columns NO1 through NO43.
const QuestionKeyPattern = `^NO([1-9]|[12][0-9]|3[0-9]|4[0-3])$`

var questionKeyRegexp = regexp.MustCompile(QuestionKeyPattern)

// IsQuestionColumn reports whether name is one of the NO1..NO43 columns.
func IsQuestionColumn(name string) bool {
	return questionKeyRegexp.MatchString(name)
}

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// SurveyRowSchema returns the JSON schema a single survey row must satisfy.
// Scored answers stay loose here (string, number or null) because Likert text
// is coerced later; the schema only rejects rows whose shape is unusable.
func SurveyRowSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			ColumnTeam: map[string]interface{}{
				"type": []interface{}{"string", "null"},
			},
			ColumnRespondent: map[string]interface{}{
				"type": []interface{}{"string", "null"},
			},
			ColumnSubmitted: map[string]interface{}{
				"type": []interface{}{"string", "null"},
			},
		},
		"patternProperties": map[string]interface{}{
			QuestionKeyPattern: map[string]interface{}{
				"type": []interface{}{"string", "number", "null"},
			},
		},
		"additionalProperties": true,
	}
}

// ValidateRow validates one raw survey row against the survey-row schema.
func ValidateRow(row map[string]interface{}) (*ValidationResult, error) {
	schemaLoader := gojsonschema.NewGoLoader(SurveyRowSchema())
	documentLoader := gojsonschema.NewGoLoader(row)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	if result.Valid() {
		return &ValidationResult{Valid: true}, nil
	}

	errs := make([]ValidationError, len(result.Errors()))
	for i, desc := range result.Errors() {
		errs[i] = ValidationError{
			Field:   desc.Field(),
			Message: desc.Description(),
			Code:    strings.ToUpper(desc.Type()),
		}
	}
	return &ValidationResult{Valid: false, Errors: errs}, nil
}

// ColumnReport describes how a dataset header lines up with the survey layout.
type ColumnReport struct {
	Missing    []string `json:"missing,omitempty"`
	Unknown    []string `json:"unknown,omitempty"`
	Duplicates []string `json:"duplicates,omitempty"`
	// Questions is the count of recognized NO1..NO43 columns.
	Questions int `json:"questions"`
}

// Usable reports whether ingestion can proceed with this header: the team
// column and at least one question column must be present.
func (cr ColumnReport) Usable() bool {
	return len(cr.Missing) == 0 && cr.Questions > 0
}

// InspectColumns checks a dataset header row. The team column is required;
// unknown and duplicate columns are reported but never fatal on their own.
func InspectColumns(headers []string) ColumnReport {
	report := ColumnReport{}
	seen := make(map[string]int, len(headers))

	for _, name := range headers {
		seen[name]++
		switch {
		case name == ColumnTeam, name == ColumnRespondent, name == ColumnSubmitted:
			// Known metadata column
		case IsQuestionColumn(name):
			report.Questions++
		default:
			report.Unknown = append(report.Unknown, name)
		}
	}

	for _, name := range headers {
		if seen[name] > 1 {
			report.Duplicates = append(report.Duplicates, name)
			seen[name] = 0 // report each duplicate once
		}
	}

	if _, present := seen[ColumnTeam]; !present {
		report.Missing = append(report.Missing, ColumnTeam)
	}

	return report
}

// GetErrorMessages returns a simple list of error messages
func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}

// HasErrors checks if validation has errors for specific field
func (vr *ValidationResult) HasErrors(field string) bool {
	for _, err := range vr.Errors {
		if err.Field == field {
			return true
		}
	}
	return false
}

// ValidateEmail validates email format
func ValidateEmail(email string) bool {
	emailPattern := regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	return emailPattern.MatchString(email)
}
