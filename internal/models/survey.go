// internal/models/survey.go
package models

import (
	"fmt"
	"time"
)

// Question key layout of the organizational-effectiveness instrument: NO1-NO39
// carry 5-point scored items split across the three diagnostic areas, NO40-NO43
// carry free-text responses. NO40 is the organizational-context question.
const (
	ScoredKeyFirst = 1
	ScoredKeyLast  = 39
	FreeTextFirst  = 40
	FreeTextLast   = 43

	ContextQuestionKey = "NO40"

	// UnassignedTeam is the reserved bucket for respondents without a team value.
	UnassignedTeam = "unassigned"
)

type FieldKind string

const (
	FieldKindScore FieldKind = "score"
	FieldKindText  FieldKind = "text"
)

// Answer is one cell of a survey submission. Order within a RawResponse follows
// the column order of the source dataset.
type Answer struct {
	Key string `json:"key"`
	Raw string `json:"raw"`
}

// RawResponse is one survey submission, immutable once ingested.
type RawResponse struct {
	RespondentID string    `json:"respondentId"`
	TeamID       string    `json:"teamId"`
	Answers      []Answer  `json:"answers"`
	SubmittedAt  time.Time `json:"submittedAt"`
}

// ExtractedField is a typed, per-answer record produced by the extractor.
// RespondentID is kept for traceability only and never appears in report output.
type ExtractedField struct {
	TeamID       string    `json:"teamId"`
	QuestionKey  string    `json:"questionKey"`
	Kind         FieldKind `json:"kind"`
	Score        float64   `json:"score,omitempty"`
	Text         string    `json:"text,omitempty"`
	RespondentID string    `json:"respondentId"`
}

// Dataset is the validated output of ingestion.
type Dataset struct {
	Label         string           `json:"label"`
	Columns       []string         `json:"columns"`
	Responses     []RawResponse    `json:"responses"`
	Fields        []ExtractedField `json:"fields"`
	TotalRows     int              `json:"totalRows"`
	MalformedRows int              `json:"malformedRows"`
}

// Area is one of the three diagnostic areas of the instrument.
type Area string

const (
	AreaInput   Area = "Input"
	AreaProcess Area = "Process"
	AreaOutput  Area = "Output"
)

// Areas lists the diagnostic areas in instrument order.
func Areas() []Area {
	return []Area{AreaInput, AreaProcess, AreaOutput}
}

// QuestionKey returns the canonical key name for an item number.
func QuestionKey(n int) string {
	return fmt.Sprintf("NO%d", n)
}

// AreaForKey maps a scored question key to its diagnostic area:
// NO1-NO13 Input, NO14-NO26 Process, NO27-NO39 Output.
func AreaForKey(key string) (Area, bool) {
	n, ok := questionNumber(key)
	if !ok || n < ScoredKeyFirst || n > ScoredKeyLast {
		return "", false
	}
	switch {
	case n <= 13:
		return AreaInput, true
	case n <= 26:
		return AreaProcess, true
	default:
		return AreaOutput, true
	}
}

// IsScoredKey reports whether key names a 5-point scored item.
func IsScoredKey(key string) bool {
	n, ok := questionNumber(key)
	return ok && n >= ScoredKeyFirst && n <= ScoredKeyLast
}

// IsFreeTextKey reports whether key names a free-text item.
func IsFreeTextKey(key string) bool {
	n, ok := questionNumber(key)
	return ok && n >= FreeTextFirst && n <= FreeTextLast
}

func questionNumber(key string) (int, bool) {
	if len(key) < 3 || key[0] != 'N' || key[1] != 'O' {
		return 0, false
	}
	n := 0
	for _, c := range key[2:] {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}
