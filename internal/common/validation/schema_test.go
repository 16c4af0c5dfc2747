package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRowAccepted(t *testing.T) {
	row := map[string]interface{}{
		"team":          "alpha",
		"respondent_id": "r-001",
		"NO1":           4.0,
		"NO2":           "5",
		"NO40":          "communication could be better",
	}

	result, err := ValidateRow(row)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
}

func TestValidateRowAcceptsEmptyTeam(t *testing.T) {
	row := map[string]interface{}{
		"team": "",
		"NO1":  3.0,
	}

	result, err := ValidateRow(row)
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestValidateRowRejectsBadAnswerShape(t *testing.T) {
	row := map[string]interface{}{
		"team": "alpha",
		"NO5":  []interface{}{1, 2, 3},
	}

	result, err := ValidateRow(row)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.True(t, result.HasErrors("NO5"))
}

func TestValidateRowRejectsNonStringTeam(t *testing.T) {
	row := map[string]interface{}{
		"team": 7,
		"NO1":  4.0,
	}

	result, err := ValidateRow(row)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.True(t, result.HasErrors("team"))
	require.NotEmpty(t, result.GetErrorMessages())
}

func TestValidateRowAllowsUnknownColumns(t *testing.T) {
	row := map[string]interface{}{
		"team":       "alpha",
		"NO1":        4.0,
		"department": "R&D",
	}

	result, err := ValidateRow(row)
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestInspectColumnsUsableHeader(t *testing.T) {
	report := InspectColumns([]string{"respondent_id", "team", "NO1", "NO2", "NO40"})

	assert.True(t, report.Usable())
	assert.Empty(t, report.Missing)
	assert.Empty(t, report.Unknown)
	assert.Empty(t, report.Duplicates)
	assert.Equal(t, 3, report.Questions)
}

func TestInspectColumnsMissingTeam(t *testing.T) {
	report := InspectColumns([]string{"respondent_id", "NO1", "NO2"})

	assert.False(t, report.Usable())
	assert.Contains(t, report.Missing, "team")
}

func TestInspectColumnsNoQuestions(t *testing.T) {
	report := InspectColumns([]string{"team", "respondent_id"})

	assert.False(t, report.Usable())
	assert.Empty(t, report.Missing)
	assert.Equal(t, 0, report.Questions)
}

func TestInspectColumnsReportsUnknownAndDuplicates(t *testing.T) {
	report := InspectColumns([]string{"team", "NO1", "NO1", "department"})

	assert.True(t, report.Usable())
	assert.Contains(t, report.Unknown, "department")
	assert.Equal(t, []string{"NO1"}, report.Duplicates)
}

func TestIsQuestionColumn(t *testing.T) {
	assert.True(t, IsQuestionColumn("NO1"))
	assert.True(t, IsQuestionColumn("NO13"))
	assert.True(t, IsQuestionColumn("NO39"))
	assert.True(t, IsQuestionColumn("NO43"))

	assert.False(t, IsQuestionColumn("NO0"))
	assert.False(t, IsQuestionColumn("NO44"))
	assert.False(t, IsQuestionColumn("no1"))
	assert.False(t, IsQuestionColumn("NOx"))
	assert.False(t, IsQuestionColumn("team"))
}

func TestValidateEmail(t *testing.T) {
	assert.True(t, ValidateEmail("ops@example.com"))
	assert.True(t, ValidateEmail("first.last+tag@sub.example.org"))

	assert.False(t, ValidateEmail("not-an-email"))
	assert.False(t, ValidateEmail("missing@tld"))
	assert.False(t, ValidateEmail("@example.com"))
}
