package interpret

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgdiag-pipeline/internal/models"
)

func TestBuildRequest_Summary(t *testing.T) {
	req := BuildRequest(testAggregate())

	assert.Equal(t, "alpha", req.Team)
	assert.Contains(t, req.Summary, "Respondents: 5")
	assert.Contains(t, req.Summary, "Input: 4.10 (excellent, 2 questions)")
	assert.Contains(t, req.Summary, "Output: no data")
	assert.Contains(t, req.Summary, "Highest item: NO1 at 4.50")
	assert.Contains(t, req.Summary, "Lowest item: NO14 at 3.20")
}

func TestBuildRequest_MasksTeamNameInComments(t *testing.T) {
	agg := testAggregate()
	agg.Stats.FreeText = map[string][]string{
		"NO40": {"ALPHA feels overloaded", "things improved since Alpha reorganized"},
	}

	req := BuildRequest(agg)

	assert.NotContains(t, strings.ToLower(req.Prompt), "- alpha feels")
	assert.Contains(t, req.Prompt, "- the team feels overloaded")
	assert.Contains(t, req.Prompt, "since the team reorganized")
}

func TestBuildRequest_LowSampleNote(t *testing.T) {
	agg := testAggregate()
	agg.LowSample = true

	req := BuildRequest(agg)

	assert.Contains(t, req.Summary, "(below minimum sample)")
	assert.Contains(t, req.Prompt, "sample is small")
}

func TestBuildRequest_CommentSampleCap(t *testing.T) {
	agg := testAggregate()
	comments := make([]string, 20)
	for i := range comments {
		comments[i] = "comment"
	}
	agg.Stats.FreeText = map[string][]string{"NO40": comments}

	req := BuildRequest(agg)

	assert.Equal(t, maxCommentSamples, strings.Count(req.Prompt, "- comment"))
}

func TestMaskTeamName(t *testing.T) {
	assert.Equal(t, "the team ships late", MaskTeamName("Payments ships late", "Payments"))
	assert.Equal(t, "the team ships late", MaskTeamName("PAYMENTS ships late", "payments"))
	assert.Equal(t, "no mention here", MaskTeamName("no mention here", "Payments"))
}

func TestMaskTeamName_UnassignedLeftAlone(t *testing.T) {
	text := "feedback from unassigned respondents"
	assert.Equal(t, text, MaskTeamName(text, models.UnassignedTeam))
	assert.Equal(t, text, MaskTeamName(text, "  "))
}

func TestSanitizeNarrative(t *testing.T) {
	raw := "```markdown\n## Findings\nThe **Input** area leads.\n\n\n\nFollow up soon.\n```"

	clean := SanitizeNarrative(raw)

	assert.Equal(t, "Findings\nThe Input area leads.\n\nFollow up soon.", clean)
}

func TestSanitizeNarrative_PlainTextUntouched(t *testing.T) {
	raw := "Scores are solid across all areas.\n\nKeep the cadence."
	assert.Equal(t, raw, SanitizeNarrative(raw))
}

func TestExtremeQuestions_Empty(t *testing.T) {
	_, _, ok := extremeQuestions(nil)
	require.False(t, ok)
}
