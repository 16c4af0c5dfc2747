// internal/pipeline/interpret/prompt.go
package interpret

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"orgdiag-pipeline/internal/models"
)

// maxCommentSamples caps how many free-text answers enter the prompt.
const maxCommentSamples = 8

// BuildRequest renders the provider-neutral narrative request for one team.
// Team-name mentions inside free-text samples are masked before they reach
// the prompt.
func BuildRequest(agg *models.TeamAggregate) *Request {
	summary := buildSummary(agg)
	return &Request{
		Team:    agg.TeamID,
		Summary: summary,
		Prompt:  buildPrompt(agg, summary),
	}
}

func buildPrompt(agg *models.TeamAggregate, summary string) string {
	var parts []string

	parts = append(parts, "You are an organizational-effectiveness consultant. Interpret the survey results below based ONLY on the provided numbers.")
	parts = append(parts, fmt.Sprintf("\nTeam: %s", agg.TeamID))
	parts = append(parts, "\nAggregated Results:")
	parts = append(parts, summary)

	if samples := freeTextSamples(agg); len(samples) > 0 {
		parts = append(parts, "\nRespondent Comments:")
		parts = append(parts, samples...)
	}

	parts = append(parts, "\nInstructions:")
	parts = append(parts, "- Ground every statement in the numbers above")
	parts = append(parts, "- Name the strongest and weakest diagnostic areas")
	parts = append(parts, "- Suggest two or three concrete follow-up actions")
	if agg.LowSample {
		parts = append(parts, "- Note that the sample is small and conclusions are tentative")
	}
	parts = append(parts, "- Keep the tone factual and professional, 200-300 words")

	parts = append(parts, "\nInterpretation:")

	return strings.Join(parts, "\n")
}

func buildSummary(agg *models.TeamAggregate) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Respondents: %d", agg.Stats.Respondents)
	if agg.LowSample {
		b.WriteString(" (below minimum sample)")
	}
	b.WriteString("\n")

	for _, area := range agg.Stats.Areas {
		if !area.HasData {
			fmt.Fprintf(&b, "%s: no data\n", area.Area)
			continue
		}
		fmt.Fprintf(&b, "%s: %.2f (%s, %d questions)\n", area.Area, area.Mean, area.Grade, area.Count)
	}

	if high, low, ok := extremeQuestions(agg.Stats.Questions); ok {
		fmt.Fprintf(&b, "Highest item: %s at %.2f\n", high.Key, high.Mean)
		fmt.Fprintf(&b, "Lowest item: %s at %.2f\n", low.Key, low.Mean)
	}

	return strings.TrimRight(b.String(), "\n")
}

func extremeQuestions(questions []models.QuestionStat) (high, low models.QuestionStat, ok bool) {
	if len(questions) == 0 {
		return high, low, false
	}
	high, low = questions[0], questions[0]
	for _, q := range questions[1:] {
		if q.Mean > high.Mean {
			high = q
		}
		if q.Mean < low.Mean {
			low = q
		}
	}
	return high, low, true
}

func freeTextSamples(agg *models.TeamAggregate) []string {
	keys := make([]string, 0, len(agg.Stats.FreeText))
	for key := range agg.Stats.FreeText {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var samples []string
	for _, key := range keys {
		for _, text := range agg.Stats.FreeText[key] {
			if len(samples) == maxCommentSamples {
				return samples
			}
			samples = append(samples, "- "+MaskTeamName(text, agg.TeamID))
		}
	}
	return samples
}

// MaskTeamName replaces mentions of the team identifier in free text with a
// neutral placeholder so respondent comments never echo the team name into
// prompts or rendered documents.
func MaskTeamName(text, team string) string {
	team = strings.TrimSpace(team)
	if team == "" || team == models.UnassignedTeam {
		return text
	}
	pattern := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(team))
	return pattern.ReplaceAllString(text, "the team")
}

var (
	codeFencePattern = regexp.MustCompile("```[a-zA-Z]*\n?")
	boldPattern      = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	headingPattern   = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	blankRunPattern  = regexp.MustCompile(`\n{3,}`)
)

// SanitizeNarrative strips chat-markup artifacts from model output so the
// rendered document carries plain prose.
func SanitizeNarrative(text string) string {
	text = codeFencePattern.ReplaceAllString(text, "")
	text = boldPattern.ReplaceAllString(text, "$1")
	text = headingPattern.ReplaceAllString(text, "")
	text = blankRunPattern.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
