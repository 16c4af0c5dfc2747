// internal/models/report.go
package models

import (
	"strings"
	"time"
)

// Grade bands for area and question means, per the instrument's scoring guide.
type Grade string

const (
	GradeExcellent        Grade = "excellent"
	GradeGood             Grade = "good"
	GradeAverage          Grade = "average"
	GradeNeedsImprovement Grade = "needs_improvement"
	GradeNotAvailable     Grade = "n/a"
)

// GradeForScore buckets a mean score: >=3.8 excellent, >=3.4 good, >=3.0
// average, below that needs improvement.
func GradeForScore(score float64, ok bool) Grade {
	if !ok {
		return GradeNotAvailable
	}
	switch {
	case score >= 3.8:
		return GradeExcellent
	case score >= 3.4:
		return GradeGood
	case score >= 3.0:
		return GradeAverage
	default:
		return GradeNeedsImprovement
	}
}

// ResponseSpread is the percentage share of each answer bucket for one question.
type ResponseSpread struct {
	VeryLow  float64 `json:"veryLow"`
	Low      float64 `json:"low"`
	Medium   float64 `json:"medium"`
	High     float64 `json:"high"`
	VeryHigh float64 `json:"veryHigh"`
	NegPct   float64 `json:"negPct"`
	MidPct   float64 `json:"midPct"`
	PosPct   float64 `json:"posPct"`
}

// QuestionStat is the aggregate of one scored question within one team.
// Objective marks questions where at least 80% of answers fall inside the
// 5-point scale; only objective questions enter the distribution chart.
type QuestionStat struct {
	Key       string         `json:"key"`
	Area      Area           `json:"area"`
	Mean      float64        `json:"mean"`
	Benchmark float64        `json:"benchmark"`
	Count     int            `json:"count"`
	Objective bool           `json:"objective"`
	Spread    ResponseSpread `json:"spread"`
}

// AreaSummary is the rolled-up view of one diagnostic area.
type AreaSummary struct {
	Area    Area    `json:"area"`
	Mean    float64 `json:"mean"`
	HasData bool    `json:"hasData"`
	Grade   Grade   `json:"grade"`
	Count   int     `json:"count"`
}

// AreaSegment marks the label index range one area occupies in the chart series.
type AreaSegment struct {
	Area Area `json:"area"`
	From int  `json:"from"`
	To   int  `json:"to"`
}

// ScoreDistribution is the chart payload comparing team means to benchmark.
type ScoreDistribution struct {
	Labels       []string      `json:"labels"`
	Benchmark    []float64     `json:"benchmark"`
	Organization []float64     `json:"organization"`
	Segments     []AreaSegment `json:"segments"`
}

// TeamStats holds everything computed from a team's extracted fields.
type TeamStats struct {
	Respondents  int                 `json:"respondents"`
	Areas        []AreaSummary       `json:"areas"`
	Questions    []QuestionStat      `json:"questions"`
	Distribution ScoreDistribution   `json:"distribution"`
	FreeText     map[string][]string `json:"freeText"`
}

// TeamAggregate is the grouper's output for one team. Every field shares the
// aggregate's TeamID; cross-team leakage is an invariant violation.
type TeamAggregate struct {
	TeamID    string           `json:"teamId"`
	Fields    []ExtractedField `json:"fields"`
	Stats     TeamStats        `json:"stats"`
	LowSample bool             `json:"lowSample"`
}

// PlaceholderNarrative is the fixed text rendered when interpretation could
// not be obtained. Explicitly marked, never model-fabricated.
const PlaceholderNarrative = "Interpretation unavailable. The narrative service could not be reached for this report; all scores and distributions below are complete."

// Narrative is the AI-produced interpretation for one team. A nil Narrative
// downstream means interpretation was unavailable; the pipeline carries that
// absence forward instead of fabricating text.
type Narrative struct {
	TeamID      string    `json:"teamId"`
	Text        string    `json:"text"`
	Model       string    `json:"model"`
	GeneratedAt time.Time `json:"generatedAt"`
	FromCache   bool      `json:"fromCache,omitempty"`
}

// Branding carries the presentation identity applied at assembly time.
type Branding struct {
	PrimaryColor string `json:"primaryColor"`
	AccentColor  string `json:"accentColor"`
	LogoURL      string `json:"logoUrl,omitempty"`
	FooterText   string `json:"footerText,omitempty"`
}

// ReportDocument is the assembled per-team document handed to the renderer.
type ReportDocument struct {
	TeamID      string        `json:"teamId"`
	Aggregate   TeamAggregate `json:"aggregate"`
	Narrative   *Narrative    `json:"narrative,omitempty"`
	TemplateID  string        `json:"templateId"`
	Branding    Branding      `json:"branding"`
	GeneratedAt time.Time     `json:"generatedAt"`
}

// HasNarrative reports whether a real interpretation is attached.
func (d *ReportDocument) HasNarrative() bool {
	return d.Narrative != nil && d.Narrative.Text != ""
}

// RenderedArtifact is the PDF produced for one team.
type RenderedArtifact struct {
	TeamID     string    `json:"teamId"`
	PDF        []byte    `json:"-"`
	Checksum   string    `json:"checksum"`
	Size       int64     `json:"size"`
	RenderedAt time.Time `json:"renderedAt"`
}

// ReportFilename is the canonical attachment and archive-entry name for a
// team's PDF. Path separators in team identifiers are replaced so the name
// stays a plain file name.
func ReportFilename(teamID string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\':
			return '-'
		default:
			return r
		}
	}, strings.TrimSpace(teamID))
	if name == "" {
		name = UnassignedTeam
	}
	return name + "_orgdiag_report.pdf"
}
