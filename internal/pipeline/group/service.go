package group

import (
	"context"
	"math"
	"sort"
	"strings"

	"orgdiag-pipeline/internal/common/logger"
	"orgdiag-pipeline/internal/models"
)

type Service struct {
	config *Config
	logger logger.Logger
}

func NewService(deps ServiceDependencies, config *Config) *Service {
	return &Service{
		config: config,
		logger: deps.Logger,
	}
}

// Execute partitions extracted fields into per-team aggregates and computes
// the instrument's statistics for each. Respondents without a team value land
// in the reserved unassigned bucket; teams under the minimum sample size are
// flagged, never dropped.
func (s *Service) Execute(ctx context.Context, input *Input) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filter := newTeamFilter(input.TeamFilter)

	byTeam := make(map[string][]models.ExtractedField)
	for _, field := range input.Dataset.Fields {
		teamID := strings.TrimSpace(field.TeamID)
		if teamID == "" {
			teamID = models.UnassignedTeam
		}
		if !filter.match(teamID) {
			continue
		}

		field.TeamID = teamID
		byTeam[teamID] = append(byTeam[teamID], field)
	}

	teams := make([]string, 0, len(byTeam))
	for teamID := range byTeam {
		teams = append(teams, teamID)
	}
	sort.Strings(teams)

	aggregates := make([]models.TeamAggregate, 0, len(teams))
	for _, teamID := range teams {
		fields := byTeam[teamID]
		stats := s.computeStats(fields)

		lowSample := stats.Respondents < s.config.MinSampleSize
		if lowSample {
			s.logger.Warn("team flagged low_sample", map[string]interface{}{
				"team":        teamID,
				"respondents": stats.Respondents,
				"minimum":     s.config.MinSampleSize,
			})
		}

		aggregates = append(aggregates, models.TeamAggregate{
			TeamID:    teamID,
			Fields:    fields,
			Stats:     stats,
			LowSample: lowSample,
		})
	}

	s.logger.Info("dataset grouped", map[string]interface{}{
		"label": input.Dataset.Label,
		"teams": len(aggregates),
	})

	return &Output{Aggregates: aggregates, Teams: teams}, nil
}

func (s *Service) computeStats(fields []models.ExtractedField) models.TeamStats {
	respondents := make(map[string]bool)
	scores := make(map[string][]float64)
	freeText := make(map[string][]string)

	for _, f := range fields {
		respondents[f.RespondentID] = true
		switch f.Kind {
		case models.FieldKindScore:
			scores[f.QuestionKey] = append(scores[f.QuestionKey], f.Score)
		case models.FieldKindText:
			freeText[f.QuestionKey] = append(freeText[f.QuestionKey], f.Text)
		}
	}

	var questions []models.QuestionStat
	areaSums := make(map[models.Area]float64)
	areaCounts := make(map[models.Area]int)

	for n := models.ScoredKeyFirst; n <= models.ScoredKeyLast; n++ {
		key := models.QuestionKey(n)
		values := scores[key]
		if len(values) == 0 {
			continue
		}

		area, _ := models.AreaForKey(key)
		stat, rawMean := buildQuestionStat(key, area, values)
		questions = append(questions, stat)

		// Area averages run over raw question means, rounded only at the end.
		areaSums[area] += rawMean
		areaCounts[area]++
	}

	return models.TeamStats{
		Respondents:  len(respondents),
		Areas:        buildAreaSummaries(areaSums, areaCounts),
		Questions:    questions,
		Distribution: buildDistribution(questions),
		FreeText:     freeText,
	}
}

// buildQuestionStat computes one question's aggregate. A question is objective
// when at least 80% of its answers fall inside the 1..5 scale; out-of-scale
// numerics still enter the mean, matching the instrument's scoring sheet.
func buildQuestionStat(key string, area models.Area, values []float64) (models.QuestionStat, float64) {
	sum := 0.0
	within := 0
	var counts [6]int

	for _, v := range values {
		sum += v
		if v >= 1 && v <= 5 {
			within++
		}
		for bucket := 1; bucket <= 5; bucket++ {
			if v == float64(bucket) {
				counts[bucket]++
			}
		}
	}

	total := len(values)
	mean := sum / float64(total)

	spread := models.ResponseSpread{
		VeryLow:  pct(counts[1], total),
		Low:      pct(counts[2], total),
		Medium:   pct(counts[3], total),
		High:     pct(counts[4], total),
		VeryHigh: pct(counts[5], total),
	}
	spread.NegPct = round1(spread.VeryLow + spread.Low)
	spread.MidPct = spread.Medium
	spread.PosPct = round1(spread.High + spread.VeryHigh)

	stat := models.QuestionStat{
		Key:       key,
		Area:      area,
		Mean:      round2(mean),
		Benchmark: round2(clamp(mean-0.25, 0, 5)),
		Count:     total,
		Objective: float64(within)/float64(total) >= 0.8,
		Spread:    spread,
	}
	return stat, mean
}

func buildAreaSummaries(sums map[models.Area]float64, counts map[models.Area]int) []models.AreaSummary {
	summaries := make([]models.AreaSummary, 0, 3)
	for _, area := range models.Areas() {
		count := counts[area]
		summary := models.AreaSummary{Area: area, Count: count, Grade: models.GradeNotAvailable}
		if count > 0 {
			summary.HasData = true
			summary.Mean = round2(sums[area] / float64(count))
			summary.Grade = models.GradeForScore(summary.Mean, true)
		}
		summaries = append(summaries, summary)
	}
	return summaries
}

// buildDistribution assembles the chart payload over objective questions only,
// with one label index range per diagnostic area.
func buildDistribution(questions []models.QuestionStat) models.ScoreDistribution {
	var dist models.ScoreDistribution
	areaStart := make(map[models.Area]int)
	areaEnd := make(map[models.Area]int)

	for _, q := range questions {
		if !q.Objective {
			continue
		}

		idx := len(dist.Labels)
		dist.Labels = append(dist.Labels, q.Key)
		dist.Organization = append(dist.Organization, q.Mean)
		dist.Benchmark = append(dist.Benchmark, q.Benchmark)

		if _, seen := areaStart[q.Area]; !seen {
			areaStart[q.Area] = idx
		}
		areaEnd[q.Area] = idx
	}

	for _, area := range models.Areas() {
		if start, ok := areaStart[area]; ok {
			dist.Segments = append(dist.Segments, models.AreaSegment{
				Area: area,
				From: start,
				To:   areaEnd[area],
			})
		}
	}
	return dist
}

type teamFilter map[string]bool

func newTeamFilter(names []string) teamFilter {
	if len(names) == 0 {
		return nil
	}
	filter := make(teamFilter, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name != "" {
			filter[strings.ToLower(name)] = true
		}
	}
	if len(filter) == 0 {
		return nil
	}
	return filter
}

func (f teamFilter) match(teamID string) bool {
	if f == nil {
		return true
	}
	return f[strings.ToLower(teamID)]
}

func round2(x float64) float64 { return math.Round(x*100) / 100 }

func round1(x float64) float64 { return math.Round(x*10) / 10 }

func pct(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return round1(float64(count) / float64(total) * 100)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
