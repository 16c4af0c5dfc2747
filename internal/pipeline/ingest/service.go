package ingest

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	apperrors "orgdiag-pipeline/internal/common/errors"
	"orgdiag-pipeline/internal/common/logger"
	"orgdiag-pipeline/internal/common/validation"
	"orgdiag-pipeline/internal/models"
)

// likertScores maps the instrument's 5-point answer labels to their numeric
// values. Lookup happens after normalizeAnswer.
var likertScores = map[string]float64{
	"strongly disagree": 1,
	"disagree":          2,
	"neutral":           3,
	"agree":             4,
	"strongly agree":    5,
}

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

// Execute parses and validates one raw dataset into typed records. Individual
// malformed rows are skipped and counted; the extraction only fails when the
// header is unusable, no usable rows remain, or the malformed ratio crosses
// the configured threshold.
func (s *Service) Execute(ctx context.Context, input *Input) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		headers       []string
		rows          []map[string]interface{}
		structuralBad int
		err           error
	)

	switch input.Format {
	case FormatJSON:
		headers, rows, err = decodeJSON(input.Reader)
	case FormatCSV, "":
		headers, rows, structuralBad, err = decodeCSV(input.Reader)
	default:
		err = apperrors.NewMalformedInputError(fmt.Sprintf("unsupported dataset format %q", input.Format))
	}
	if err != nil {
		return nil, err
	}

	report := validation.InspectColumns(headers)
	if !report.Usable() {
		details := "no question columns found"
		if len(report.Missing) > 0 {
			details = fmt.Sprintf("required columns absent: %s", strings.Join(report.Missing, ", "))
		}
		return nil, apperrors.NewMalformedInputError(details)
	}

	var warnings []string
	if len(report.Unknown) > 0 {
		warnings = append(warnings, fmt.Sprintf("ignoring unknown columns: %s", strings.Join(report.Unknown, ", ")))
	}
	if len(report.Duplicates) > 0 {
		warnings = append(warnings, fmt.Sprintf("duplicate columns, last value wins: %s", strings.Join(report.Duplicates, ", ")))
	}

	responses := make([]models.RawResponse, 0, len(rows))
	fields := make([]models.ExtractedField, 0, len(rows)*8)
	malformed := structuralBad
	coercionMisses := 0
	total := structuralBad + len(rows)

	for i, row := range rows {
		result, err := validation.ValidateRow(row)
		if err != nil {
			return nil, apperrors.NewMalformedInputError("row validation: " + err.Error())
		}
		if !result.Valid {
			malformed++
			s.logger.Debug("skipping malformed row", map[string]interface{}{
				"row":      i + 1,
				"problems": result.GetErrorMessages(),
			})
			continue
		}

		resp, rowFields, misses := s.extractRow(i, row)
		coercionMisses += misses
		if len(rowFields) == 0 {
			malformed++
			s.logger.Debug("skipping row without usable answers", map[string]interface{}{"row": i + 1})
			continue
		}

		responses = append(responses, resp)
		fields = append(fields, rowFields...)
	}

	if total == 0 {
		return nil, apperrors.NewEmptyDatasetError(input.Label)
	}
	if ratio := float64(malformed) / float64(total); ratio > s.config.MalformedRowThreshold {
		return nil, apperrors.NewDataQualityError(malformed, total, s.config.MalformedRowThreshold)
	}
	if len(responses) == 0 {
		return nil, apperrors.NewEmptyDatasetError(input.Label)
	}

	if coercionMisses > 0 {
		warnings = append(warnings, fmt.Sprintf("%d scored answers outside the 5-point scale were skipped", coercionMisses))
	}

	s.logger.Info("dataset extracted", map[string]interface{}{
		"label":     input.Label,
		"rows":      total,
		"usable":    len(responses),
		"malformed": malformed,
		"fields":    len(fields),
	})

	return &Output{
		Dataset: &models.Dataset{
			Label:         input.Label,
			Columns:       headers,
			Responses:     responses,
			Fields:        fields,
			TotalRows:     total,
			MalformedRows: malformed,
		},
		Warnings: warnings,
	}, nil
}

// extractRow turns one validated row into a RawResponse plus its typed fields.
// The returned miss count covers scored answers that could not be coerced.
func (s *Service) extractRow(index int, row map[string]interface{}) (models.RawResponse, []models.ExtractedField, int) {
	teamID := strings.TrimSpace(stringValue(row[validation.ColumnTeam]))
	respondentID := strings.TrimSpace(stringValue(row[validation.ColumnRespondent]))
	if respondentID == "" {
		respondentID = fmt.Sprintf("row-%d", index+1)
	}

	var submitted time.Time
	if ts := strings.TrimSpace(stringValue(row[validation.ColumnSubmitted])); ts != "" {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			submitted = parsed
		}
	}

	resp := models.RawResponse{
		RespondentID: respondentID,
		TeamID:       teamID,
		SubmittedAt:  submitted,
	}

	var fields []models.ExtractedField
	misses := 0

	for n := models.ScoredKeyFirst; n <= models.FreeTextLast; n++ {
		key := models.QuestionKey(n)
		raw, present := row[key]
		if !present || raw == nil {
			continue
		}
		rawStr := stringValue(raw)
		if strings.TrimSpace(rawStr) == "" {
			continue
		}

		resp.Answers = append(resp.Answers, models.Answer{Key: key, Raw: rawStr})

		if models.IsScoredKey(key) {
			score, ok := coerceScore(raw)
			if !ok {
				misses++
				continue
			}
			fields = append(fields, models.ExtractedField{
				TeamID:       teamID,
				QuestionKey:  key,
				Kind:         models.FieldKindScore,
				Score:        score,
				RespondentID: respondentID,
			})
			continue
		}

		fields = append(fields, models.ExtractedField{
			TeamID:       teamID,
			QuestionKey:  key,
			Kind:         models.FieldKindText,
			Text:         strings.TrimSpace(rawStr),
			RespondentID: respondentID,
		})
	}

	return resp, fields, misses
}

func decodeCSV(r io.Reader) ([]string, []map[string]interface{}, int, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	headerRec, err := reader.Read()
	if err == io.EOF {
		return nil, nil, 0, apperrors.NewMalformedInputError("dataset has no header row")
	}
	if err != nil {
		return nil, nil, 0, apperrors.NewMalformedInputError("unreadable CSV header: " + err.Error())
	}

	headers := make([]string, len(headerRec))
	for i, h := range headerRec {
		headers[i] = strings.TrimSpace(h)
	}
	if len(headers) > 0 {
		// Spreadsheet exports often carry a UTF-8 BOM
		headers[0] = strings.TrimPrefix(headers[0], "\uFEFF")
	}

	var rows []map[string]interface{}
	malformed := 0
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			malformed++
			continue
		}

		row := make(map[string]interface{}, len(headers))
		for i, name := range headers {
			if i < len(rec) {
				row[name] = strings.TrimSpace(rec[i])
			}
		}
		rows = append(rows, row)
	}

	return headers, rows, malformed, nil
}

func decodeJSON(r io.Reader) ([]string, []map[string]interface{}, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, apperrors.NewMalformedInputError("unreadable dataset: " + err.Error())
	}

	var rows []map[string]interface{}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, nil, apperrors.NewMalformedInputError("dataset is not a JSON array of objects: " + err.Error())
	}

	return jsonColumns(rows), rows, nil
}

// jsonColumns derives a deterministic column order from a JSON dataset:
// metadata columns first, question columns in instrument order, leftovers
// alphabetical.
func jsonColumns(rows []map[string]interface{}) []string {
	present := make(map[string]bool)
	for _, row := range rows {
		for name := range row {
			present[name] = true
		}
	}

	var headers []string
	for _, name := range []string{validation.ColumnRespondent, validation.ColumnTeam, validation.ColumnSubmitted} {
		if present[name] {
			headers = append(headers, name)
			delete(present, name)
		}
	}
	for n := models.ScoredKeyFirst; n <= models.FreeTextLast; n++ {
		key := models.QuestionKey(n)
		if present[key] {
			headers = append(headers, key)
			delete(present, key)
		}
	}

	var rest []string
	for name := range present {
		rest = append(rest, name)
	}
	sort.Strings(rest)
	return append(headers, rest...)
}

func stringValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// coerceScore turns a scored answer into its numeric value: numbers pass
// through, numeric strings are parsed, Likert labels resolve via the answer
// map. Range is not enforced here; the grouper's objective-column rule owns
// that decision.
func coerceScore(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return 0, false
		}
		if score, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return score, true
		}
		if score, ok := likertScores[normalizeAnswer(trimmed)]; ok {
			return score, true
		}
		return 0, false
	default:
		return 0, false
	}
}

func normalizeAnswer(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, ".")
	return strings.Join(strings.Fields(s), " ")
}
