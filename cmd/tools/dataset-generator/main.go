// cmd/tools/dataset-generator/main.go
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"orgdiag-pipeline/internal/common/validation"
	"orgdiag-pipeline/internal/models"
)

// likertLabels are the instrument's answer labels in score order 1..5. The
// generator mixes labels and digits the way real exports do.
var likertLabels = []string{
	"Strongly Disagree",
	"Disagree",
	"Neutral",
	"Agree",
	"Strongly Agree",
}

var freeTextSamples = map[string][]string{
	"NO40": {
		"We reorganized twice this year and priorities are still settling.",
		"The quarterly planning cycle works well for us.",
		"Headcount has been frozen since spring.",
		"We onboarded four new people last quarter.",
	},
	"NO41": {
		"More clarity on decision ownership would help.",
		"Standups got shorter and that was an improvement.",
		"Cross-team dependencies slow us down.",
		"",
	},
	"NO42": {
		"Proud of the release quality this cycle.",
		"The retrospectives finally lead to actions.",
		"",
		"Documentation debt is catching up with us.",
	},
	"NO43": {
		"Keep the focus weeks.",
		"",
		"Office days feel more productive than before.",
		"Would like more pairing time.",
	},
}

func main() {
	teams := flag.String("teams", "alpha,beta,gamma", "Comma-separated team identifiers")
	rows := flag.Int("rows", 8, "Respondents per team")
	malformed := flag.Float64("malformed", 0, "Fraction of rows emitted malformed (0..1)")
	format := flag.String("format", "csv", "Output format: csv or json")
	out := flag.String("out", "-", "Output path, - for stdout")
	seed := flag.Int64("seed", 0, "RNG seed, 0 derives one from the clock")
	flag.Parse()

	teamList := splitTeams(*teams)
	if len(teamList) == 0 {
		fmt.Println("Error: at least one team is required.")
		os.Exit(1)
	}
	if *rows < 1 {
		fmt.Println("Error: rows must be positive.")
		os.Exit(1)
	}
	if *malformed < 0 || *malformed > 1 {
		fmt.Println("Error: malformed must be within [0, 1].")
		os.Exit(1)
	}

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(*seed))

	records := generate(rng, teamList, *rows, *malformed)

	var output *os.File
	if *out == "-" {
		output = os.Stdout
	} else {
		f, err := os.Create(*out)
		if err != nil {
			fmt.Printf("Error creating output file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		output = f
	}

	var err error
	switch strings.ToLower(*format) {
	case "csv":
		err = writeCSV(output, records)
	case "json":
		err = writeJSON(output, records)
	default:
		fmt.Printf("Error: unknown format %q, expected csv or json.\n", *format)
		os.Exit(1)
	}
	if err != nil {
		fmt.Printf("Error writing dataset: %v\n", err)
		os.Exit(1)
	}

	if *out != "-" {
		fmt.Printf("Wrote %d rows for %d teams to %s (seed %d)\n",
			len(records), len(teamList), *out, *seed)
	}
}

func splitTeams(raw string) []string {
	parts := strings.Split(raw, ",")
	teams := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			teams = append(teams, t)
		}
	}
	return teams
}

// record is one generated survey row. Malformed rows are emitted structurally
// broken: truncated in CSV, mistyped team value in JSON.
type record struct {
	values    map[string]string
	malformed bool
}

// columns returns the header in export order: identity columns first, then
// NO1..NO43.
func columns() []string {
	cols := []string{validation.ColumnTeam, validation.ColumnRespondent, validation.ColumnSubmitted}
	for n := models.ScoredKeyFirst; n <= models.FreeTextLast; n++ {
		cols = append(cols, models.QuestionKey(n))
	}
	return cols
}

func generate(rng *rand.Rand, teams []string, rowsPerTeam int, malformedRatio float64) []record {
	submitted := time.Now().UTC().Add(-14 * 24 * time.Hour)
	records := make([]record, 0, len(teams)*rowsPerTeam)

	respondent := 0
	for _, team := range teams {
		// Per-team bias keeps teams distinguishable in the rendered reports.
		bias := 2.2 + rng.Float64()*1.8

		for i := 0; i < rowsPerTeam; i++ {
			respondent++
			row := map[string]string{
				validation.ColumnTeam:       team,
				validation.ColumnRespondent: fmt.Sprintf("R%04d", respondent),
				validation.ColumnSubmitted: submitted.
					Add(time.Duration(rng.Intn(14*24)) * time.Hour).
					Format(time.RFC3339),
			}

			for n := models.ScoredKeyFirst; n <= models.ScoredKeyLast; n++ {
				row[models.QuestionKey(n)] = scoredAnswer(rng, bias)
			}
			for n := models.FreeTextFirst; n <= models.FreeTextLast; n++ {
				key := models.QuestionKey(n)
				pool := freeTextSamples[key]
				row[key] = pool[rng.Intn(len(pool))]
			}

			records = append(records, record{
				values:    row,
				malformed: rng.Float64() < malformedRatio,
			})
		}
	}
	return records
}

// scoredAnswer draws a 1..5 score around the team bias and renders it as a
// digit or as the Likert label, half and half.
func scoredAnswer(rng *rand.Rand, bias float64) string {
	score := int(bias + rng.NormFloat64()*0.8 + 0.5)
	if score < 1 {
		score = 1
	}
	if score > 5 {
		score = 5
	}
	if rng.Intn(2) == 0 {
		return strconv.Itoa(score)
	}
	return likertLabels[score-1]
}

func writeCSV(f *os.File, records []record) error {
	w := csv.NewWriter(f)
	cols := columns()

	if err := w.Write(cols); err != nil {
		return err
	}
	for _, rec := range records {
		fields := make([]string, 0, len(cols))
		for _, col := range cols {
			fields = append(fields, rec.values[col])
		}
		if rec.malformed {
			// Structural damage: drop everything past the first two columns.
			fields = fields[:2]
		}
		if err := w.Write(fields); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeJSON(f *os.File, records []record) error {
	rows := make([]map[string]interface{}, 0, len(records))
	for _, rec := range records {
		row := make(map[string]interface{}, len(rec.values))
		for k, v := range rec.values {
			row[k] = v
		}
		if rec.malformed {
			// Schema damage: the team column must be a string or null.
			row[validation.ColumnTeam] = 12.5
		}
		rows = append(rows, row)
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}
