package ingest

import (
	"io"
	"path/filepath"
	"strings"

	"orgdiag-pipeline/internal/common/logger"
	"orgdiag-pipeline/internal/models"
)

const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

type Input struct {
	Label  string    `json:"label"`
	Format string    `json:"format"`
	Reader io.Reader `json:"-"`
}

type Output struct {
	Dataset  *models.Dataset `json:"dataset"`
	Warnings []string        `json:"warnings,omitempty"`
}

type ServiceDependencies struct {
	Logger logger.Logger
}

// FormatForPath infers the dataset format from a file extension. Unknown
// extensions default to CSV, the instrument's export format.
func FormatForPath(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatCSV
}
