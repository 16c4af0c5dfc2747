// internal/archive/zip.go
package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"

	"orgdiag-pipeline/internal/models"
)

var ErrNoArtifacts = errors.New("NO_ARTIFACTS_TO_BUNDLE")

// WriteBundle streams a ZIP of the run's rendered PDFs to w, one entry per
// team named like the mail attachment. Entries are ordered by team
// identifier so the same run always produces the same bundle layout.
func WriteBundle(w io.Writer, artifacts []*models.RenderedArtifact) error {
	kept := make([]*models.RenderedArtifact, 0, len(artifacts))
	for _, a := range artifacts {
		if a == nil || len(a.PDF) == 0 {
			continue
		}
		kept = append(kept, a)
	}
	if len(kept) == 0 {
		return ErrNoArtifacts
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].TeamID < kept[j].TeamID })

	zw := zip.NewWriter(w)
	for _, a := range kept {
		header := &zip.FileHeader{
			Name:     models.ReportFilename(a.TeamID),
			Method:   zip.Deflate,
			Modified: a.RenderedAt,
		}
		entry, err := zw.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("failed to create archive entry for team %s: %w", a.TeamID, err)
		}
		if _, err := entry.Write(a.PDF); err != nil {
			return fmt.Errorf("failed to write archive entry for team %s: %w", a.TeamID, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	return nil
}

// BundleReports is WriteBundle into memory, for callers that need the size
// up front.
func BundleReports(artifacts []*models.RenderedArtifact) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteBundle(&buf, artifacts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
