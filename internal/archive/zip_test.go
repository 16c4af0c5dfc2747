// internal/archive/zip_test.go
package archive

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgdiag-pipeline/internal/models"
)

func testArtifact(teamID, body string) *models.RenderedArtifact {
	return &models.RenderedArtifact{
		TeamID:     teamID,
		PDF:        []byte(body),
		Size:       int64(len(body)),
		RenderedAt: time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
	}
}

func readEntries(t *testing.T, data []byte) map[string]string {
	t.Helper()

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	entries := make(map[string]string, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		content, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		entries[f.Name] = string(content)
	}
	return entries
}

func TestBundleReports_OneEntryPerTeam(t *testing.T) {
	data, err := BundleReports([]*models.RenderedArtifact{
		testArtifact("beta", "%PDF-beta"),
		testArtifact("alpha", "%PDF-alpha"),
	})
	require.NoError(t, err)

	entries := readEntries(t, data)
	require.Len(t, entries, 2)
	assert.Equal(t, "%PDF-alpha", entries["alpha_orgdiag_report.pdf"])
	assert.Equal(t, "%PDF-beta", entries["beta_orgdiag_report.pdf"])
}

func TestBundleReports_EntriesSortedByTeam(t *testing.T) {
	data, err := BundleReports([]*models.RenderedArtifact{
		testArtifact("gamma", "%PDF-g"),
		testArtifact("alpha", "%PDF-a"),
		testArtifact("beta", "%PDF-b"),
	})
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{
		"alpha_orgdiag_report.pdf",
		"beta_orgdiag_report.pdf",
		"gamma_orgdiag_report.pdf",
	}, names)
}

func TestBundleReports_SanitizesEntryNames(t *testing.T) {
	data, err := BundleReports([]*models.RenderedArtifact{
		testArtifact("sales/emea", "%PDF-s"),
	})
	require.NoError(t, err)

	entries := readEntries(t, data)
	assert.Contains(t, entries, "sales-emea_orgdiag_report.pdf")
}

func TestBundleReports_SkipsEmptyArtifacts(t *testing.T) {
	data, err := BundleReports([]*models.RenderedArtifact{
		testArtifact("alpha", "%PDF-a"),
		nil,
		{TeamID: "empty"},
	})
	require.NoError(t, err)

	entries := readEntries(t, data)
	require.Len(t, entries, 1)
	assert.Contains(t, entries, "alpha_orgdiag_report.pdf")
}

func TestBundleReports_NoArtifacts(t *testing.T) {
	_, err := BundleReports(nil)
	assert.ErrorIs(t, err, ErrNoArtifacts)

	_, err = BundleReports([]*models.RenderedArtifact{nil, {TeamID: "x"}})
	assert.ErrorIs(t, err, ErrNoArtifacts)
}

func TestWriteBundle_PreservesModifiedTime(t *testing.T) {
	var buf bytes.Buffer
	err := WriteBundle(&buf, []*models.RenderedArtifact{testArtifact("alpha", "%PDF-a")})
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)

	want := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	assert.True(t, zr.File[0].Modified.Equal(want), "modified time %s", zr.File[0].Modified)
}
