package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formintel/internal/matcher"
	"formintel/internal/pipeline"
	"formintel/pkg/models"
)

func newDocumentCommand(t *testing.T, flags map[string]string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	addDocumentFlags(cmd)
	for name, value := range flags {
		require.NoError(t, cmd.Flags().Set(name, value))
	}
	return cmd
}

func TestDocumentTemplate(t *testing.T) {
	dir := t.TempDir()
	profilePath := filepath.Join(dir, "profile.json")
	require.NoError(t, os.WriteFile(profilePath, []byte(`{"personal":{"givenName":"Fatima","surname":"Khan"}}`), 0o600))

	cmd := newDocumentCommand(t, map[string]string{
		"hint":        "handwritten",
		"destination": "ae",
		"visa-type":   "tourist",
		"travel-date": "2025-09-01",
		"data-source": "Passport",
		"profile":     profilePath,
		"ai-review":   "true",
	})

	doc, err := documentTemplate(cmd)
	require.NoError(t, err)

	assert.Equal(t, "handwritten", doc.TypeHint)
	assert.Equal(t, "AE", doc.DestinationCountry)
	assert.Equal(t, "tourist", doc.VisaType)
	require.NotNil(t, doc.TravelDate)
	assert.Equal(t, time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC), *doc.TravelDate)
	assert.Equal(t, matcher.CategoryPassport, doc.DataSource)
	assert.True(t, doc.AIOptIn)
	require.NotNil(t, doc.Profile)
	assert.Equal(t, "Fatima", doc.Profile.Personal.GivenName)
}

func TestDocumentTemplate_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		flags map[string]string
	}{
		{name: "long destination", flags: map[string]string{"destination": "UAE"}},
		{name: "travel date format", flags: map[string]string{"travel-date": "01/09/2025"}},
		{name: "unknown data source", flags: map[string]string{"data-source": "hobbies"}},
		{name: "missing profile", flags: map[string]string{"profile": "/does/not/exist.json"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := documentTemplate(newDocumentCommand(t, tt.flags))
			assert.Error(t, err)
		})
	}
}

func TestFindPDFFilesAndLoadDocuments(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.pdf"), []byte("%PDF-1.4 a"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "B.PDF"), []byte("%PDF-1.4 b"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.pdf"), nil, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "copy.pdf"), []byte("%PDF-1.4 a"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))

	files, err := findPDFFiles(dir)
	require.NoError(t, err)
	assert.Len(t, files, 4)

	template := pipeline.Document{DestinationCountry: "DE", VisaType: "student"}
	docs, rejected := loadDocuments(files, template, zerolog.Nop())

	require.Len(t, docs, 2)
	for _, d := range docs {
		assert.Equal(t, "DE", d.DestinationCountry)
		assert.Equal(t, "student", d.VisaType)
		assert.NotEmpty(t, d.Data)
	}
	require.Len(t, rejected, 2)
	byName := map[string]error{}
	for _, r := range rejected {
		byName[r.Document] = r.Err
	}
	assert.Error(t, byName["empty.pdf"])
	assert.ErrorIs(t, byName["copy.pdf"], errDuplicateDocument)
}

func TestStatusLabel(t *testing.T) {
	result := func(s models.Status) *pipeline.Outcome {
		return &pipeline.Outcome{Result: &models.ProcessingResult{Status: s}}
	}

	assert.Contains(t, statusLabel(pipeline.BatchItem{Err: errors.New("boom")}), "failed")
	assert.Contains(t, statusLabel(pipeline.BatchItem{Outcome: &pipeline.Outcome{Partial: true}}), "partial")
	assert.Contains(t, statusLabel(pipeline.BatchItem{Outcome: result(models.StatusAutoApproved)}), "auto-approved")
	assert.Contains(t, statusLabel(pipeline.BatchItem{Outcome: result(models.StatusSpotCheck)}), "spot check")
	assert.Contains(t, statusLabel(pipeline.BatchItem{Outcome: result(models.StatusFullReview)}), "full review")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short.pdf", truncate("short.pdf", 32))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}

func TestApplyLogLevel(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("log-level", "", "")

	require.NoError(t, applyLogLevel(cmd, nil))
	assert.Equal(t, prev, zerolog.GlobalLevel())

	require.NoError(t, cmd.Flags().Set("log-level", "WARN"))
	require.NoError(t, applyLogLevel(cmd, nil))
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	require.NoError(t, cmd.Flags().Set("log-level", "chatty"))
	assert.Error(t, applyLogLevel(cmd, nil))
}
