package assemble

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "orgdiag-pipeline/internal/common/errors"
	"orgdiag-pipeline/internal/common/logger"
	"orgdiag-pipeline/internal/models"
)

func createTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(ServiceDependencies{Logger: logger.NewTestLogger(t)}, DefaultConfig())
}

func TestService_Execute_MergesNarrative(t *testing.T) {
	service := createTestService(t)
	narrative := &models.Narrative{TeamID: "alpha", Text: "solid quarter", GeneratedAt: time.Now()}

	out, err := service.Execute(context.Background(), &Input{
		Aggregate: &models.TeamAggregate{TeamID: "alpha"},
		Narrative: narrative,
	})

	require.NoError(t, err)
	doc := out.Document
	assert.Equal(t, "alpha", doc.TeamID)
	assert.Equal(t, narrative, doc.Narrative)
	assert.True(t, doc.HasNarrative())
	assert.Equal(t, "standard", doc.TemplateID)
	assert.Equal(t, "#1f4e79", doc.Branding.PrimaryColor)
	assert.False(t, doc.GeneratedAt.IsZero())
}

func TestService_Execute_NilNarrativeStaysNil(t *testing.T) {
	service := createTestService(t)

	out, err := service.Execute(context.Background(), &Input{
		Aggregate: &models.TeamAggregate{TeamID: "alpha"},
	})

	require.NoError(t, err)
	assert.Nil(t, out.Document.Narrative, "absence is carried forward, not fabricated")
	assert.False(t, out.Document.HasNarrative())
}

func TestService_Execute_TemplateOverride(t *testing.T) {
	service := createTestService(t)

	out, err := service.Execute(context.Background(), &Input{
		Aggregate:  &models.TeamAggregate{TeamID: "alpha"},
		TemplateID: "executive",
	})

	require.NoError(t, err)
	assert.Equal(t, "executive", out.Document.TemplateID)
}

func TestService_Execute_TeamMismatchIsInvariant(t *testing.T) {
	service := createTestService(t)

	_, err := service.Execute(context.Background(), &Input{
		Aggregate: &models.TeamAggregate{TeamID: "alpha"},
		Narrative: &models.Narrative{TeamID: "beta", Text: "wrong team"},
	})

	require.Error(t, err)
	assert.True(t, apperrors.IsInvariant(err))
}

func TestService_Execute_NilAggregate(t *testing.T) {
	service := createTestService(t)

	_, err := service.Execute(context.Background(), &Input{})

	require.Error(t, err)
	assert.True(t, apperrors.IsInvariant(err))
}

func TestService_Execute_ContextCancelled(t *testing.T) {
	service := createTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := service.Execute(ctx, &Input{Aggregate: &models.TeamAggregate{TeamID: "alpha"}})
	assert.ErrorIs(t, err, context.Canceled)
}
