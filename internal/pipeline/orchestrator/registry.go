// internal/pipeline/orchestrator/registry.go
package orchestrator

import (
	"context"
	"sync"
	"time"

	"orgdiag-pipeline/internal/models"
)

// runRecord is the live state of one run. Only the orchestrator mutates it;
// callers see value snapshots.
type runRecord struct {
	mu        sync.RWMutex
	status    models.RunStatus
	artifacts map[string]*models.RenderedArtifact

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	cancelled bool
	// unstartedTeams counts teams that never began because of cancellation.
	unstartedTeams int
}

func newRunRecord(runID, datasetLabel string) *runRecord {
	ctx, cancel := context.WithCancel(context.Background())
	return &runRecord{
		status: models.RunStatus{
			RunID:        runID,
			State:        models.RunStateIngesting,
			DatasetLabel: datasetLabel,
			Teams:        make(map[string]models.TeamProgress),
			StartedAt:    time.Now().UTC(),
		},
		artifacts: make(map[string]*models.RenderedArtifact),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// snapshot returns a deep copy safe to hand outside the orchestrator.
func (r *runRecord) snapshot() *models.RunStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyStatus(&r.status)
}

func copyStatus(status *models.RunStatus) *models.RunStatus {
	out := *status
	out.Teams = make(map[string]models.TeamProgress, len(status.Teams))
	for id, team := range status.Teams {
		if len(team.Deliveries) > 0 {
			team.Deliveries = append([]models.DeliveryResult(nil), team.Deliveries...)
		}
		out.Teams[id] = team
	}
	return &out
}

func (r *runRecord) markCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.State.Terminal() || r.cancelled {
		return false
	}
	r.cancelled = true
	return true
}

func (r *runRecord) wasCancelled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cancelled
}

func (r *runRecord) storeArtifact(artifact *models.RenderedArtifact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.artifacts[artifact.TeamID] = artifact
}

func (r *runRecord) artifact(teamID string) (*models.RenderedArtifact, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	artifact, ok := r.artifacts[teamID]
	return artifact, ok
}

// allArtifacts returns the retained PDFs in map order; callers sort as needed.
func (r *runRecord) allArtifacts() []*models.RenderedArtifact {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.RenderedArtifact, 0, len(r.artifacts))
	for _, artifact := range r.artifacts {
		out = append(out, artifact)
	}
	return out
}

// runRegistry tracks live and recently finished runs until retention expires.
type runRegistry struct {
	mu   sync.RWMutex
	runs map[string]*runRecord
}

func newRunRegistry() *runRegistry {
	return &runRegistry{runs: make(map[string]*runRecord)}
}

func (r *runRegistry) add(record *runRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[record.status.RunID] = record
}

func (r *runRegistry) get(runID string) (*runRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.runs[runID]
	return record, ok
}

func (r *runRegistry) remove(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.runs, runID)
}
