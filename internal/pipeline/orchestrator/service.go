// internal/pipeline/orchestrator/service.go
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	apperrors "orgdiag-pipeline/internal/common/errors"
	"orgdiag-pipeline/internal/common/logger"
	"orgdiag-pipeline/internal/common/metrics"
	"orgdiag-pipeline/internal/models"
	"orgdiag-pipeline/internal/pipeline/assemble"
	"orgdiag-pipeline/internal/pipeline/dispatch"
	"orgdiag-pipeline/internal/pipeline/group"
	"orgdiag-pipeline/internal/pipeline/ingest"
	"orgdiag-pipeline/internal/pipeline/interpret"
	"orgdiag-pipeline/internal/pipeline/render"
)

const reasonRunCancelled = "run cancelled"

// Service sequences the pipeline for each run: ingest and group run-wide,
// then per-team interpret/assemble/render/dispatch on a bounded pool. Each
// run owns its record and pool; nothing is shared between runs except the
// injected stage services.
type Service struct {
	config *Config
	logger logger.Logger
	errh   *apperrors.Handler

	ingester    Ingester
	grouper     Grouper
	interpreter Interpreter
	assembler   Assembler
	renderer    Renderer
	dispatcher  Dispatcher

	runLog  RunLogger
	indexer ReportIndexer
	alerter Alerter

	registry *runRegistry
}

func NewService(deps ServiceDependencies, config *Config) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Service{
		config:      config,
		logger:      deps.Logger,
		errh:        apperrors.NewHandler(deps.Logger),
		ingester:    deps.Ingester,
		grouper:     deps.Grouper,
		interpreter: deps.Interpreter,
		assembler:   deps.Assembler,
		renderer:    deps.Renderer,
		dispatcher:  deps.Dispatcher,
		runLog:      deps.RunLog,
		indexer:     deps.Indexer,
		alerter:     deps.Alerter,
		registry:    newRunRegistry(),
	}, nil
}

// ==========================
// Run lifecycle
// ==========================

// StartRun registers a run and launches it. The returned snapshot carries the
// run identifier for polling; the run proceeds in the background.
func (s *Service) StartRun(req *RunRequest) (*models.RunStatus, error) {
	if req == nil || req.Reader == nil {
		return nil, apperrors.NewMalformedInputError("run request has no dataset")
	}
	if s.config.TeamFilterRequired && len(req.TeamFilter) == 0 {
		return nil, apperrors.NewMalformedInputError("a team filter is required by configuration")
	}

	record := newRunRecord(uuid.NewString(), req.DatasetLabel)
	s.registry.add(record)

	metrics.PipelineRunsStarted.Inc()
	s.logger.Info("run started", map[string]interface{}{
		"runId":      record.status.RunID,
		"dataset":    req.DatasetLabel,
		"teamFilter": req.TeamFilter,
		"recipients": len(req.Recipients),
	})

	go s.executeRun(record, req)

	return record.snapshot(), nil
}

// GetRun returns a snapshot of a retained run.
func (s *Service) GetRun(runID string) (*models.RunStatus, bool) {
	record, ok := s.registry.get(runID)
	if !ok {
		return nil, false
	}
	return record.snapshot(), true
}

// CancelRun requests cancellation. Teams not yet started will not start;
// teams in flight finish naturally and keep their outcomes. Returns false
// when the run is unknown or already terminal.
func (s *Service) CancelRun(runID string) bool {
	record, ok := s.registry.get(runID)
	if !ok {
		return false
	}
	if !record.markCancelled() {
		return false
	}
	record.cancel()
	s.logger.Info("run cancellation requested", map[string]interface{}{"runId": runID})
	return true
}

// Artifact returns a team's retained PDF while the run is retained.
func (s *Service) Artifact(runID, teamID string) (*models.RenderedArtifact, bool) {
	record, ok := s.registry.get(runID)
	if !ok {
		return nil, false
	}
	return record.artifact(teamID)
}

// Artifacts returns every retained PDF of a run.
func (s *Service) Artifacts(runID string) ([]*models.RenderedArtifact, bool) {
	record, ok := s.registry.get(runID)
	if !ok {
		return nil, false
	}
	return record.allArtifacts(), true
}

// Wait blocks until the run finishes. Used by tests and the CLI runner.
func (s *Service) Wait(runID string) {
	record, ok := s.registry.get(runID)
	if !ok {
		return
	}
	<-record.done
}

// ==========================
// Run execution
// ==========================

func (s *Service) executeRun(record *runRecord, req *RunRequest) {
	defer close(record.done)

	metrics.PipelineRunsActive.Inc()
	defer metrics.PipelineRunsActive.Dec()

	runID := record.status.RunID
	log := s.logger.WithFields(map[string]interface{}{"runId": runID})
	runCtx := record.ctx

	// Stage: ingest (run-wide)
	start := time.Now()
	ingestOut, err := s.ingester.Execute(runCtx, &ingest.Input{
		Label:  req.DatasetLabel,
		Format: req.Format,
		Reader: req.Reader,
	})
	metrics.StageDuration.WithLabelValues("ingest").Observe(time.Since(start).Seconds())
	if err != nil {
		s.finishRunFailed(record, log, s.errh.CaptureRunError(runID, "ingest", err))
		return
	}

	record.mu.Lock()
	record.status.State = models.RunStateGrouping
	record.status.TotalRows = ingestOut.Dataset.TotalRows
	record.status.MalformedRows = ingestOut.Dataset.MalformedRows
	record.mu.Unlock()

	// Stage: group (run-wide)
	start = time.Now()
	groupOut, err := s.grouper.Execute(runCtx, &group.Input{
		Dataset:    ingestOut.Dataset,
		TeamFilter: req.TeamFilter,
	})
	metrics.StageDuration.WithLabelValues("group").Observe(time.Since(start).Seconds())
	if err != nil {
		s.finishRunFailed(record, log, s.errh.CaptureRunError(runID, "group", err))
		return
	}
	if len(groupOut.Aggregates) == 0 {
		s.finishRunFailed(record, log, s.errh.CaptureRunError(runID, "group", apperrors.NewEmptyDatasetError(
			fmt.Sprintf("%s: no teams matched the filter", req.DatasetLabel))))
		return
	}

	record.mu.Lock()
	for _, agg := range groupOut.Aggregates {
		record.status.Teams[agg.TeamID] = models.TeamProgress{
			TeamID:    agg.TeamID,
			State:     models.TeamStatePending,
			Stage:     models.StageInterpret,
			LowSample: agg.LowSample,
		}
	}
	record.status.State = models.RunStateInterpreting
	record.mu.Unlock()

	log.Info("team fan-out starting", map[string]interface{}{
		"teams":   len(groupOut.Aggregates),
		"workers": s.poolSize(len(groupOut.Aggregates)),
	})

	// Per-team fan-out. Team failures never reach the group error; every
	// outcome is captured in the team's terminal state instead.
	pool := new(errgroup.Group)
	pool.SetLimit(s.poolSize(len(groupOut.Aggregates)))

	for i := range groupOut.Aggregates {
		agg := &groupOut.Aggregates[i]
		pool.Go(func() error {
			s.processTeam(runCtx, record, log, agg, req)
			return nil
		})
	}
	// Team outcomes land in the status map, never in the group error.
	_ = pool.Wait()

	s.finishRun(record, log)
}

func (s *Service) poolSize(teams int) int {
	if teams < s.config.MaxWorkers {
		return teams
	}
	return s.config.MaxWorkers
}

// processTeam walks one team through interpret -> assemble -> render ->
// dispatch. Stage calls run on a context detached from the run context:
// cancellation never interrupts a call already issued, the stage's own
// timeout is the only deadline.
func (s *Service) processTeam(runCtx context.Context, record *runRecord, log logger.Logger, agg *models.TeamAggregate, req *RunRequest) {
	teamID := agg.TeamID
	runID := record.status.RunID
	teamLog := log.WithFields(map[string]interface{}{"team": teamID})

	if runCtx.Err() != nil {
		record.mu.Lock()
		record.unstartedTeams++
		record.mu.Unlock()
		s.finishTeam(record, teamLog, teamID, models.TeamStateFailed, reasonRunCancelled)
		return
	}

	s.updateTeam(record, teamID, func(team *models.TeamProgress) {
		team.State = models.TeamStateInProgress
		team.StartedAt = time.Now().UTC()
	})

	callCtx := context.WithoutCancel(runCtx)

	// Stage: interpret
	start := time.Now()
	interpretOut, err := s.interpreter.Execute(callCtx, &interpret.Input{Aggregate: agg})
	metrics.StageDuration.WithLabelValues(string(models.StageInterpret)).Observe(time.Since(start).Seconds())
	if err != nil {
		s.finishTeam(record, teamLog, teamID, models.TeamStateFailed,
			s.errh.CaptureTeamError(runID, teamID, string(models.StageInterpret), err))
		return
	}

	placeholder := interpretOut.Narrative == nil
	s.updateTeam(record, teamID, func(team *models.TeamProgress) {
		team.Interpreted = true
		team.Placeholder = placeholder
		team.Stage = models.StageAssemble
	})
	s.refreshRunState(record)

	// Stage: assemble
	start = time.Now()
	assembleOut, err := s.assembler.Execute(callCtx, &assemble.Input{
		Aggregate:  agg,
		Narrative:  interpretOut.Narrative,
		TemplateID: req.TemplateID,
	})
	metrics.StageDuration.WithLabelValues(string(models.StageAssemble)).Observe(time.Since(start).Seconds())
	if err != nil {
		s.finishTeam(record, teamLog, teamID, models.TeamStateFailed,
			s.errh.CaptureTeamError(runID, teamID, string(models.StageAssemble), err))
		return
	}

	s.updateTeam(record, teamID, func(team *models.TeamProgress) {
		team.Assembled = true
		team.Stage = models.StageRender
	})
	s.refreshRunState(record)

	// Stage: render
	start = time.Now()
	renderOut, err := s.renderer.Execute(callCtx, &render.Input{Document: assembleOut.Document})
	metrics.StageDuration.WithLabelValues(string(models.StageRender)).Observe(time.Since(start).Seconds())
	if err != nil {
		s.finishTeam(record, teamLog, teamID, models.TeamStateFailed,
			s.errh.CaptureTeamError(runID, teamID, string(models.StageRender), err))
		return
	}

	record.storeArtifact(renderOut.Artifact)
	s.updateTeam(record, teamID, func(team *models.TeamProgress) {
		team.Rendered = true
		team.Checksum = renderOut.Artifact.Checksum
		team.PDFSize = renderOut.Artifact.Size
		team.Stage = models.StageDispatch
	})
	s.refreshRunState(record)

	// Stage: dispatch. A run without recipients is render-only; the report
	// stays retained for preview and the render outcome decides the state.
	if len(req.Recipients) == 0 {
		s.finishTeam(record, teamLog, teamID, successState(placeholder), "")
		return
	}

	start = time.Now()
	dispatchOut, err := s.dispatcher.Execute(callCtx, &dispatch.Input{
		Artifact:   renderOut.Artifact,
		Recipients: req.Recipients,
	})
	metrics.StageDuration.WithLabelValues(string(models.StageDispatch)).Observe(time.Since(start).Seconds())
	if err != nil {
		s.finishTeam(record, teamLog, teamID, models.TeamStateFailed,
			s.errh.CaptureTeamError(runID, teamID, string(models.StageDispatch), err))
		return
	}

	s.updateTeam(record, teamID, func(team *models.TeamProgress) {
		team.Deliveries = dispatchOut.Results
		team.Dispatched = dispatchOut.Delivered > 0
	})

	if dispatchOut.Delivered == 0 {
		s.finishTeam(record, teamLog, teamID, models.TeamStateFailed, "no recipient accepted delivery")
		return
	}
	s.finishTeam(record, teamLog, teamID, successState(placeholder), "")
}

func successState(placeholder bool) models.TeamState {
	if placeholder {
		return models.TeamStatePartial
	}
	return models.TeamStateSucceeded
}

// ==========================
// State bookkeeping
// ==========================

func (s *Service) updateTeam(record *runRecord, teamID string, mutate func(*models.TeamProgress)) {
	record.mu.Lock()
	defer record.mu.Unlock()
	team := record.status.Teams[teamID]
	mutate(&team)
	record.status.Teams[teamID] = team
}

// stageRank orders run-level states so the run state can only move forward.
var stageRank = map[models.RunState]int{
	models.RunStateIngesting:    0,
	models.RunStateGrouping:     1,
	models.RunStateInterpreting: 2,
	models.RunStateAssembling:   3,
	models.RunStateRendering:    4,
	models.RunStateDispatching:  5,
}

var stageToRunState = map[models.TeamStage]models.RunState{
	models.StageInterpret: models.RunStateInterpreting,
	models.StageAssemble:  models.RunStateAssembling,
	models.StageRender:    models.RunStateRendering,
	models.StageDispatch:  models.RunStateDispatching,
}

// refreshRunState moves the run-level state to the earliest stage any
// non-terminal team still occupies. Monotonic: a slow team can hold the state
// back but never pull it back.
func (s *Service) refreshRunState(record *runRecord) {
	record.mu.Lock()
	defer record.mu.Unlock()

	if record.status.State.Terminal() {
		return
	}

	earliest := -1
	var earliestState models.RunState
	for _, team := range record.status.Teams {
		if team.State.Terminal() {
			continue
		}
		state, ok := stageToRunState[team.Stage]
		if !ok {
			continue
		}
		if rank := stageRank[state]; earliest == -1 || rank < earliest {
			earliest = rank
			earliestState = state
		}
	}

	if earliest > stageRank[record.status.State] {
		record.status.State = earliestState
	}
}

func (s *Service) finishTeam(record *runRecord, teamLog logger.Logger, teamID string, state models.TeamState, reason string) {
	record.mu.Lock()
	team := record.status.Teams[teamID]
	team.State = state
	team.Stage = models.StageDone
	team.Reason = reason
	team.FinishedAt = time.Now().UTC()
	record.status.Teams[teamID] = team
	runID := record.status.RunID
	record.mu.Unlock()

	metrics.TeamOutcomes.WithLabelValues(string(state)).Inc()
	teamLog.Info("team finished", map[string]interface{}{
		"state":  string(state),
		"reason": reason,
	})

	if s.runLog != nil {
		if err := s.runLog.WriteTeamOutcome(context.Background(), runID, team); err != nil {
			teamLog.Warn("team outcome write failed", map[string]interface{}{"error": err.Error()})
		}
	}

	s.refreshRunState(record)
}

// finishRunFailed terminates a run that died in a run-wide stage. A
// cancellation that aborted ingest or group counts as CANCELLED, not FAILED.
func (s *Service) finishRunFailed(record *runRecord, log logger.Logger, err error) {
	state := models.RunStateFailed
	reason := err.Error()
	if record.wasCancelled() {
		state = models.RunStateCancelled
		reason = reasonRunCancelled
	}

	record.mu.Lock()
	record.status.State = state
	record.status.Error = reason
	record.status.FinishedAt = time.Now().UTC()
	record.mu.Unlock()

	log.Error("run failed", map[string]interface{}{"state": string(state), "error": reason})
	s.afterTerminal(record, log)
}

// finishRun computes the terminal state once every team is terminal.
func (s *Service) finishRun(record *runRecord, log logger.Logger) {
	record.mu.Lock()
	state := models.RunStateCompleted
	switch {
	case record.cancelled && record.unstartedTeams > 0:
		state = models.RunStateCancelled
	case allTeamsFailed(record.status.Teams):
		state = models.RunStateFailed
		record.status.Error = "no team reached a deliverable outcome"
	}
	record.status.State = state
	record.status.FinishedAt = time.Now().UTC()
	succeeded, partial, failed := record.status.CountByState()
	record.mu.Unlock()

	log.Info("run finished", map[string]interface{}{
		"state":     string(state),
		"succeeded": succeeded,
		"partial":   partial,
		"failed":    failed,
	})
	s.afterTerminal(record, log)
}

func allTeamsFailed(teams map[string]models.TeamProgress) bool {
	for _, team := range teams {
		if team.State != models.TeamStateFailed {
			return false
		}
	}
	return len(teams) > 0
}

// afterTerminal runs the completion fan-out: run-log write, report index
// write, alert. Order is fixed; every step is independent and non-fatal.
func (s *Service) afterTerminal(record *runRecord, log logger.Logger) {
	status := record.snapshot()
	metrics.PipelineRunsFinished.WithLabelValues(string(status.State)).Inc()

	ctx := context.Background()

	if s.runLog != nil {
		if err := s.runLog.WriteRun(ctx, status); err != nil {
			log.Warn("run-log write failed", map[string]interface{}{"error": err.Error()})
		}
	}
	if s.indexer != nil {
		if err := s.indexer.IndexRun(ctx, status); err != nil {
			log.Warn("report index write failed", map[string]interface{}{"error": err.Error()})
		}
	}
	if s.alerter != nil {
		if err := s.alerter.NotifyRunFinished(ctx, status); err != nil {
			log.Warn("run alert failed", map[string]interface{}{"error": err.Error()})
		}
	}

	retention := s.config.RunRetention
	runID := status.RunID
	time.AfterFunc(retention, func() {
		s.registry.remove(runID)
		s.logger.Debug("run evicted", map[string]interface{}{"runId": runID})
	})
}
