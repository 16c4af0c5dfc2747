// internal/store/runlog/store.go
package runlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"orgdiag-pipeline/internal/common/logger"
	"orgdiag-pipeline/internal/models"
)

var (
	ErrRunWriteFailed  = errors.New("RUN_LOG_WRITE_FAILED")
	ErrTeamWriteFailed = errors.New("TEAM_LOG_WRITE_FAILED")
	ErrSchemaFailed    = errors.New("RUN_LOG_SCHEMA_FAILED")
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	state           TEXT NOT NULL,
	dataset_label   TEXT NOT NULL DEFAULT '',
	total_rows      INTEGER NOT NULL DEFAULT 0,
	malformed_rows  INTEGER NOT NULL DEFAULT 0,
	teams_total     INTEGER NOT NULL DEFAULT 0,
	teams_succeeded INTEGER NOT NULL DEFAULT 0,
	teams_partial   INTEGER NOT NULL DEFAULT 0,
	teams_failed    INTEGER NOT NULL DEFAULT 0,
	error           TEXT NOT NULL DEFAULT '',
	started_at      TIMESTAMPTZ,
	finished_at     TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS team_reports (
	run_id           TEXT NOT NULL,
	team_id          TEXT NOT NULL,
	state            TEXT NOT NULL,
	low_sample       BOOLEAN NOT NULL DEFAULT FALSE,
	narrative_source TEXT NOT NULL DEFAULT 'none',
	reason           TEXT NOT NULL DEFAULT '',
	checksum         TEXT NOT NULL DEFAULT '',
	pdf_size         BIGINT NOT NULL DEFAULT 0,
	started_at       TIMESTAMPTZ,
	finished_at      TIMESTAMPTZ,
	PRIMARY KEY (run_id, team_id)
);

CREATE TABLE IF NOT EXISTS delivery_log (
	run_id    TEXT NOT NULL,
	team_id   TEXT NOT NULL,
	recipient TEXT NOT NULL,
	status    TEXT NOT NULL,
	reason    TEXT NOT NULL DEFAULT '',
	attempts  INTEGER NOT NULL DEFAULT 0,
	logged_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_delivery_log_run ON delivery_log (run_id, team_id);
CREATE INDEX IF NOT EXISTS idx_runs_finished ON runs (finished_at);
`

// Store persists finished runs, per-team outcomes and the delivery trail to
// PostgreSQL. It is a history sink: the orchestrator writes through it and
// logs failures without rolling back the run.
type Store struct {
	db     *sql.DB
	logger logger.Logger
}

func NewStore(db *sql.DB, log logger.Logger) *Store {
	return &Store{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "runlog"}),
	}
}

// Init creates the run-log tables when they do not exist yet.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaFailed, err)
	}
	return nil
}

// WriteRun upserts the run summary row. Called once when the run reaches a
// terminal state; the upsert keeps a crashed-and-retried run from colliding
// with its earlier row.
func (s *Store) WriteRun(ctx context.Context, status *models.RunStatus) error {
	if status == nil {
		return fmt.Errorf("%w: nil run status", ErrRunWriteFailed)
	}

	succeeded, partial, failed := status.CountByState()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (
			id, state, dataset_label, total_rows, malformed_rows,
			teams_total, teams_succeeded, teams_partial, teams_failed,
			error, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			state           = EXCLUDED.state,
			teams_total     = EXCLUDED.teams_total,
			teams_succeeded = EXCLUDED.teams_succeeded,
			teams_partial   = EXCLUDED.teams_partial,
			teams_failed    = EXCLUDED.teams_failed,
			error           = EXCLUDED.error,
			finished_at     = EXCLUDED.finished_at`,
		status.RunID,
		string(status.State),
		status.DatasetLabel,
		status.TotalRows,
		status.MalformedRows,
		len(status.Teams),
		succeeded,
		partial,
		failed,
		status.Error,
		timeOrNil(status.StartedAt),
		timeOrNil(status.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("%w: insert failed: %v", ErrRunWriteFailed, err)
	}

	s.logger.Debug("run logged", map[string]interface{}{
		"runId": status.RunID,
		"state": status.State,
	})
	return nil
}

// WriteTeamOutcome upserts the team report row and appends one delivery_log
// row per recipient. Delivery rows are best effort: a failed row is logged
// and the remaining rows are still attempted.
func (s *Store) WriteTeamOutcome(ctx context.Context, runID string, team models.TeamProgress) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO team_reports (
			run_id, team_id, state, low_sample, narrative_source,
			reason, checksum, pdf_size, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (run_id, team_id) DO UPDATE SET
			state            = EXCLUDED.state,
			narrative_source = EXCLUDED.narrative_source,
			reason           = EXCLUDED.reason,
			checksum         = EXCLUDED.checksum,
			pdf_size         = EXCLUDED.pdf_size,
			finished_at      = EXCLUDED.finished_at`,
		runID,
		team.TeamID,
		string(team.State),
		team.LowSample,
		narrativeSource(team),
		team.Reason,
		team.Checksum,
		team.PDFSize,
		timeOrNil(team.StartedAt),
		timeOrNil(team.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("%w: insert failed for team %s: %v", ErrTeamWriteFailed, team.TeamID, err)
	}

	loggedAt := time.Now().UTC()
	for _, d := range team.Deliveries {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO delivery_log (run_id, team_id, recipient, status, reason, attempts, logged_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			runID,
			team.TeamID,
			d.Recipient,
			string(d.Status),
			d.Reason,
			d.Attempts,
			loggedAt,
		)
		if err != nil {
			s.logger.Warn("delivery log insert failed", map[string]interface{}{
				"runId":     runID,
				"teamId":    team.TeamID,
				"recipient": d.Recipient,
				"error":     err.Error(),
			})
		}
	}

	return nil
}

// narrativeSource records where the report narrative came from: the language
// model, the placeholder fallback, or nowhere when the team failed before
// interpretation produced anything.
func narrativeSource(team models.TeamProgress) string {
	switch {
	case team.Placeholder:
		return "placeholder"
	case team.Interpreted:
		return "model"
	default:
		return "none"
	}
}

func timeOrNil(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
