// internal/models/run.go
package models

import "time"

// RunState is the run-level pipeline state. Run-wide stages (INGESTING,
// GROUPING) precede team fan-out; while teams are in flight the run reports
// the earliest stage any non-terminal team still occupies.
type RunState string

const (
	RunStateIngesting    RunState = "INGESTING"
	RunStateGrouping     RunState = "GROUPING"
	RunStateInterpreting RunState = "INTERPRETING"
	RunStateAssembling   RunState = "ASSEMBLING"
	RunStateRendering    RunState = "RENDERING"
	RunStateDispatching  RunState = "DISPATCHING"
	RunStateCompleted    RunState = "COMPLETED"
	RunStateFailed       RunState = "FAILED"
	RunStateCancelled    RunState = "CANCELLED"
)

// Terminal reports whether the run has finished.
func (s RunState) Terminal() bool {
	return s == RunStateCompleted || s == RunStateFailed || s == RunStateCancelled
}

// TeamState is the per-team sub-state from interpretation onward.
type TeamState string

const (
	TeamStatePending    TeamState = "PENDING"
	TeamStateInProgress TeamState = "IN_PROGRESS"
	TeamStateSucceeded  TeamState = "SUCCEEDED"
	// TeamStatePartial: interpretation was unavailable but the report still
	// rendered and dispatched with a placeholder narrative.
	TeamStatePartial TeamState = "PARTIAL"
	TeamStateFailed  TeamState = "FAILED"
)

// Terminal reports whether the team has reached a final outcome.
func (s TeamState) Terminal() bool {
	return s == TeamStateSucceeded || s == TeamStatePartial || s == TeamStateFailed
}

// TeamStage identifies the team-level pipeline stage a team is in.
type TeamStage string

const (
	StageInterpret TeamStage = "interpret"
	StageAssemble  TeamStage = "assemble"
	StageRender    TeamStage = "render"
	StageDispatch  TeamStage = "dispatch"
	StageDone      TeamStage = "done"
)

// TeamProgress is one team's entry in the run's stage completion map.
type TeamProgress struct {
	TeamID      string           `json:"teamId"`
	State       TeamState        `json:"state"`
	Stage       TeamStage        `json:"stage"`
	LowSample   bool             `json:"lowSample"`
	Interpreted bool             `json:"interpreted"`
	Assembled   bool             `json:"assembled"`
	Rendered    bool             `json:"rendered"`
	Dispatched  bool             `json:"dispatched"`
	Placeholder bool             `json:"placeholder"`
	Reason      string           `json:"reason,omitempty"`
	Deliveries  []DeliveryResult `json:"deliveries,omitempty"`
	Checksum    string           `json:"checksum,omitempty"`
	PDFSize     int64            `json:"pdfSize,omitempty"`
	StartedAt   time.Time        `json:"startedAt,omitempty"`
	FinishedAt  time.Time        `json:"finishedAt,omitempty"`
}

// RunStatus is the pollable snapshot of one pipeline invocation. Snapshots are
// value copies; only the orchestrator mutates the live record.
type RunStatus struct {
	RunID         string                  `json:"runId"`
	State         RunState                `json:"state"`
	DatasetLabel  string                  `json:"datasetLabel"`
	Teams         map[string]TeamProgress `json:"teams"`
	TotalRows     int                     `json:"totalRows"`
	MalformedRows int                     `json:"malformedRows"`
	Error         string                  `json:"error,omitempty"`
	StartedAt     time.Time               `json:"startedAt"`
	FinishedAt    time.Time               `json:"finishedAt,omitempty"`
}

// CountByState tallies terminal team outcomes for run summaries.
func (r *RunStatus) CountByState() (succeeded, partial, failed int) {
	for _, t := range r.Teams {
		switch t.State {
		case TeamStateSucceeded:
			succeeded++
		case TeamStatePartial:
			partial++
		case TeamStateFailed:
			failed++
		}
	}
	return succeeded, partial, failed
}
