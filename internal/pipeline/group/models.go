package group

import (
	"orgdiag-pipeline/internal/common/logger"
	"orgdiag-pipeline/internal/models"
)

type Input struct {
	Dataset *models.Dataset `json:"dataset"`
	// TeamFilter limits the run to the named teams. Empty means all teams.
	TeamFilter []string `json:"teamFilter,omitempty"`
}

type Output struct {
	Aggregates []models.TeamAggregate `json:"aggregates"`
	// Teams lists the aggregate team identifiers in output order.
	Teams []string `json:"teams"`
}

type ServiceDependencies struct {
	Logger logger.Logger
}
