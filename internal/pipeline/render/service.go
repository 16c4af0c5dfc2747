// internal/pipeline/render/service.go
package render

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"html/template"
	"time"

	apperrors "orgdiag-pipeline/internal/common/errors"
	"orgdiag-pipeline/internal/common/logger"
	"orgdiag-pipeline/internal/common/retry"
	"orgdiag-pipeline/internal/models"
	"orgdiag-pipeline/pkg/registry"
)

// Service renders one report document to a PDF artifact. Renders are per-team
// and independent; a failure here never blocks sibling teams.
type Service struct {
	config    *Config
	logger    logger.Logger
	engine    PDFEngine
	templates map[string]*template.Template
	policy    retry.Policy
}

func NewService(deps ServiceDependencies, config *Config) (*Service, error) {
	reg := deps.Registry
	if reg == nil {
		var err error
		reg, err = registry.LoadRegistry(config.RegistryPath)
		if err != nil {
			return nil, apperrors.NewConfigInvalidError(fmt.Sprintf("load template registry: %v", err))
		}
	}

	templates, err := loadTemplates(config.TemplateDir, reg)
	if err != nil {
		return nil, apperrors.NewConfigInvalidError(err.Error())
	}

	engine := deps.Engine
	if engine == nil {
		engine = NewEngine(config)
	}

	return &Service{
		config:    config,
		logger:    deps.Logger,
		engine:    engine,
		templates: templates,
		policy: retry.Policy{
			MaxRetries:     config.MaxRetries,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
		},
	}, nil
}

func (s *Service) Execute(ctx context.Context, input *Input) (*Output, error) {
	doc := input.Document
	if doc == nil {
		return nil, apperrors.NewInvariantViolationError("render: nil document")
	}

	log := s.logger.WithFields(map[string]interface{}{
		"team":     doc.TeamID,
		"template": doc.TemplateID,
	})

	// Expansion is deterministic, so it runs once outside the retry loop.
	html, err := s.expand(doc)
	if err != nil {
		log.Error("template expansion failed", map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	var pdf []byte
	err = s.policy.Do(ctx, apperrors.IsRetryable, func(attemptCtx context.Context) error {
		callCtx, cancel := context.WithTimeout(attemptCtx, s.config.Timeout)
		defer cancel()

		buf, err := s.engine.PrintPDF(callCtx, html)
		if err != nil {
			if callCtx.Err() == context.DeadlineExceeded {
				return apperrors.NewRenderTimeoutError(doc.TeamID)
			}
			return apperrors.NewRenderFailedError(doc.TeamID, err)
		}
		if len(buf) == 0 {
			return apperrors.NewRenderFailedError(doc.TeamID, errors.New("engine produced an empty document"))
		}
		pdf = buf
		return nil
	})
	if err != nil {
		log.Error("render failed", map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	sum := sha256.Sum256(pdf)
	artifact := &models.RenderedArtifact{
		TeamID:     doc.TeamID,
		PDF:        pdf,
		Checksum:   hex.EncodeToString(sum[:]),
		Size:       int64(len(pdf)),
		RenderedAt: time.Now().UTC(),
	}

	log.Info("report rendered", map[string]interface{}{
		"bytes":    artifact.Size,
		"checksum": artifact.Checksum,
	})

	return &Output{Artifact: artifact}, nil
}

// Close releases the underlying engine when the service owns one.
func (s *Service) Close() {
	if engine, ok := s.engine.(*Engine); ok {
		engine.Close()
	}
}
