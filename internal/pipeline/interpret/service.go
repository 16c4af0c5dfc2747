// internal/pipeline/interpret/service.go
package interpret

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	apperrors "orgdiag-pipeline/internal/common/errors"
	"orgdiag-pipeline/internal/common/logger"
	"orgdiag-pipeline/internal/common/metrics"
	"orgdiag-pipeline/internal/common/retry"
	"orgdiag-pipeline/internal/models"
)

// Service turns one team's aggregate into narrative text. Transport failures
// and timeouts degrade to an unavailable result after the retry budget; the
// run is never failed from here.
type Service struct {
	config  *Config
	logger  logger.Logger
	client  Client
	limiter *rate.Limiter
	cache   Cache
	policy  retry.Policy
}

func NewService(deps ServiceDependencies, config *Config) (*Service, error) {
	client := deps.Client
	if client == nil {
		var err error
		client, err = NewClient(config)
		if err != nil {
			return nil, err
		}
	}

	return &Service{
		config:  config,
		logger:  deps.Logger,
		client:  client,
		limiter: deps.Limiter,
		cache:   deps.Cache,
		policy: retry.Policy{
			MaxRetries:     config.MaxRetries,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
		},
	}, nil
}

func (s *Service) Execute(ctx context.Context, input *Input) (*Output, error) {
	agg := input.Aggregate
	if agg == nil {
		return nil, apperrors.NewInvariantViolationError("interpret: nil aggregate")
	}

	log := s.logger.WithFields(map[string]interface{}{"team": agg.TeamID})

	request := BuildRequest(agg)
	key := CacheKey(agg)

	if s.cache != nil {
		text, hit, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			log.Warn("narrative cache read failed", map[string]interface{}{"error": err.Error()})
		case hit:
			metrics.InterpreterCacheHits.Inc()
			log.Info("narrative served from cache", nil)
			return &Output{Narrative: &models.Narrative{
				TeamID:      agg.TeamID,
				Text:        text,
				Model:       s.config.Model,
				GeneratedAt: time.Now().UTC(),
				FromCache:   true,
			}}, nil
		}
	}

	var text string
	attempts := 0
	err := s.policy.Do(ctx, apperrors.IsRetryable, func(attemptCtx context.Context) error {
		attempts++
		if attempts > 1 {
			metrics.InterpreterRetries.Inc()
		}

		// Every provider attempt, retries included, passes the shared limiter.
		if s.limiter != nil {
			if err := s.limiter.Wait(attemptCtx); err != nil {
				return err
			}
		}

		callCtx, cancel := context.WithTimeout(attemptCtx, s.config.Timeout)
		defer cancel()

		raw, err := s.client.Generate(callCtx, request)
		if err != nil {
			if callCtx.Err() == context.DeadlineExceeded {
				return apperrors.NewInterpretationTimeoutError(agg.TeamID)
			}
			return apperrors.NewInterpretationFailedError(agg.TeamID, err)
		}

		text = SanitizeNarrative(raw)
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		log.Warn("interpretation unavailable", map[string]interface{}{
			"error":    err.Error(),
			"attempts": attempts,
		})
		return &Output{Unavailable: err.Error()}, nil
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, text); err != nil {
			log.Warn("narrative cache write failed", map[string]interface{}{"error": err.Error()})
		}
	}

	log.Info("narrative generated", map[string]interface{}{
		"attempts": attempts,
		"chars":    len(text),
	})

	return &Output{Narrative: &models.Narrative{
		TeamID:      agg.TeamID,
		Text:        text,
		Model:       s.config.Model,
		GeneratedAt: time.Now().UTC(),
	}}, nil
}
