// internal/pipeline/dispatch/service.go
package dispatch

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	commonaws "orgdiag-pipeline/internal/common/aws"
	apperrors "orgdiag-pipeline/internal/common/errors"
	"orgdiag-pipeline/internal/common/logger"
	"orgdiag-pipeline/internal/common/metrics"
	"orgdiag-pipeline/internal/common/retry"
	"orgdiag-pipeline/internal/models"
)

// Service emails one team's rendered report to each recipient. Recipients are
// independent: a transient failure for one never blocks the others, while an
// authentication failure fails everyone still waiting, since further attempts
// with the same credentials cannot succeed.
type Service struct {
	config    *Config
	logger    logger.Logger
	transport Transport
	policy    retry.Policy
}

func NewService(deps ServiceDependencies, config *Config) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	transport := deps.Transport
	if transport == nil {
		var err error
		transport, err = newTransport(config)
		if err != nil {
			return nil, err
		}
	}

	return &Service{
		config:    config,
		logger:    deps.Logger,
		transport: transport,
		policy: retry.Policy{
			MaxRetries:     config.MaxRetries,
			InitialBackoff: 200 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
		},
	}, nil
}

func newTransport(config *Config) (Transport, error) {
	switch config.Transport {
	case TransportSMTP:
		return NewSMTPTransport(config), nil
	case TransportSES:
		client, err := commonaws.NewSESClient(context.Background(), config.SESRegion)
		if err != nil {
			return nil, apperrors.NewDispatchConfigError(fmt.Sprintf("ses client: %s", err))
		}
		return NewSESTransport(client), nil
	default:
		return nil, apperrors.NewDispatchConfigError(fmt.Sprintf("unknown transport: %s", config.Transport))
	}
}

func (s *Service) Execute(ctx context.Context, input *Input) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if input == nil || input.Artifact == nil {
		return nil, apperrors.NewInvariantViolationError("dispatch: nil artifact")
	}
	if len(input.Artifact.PDF) == 0 {
		return nil, apperrors.NewInvariantViolationError(fmt.Sprintf("dispatch: artifact for team %q has no content", input.Artifact.TeamID))
	}

	teamID := input.Artifact.TeamID
	log := s.logger.WithFields(map[string]interface{}{
		"team":      teamID,
		"transport": s.transport.Name(),
	})

	log.Info("dispatching report", map[string]interface{}{
		"recipients": len(input.Recipients),
		"size":       input.Artifact.Size,
	})

	from := s.config.From()
	subject := fmt.Sprintf("%s Organizational Diagnostic Report - %s", s.config.SubjectPrefix, teamID)
	body := buildBody(teamID, input.Artifact.RenderedAt)
	filename := models.ReportFilename(teamID)
	// Encoded once; only the headers differ between recipients.
	attachment := encodeAttachment(input.Artifact.PDF)

	output := &Output{Results: make([]models.DeliveryResult, 0, len(input.Recipients))}

	// Set after a permanent auth failure; recipients not yet attempted are
	// failed with this reason instead of burning attempts.
	var authErr error

	for _, recipient := range input.Recipients {
		address := strings.TrimSpace(recipient.Address)

		if !isValidAddress(address) {
			reason := apperrors.NewInvalidRecipientError(address)
			output.Results = append(output.Results, models.DeliveryResult{
				TeamID:    teamID,
				Recipient: address,
				Status:    models.DeliverySkipped,
				Reason:    reason.Error(),
			})
			metrics.DeliveryResults.WithLabelValues(string(models.DeliverySkipped)).Inc()
			log.Warn("recipient skipped", map[string]interface{}{"recipient": address})
			continue
		}

		if authErr != nil {
			output.Results = append(output.Results, models.DeliveryResult{
				TeamID:    teamID,
				Recipient: address,
				Status:    models.DeliveryFailed,
				Reason:    authErr.Error(),
			})
			metrics.DeliveryResults.WithLabelValues(string(models.DeliveryFailed)).Inc()
			continue
		}

		message := buildMessage(from, address, subject, body, filename, attachment)

		attempts := 0
		err := s.policy.Do(ctx, apperrors.IsRetryable, func(callCtx context.Context) error {
			attempts++
			if sendErr := s.transport.Send(callCtx, from, address, message); sendErr != nil {
				if _, ok := apperrors.AsPipelineError(sendErr); ok {
					return sendErr
				}
				return apperrors.NewDeliveryTransportError(address, sendErr)
			}
			return nil
		})

		if err != nil {
			if pe, ok := apperrors.AsPipelineError(err); ok && pe.Code == apperrors.ErrCodeDeliveryAuth {
				authErr = err
			}
			output.Results = append(output.Results, models.DeliveryResult{
				TeamID:    teamID,
				Recipient: address,
				Status:    models.DeliveryFailed,
				Reason:    err.Error(),
				Attempts:  attempts,
			})
			metrics.DeliveryResults.WithLabelValues(string(models.DeliveryFailed)).Inc()
			log.Warn("delivery failed", map[string]interface{}{
				"recipient": address,
				"attempts":  attempts,
				"error":     err.Error(),
			})
			continue
		}

		output.Results = append(output.Results, models.DeliveryResult{
			TeamID:    teamID,
			Recipient: address,
			Status:    models.DeliveryDelivered,
			Attempts:  attempts,
		})
		output.Delivered++
		metrics.DeliveryResults.WithLabelValues(string(models.DeliveryDelivered)).Inc()
		log.Info("report delivered", map[string]interface{}{
			"recipient": address,
			"attempts":  attempts,
		})
	}

	log.Info("dispatch finished", map[string]interface{}{
		"delivered": output.Delivered,
		"total":     len(input.Recipients),
	})

	return output, nil
}

func buildBody(teamID string, renderedAt time.Time) string {
	var builder strings.Builder
	builder.WriteString("Hello,\r\n\r\n")
	builder.WriteString(fmt.Sprintf("Attached is the organizational diagnostic report for team %q, generated on %s.\r\n\r\n",
		teamID, renderedAt.Format("2006-01-02")))
	builder.WriteString("This message was sent automatically; replies are not monitored.\r\n")
	return builder.String()
}

// isValidAddress accepts bare RFC 5322 addresses with a dotted domain.
// Display-name forms are rejected; the recipient name travels separately.
func isValidAddress(address string) bool {
	if address == "" {
		return false
	}
	parsed, err := mail.ParseAddress(address)
	if err != nil || parsed.Address != address {
		return false
	}
	at := strings.LastIndex(address, "@")
	return strings.Contains(address[at+1:], ".")
}
