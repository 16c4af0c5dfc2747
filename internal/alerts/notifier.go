// internal/alerts/notifier.go
package alerts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"orgdiag-pipeline/internal/common/logger"
	"orgdiag-pipeline/internal/models"
)

var (
	ErrTopicRequired = errors.New("ALERT_TOPIC_REQUIRED")
	ErrPublishFailed = errors.New("ALERT_PUBLISH_FAILED")
)

// Publisher is the slice of the SNS client the notifier needs.
type Publisher interface {
	Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error)
}

// Notifier publishes a one-message summary to an SNS topic when a run
// reaches a terminal state. It is strictly operational: the orchestrator
// logs publish failures and the run outcome stands.
type Notifier struct {
	publisher Publisher
	topicARN  string
	logger    logger.Logger
}

func NewNotifier(publisher Publisher, topicARN string, log logger.Logger) (*Notifier, error) {
	if topicARN == "" {
		return nil, ErrTopicRequired
	}
	return &Notifier{
		publisher: publisher,
		topicARN:  topicARN,
		logger:    log.WithFields(map[string]interface{}{"component": "alerts"}),
	}, nil
}

// NotifyRunFinished publishes the terminal summary for one run.
func (n *Notifier) NotifyRunFinished(ctx context.Context, status *models.RunStatus) error {
	if status == nil {
		return fmt.Errorf("%w: nil run status", ErrPublishFailed)
	}

	subject := fmt.Sprintf("[OrgDiag] run %s %s", status.RunID, status.State)

	_, err := n.publisher.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(formatSummary(status)),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}

	n.logger.Info("run summary published", map[string]interface{}{
		"runId": status.RunID,
		"state": status.State,
	})
	return nil
}

func formatSummary(status *models.RunStatus) string {
	succeeded, partial, failed := status.CountByState()

	var b strings.Builder
	fmt.Fprintf(&b, "Run %s finished: %s\n", status.RunID, status.State)
	fmt.Fprintf(&b, "Dataset: %s\n", status.DatasetLabel)
	fmt.Fprintf(&b, "Teams: %d succeeded, %d partial, %d failed (%d total)\n",
		succeeded, partial, failed, len(status.Teams))
	if !status.StartedAt.IsZero() && !status.FinishedAt.IsZero() {
		fmt.Fprintf(&b, "Duration: %s\n", status.FinishedAt.Sub(status.StartedAt).Round(time.Second))
	}
	if status.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", status.Error)
	}
	return b.String()
}
