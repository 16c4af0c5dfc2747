// internal/pipeline/dispatch/ses.go
package dispatch

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	apperrors "orgdiag-pipeline/internal/common/errors"
)

// SESSender is the single call this transport needs from the SES API.
type SESSender interface {
	SendRawEmail(ctx context.Context, input *ses.SendRawEmailInput) (*ses.SendRawEmailOutput, error)
}

// SESTransport delivers through Amazon SES raw sending, reusing the exact
// MIME payload the SMTP path writes.
type SESTransport struct {
	client SESSender
}

func NewSESTransport(client SESSender) *SESTransport {
	return &SESTransport{client: client}
}

func (t *SESTransport) Name() string { return TransportSES }

func (t *SESTransport) Send(ctx context.Context, from, to string, msg []byte) error {
	input := &ses.SendRawEmailInput{
		RawMessage:   &types.RawMessage{Data: msg},
		Source:       &from,
		Destinations: []string{to},
	}

	if _, err := t.client.SendRawEmail(ctx, input); err != nil {
		return classifySESError(err)
	}
	return nil
}

// classifySESError maps account-level rejections to the permanent auth
// category; every further send from this identity would fail the same way.
func classifySESError(err error) error {
	var rejected *types.MessageRejected
	if errors.As(err, &rejected) {
		return apperrors.NewDeliveryAuthError(err.Error())
	}

	var paused *types.AccountSendingPausedException
	if errors.As(err, &paused) {
		return apperrors.NewDeliveryAuthError(err.Error())
	}

	var unverified *types.MailFromDomainNotVerifiedException
	if errors.As(err, &unverified) {
		return apperrors.NewDeliveryAuthError(err.Error())
	}

	return err
}
