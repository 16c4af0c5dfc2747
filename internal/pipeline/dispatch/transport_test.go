// internal/pipeline/dispatch/transport_test.go
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/textproto"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "orgdiag-pipeline/internal/common/errors"
)

// ==========================
// SES transport
// ==========================

type stubSESSender struct {
	input *ses.SendRawEmailInput
	err   error
}

func (s *stubSESSender) SendRawEmail(ctx context.Context, input *ses.SendRawEmailInput) (*ses.SendRawEmailOutput, error) {
	s.input = input
	if s.err != nil {
		return nil, s.err
	}
	return &ses.SendRawEmailOutput{}, nil
}

func TestSESTransport_Send(t *testing.T) {
	sender := &stubSESSender{}
	transport := NewSESTransport(sender)

	msg := []byte("raw mime payload")
	err := transport.Send(context.Background(), "reports@example.com", "lead@example.com", msg)

	require.NoError(t, err)
	require.NotNil(t, sender.input)
	assert.Equal(t, "reports@example.com", *sender.input.Source)
	assert.Equal(t, []string{"lead@example.com"}, sender.input.Destinations)
	assert.Equal(t, msg, sender.input.RawMessage.Data)
}

func TestSESTransport_MessageRejectedIsAuthFailure(t *testing.T) {
	sender := &stubSESSender{err: &types.MessageRejected{}}
	transport := NewSESTransport(sender)

	err := transport.Send(context.Background(), "reports@example.com", "lead@example.com", []byte("x"))

	require.Error(t, err)
	assert.True(t, apperrors.IsPermanent(err))
	pe, ok := apperrors.AsPipelineError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeDeliveryAuth, pe.Code)
}

func TestSESTransport_TransportErrorPassesThrough(t *testing.T) {
	sender := &stubSESSender{err: errors.New("dial tcp: i/o timeout")}
	transport := NewSESTransport(sender)

	err := transport.Send(context.Background(), "reports@example.com", "lead@example.com", []byte("x"))

	require.Error(t, err)
	_, ok := apperrors.AsPipelineError(err)
	assert.False(t, ok)
}

// ==========================
// SMTP transport
// ==========================

func TestSMTPTransport_ContextCancelled(t *testing.T) {
	config := DefaultConfig()
	config.SMTPHost = "smtp.example.com"
	config.SMTPFrom = "reports@example.com"
	transport := NewSMTPTransport(config)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := transport.Send(ctx, "reports@example.com", "lead@example.com", []byte("x"))

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClassifySMTPError(t *testing.T) {
	authErr := fmt.Errorf("failed to set sender: %w", &textproto.Error{Code: 530, Msg: "authentication required"})
	classified := classifySMTPError(authErr)
	assert.True(t, apperrors.IsPermanent(classified))

	credsErr := fmt.Errorf("auth: %w", &textproto.Error{Code: 535, Msg: "bad credentials"})
	assert.True(t, apperrors.IsPermanent(classifySMTPError(credsErr)))

	busyErr := fmt.Errorf("rcpt: %w", &textproto.Error{Code: 421, Msg: "try again later"})
	assert.Equal(t, busyErr, classifySMTPError(busyErr))

	plainErr := errors.New("connection reset")
	assert.Equal(t, plainErr, classifySMTPError(plainErr))
}
