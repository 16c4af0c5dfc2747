// internal/pipeline/dispatch/service_test.go
package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "orgdiag-pipeline/internal/common/errors"
	"orgdiag-pipeline/internal/common/logger"
	"orgdiag-pipeline/internal/models"
)

// ==========================
// Test Helpers
// ==========================

type sentEmail struct {
	to  string
	msg []byte
}

type stubTransport struct {
	mu    sync.Mutex
	calls int
	sent  []sentEmail
	fn    func(attempt int, to string) error
}

func (t *stubTransport) Name() string { return "stub" }

func (t *stubTransport) Send(ctx context.Context, from, to string, msg []byte) error {
	t.mu.Lock()
	t.calls++
	attempt := t.calls
	t.mu.Unlock()

	if t.fn != nil {
		if err := t.fn(attempt, to); err != nil {
			return err
		}
	}

	t.mu.Lock()
	t.sent = append(t.sent, sentEmail{to: to, msg: msg})
	t.mu.Unlock()
	return nil
}

func (t *stubTransport) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

func createTestService(t *testing.T, transport Transport) *Service {
	t.Helper()
	config := DefaultConfig()
	config.SMTPHost = "smtp.example.com"
	config.SMTPFrom = "reports@example.com"
	config.MaxRetries = 1

	service, err := NewService(ServiceDependencies{
		Logger:    logger.NewTestLogger(t),
		Transport: transport,
	}, config)
	require.NoError(t, err)
	// Tight backoff keeps retry tests fast.
	service.policy.InitialBackoff = time.Millisecond
	return service
}

func testArtifact() *models.RenderedArtifact {
	pdf := []byte("%PDF-1.4 report body")
	return &models.RenderedArtifact{
		TeamID:     "alpha",
		PDF:        pdf,
		Checksum:   "c0ffee",
		Size:       int64(len(pdf)),
		RenderedAt: time.Date(2026, 8, 20, 9, 30, 0, 0, time.UTC),
	}
}

func recipients(addresses ...string) []models.Recipient {
	out := make([]models.Recipient, 0, len(addresses))
	for _, address := range addresses {
		out = append(out, models.Recipient{Address: address})
	}
	return out
}

// ==========================
// Execute
// ==========================

func TestService_Execute_DeliversToAllRecipients(t *testing.T) {
	transport := &stubTransport{}
	service := createTestService(t, transport)

	out, err := service.Execute(context.Background(), &Input{
		Artifact:   testArtifact(),
		Recipients: recipients("lead@example.com", "hr@example.com"),
	})

	require.NoError(t, err)
	assert.Equal(t, 2, out.Delivered)
	require.Len(t, out.Results, 2)
	for _, result := range out.Results {
		assert.Equal(t, "alpha", result.TeamID)
		assert.Equal(t, models.DeliveryDelivered, result.Status)
		assert.Equal(t, 1, result.Attempts)
		assert.Empty(t, result.Reason)
	}
	assert.Equal(t, 2, transport.callCount())
}

func TestService_Execute_MessageCarriesAttachment(t *testing.T) {
	transport := &stubTransport{}
	service := createTestService(t, transport)

	_, err := service.Execute(context.Background(), &Input{
		Artifact:   testArtifact(),
		Recipients: recipients("lead@example.com"),
	})

	require.NoError(t, err)
	require.Len(t, transport.sent, 1)

	raw := string(transport.sent[0].msg)
	assert.Contains(t, raw, "From: reports@example.com")
	assert.Contains(t, raw, "To: lead@example.com")
	assert.Contains(t, raw, "Subject: [OrgDiag] Organizational Diagnostic Report - alpha")
	assert.Contains(t, raw, `filename="alpha_orgdiag_report.pdf"`)
	assert.Contains(t, raw, "Content-Type: multipart/mixed")
	assert.Contains(t, raw, "Content-Transfer-Encoding: base64")
	assert.Contains(t, raw, "generated on 2026-08-20")
}

func TestService_Execute_InvalidRecipientSkipped(t *testing.T) {
	transport := &stubTransport{}
	service := createTestService(t, transport)

	out, err := service.Execute(context.Background(), &Input{
		Artifact:   testArtifact(),
		Recipients: recipients("not-an-address", "lead@example.com"),
	})

	require.NoError(t, err)
	require.Len(t, out.Results, 2)

	assert.Equal(t, models.DeliverySkipped, out.Results[0].Status)
	assert.Equal(t, 0, out.Results[0].Attempts)
	assert.Contains(t, out.Results[0].Reason, "INVALID_RECIPIENT")

	assert.Equal(t, models.DeliveryDelivered, out.Results[1].Status)
	assert.Equal(t, 1, out.Delivered)
	// The invalid address never reached the transport.
	assert.Equal(t, 1, transport.callCount())
}

func TestService_Execute_RetriesTransientThenDelivers(t *testing.T) {
	transport := &stubTransport{fn: func(attempt int, to string) error {
		if attempt == 1 {
			return errors.New("connection reset")
		}
		return nil
	}}
	service := createTestService(t, transport)

	out, err := service.Execute(context.Background(), &Input{
		Artifact:   testArtifact(),
		Recipients: recipients("lead@example.com"),
	})

	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	assert.Equal(t, models.DeliveryDelivered, out.Results[0].Status)
	assert.Equal(t, 2, out.Results[0].Attempts)
	assert.Equal(t, 1, out.Delivered)
}

func TestService_Execute_TransientExhaustionFailsOneRecipientOnly(t *testing.T) {
	transport := &stubTransport{fn: func(attempt int, to string) error {
		if to == "flaky@example.com" {
			return errors.New("connection refused")
		}
		return nil
	}}
	service := createTestService(t, transport)

	out, err := service.Execute(context.Background(), &Input{
		Artifact:   testArtifact(),
		Recipients: recipients("flaky@example.com", "lead@example.com"),
	})

	require.NoError(t, err)
	require.Len(t, out.Results, 2)

	assert.Equal(t, models.DeliveryFailed, out.Results[0].Status)
	assert.Equal(t, 2, out.Results[0].Attempts)
	assert.Contains(t, out.Results[0].Reason, "DELIVERY_TRANSPORT")

	assert.Equal(t, models.DeliveryDelivered, out.Results[1].Status)
	assert.Equal(t, 1, out.Delivered)
}

func TestService_Execute_AuthFailureFailsRemaining(t *testing.T) {
	transport := &stubTransport{fn: func(attempt int, to string) error {
		return apperrors.NewDeliveryAuthError("SMTP authentication failed: 535 bad credentials")
	}}
	service := createTestService(t, transport)

	out, err := service.Execute(context.Background(), &Input{
		Artifact:   testArtifact(),
		Recipients: recipients("lead@example.com", "hr@example.com", "bad-address"),
	})

	require.NoError(t, err)
	require.Len(t, out.Results, 3)

	// First recipient hit the auth failure; no retry for a permanent error.
	assert.Equal(t, models.DeliveryFailed, out.Results[0].Status)
	assert.Equal(t, 1, out.Results[0].Attempts)
	assert.Contains(t, out.Results[0].Reason, "DELIVERY_AUTH")

	// Second recipient failed without any attempt.
	assert.Equal(t, models.DeliveryFailed, out.Results[1].Status)
	assert.Equal(t, 0, out.Results[1].Attempts)
	assert.Contains(t, out.Results[1].Reason, "DELIVERY_AUTH")

	// Validation still runs; an invalid address stays skipped, not failed.
	assert.Equal(t, models.DeliverySkipped, out.Results[2].Status)

	assert.Equal(t, 0, out.Delivered)
	assert.Equal(t, 1, transport.callCount())
}

func TestService_Execute_NoRecipients(t *testing.T) {
	transport := &stubTransport{}
	service := createTestService(t, transport)

	out, err := service.Execute(context.Background(), &Input{Artifact: testArtifact()})

	require.NoError(t, err)
	assert.Empty(t, out.Results)
	assert.Zero(t, out.Delivered)
	assert.Zero(t, transport.callCount())
}

func TestService_Execute_NilArtifact(t *testing.T) {
	service := createTestService(t, &stubTransport{})

	_, err := service.Execute(context.Background(), &Input{Recipients: recipients("lead@example.com")})

	require.Error(t, err)
	assert.True(t, apperrors.IsInvariant(err))
}

func TestService_Execute_EmptyArtifact(t *testing.T) {
	service := createTestService(t, &stubTransport{})
	artifact := testArtifact()
	artifact.PDF = nil

	_, err := service.Execute(context.Background(), &Input{
		Artifact:   artifact,
		Recipients: recipients("lead@example.com"),
	})

	require.Error(t, err)
	assert.True(t, apperrors.IsInvariant(err))
}

func TestService_Execute_ContextCancelled(t *testing.T) {
	service := createTestService(t, &stubTransport{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := service.Execute(ctx, &Input{
		Artifact:   testArtifact(),
		Recipients: recipients("lead@example.com"),
	})

	require.Error(t, err)
}

// ==========================
// Construction
// ==========================

func TestNewService_RejectsUnknownTransport(t *testing.T) {
	config := DefaultConfig()
	config.Transport = "carrier-pigeon"

	_, err := NewService(ServiceDependencies{Logger: logger.NewTestLogger(t)}, config)

	require.Error(t, err)
	assert.True(t, apperrors.IsConfigError(err))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "valid smtp",
			mutate: func(c *Config) { c.SMTPHost = "smtp.example.com"; c.SMTPFrom = "reports@example.com" },
		},
		{
			name: "valid ses",
			mutate: func(c *Config) {
				c.Transport = TransportSES
				c.SESRegion = "eu-west-1"
				c.SESFrom = "reports@example.com"
			},
		},
		{
			name:    "smtp missing host",
			mutate:  func(c *Config) { c.SMTPFrom = "reports@example.com" },
			wantErr: true,
		},
		{
			name: "smtp port out of range",
			mutate: func(c *Config) {
				c.SMTPHost = "smtp.example.com"
				c.SMTPFrom = "reports@example.com"
				c.SMTPPort = 70000
			},
			wantErr: true,
		},
		{
			name:    "ses missing region",
			mutate:  func(c *Config) { c.Transport = TransportSES; c.SESFrom = "reports@example.com" },
			wantErr: true,
		},
		{
			name: "negative retries",
			mutate: func(c *Config) {
				c.SMTPHost = "smtp.example.com"
				c.SMTPFrom = "reports@example.com"
				c.MaxRetries = -1
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.IsConfigError(err))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

// ==========================
// Address validation
// ==========================

func TestIsValidAddress(t *testing.T) {
	tests := []struct {
		address string
		valid   bool
	}{
		{"lead@example.com", true},
		{"first.last+tag@sub.example.co", true},
		{"", false},
		{"no-at-sign", false},
		{"missing@dot", false},
		{"Team Lead <lead@example.com>", false},
		{"two@@example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			assert.Equal(t, tt.valid, isValidAddress(tt.address))
		})
	}
}
