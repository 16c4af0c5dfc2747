// internal/pipeline/dispatch/smtp.go
package dispatch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/smtp"
	"net/textproto"

	apperrors "orgdiag-pipeline/internal/common/errors"
)

// SMTPTransport delivers messages over SMTP, upgrading the connection with
// STARTTLS when configured.
type SMTPTransport struct {
	host     string
	port     int
	username string
	password string
	useTLS   bool
}

func NewSMTPTransport(config *Config) *SMTPTransport {
	return &SMTPTransport{
		host:     config.SMTPHost,
		port:     config.SMTPPort,
		username: config.SMTPUsername,
		password: config.SMTPPassword,
		useTLS:   config.UseTLS,
	}
}

func (t *SMTPTransport) Name() string { return TransportSMTP }

func (t *SMTPTransport) Send(ctx context.Context, from, to string, msg []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before sending email: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", t.host, t.port)
	auth := t.auth()

	if t.useTLS {
		return t.sendWithTLS(addr, auth, from, to, msg)
	}

	if err := smtp.SendMail(addr, auth, from, []string{to}, msg); err != nil {
		return classifySMTPError(err)
	}
	return nil
}

func (t *SMTPTransport) auth() smtp.Auth {
	if t.username != "" && t.password != "" {
		return smtp.PlainAuth("", t.username, t.password, t.host)
	}
	return nil
}

func (t *SMTPTransport) sendWithTLS(addr string, auth smtp.Auth, from, to string, msg []byte) error {
	// Connect to server
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	// Start TLS
	tlsConfig := &tls.Config{
		ServerName:         t.host,
		InsecureSkipVerify: false,
	}

	if err = client.StartTLS(tlsConfig); err != nil {
		return fmt.Errorf("failed to start TLS: %w", err)
	}

	// Authenticate
	if auth != nil {
		if err = client.Auth(auth); err != nil {
			return apperrors.NewDeliveryAuthError(fmt.Sprintf("SMTP authentication failed: %s", err))
		}
	}

	// Set sender
	if err = client.Mail(from); err != nil {
		return classifySMTPError(fmt.Errorf("failed to set sender: %w", err))
	}

	// Set recipient
	if err = client.Rcpt(to); err != nil {
		return classifySMTPError(fmt.Errorf("failed to set recipient %s: %w", to, err))
	}

	// Send message
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to open data writer: %w", err)
	}

	if _, err = w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	if err = w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	return client.Quit()
}

// classifySMTPError surfaces reply codes that mean the account, not the
// network, is the problem. 530/534/535 come back when the server wants
// different credentials, so retrying the same ones cannot succeed.
func classifySMTPError(err error) error {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		switch protoErr.Code {
		case 530, 534, 535:
			return apperrors.NewDeliveryAuthError(err.Error())
		}
	}
	return err
}

// TestConnection dials and greets the configured server without sending mail.
func (t *SMTPTransport) TestConnection(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", t.host, t.port)

	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	if t.useTLS {
		tlsConfig := &tls.Config{
			ServerName:         t.host,
			InsecureSkipVerify: false,
		}
		if err = client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	}

	return client.Quit()
}
