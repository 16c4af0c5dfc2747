// internal/pipeline/dispatch/mime.go
package dispatch

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// attachmentLineLength keeps encoded attachment lines within the RFC 2045
// 76-character limit.
const attachmentLineLength = 76

// buildMessage assembles a multipart/mixed message: plain-text body plus one
// base64 PDF attachment. attachment must already be encoded and line-wrapped
// so the same payload can be reused across recipients.
func buildMessage(from, to, subject, body, filename, attachment string) []byte {
	boundary := "orgdiag-" + uuid.NewString()

	var builder strings.Builder

	// Headers
	builder.WriteString(fmt.Sprintf("From: %s\r\n", from))
	builder.WriteString(fmt.Sprintf("To: %s\r\n", to))
	builder.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	builder.WriteString(fmt.Sprintf("Message-ID: %s\r\n", generateMessageID(to, from)))
	builder.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z)))
	builder.WriteString("MIME-Version: 1.0\r\n")
	builder.WriteString(fmt.Sprintf("Content-Type: multipart/mixed; boundary=%q\r\n", boundary))
	builder.WriteString("\r\n")

	// Text part
	builder.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	builder.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	builder.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	builder.WriteString("\r\n")
	builder.WriteString(body)
	builder.WriteString("\r\n")

	// Attachment part
	builder.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	builder.WriteString(fmt.Sprintf("Content-Type: application/pdf; name=%q\r\n", filename))
	builder.WriteString("Content-Transfer-Encoding: base64\r\n")
	builder.WriteString(fmt.Sprintf("Content-Disposition: attachment; filename=%q\r\n", filename))
	builder.WriteString("\r\n")
	builder.WriteString(attachment)
	builder.WriteString("\r\n")

	builder.WriteString(fmt.Sprintf("--%s--\r\n", boundary))

	return []byte(builder.String())
}

// encodeAttachment base64-encodes the PDF once, wrapped for transport.
func encodeAttachment(data []byte) string {
	encoded := base64.StdEncoding.EncodeToString(data)

	var builder strings.Builder
	for len(encoded) > attachmentLineLength {
		builder.WriteString(encoded[:attachmentLineLength])
		builder.WriteString("\r\n")
		encoded = encoded[attachmentLineLength:]
	}
	builder.WriteString(encoded)
	return builder.String()
}

func generateMessageID(to, from string) string {
	timestamp := time.Now().UnixNano()
	return fmt.Sprintf("<%d.%s@%s>", timestamp, sanitizeLocalPart(to), addressDomain(from))
}

func sanitizeLocalPart(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) > 0 {
		local := strings.Map(func(r rune) rune {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
				return r
			}
			return -1
		}, parts[0])

		if len(local) > 10 {
			local = local[:10]
		}
		if local != "" {
			return local
		}
	}
	return "recipient"
}

func addressDomain(email string) string {
	if at := strings.LastIndex(email, "@"); at >= 0 && at+1 < len(email) {
		return email[at+1:]
	}
	return "localhost"
}
