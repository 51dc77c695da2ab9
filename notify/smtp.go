package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"time"
)

// SMTPConfig configures the mail relay connection.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string

	// Timeout bounds one full send, dial included.
	Timeout time.Duration
}

// DefaultSendTimeout applies when SMTPConfig leaves Timeout zero.
const DefaultSendTimeout = 15 * time.Second

// SMTPNotifier sends messages through a STARTTLS relay.
type SMTPNotifier struct {
	conf SMTPConfig
}

// NewSMTPNotifier creates a notifier for the given relay.
func NewSMTPNotifier(conf SMTPConfig) *SMTPNotifier {
	if conf.Timeout == 0 {
		conf.Timeout = DefaultSendTimeout
	}
	return &SMTPNotifier{conf: conf}
}

// Send delivers one message, honoring both the context and the
// configured per-send timeout.
func (n *SMTPNotifier) Send(ctx context.Context, m Message) error {
	if err := m.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, n.conf.Timeout)
	defer cancel()

	addr := fmt.Sprintf("%s:%d", n.conf.Host, n.conf.Port)

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to dial relay: %w", err)
	}

	// The deadline covers the whole SMTP conversation.
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, n.conf.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open smtp session: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(nil); err != nil {
			return fmt.Errorf("failed to start tls: %w", err)
		}
	}
	if n.conf.Username != "" {
		auth := smtp.PlainAuth("", n.conf.Username, n.conf.Password, n.conf.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("failed to authenticate: %w", err)
		}
	}

	if err := client.Mail(n.conf.From); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := client.Rcpt(m.To); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to open data stream: %w", err)
	}
	if _, err := wc.Write(BuildMIME(n.conf.From, m)); err != nil {
		wc.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to finish message: %w", err)
	}
	return client.Quit()
}

// BuildMIME renders a message into wire form, as multipart/mixed when
// it carries an attachment and plain text otherwise.
func BuildMIME(from string, m Message) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", m.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.Subject))
	buf.WriteString("MIME-Version: 1.0\r\n")

	if m.Attachment == nil {
		buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
		buf.WriteString("\r\n")
		buf.WriteString(m.Body)
		buf.WriteString("\r\n")
		return buf.Bytes()
	}

	const boundary = "signflow-mime-boundary"
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", boundary)

	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	buf.WriteString(m.Body)
	buf.WriteString("\r\n")

	contentType := m.Attachment.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	fmt.Fprintf(&buf, "Content-Type: %s\r\n", contentType)
	buf.WriteString("Content-Transfer-Encoding: base64\r\n")
	fmt.Fprintf(&buf, "Content-Disposition: attachment; filename=%q\r\n\r\n", m.Attachment.Name)

	encoded := base64.StdEncoding.EncodeToString(m.Attachment.Data)
	for len(encoded) > 76 {
		buf.WriteString(encoded[:76])
		buf.WriteString("\r\n")
		encoded = encoded[76:]
	}
	buf.WriteString(encoded)
	buf.WriteString("\r\n")
	fmt.Fprintf(&buf, "--%s--\r\n", boundary)

	return buf.Bytes()
}
