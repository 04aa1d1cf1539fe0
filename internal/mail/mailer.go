// Package mail delivers the rendered report over SMTP with STARTTLS.
package mail

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"log"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"os"
	"path/filepath"
	"sort"

	"github.com/lox/weatherfusion/internal/config"
)

// Subject is the fixed report subject line.
const Subject = "EHS 10-Day Forecast — Home & Work (Martinsburg / Inwood)"

// Mailer sends multipart HTML mail. The dial function is injectable so
// tests can capture the assembled message without a live server.
type Mailer struct {
	settings config.EmailSettings
	send     func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func New(settings config.EmailSettings) *Mailer {
	return &Mailer{settings: settings, send: sendSTARTTLS}
}

// Send builds and delivers the message with each attachment path included.
// Returns false without error when email is not configured.
func (m *Mailer) Send(subject, htmlBody string, attachments []string) (bool, error) {
	if !m.settings.Enabled() {
		log.Printf("mail: not configured, skipping send")
		return false, nil
	}

	msg, err := buildMessage(m.settings.Sender, m.settings.Recipient, subject, htmlBody, attachments)
	if err != nil {
		return false, err
	}

	addr := fmt.Sprintf("%s:%d", m.settings.Host, m.settings.Port)
	auth := smtp.PlainAuth("", m.settings.Username, m.settings.Password, m.settings.Host)
	if err := m.send(addr, auth, m.settings.Sender, []string{m.settings.Recipient}, msg); err != nil {
		return false, fmt.Errorf("send mail via %s: %w", addr, err)
	}
	log.Printf("mail: delivered to %s", m.settings.Recipient)
	return true, nil
}

func buildMessage(from, to, subject, htmlBody string, attachments []string) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", writer.Boundary())

	htmlPart, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/html; charset=utf-8"},
	})
	if err != nil {
		return nil, err
	}
	if _, err := htmlPart.Write([]byte(htmlBody)); err != nil {
		return nil, err
	}

	sorted := append([]string{}, attachments...)
	sort.Strings(sorted)
	for _, path := range sorted {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read attachment %s: %w", path, err)
		}
		contentType := "text/html; charset=utf-8"
		switch filepath.Ext(path) {
		case ".csv":
			contentType = "text/csv; charset=utf-8"
		case ".png":
			contentType = "image/png"
		}
		part, err := writer.CreatePart(textproto.MIMEHeader{
			"Content-Type":        {contentType},
			"Content-Disposition": {fmt.Sprintf("attachment; filename=%q", filepath.Base(path))},
		})
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(data); err != nil {
			return nil, err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// sendSTARTTLS speaks SMTP with an explicit STARTTLS upgrade before auth.
func sendSTARTTLS(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	client, err := smtp.Dial(addr)
	if err != nil {
		return err
	}
	defer client.Close()

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
		return err
	}
	if err := client.Auth(auth); err != nil {
		return err
	}
	if err := client.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}
