package services

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/authgate/backend/internal/config"
	"github.com/authgate/backend/pkg/logger"
)

// Notifier delivers a message to a recipient without ever raising into the
// calling request path. Delivery failures are logged and dropped.
type Notifier interface {
	Notify(recipient, subject, body string)
}

type mailMessage struct {
	Recipient string
	Subject   string
	Body      string
}

type SMTPMailer struct {
	cfg   config.SMTPConfig
	queue chan mailMessage
}

func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	m := &SMTPMailer{
		cfg:   cfg,
		queue: make(chan mailMessage, 100),
	}
	go m.processQueue()
	return m
}

func (m *SMTPMailer) Notify(recipient, subject, body string) {
	msg := mailMessage{Recipient: recipient, Subject: subject, Body: body}
	select {
	case m.queue <- msg:
	default:
		logger.Warn("mail_queue_full", map[string]interface{}{
			"subject": subject,
		})
	}
}

func (m *SMTPMailer) processQueue() {
	for msg := range m.queue {
		if err := m.send(msg); err != nil {
			logger.Error("mail_send_failed", err, map[string]interface{}{
				"subject": msg.Subject,
			})
			continue
		}
		logger.Info("mail_sent", map[string]interface{}{
			"subject": msg.Subject,
		})
	}
}

func (m *SMTPMailer) send(msg mailMessage) error {
	addr := fmt.Sprintf("%s:%s", m.cfg.Host, m.cfg.Port)

	var auth smtp.Auth
	if m.cfg.Password != "" {
		auth = smtp.PlainAuth("", m.cfg.Email, m.cfg.Password, m.cfg.Host)
	}

	return smtp.SendMail(addr, auth, m.cfg.Email, []string{msg.Recipient}, m.buildMessage(msg))
}

func (m *SMTPMailer) buildMessage(msg mailMessage) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.cfg.Email)
	fmt.Fprintf(&b, "To: %s\r\n", msg.Recipient)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	return []byte(b.String())
}
