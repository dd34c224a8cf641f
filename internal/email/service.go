// Package email sends invitation mail via SMTP.
package email

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
	texttemplate "text/template"
)

var ErrNotConfigured = errors.New("email not configured")

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   sendFunc
}

func NewService(config Config) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s != nil && s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// Invitation is the data rendered into an invitation email.
type Invitation struct {
	AppName     string
	InviterName string
	WorldName   string
	Role        string
	AcceptURL   string
}

func (s *Service) SendInvitationEmail(to string, data Invitation) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	if data.AppName == "" {
		data.AppName = "World Builder"
	}
	htmlBody, err := renderHTML(invitationHTMLTemplate, data)
	if err != nil {
		return fmt.Errorf("render invitation html: %w", err)
	}
	textBody, err := renderText(invitationTextTemplate, data)
	if err != nil {
		return fmt.Errorf("render invitation text: %w", err)
	}
	subject := fmt.Sprintf("%s invited you to %s", data.InviterName, data.WorldName)
	return s.sendMessage([]string{to}, subject, textBody, htmlBody)
}

func (s *Service) sendMessage(to []string, subject, textBody, htmlBody string) error {
	msg := buildMessage(s.fromHeader(), to, subject, textBody, htmlBody)
	if err := s.send(s.server, s.auth, s.config.From, to, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

func (s *Service) fromHeader() string {
	if s.config.FromName == "" {
		return s.config.From
	}
	return fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
}

const boundary = "worldbuilder-alt"

func buildMessage(from string, to []string, subject, textBody, htmlBody string) []byte {
	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", stripNewlines(subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n\r\n", boundary)

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	msg.WriteString(textBody)
	msg.WriteString("\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	msg.WriteString(htmlBody)
	msg.WriteString("\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)
	return msg.Bytes()
}

func stripNewlines(value string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(value)
}

func renderHTML(tmpl string, data any) (string, error) {
	t, err := template.New("email").Parse(tmpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func renderText(tmpl string, data any) (string, error) {
	t, err := texttemplate.New("email").Parse(tmpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const invitationTextTemplate = `{{.InviterName}} invited you to collaborate on "{{.WorldName}}" as {{.Role}}.

Accept the invitation: {{.AcceptURL}}

If you were not expecting this, you can ignore this email.
`

const invitationHTMLTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.AppName}} invitation</title></head>
<body style="font-family: Georgia, serif; color: #1f1d1a; max-width: 560px; margin: 0 auto; padding: 24px;">
  <h2 style="margin-top: 0;">You're invited to {{.WorldName}}</h2>
  <p><strong>{{.InviterName}}</strong> invited you to collaborate on <strong>{{.WorldName}}</strong> in {{.AppName}} as <strong>{{.Role}}</strong>.</p>
  <p style="margin: 28px 0;">
    <a href="{{.AcceptURL}}" style="background: #3b3127; color: #fff; padding: 10px 18px; text-decoration: none; border-radius: 4px;">Open invitation</a>
  </p>
  <p style="color: #7a736a; font-size: 13px;">If you were not expecting this, you can ignore this email.</p>
</body>
</html>`
