package services

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"html/template"
	"log/slog"
	"net/smtp"
	"strings"
)

// EmailConfig holds SMTP settings
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// EmailService sends payment receipts via SMTP
type EmailService struct {
	host     string
	port     int
	username string
	password string
	from     string
}

// NewEmailService creates a new email service instance
func NewEmailService(cfg EmailConfig) *EmailService {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &EmailService{
		host:     cfg.Host,
		port:     cfg.Port,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
	}
}

// IsConfigured checks if SMTP is properly configured
func (e *EmailService) IsConfigured() bool {
	return e.host != "" && e.username != "" && e.password != "" && e.from != ""
}

// SendPaymentReceipt mails a receipt for a confirmed settlement
func (e *EmailService) SendPaymentReceipt(toEmail, studentName string, event SettlementEvent) error {
	if !e.IsConfigured() {
		return fmt.Errorf("SMTP not configured")
	}

	body, err := buildReceiptBody(studentName, event)
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("Payment received - %s", event.ProgramName)
	if err := e.sendEmail(toEmail, subject, body); err != nil {
		return err
	}

	slog.Info("payment receipt sent", "to", toEmail, "settlement_id", event.SettlementID)
	return nil
}

var receiptTemplate = template.Must(template.New("receipt").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Payment received</title>
</head>
<body style="font-family: Arial, sans-serif; color: #333;">
    <h2>Payment received</h2>
    <p>Hello {{.Name}},</p>
    <p>We received your payment for <strong>{{.Program}}</strong>.</p>
    <table cellpadding="6" style="border-collapse: collapse;">
        <tr><td>Amount</td><td><strong>{{.Amount}} {{.Currency}}</strong></td></tr>
        <tr><td>Reference</td><td>{{.Reference}}</td></tr>
        <tr><td>Installment</td><td>#{{.InstallmentID}}</td></tr>
    </table>
    <p style="margin-top: 15px; color: #999;">Keep this email as proof of payment.</p>
</body>
</html>`))

func buildReceiptBody(studentName string, event SettlementEvent) (string, error) {
	if studentName == "" {
		studentName = "Student"
	}

	var buf bytes.Buffer
	err := receiptTemplate.Execute(&buf, map[string]interface{}{
		"Name":          studentName,
		"Program":       event.ProgramName,
		"Amount":        event.Amount.StringFixed(2),
		"Currency":      event.Currency,
		"Reference":     event.GatewayReference,
		"InstallmentID": event.InstallmentID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render receipt: %w", err)
	}
	return buf.String(), nil
}

// sendEmail sends an email using SMTP with STARTTLS
func (e *EmailService) sendEmail(to, subject, htmlBody string) error {
	headers := [][2]string{
		{"From", e.from},
		{"To", to},
		{"Subject", subject},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/html; charset=UTF-8"},
	}

	var message strings.Builder
	for _, h := range headers {
		message.WriteString(fmt.Sprintf("%s: %s\r\n", h[0], h[1]))
	}
	message.WriteString("\r\n")
	message.WriteString(htmlBody)

	addr := fmt.Sprintf("%s:%d", e.host, e.port)
	auth := smtp.PlainAuth("", e.username, e.password, e.host)

	conn, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer conn.Close()

	if err := conn.StartTLS(&tls.Config{ServerName: e.host}); err != nil {
		return fmt.Errorf("failed to start TLS: %w", err)
	}

	if err := conn.Auth(auth); err != nil {
		return fmt.Errorf("SMTP authentication failed: %w", err)
	}

	if err := conn.Mail(e.from); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}

	if err := conn.Rcpt(to); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	w, err := conn.Data()
	if err != nil {
		return fmt.Errorf("failed to get data writer: %w", err)
	}

	if _, err := w.Write([]byte(message.String())); err != nil {
		return fmt.Errorf("failed to write email body: %w", err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	return conn.Quit()
}
