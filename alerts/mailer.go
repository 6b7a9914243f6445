package alerts

import (
	"fmt"
	"strconv"

	"github.com/scribbletales/storypay/config"
	"github.com/scribbletales/storypay/utils"
	"gopkg.in/gomail.v2"
)

// Mailer emails reconciliation anomalies to the operator address. Delivery
// is best effort and runs off the request goroutine; a failed alert is
// logged and dropped, never retried against the caller.
type Mailer struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       string
}

// NewMailer builds a Mailer from SMTP configuration. Returns nil when no
// alert address is configured; the reconciliation core treats a nil Alerter
// as log-only.
func NewMailer(cfg *config.Config) *Mailer {
	if cfg.AlertEmail == "" || cfg.SMTPHost == "" {
		utils.LogInfo("Anomaly alerts: no SMTP/alert address configured, using log-only mode")
		return nil
	}
	port := 587
	if cfg.SMTPPort != "" {
		if p, err := strconv.Atoi(cfg.SMTPPort); err == nil {
			port = p
		}
	}
	return &Mailer{
		host:     cfg.SMTPHost,
		port:     port,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
		from:     cfg.SMTPFrom,
		to:       cfg.AlertEmail,
	}
}

// Anomaly sends an anomaly notification to the operator address
func (m *Mailer) Anomaly(subject, detail string) {
	go func() {
		msg := gomail.NewMessage()
		msg.SetHeader("From", m.from)
		msg.SetHeader("To", m.to)
		msg.SetHeader("Subject", "[storypay] "+subject)

		body := fmt.Sprintf(`
			<h2>Payment reconciliation anomaly</h2>
			<p>%s</p>
			<p>Review the webhook event ledger for the full payload.</p>
		`, detail)
		msg.SetBody("text/html", body)

		dialer := gomail.NewDialer(m.host, m.port, m.username, m.password)
		if err := dialer.DialAndSend(msg); err != nil {
			utils.LogError("Failed to send anomaly alert %q: %v", subject, err)
		}
	}()
}
