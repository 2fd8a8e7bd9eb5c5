package engine

import (
	"context"
	"fmt"

	"outreachly/config"
	"outreachly/models"
	"outreachly/utils"

	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// SMTPSender delivers messages over SMTP with open/click tracking
// injected. The idempotency key doubles as the message ID, so a retried
// attempt produces the same ID and downstream tracking stays stable.
type SMTPSender struct {
	cfg     config.SMTPConfig
	baseURL string
	dialer  *gomail.Dialer
	log     *logrus.Entry
}

func NewSMTPSender(cfg config.SMTPConfig, trackingBaseURL string, log *logrus.Entry) *SMTPSender {
	return &SMTPSender{
		cfg:     cfg,
		baseURL: trackingBaseURL,
		dialer:  gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		log:     log,
	}
}

func (s *SMTPSender) Send(ctx context.Context, prospect *models.Prospect, subject, content, idempotencyKey string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	messageID := idempotencyKey
	tracked := utils.InjectTracking(content, s.baseURL, messageID)

	m := gomail.NewMessage()
	m.SetHeader("From", fmt.Sprintf("%s <%s>", s.cfg.FromName, s.cfg.FromEmail))
	m.SetHeader("To", prospect.Email)
	m.SetHeader("Subject", subject)
	m.SetHeader("X-Outreachly-Message-ID", messageID)
	m.SetBody("text/html", tracked)

	if err := s.dialer.DialAndSend(m); err != nil {
		return "", err
	}

	s.log.WithFields(logrus.Fields{
		"prospect_id": prospect.ID,
		"message_id":  messageID,
	}).Info("message sent")

	return messageID, nil
}
