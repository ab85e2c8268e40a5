package bootstrap

import (
	"strings"

	appconfig "github.com/wolfman30/clinic-intake/internal/config"
	"github.com/wolfman30/clinic-intake/internal/notify"
	"github.com/wolfman30/clinic-intake/pkg/logging"
)

// BuildEmailSender selects the email provider. A provider missing its
// credentials still returns a sender; sends then fail with notify.ErrNotConfigured.
func BuildEmailSender(cfg *appconfig.Config, ses notify.SESAPI, logger *logging.Logger) (notify.EmailSender, string) {
	if logger == nil {
		logger = logging.Default()
	}

	switch strings.ToLower(strings.TrimSpace(cfg.EmailProvider)) {
	case "ses":
		if ses == nil {
			logger.Warn("ses email provider selected without an SES client")
		}
		return notify.NewSESSender(ses, notify.SESConfig{
			FromEmail: cfg.EmailFromAddress,
			FromName:  cfg.EmailFromName,
		}, logger), "ses"
	case "stub":
		return notify.NewStubEmailSender(logger), "stub"
	default:
		if strings.TrimSpace(cfg.SendGridAPIKey) == "" {
			logger.Warn("SENDGRID_API_KEY not set; emails will fail until configured")
		}
		return notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFromAddress,
			FromName:  cfg.EmailFromName,
		}, logger), "sendgrid"
	}
}
