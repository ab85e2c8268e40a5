package bootstrap

import (
	"github.com/wolfman30/clinic-intake/internal/appointments"
	"github.com/wolfman30/clinic-intake/internal/archive"
	"github.com/wolfman30/clinic-intake/internal/browser"
	appconfig "github.com/wolfman30/clinic-intake/internal/config"
	"github.com/wolfman30/clinic-intake/internal/confirmation"
	"github.com/wolfman30/clinic-intake/internal/notify"
	"github.com/wolfman30/clinic-intake/internal/observability/metrics"
	"github.com/wolfman30/clinic-intake/internal/slip"
	"github.com/wolfman30/clinic-intake/pkg/logging"
)

// SlipOptions carries clinic branding into the slip template.
func SlipOptions(cfg *appconfig.Config) slip.Options {
	return slip.Options{
		ClinicName:    cfg.ClinicName,
		ClinicAddress: cfg.ClinicAddress,
		ClinicPhone:   cfg.ClinicPhone,
		FrontendURL:   cfg.FrontendURL,
	}
}

// NotifyConfig carries clinic branding into the email templates.
func NotifyConfig(cfg *appconfig.Config) notify.Config {
	return notify.Config{
		ClinicName:  cfg.ClinicName,
		ClinicPhone: cfg.ClinicPhone,
		FrontendURL: cfg.FrontendURL,
		AdminEmails: cfg.AdminEmails,
	}
}

// BuildRenderer returns the PDF sidecar client.
func BuildRenderer(cfg *appconfig.Config, logger *logging.Logger) *browser.Client {
	return browser.NewClient(cfg.RendererURL,
		browser.WithLogger(logger),
		browser.WithRenderTimeout(cfg.RenderTimeout),
	)
}

// BuildProcessor assembles the render, archive and email steps. A nil s3
// client or empty bucket leaves archiving off.
func BuildProcessor(cfg *appconfig.Config, repo appointments.Repository, renderer confirmation.PDFRenderer, mailer confirmation.Mailer, s3 archive.S3API, m *metrics.LifecycleMetrics, logger *logging.Logger) *confirmation.Processor {
	opts := []confirmation.ProcessorOption{confirmation.WithProcessorMetrics(m)}
	if s3 != nil && cfg.SlipArchiveBucket != "" {
		opts = append(opts, confirmation.WithArchive(archive.NewStore(s3, cfg.SlipArchiveBucket, logger)))
	}
	return confirmation.NewProcessor(repo, renderer, mailer, SlipOptions(cfg), logger, opts...)
}
