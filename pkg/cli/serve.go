package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/moncoffretelec/coffret/pkg/api"
	"github.com/moncoffretelec/coffret/pkg/audit"
	"github.com/moncoffretelec/coffret/pkg/config"
	"github.com/moncoffretelec/coffret/pkg/dedup"
	"github.com/moncoffretelec/coffret/pkg/mail"
	"github.com/moncoffretelec/coffret/pkg/notify"
	"github.com/moncoffretelec/coffret/pkg/render"
	"github.com/moncoffretelec/coffret/pkg/submission"
	"github.com/moncoffretelec/coffret/pkg/telemetry"
	"github.com/moncoffretelec/coffret/pkg/version"
)

func NewServeCommand() *cobra.Command {
	var requireMail bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), rt, requireMail)
		},
	}

	cmd.Flags().BoolVar(&requireMail, "require-mail-credentials", getEnvBool("REQUIRE_MAIL_CREDENTIALS", false),
		"Refuse to start when SMTP_USER or SMTP_PASS is missing")
	return cmd
}

func runServe(ctx context.Context, rt *runtimeState, requireMail bool) error {
	log := rt.sugar()
	log.Infow("Starting coffret", "version", version.Version, "commit", version.GitCommit)

	cfg, err := rt.loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	warnings, err := cfg.Check(requireMail)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		log.Warn(w)
	}
	if rt.debug {
		log.Debugw("Effective configuration", "listenAddress", cfg.Server.ListenAddress,
			"smtpHost", cfg.Mail.Host, "smtpPort", cfg.Mail.Port, "outputDir", cfg.Assets.OutputDir,
			"maxInFlight", cfg.Limits.MaxInFlight, "dedup", cfg.Dedup.RedisURL != "")
	}

	if err := os.MkdirAll(cfg.Assets.OutputDir, 0o700); err != nil {
		return fmt.Errorf("creating output dir %s: %w", cfg.Assets.OutputDir, err)
	}

	_, shutdownTracing, err := telemetry.Init(ctx, telemetry.FromConfig(cfg.Telemetry, version.Version, log))
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.WithoutCancel(ctx)); err != nil {
			log.Warnw("Tracing shutdown failed", "error", err)
		}
	}()

	guard := openGuard(ctx, cfg.Dedup, log)
	defer func() { _ = guard.Close() }()

	auditor := openAuditor(cfg.Audit, rt.logger)
	defer func() {
		if err := auditor.Close(); err != nil {
			log.Warnw("Audit shutdown failed", "error", err)
		}
	}()

	server := api.NewServer(rt.logger, cfg, rt.debug, newService(cfg, guard, auditor, log), version.Version)
	defer server.Close()

	return server.Listen(ctx)
}

// newService wires renderer, mailer and dispatcher into a submission service.
func newService(cfg config.Config, guard dedup.Guard, auditor submission.Auditor, log *zap.SugaredLogger) *submission.Service {
	renderer := render.NewRenderer(render.Options{
		FontPath:     cfg.Assets.FontPath,
		BoldFontPath: cfg.Assets.BoldFontPath,
		LogoPath:     cfg.Assets.LogoPath,
		OutputDir:    cfg.Assets.OutputDir,
	}, log)
	sender := mail.NewSender(cfg.Mail, log)
	dispatcher := notify.NewDispatcher(sender, cfg.Mail.OperatorAddress, log)
	return submission.NewService(renderer, dispatcher, submission.OptionsFromConfig(cfg.Limits, guard, auditor), log)
}

// openGuard connects the duplicate guard. An unreachable Redis disables
// the guard rather than blocking startup.
func openGuard(ctx context.Context, cfg config.Dedup, log *zap.SugaredLogger) dedup.Guard {
	if cfg.RedisURL == "" {
		log.Infow("Duplicate submission guard disabled")
		return dedup.Noop{}
	}
	guard, err := dedup.Open(ctx, cfg.RedisURL, cfg.TTL)
	if err != nil {
		log.Warnw("Duplicate submission guard unavailable, continuing without it", "error", err)
		return dedup.Noop{}
	}
	log.Infow("Duplicate submission guard enabled", "ttl", cfg.TTL)
	return guard
}

type auditCloser interface {
	submission.Auditor
	Close() error
}

// openAuditor builds the audit recorder. A Kafka sink that cannot be built
// leaves the log sink alone.
func openAuditor(cfg config.Audit, logger *zap.Logger) auditCloser {
	log := logger.Sugar()
	if !cfg.Enabled {
		return audit.Nop{}
	}
	sinks := []audit.Sink{audit.NewLogSink(logger)}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSink, err := audit.NewKafkaSink(audit.KafkaSinkConfig{
			Brokers:            cfg.Kafka.Brokers,
			Topic:              cfg.Kafka.Topic,
			TLS:                cfg.Kafka.TLS,
			InsecureSkipVerify: cfg.Kafka.InsecureSkipVerify,
			SASLMechanism:      cfg.Kafka.SASLMechanism,
			Username:           cfg.Kafka.Username,
			Password:           cfg.Kafka.Password,
		}, logger)
		if err != nil {
			log.Warnw("Kafka audit sink unavailable, auditing to the log only", "error", err)
		} else {
			sinks = append(sinks, kafkaSink)
		}
	}
	log.Infow("Submission audit enabled", "sinks", len(sinks))
	return audit.NewRecorder(audit.RecorderConfig{QueueSize: cfg.QueueSize}, logger, sinks...)
}
