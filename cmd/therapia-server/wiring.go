package main

import (
	"context"
	"fmt"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	"therapia/backend/internal/config"
	"therapia/backend/internal/notify"
	"therapia/backend/internal/store"
	"therapia/backend/internal/store/memory"
	"therapia/backend/internal/store/postgres"
)

type storeBackend struct {
	appointments store.AppointmentRepository
	directory    notify.Directory
	close        func()
}

func openStore(ctx context.Context, log *slog.Logger, cfg config.Config) (storeBackend, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		log.Warn("using in-memory store; appointments are lost on restart")
		return storeBackend{
			appointments: memory.NewAppointmentRepo(),
			directory:    notify.NewStaticDirectory(),
			close:        func() {},
		}, nil
	}

	log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
	db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	if err != nil {
		args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
		log.Error("database connection failed", args...)
		return storeBackend{}, err
	}

	if err := postgres.Migrate(ctx, db); err != nil {
		_ = postgres.Close(db)
		return storeBackend{}, fmt.Errorf("migrate: %w", err)
	}
	log.Info("database migrations applied")

	return storeBackend{
		appointments: postgres.NewAppointmentRepo(db),
		directory:    postgres.NewDirectoryRepo(db),
		close: func() {
			if err := postgres.Close(db); err != nil {
				log.Warn("database close failed", slog.Any("err", err))
			}
		},
	}, nil
}

func newNotifier(ctx context.Context, log *slog.Logger, cfg config.Config, dir notify.Directory) (*notify.EmailGateway, error) {
	var sender notify.EmailSender

	switch cfg.Notify.Provider {
	case config.NotifyProviderSendGrid:
		sg := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.Notify.SendGridAPIKey,
			FromEmail: cfg.Notify.FromEmail,
			FromName:  cfg.Notify.FromName,
		})
		if sg == nil {
			return nil, fmt.Errorf("notify.sendgrid_api_key is required for the sendgrid provider")
		}
		sender = sg
	case config.NotifyProviderSES:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		sender = notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.Notify.FromEmail,
			FromName:  cfg.Notify.FromName,
		})
	case config.NotifyProviderSMTP:
		sender = notify.NewSMTPSender(cfg.Notify.SMTPHost, cfg.Notify.SMTPPort, cfg.Notify.FromEmail)
	default:
		sender = notify.NewStubEmailSender(log)
	}

	log.Info("notifier configured", slog.String("provider", cfg.Notify.Provider))
	return notify.NewEmailGateway(
		sender,
		notify.WithDirectory(dir),
		notify.WithLocation(cfg.ClinicZone),
		notify.WithLogger(log),
	), nil
}
