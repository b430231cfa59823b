package app

import (
	"fmt"

	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-maplefresh/internal/common"
	"github.com/noah-isme/backend-maplefresh/internal/config"
	"github.com/noah-isme/backend-maplefresh/internal/notify"
)

// Mailer returns the SMTP sender when email is enabled and a no-op sender otherwise.
func Mailer(cfg *config.Config) common.EmailSender {
	if !cfg.NotifyEmailEnabled {
		return common.NopEmailSender{}
	}
	return common.SMTPSender{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.NotifyEmailFrom,
		FromName: cfg.CompanyName,
	}
}

// EmailNotifier builds the notifier shared by the api (inline delivery and
// manual sends) and the worker (queued delivery).
func EmailNotifier(cfg *config.Config, store notify.Store, rdb redis.Cmdable) (notify.EmailNotifier, error) {
	composer, err := notify.NewComposer(notify.Company{
		Name:    cfg.CompanyName,
		Email:   cfg.NotifyEmailFrom,
		BaseURL: cfg.PublicBaseURL,
	})
	if err != nil {
		return notify.EmailNotifier{}, fmt.Errorf("email templates: %w", err)
	}
	n := notify.EmailNotifier{
		Store:      store,
		Composer:   composer,
		Mail:       Mailer(cfg),
		Enabled:    cfg.NotifyEmailEnabled,
		AdminEmail: cfg.NotifyAdminEmail,
	}
	if rdb != nil {
		n.Replay = notify.RedisReplayProtector{Client: rdb}
	}
	return n, nil
}
