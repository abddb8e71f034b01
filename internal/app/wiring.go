package app

import (
	"context"
	"fmt"

	"github.com/semmidev/dumpcycle/internal/adapter/notifier"
	"github.com/semmidev/dumpcycle/internal/adapter/storage"
	"github.com/semmidev/dumpcycle/internal/config"
	"github.com/semmidev/dumpcycle/internal/domain"
	"github.com/semmidev/dumpcycle/internal/infrastructure/logger"
	"github.com/semmidev/dumpcycle/internal/infrastructure/secrets"
)

// notifySecrets is the Vault document holding notification credentials.
type notifySecrets struct {
	EmailUsername    string `mapstructure:"email_username"`
	EmailPassword    string `mapstructure:"email_password"`
	TelegramBotToken string `mapstructure:"telegram_bot_token"`
	TelegramChatID   string `mapstructure:"telegram_chat_id"`
	WebhookURL       string `mapstructure:"webhook_url"`
}

func (s notifySecrets) apply(n *config.NotifyConfig) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&n.Email.Username, s.EmailUsername)
	set(&n.Email.Password, s.EmailPassword)
	set(&n.Telegram.BotToken, s.TelegramBotToken)
	set(&n.Telegram.ChatID, s.TelegramChatID)
	set(&n.Webhook.URL, s.WebhookURL)
}

func applyVaultSecrets(ctx context.Context, cfg *config.Config, mode domain.Mode, log *logger.Logger) error {
	if cfg.Vault.NotifyPath == "" && cfg.Vault.CredentialsPath == "" {
		return nil
	}

	v, err := secrets.NewVault(cfg.Vault.Address, cfg.Vault.Token)
	if err != nil {
		return err
	}

	if path := cfg.Vault.NotifyPath; path != "" {
		var s notifySecrets
		if err := v.Decode(ctx, path, &s); err != nil {
			return err
		}
		s.apply(&cfg.Notify)
		log.Infof("Notification credentials loaded from vault")
	}

	if path := cfg.Vault.CredentialsPath; path != "" {
		var creds config.Credentials
		if err := v.Decode(ctx, path, &creds); err != nil {
			return err
		}
		cfg.ApplyCredentials(mode, creds)
		log.Infof("%s credentials loaded from vault", mode)
	}
	return nil
}

// buildNotifier enables every channel whose section is filled in. A channel
// that cannot be built is logged and skipped.
func buildNotifier(cfg config.NotifyConfig, log *logger.Logger) *notifier.Multi {
	multi := notifier.NewMulti(log)

	if cfg.Email.Host != "" && len(cfg.Email.To) > 0 {
		multi.Add(notifier.NewEmail(notifier.EmailOptions{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
			To:       cfg.Email.To,
		}))
	}

	if cfg.Telegram.BotToken != "" {
		tg, err := notifier.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			log.Warnf("telegram notifications disabled: %v", err)
		} else {
			multi.Add(tg)
		}
	}

	if cfg.Webhook.URL != "" {
		multi.Add(notifier.NewWebhook(cfg.Webhook.URL))
	}

	if cfg.NATS.URL != "" {
		nc, err := notifier.NewNATS(cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			log.Warnf("nats notifications disabled: %v", err)
		} else {
			multi.Add(nc)
		}
	}

	return multi
}

func buildStore(ctx context.Context, cfg config.StorageConfig, transfer config.TransferConfig) (domain.ObjectStore, error) {
	store, err := storage.New(ctx, storage.Options{
		Provider:        cfg.Provider,
		AccessKey:       cfg.AccessKey,
		Secret:          cfg.Secret,
		Region:          cfg.Region,
		Endpoint:        cfg.Endpoint,
		PathStyle:       cfg.PathStyle,
		CredentialsFile: cfg.CredentialsFile,
		ProjectID:       cfg.ProjectID,
		Account:         cfg.Account,
		Root:            cfg.Root,
		PartSize:        transfer.PartSizeMB << 20,
		Concurrency:     transfer.Concurrency,
	})
	if err != nil {
		return nil, fmt.Errorf("build object store: %w", err)
	}
	return store, nil
}
