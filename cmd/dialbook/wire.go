package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/zulandar/dialbook/internal/alert"
	"github.com/zulandar/dialbook/internal/booking"
	"github.com/zulandar/dialbook/internal/calendar"
	"github.com/zulandar/dialbook/internal/config"
	"github.com/zulandar/dialbook/internal/dialogue"
	"github.com/zulandar/dialbook/internal/llm"
	"github.com/zulandar/dialbook/internal/orchestrator"
	"github.com/zulandar/dialbook/internal/telephony"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// app is the fully wired service graph behind serve and booking call.
type app struct {
	bookings     *booking.Store
	events       *calendar.Store
	orchestrator *orchestrator.Orchestrator
	closers      []func() error
}

// Close releases the model client and the redis connection.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func buildApp(ctx context.Context, cfg *config.Config, gormDB *gorm.DB, logger *zap.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.bookings, err = booking.NewStore(booking.StoreOpts{DB: gormDB})
	if err != nil {
		return nil, err
	}
	a.events, err = calendar.NewStore(calendar.StoreOpts{DB: gormDB})
	if err != nil {
		return nil, err
	}

	phone, err := buildTelephony(cfg.Telephony, logger)
	if err != nil {
		return nil, err
	}

	var (
		provider   llm.Provider = llm.Scripted{}
		classifier llm.Classifier
	)
	if cfg.Dialogue.Provider == "gemini" {
		g, err := llm.NewGemini(ctx, llm.GeminiOpts{
			APIKey:  cfg.Dialogue.APIKey,
			Model:   cfg.Dialogue.Model,
			Timeout: cfg.Dialogue.Timeout,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, g.Close)
		provider = g
		if cfg.Dialogue.ClassifyWithModel {
			classifier = g
		}
	}

	snapshots, err := buildSnapshots(ctx, cfg.Sessions.Redis, a)
	if err != nil {
		return nil, err
	}

	notifier, err := buildNotifier(cfg.Alerts)
	if err != nil {
		return nil, err
	}

	a.orchestrator, err = orchestrator.New(orchestrator.Opts{
		Bookings:      a.bookings,
		Calendar:      a.events,
		Telephony:     phone,
		Dialogue:      provider,
		Classifier:    classifier,
		Notifier:      notifier,
		Snapshots:     snapshots,
		Logger:        logger,
		PublicBaseURL: cfg.Server.PublicBaseURL,
		FromNumber:    cfg.Telephony.FromNumber,
		Language:      cfg.Dialogue.Language,
		Location:      cfg.Location(),
		IdleTimeout:   cfg.Sessions.IdleTimeout,
		MaxAttempts:   cfg.Calendar.MaxAttempts,
		RetryBackoff:  cfg.Calendar.RetryBackoff,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func buildTelephony(cfg config.TelephonyConfig, logger *zap.Logger) (telephony.Provider, error) {
	var p telephony.Provider = telephony.LogProvider{Logger: logger}
	if cfg.Provider == "twilio" {
		tw, err := telephony.NewTwilio(telephony.TwilioOpts{
			AccountSID: cfg.AccountSID,
			AuthToken:  cfg.AuthToken,
			APIBase:    cfg.APIBase,
		})
		if err != nil {
			return nil, err
		}
		p = tw
	}
	return telephony.Paced(p, cfg.CallsPerMinute), nil
}

func buildSnapshots(ctx context.Context, cfg config.RedisConfig, a *app) (dialogue.SnapshotStore, error) {
	if cfg.Addr == "" {
		return dialogue.NopSnapshotStore{}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	a.closers = append(a.closers, client.Close)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}
	return dialogue.NewRedisSnapshotStore(client, cfg.TTL)
}

func buildNotifier(cfg config.AlertsConfig) (alert.Notifier, error) {
	var targets alert.Multi
	if cfg.SlackWebhookURL != "" {
		s, err := alert.NewSlack(alert.SlackOpts{WebhookURL: cfg.SlackWebhookURL})
		if err != nil {
			return nil, err
		}
		targets = append(targets, s)
	}
	if cfg.DiscordBotToken != "" {
		d, err := alert.NewDiscord(alert.DiscordOpts{BotToken: cfg.DiscordBotToken, ChannelID: cfg.DiscordChannelID})
		if err != nil {
			return nil, err
		}
		targets = append(targets, d)
	}
	if len(targets) == 0 {
		return alert.Nop{}, nil
	}
	return targets, nil
}
