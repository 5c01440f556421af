package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/xaenox/lead-router/internal/classifier"
	"github.com/xaenox/lead-router/internal/dedup"
	"github.com/xaenox/lead-router/internal/escalation"
	"github.com/xaenox/lead-router/internal/events"
	"github.com/xaenox/lead-router/internal/llm"
	"github.com/xaenox/lead-router/internal/models"
	"github.com/xaenox/lead-router/internal/responder"
	"github.com/xaenox/lead-router/internal/storage"
	"github.com/xaenox/lead-router/pkg/config"
	"go.uber.org/zap"
)

func databaseConfig(cfg *config.Config) storage.DatabaseConfig {
	return storage.DatabaseConfig{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	}
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Storage, error) {
	switch cfg.Store.Backend {
	case "postgres":
		logger.Info("Using PostgreSQL storage", zap.String("host", cfg.Database.Host))
		return storage.NewPostgresStorage(ctx, databaseConfig(cfg), logger)
	case "rest":
		logger.Info("Using REST storage", zap.String("url", cfg.Store.URL))
		s := storage.NewRESTStorage(cfg.Store.URL, cfg.Store.Key, nil, logger)
		if err := s.Ping(ctx); err != nil {
			return nil, fmt.Errorf("reach rest store: %w", err)
		}
		return s, nil
	case "memory", "":
		logger.Info("Using in-memory storage")
		return storage.NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func roster(cfg *config.Config) []models.Operator {
	out := make([]models.Operator, len(cfg.Rotation.Roster))
	for i, op := range cfg.Rotation.Roster {
		out[i] = models.Operator{Name: op.Name, Address: op.Address, Glyph: op.Glyph}
	}
	return out
}

// buildModels picks the completion-backed classifier and responder when an
// API key is configured. Without one, leads are classified by keyword and
// replies use the fixed fallbacks.
func buildModels(cfg *config.Config, logger *zap.Logger) (classifier.Classifier, responder.Responder) {
	if cfg.OpenAI.APIKey == "" {
		logger.Warn("openai.api_key not set, using keyword classifier and fallback replies")
		return classifier.NewKeywordClassifier(), nil
	}
	completer := llm.NewOpenAICompleter(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model, cfg.OpenAI.Temperature, logger)
	return classifier.NewGPTClassifier(completer, cfg.OpenAI.MaxTokens, logger),
		responder.NewGPTResponder(completer, cfg.OpenAI.ReplyMaxTokens, logger)
}

// openRedis returns nil when no address is configured.
func openRedis(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*redis.Client, error) {
	if cfg.Redis.Addr == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Redis.Addr, err)
	}
	logger.Info("Dedup records persisted to Redis", zap.String("addr", cfg.Redis.Addr))
	return rdb, nil
}

// newRecord builds a channel's dedup record, persisted to Redis when
// configured, else to dedup.dir on local disk.
func newRecord(ctx context.Context, channel models.ChannelType, cfg *config.Config, rdb *redis.Client, logger *zap.Logger) *dedup.Record {
	var persister dedup.Persister
	switch {
	case rdb != nil:
		persister = dedup.NewRedisPersister(rdb, string(channel))
	case cfg.Dedup.Dir != "":
		fp, err := dedup.NewFilePersister(cfg.Dedup.Dir, string(channel))
		if err != nil {
			logger.Warn("Dedup record kept in memory only",
				zap.String("channel", string(channel)),
				zap.Error(err))
		} else {
			persister = fp
		}
	default:
		logger.Warn("dedup.dir not set, dedup record lost on restart", zap.String("channel", string(channel)))
	}
	record := dedup.NewRecord(string(channel), cfg.Dedup.Ceiling, cfg.Dedup.Retain, persister, logger)
	if err := record.Restore(ctx); err != nil {
		logger.Warn("Failed to restore dedup record, starting empty",
			zap.String("channel", string(channel)),
			zap.Error(err))
	}
	return record
}

func openPublisher(cfg *config.Config, logger *zap.Logger) events.Publisher {
	if cfg.AMQP.URL == "" {
		return events.NopPublisher{}
	}
	p, err := events.NewRabbitPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
	if err != nil {
		logger.Warn("Handoff events disabled", zap.Error(err))
		return events.NopPublisher{}
	}
	logger.Info("Publishing handoff events", zap.String("exchange", cfg.AMQP.Exchange))
	return p
}

// notificationSender picks the transport for operator notifications.
func notificationSender(cfg *config.Config, chat, bot escalation.Sender) (escalation.Sender, models.ChannelType, error) {
	if cfg.Notify.Transport == "telegram" {
		if bot == nil {
			return nil, "", fmt.Errorf("telegram notify transport selected but the bot is unavailable")
		}
		return bot, "telegram", nil
	}
	return chat, models.ChannelWhatsApp, nil
}
