package feed

import (
	"context"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"aquawatch/internal/config"
	"aquawatch/internal/model"
)

// StartKafka consumes the event topic and forwards decoded envelopes to the
// dispatcher. Used where the dashboard tails the broker directly instead of
// (or alongside) the websocket feed. Malformed messages are dropped.
func StartKafka(ctx context.Context, cfg config.FeedConfig, out chan<- model.Envelope, logger *slog.Logger) {
	if !cfg.Enabled {
		if logger != nil {
			logger.Info("kafka feed disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("kafka feed enabled", "brokers", cfg.Brokers, "topic", cfg.Topic, "group_id", cfg.GroupID)
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})
	go func() {
		defer reader.Close()
		for {
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if logger != nil {
					logger.Warn("kafka read error", "err", err)
				}
				continue
			}
			env, err := model.DecodeEnvelope(m.Value)
			if err != nil {
				if logger != nil {
					logger.Debug("dropping malformed kafka message", "err", err)
				}
				continue
			}
			select {
			case out <- env:
			case <-ctx.Done():
				return
			default:
				if logger != nil {
					logger.Warn("feed channel full, dropping event", "type", env.Type)
				}
			}
		}
	}()
}
