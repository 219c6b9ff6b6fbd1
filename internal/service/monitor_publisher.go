package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// EventPublisher delivers proctor feed events.
type EventPublisher interface {
	Publish(ctx context.Context, testID string, ev model.MonitorEvent) error
}

// MonitorPublisher publishes proctor feed events on Redis Pub/Sub.
type MonitorPublisher struct {
	rdb *redis.Client
}

// NewMonitorPublisher creates a new MonitorPublisher.
func NewMonitorPublisher(rdb *redis.Client) *MonitorPublisher {
	return &MonitorPublisher{rdb: rdb}
}

func (p *MonitorPublisher) Publish(ctx context.Context, testID string, ev model.MonitorEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := p.rdb.Publish(ctx, config.CacheKey.TestMonitorChannel(testID), data).Err(); err != nil {
		return fmt.Errorf("publish monitor event: %w", err)
	}
	return nil
}
