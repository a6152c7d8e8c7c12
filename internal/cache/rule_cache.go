// Package cache keeps each organization's pricing rule catalog in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"crm/internal/pricing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RuleSource loads an organization's rules from the system of record.
type RuleSource interface {
	Rules(ctx context.Context, orgID uuid.UUID) ([]pricing.Rule, error)
}

// RuleCache is a read-through cache in front of a RuleSource. Redis errors
// degrade to reading the source directly.
type RuleCache struct {
	client    *redis.Client
	source    RuleSource
	ttl       time.Duration
	keyPrefix string
	log       *zap.Logger
}

var errStaleSnapshot = errors.New("rule catalog changed while loading")

func NewRuleCache(client *redis.Client, source RuleSource, ttl time.Duration, log *zap.Logger) *RuleCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &RuleCache{
		client:    client,
		source:    source,
		ttl:       ttl,
		keyPrefix: "pricing:rules:",
		log:       log.Named("rule_cache"),
	}
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func (c *RuleCache) key(orgID uuid.UUID) string {
	return c.keyPrefix + orgID.String()
}

func (c *RuleCache) genKey(orgID uuid.UUID) string {
	return c.key(orgID) + ":gen"
}

// Rules returns the cached catalog of orgID, loading it from the source on a
// miss. A loaded snapshot is written back only if no Invalidate ran since the
// load started.
func (c *RuleCache) Rules(ctx context.Context, orgID uuid.UUID) ([]pricing.Rule, error) {
	raw, err := c.client.Get(ctx, c.key(orgID)).Bytes()
	switch {
	case err == nil:
		var rules []pricing.Rule
		if jsonErr := json.Unmarshal(raw, &rules); jsonErr == nil {
			return rules, nil
		}
		c.log.Warn("discarding undecodable cached rules", zap.String("org_id", orgID.String()))
	case !errors.Is(err, redis.Nil):
		c.log.Warn("rule cache read failed", zap.String("org_id", orgID.String()), zap.Error(err))
	}

	gen, genErr := c.generation(ctx, orgID)

	rules, err := c.source.Rules(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if genErr != nil {
		return rules, nil
	}

	payload, err := json.Marshal(rules)
	if err != nil {
		return rules, nil
	}
	if err := c.store(ctx, orgID, gen, payload); err != nil {
		c.log.Warn("rule cache write failed", zap.String("org_id", orgID.String()), zap.Error(err))
	}
	return rules, nil
}

func (c *RuleCache) generation(ctx context.Context, orgID uuid.UUID) (int64, error) {
	gen, err := c.client.Get(ctx, c.genKey(orgID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// store writes payload under WATCH on the generation key so a concurrent
// Invalidate aborts the write.
func (c *RuleCache) store(ctx context.Context, orgID uuid.UUID, gen int64, payload []byte) error {
	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, c.genKey(orgID)).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return errStaleSnapshot
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, c.key(orgID), payload, c.ttl)
			return nil
		})
		return err
	}, c.genKey(orgID))
	if errors.Is(err, errStaleSnapshot) || errors.Is(err, redis.TxFailedErr) {
		c.log.Debug("skipping stale rule snapshot", zap.String("org_id", orgID.String()))
		return nil
	}
	return err
}

// Invalidate drops the cached catalog of orgID and bumps its generation so
// in-flight loads do not write back.
func (c *RuleCache) Invalidate(ctx context.Context, orgID uuid.UUID) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.genKey(orgID))
		pipe.Del(ctx, c.key(orgID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate rule cache: %w", err)
	}
	return nil
}
