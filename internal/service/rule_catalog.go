package service

import (
	"context"
	"time"

	"crm/internal/cache"
	"crm/internal/model"
	"crm/internal/pricing"
	"crm/internal/repository"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RuleCatalog is the read side of an organization's pricing rules.
type RuleCatalog interface {
	Rules(ctx context.Context, orgID uuid.UUID) ([]pricing.Rule, error)
	// Invalidate is called after a rule mutation commits.
	Invalidate(ctx context.Context, orgID uuid.UUID)
}

// repositoryRuleSource reads rules straight from the database, joining
// the transaction carried by ctx.
type repositoryRuleSource struct {
	repo repository.PricingRuleRepository
}

func (s repositoryRuleSource) Rules(ctx context.Context, orgID uuid.UUID) ([]pricing.Rule, error) {
	rows, err := s.repo.ListByOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	rules := make([]pricing.Rule, 0, len(rows))
	for _, r := range rows {
		rules = append(rules, toPricingRule(r))
	}
	return rules, nil
}

func toPricingRule(r model.PricingRule) pricing.Rule {
	return pricing.Rule{
		ID:      r.ID.String(),
		Kind:    pricing.RuleKind(r.Kind),
		Target:  r.Target,
		Percent: r.Percent,
	}
}

type ruleCatalog struct {
	source cache.RuleSource
	cache  *cache.RuleCache
	log    *zap.Logger
}

// NewRuleCatalog returns a catalog over repo. With a non-nil client the
// catalog is cached in Redis for ttl.
func NewRuleCatalog(repo repository.PricingRuleRepository, client *redis.Client, ttl time.Duration, log *zap.Logger) RuleCatalog {
	if log == nil {
		log = zap.NewNop()
	}
	c := &ruleCatalog{source: repositoryRuleSource{repo: repo}, log: log}
	if client != nil {
		c.cache = cache.NewRuleCache(client, c.source, ttl, log)
	}
	return c
}

func (c *ruleCatalog) Rules(ctx context.Context, orgID uuid.UUID) ([]pricing.Rule, error) {
	if c.cache != nil {
		return c.cache.Rules(ctx, orgID)
	}
	return c.source.Rules(ctx, orgID)
}

func (c *ruleCatalog) Invalidate(ctx context.Context, orgID uuid.UUID) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Invalidate(ctx, orgID); err != nil {
		c.log.Warn("pricing rule cache invalidation failed", zap.String("org_id", orgID.String()), zap.Error(err))
	}
}
