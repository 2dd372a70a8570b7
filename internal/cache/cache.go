package cache

import (
	"context"
	"time"
)

// RuleCache stores serialized rule sets. A miss is reported as ok=false with
// a nil error.
type RuleCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type NoopRuleCache struct{}

func (NoopRuleCache) Get(_ context.Context, _ string) ([]byte, bool, error) {
	return nil, false, nil
}

func (NoopRuleCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error {
	return nil
}

func (NoopRuleCache) Delete(_ context.Context, _ ...string) error {
	return nil
}
