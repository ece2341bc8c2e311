package cache

import "context"

// NoopCache is selected when caching is disabled; both operations are inert.
type NoopCache struct{}

func NewNoop() *NoopCache { return &NoopCache{} }

func (*NoopCache) Get(context.Context, string) (string, bool) { return "", false }

func (*NoopCache) Set(context.Context, string, string) {}
