package health

import "context"

// DBPinger checks Redis availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability. The bare provider
// transport satisfies it; cache and budget wrappers do not.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}
