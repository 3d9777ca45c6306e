package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates the embedding provider is down. Keyword, fuzzy and
	// wildcard search still serve; semantic search and ingestion do not.
	Degraded Status = "degraded"
	// Unhealthy indicates Redis is unreachable. Nothing serves.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	db       DBPinger
	embedder EmbeddingChecker
}

// New creates a Service. embedder can be nil.
func New(db DBPinger, embedder EmbeddingChecker) *Service {
	return &Service{db: db, embedder: embedder}
}

// Check probes Redis and the embedding provider. A Redis failure makes the
// report Unhealthy; an embedder failure alone only degrades it.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)
	status := Healthy

	if err := s.db.Ping(ctx); err != nil {
		checks["redis"] = CheckError
		status = Unhealthy
	} else {
		checks["redis"] = CheckOK
	}

	if s.embedder != nil {
		if err := s.embedder.HealthCheck(ctx); err != nil {
			checks["embedder"] = CheckError
			if status == Healthy {
				status = Degraded
			}
		} else {
			checks["embedder"] = CheckOK
		}
	}

	return Report{Status: status, Checks: checks}
}
