package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates only non-critical components (the answer cache) failed.
	Degraded Status = "degraded"
	// Unhealthy indicates a critical component failed.
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

// Component names.
const (
	ComponentVector     = "vector"
	ComponentEmbedding  = "embedding"
	ComponentGeneration = "generation"
	ComponentCache      = "cache"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Deps are the checked components. Embedding, Generation and Cache can be nil.
type Deps struct {
	Vector     Pinger
	Embedding  Checker
	Generation Checker
	Cache      Checker
}

// Service coordinates health checks.
type Service struct {
	deps Deps
}

// New creates a Service.
func New(deps Deps) *Service {
	return &Service{deps: deps}
}

// Check runs every health check independently.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	checks[ComponentVector] = result(s.deps.Vector.Ping(ctx))
	if s.deps.Embedding != nil {
		checks[ComponentEmbedding] = result(s.deps.Embedding.HealthCheck(ctx))
	}
	if s.deps.Generation != nil {
		checks[ComponentGeneration] = result(s.deps.Generation.HealthCheck(ctx))
	}
	if s.deps.Cache != nil {
		checks[ComponentCache] = result(s.deps.Cache.HealthCheck(ctx))
	}

	status := Healthy
	for name, v := range checks {
		if v != CheckError {
			continue
		}
		if name != ComponentCache {
			status = Unhealthy
			break
		}
		status = Degraded
	}

	return Report{Status: status, Checks: checks}
}

func result(err error) CheckResult {
	if err != nil {
		return CheckError
	}
	return CheckOK
}
