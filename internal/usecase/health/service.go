package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "healthy"
	// Degraded indicates an optional component is failing. Requests are still served.
	Degraded Status = "degraded"
	// Unhealthy indicates a required component is failing.
	Unhealthy Status = "unhealthy"
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

type component struct {
	name     string
	checker  Checker
	required bool
}

// Service coordinates health checks.
type Service struct {
	components []component
	timeout    time.Duration
	logger     *zap.Logger
}

// New creates a Service. Each check is bounded by timeout.
func New(timeout time.Duration, logger *zap.Logger) *Service {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{timeout: timeout, logger: logger}
}

// Require registers a component whose failure makes the service unhealthy.
func (s *Service) Require(name string, c Checker) *Service {
	s.components = append(s.components, component{name: name, checker: c, required: true})
	return s
}

// Optional registers a component whose failure only degrades the service.
// A nil checker is skipped.
func (s *Service) Optional(name string, c Checker) *Service {
	if c != nil {
		s.components = append(s.components, component{name: name, checker: c})
	}
	return s
}

// Check runs all health checks concurrently.
func (s *Service) Check(ctx context.Context) Report {
	var (
		mu     sync.Mutex
		checks = make(map[string]CheckResult, len(s.components))
		failed = make(map[string]bool, len(s.components))
	)

	var g errgroup.Group
	for _, c := range s.components {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			err := c.checker.HealthCheck(cctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.Warn("Health check failed", zap.String("component", c.name), zap.Error(err))
				checks[c.name] = CheckError
				failed[c.name] = true
				return nil
			}
			checks[c.name] = CheckOK
			return nil
		})
	}
	_ = g.Wait()

	status := Healthy
	for _, c := range s.components {
		if !failed[c.name] {
			continue
		}
		if c.required {
			status = Unhealthy
			break
		}
		status = Degraded
	}

	return Report{Status: status, Checks: checks}
}
