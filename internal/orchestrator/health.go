package orchestrator

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/captjreacher/pimp-my-brand/internal/metrics"
)

// HealthState is the aggregate verdict over all registered checks.
type HealthState string

const (
	StateHealthy   HealthState = "healthy"
	StateDegraded  HealthState = "degraded"
	StateUnhealthy HealthState = "unhealthy"
)

// A service counts toward "degraded" rather than "unhealthy" while at
// least this fraction of checks pass.
const degradedFloor = 0.7

const healthCheckTimeout = 2 * time.Second

// CheckFunc probes one dependency. A non-nil error or a timeout marks the
// service down.
type CheckFunc func(ctx context.Context) error

type healthCheck struct {
	name string
	fn   CheckFunc
}

// ServiceStatus is the outcome of a single health check.
type ServiceStatus struct {
	Name    string        `json:"name"`
	Up      bool          `json:"up"`
	Latency time.Duration `json:"latency"`
	Error   string        `json:"error,omitempty"`
}

// HealthReport aggregates all service statuses.
type HealthReport struct {
	State    HealthState     `json:"state"`
	Services []ServiceStatus `json:"services"`
}

// RegisterHealthCheck adds a named dependency probe. Call during wiring,
// before HealthCheck runs.
func (o *Orchestrator) RegisterHealthCheck(name string, fn CheckFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.checks = append(o.checks, healthCheck{name: name, fn: fn})
}

// HealthCheck probes every registered dependency concurrently, each under
// its own timeout so one slow service never blocks evaluation of the rest.
func (o *Orchestrator) HealthCheck(ctx context.Context) HealthReport {
	o.mu.Lock()
	checks := make([]healthCheck, len(o.checks))
	copy(checks, o.checks)
	o.mu.Unlock()

	statuses := make([]ServiceStatus, len(checks))

	var g errgroup.Group
	for i, check := range checks {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, o.checkTimeout)
			defer cancel()

			start := time.Now()
			err := runCheckGuarded(checkCtx, check.fn)
			status := ServiceStatus{
				Name:    check.name,
				Up:      err == nil,
				Latency: time.Since(start),
			}
			if err != nil {
				status.Error = err.Error()
			}
			statuses[i] = status
			return nil
		})
	}
	_ = g.Wait()

	up := 0
	for _, s := range statuses {
		if s.Up {
			up++
			metrics.ServiceUp.WithLabelValues(s.Name).Set(1)
		} else {
			metrics.ServiceUp.WithLabelValues(s.Name).Set(0)
		}
	}

	state := StateHealthy
	if len(statuses) > 0 && up < len(statuses) {
		if float64(up)/float64(len(statuses)) >= degradedFloor {
			state = StateDegraded
		} else {
			state = StateUnhealthy
		}
	}

	switch state {
	case StateHealthy:
		metrics.HealthState.Set(1)
	case StateDegraded:
		metrics.HealthState.Set(0.5)
	default:
		metrics.HealthState.Set(0)
	}

	return HealthReport{State: state, Services: statuses}
}

func runCheckGuarded(ctx context.Context, fn CheckFunc) (err error) {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- &checkPanicError{value: r}
			}
		}()
		done <- fn(ctx)
	}()

	select {
	case err = <-done:
		return err
	case <-ctx.Done():
		// A timed-out check is reported as down, never left pending.
		return ctx.Err()
	}
}

type checkPanicError struct {
	value any
}

func (e *checkPanicError) Error() string {
	return "health check panicked"
}
