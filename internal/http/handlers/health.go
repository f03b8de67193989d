package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck reports whether one dependency of the API is usable.
type HealthCheck func(ctx context.Context) error

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Health runs the registered dependency checks. Any failure answers 503 so
// load balancers stop routing to this replica.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if len(a.checks) == 0 {
		a.json(w, http.StatusOK, resp)
		return
	}

	names := make([]string, 0, len(a.checks))
	for name := range a.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp.Checks = make(map[string]string, len(names))
	code := http.StatusOK
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := a.checks[name](ctx)
		cancel()
		if err != nil {
			a.Logger.Warn().Err(err).Str("check", name).Msg("health: dependency unavailable")
			resp.Checks[name] = "unavailable"
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	a.json(w, code, resp)
}

// WithHealthCheck registers a dependency check under name.
func (a *App) WithHealthCheck(name string, check HealthCheck) *App {
	if a.checks == nil {
		a.checks = make(map[string]HealthCheck)
	}
	a.checks[name] = check
	return a
}
