package api

import (
	"context"
	"net/http"
	"time"
)

// HealthProbe checks one dependency for the health endpoint.
type HealthProbe struct {
	Component string
	Ping      func(ctx context.Context) error
}

type componentStatus struct {
	Component string `json:"component"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

type healthResponse struct {
	Status     string            `json:"status"`
	Components []componentStatus `json:"components"`
}

const healthProbeTimeout = 2 * time.Second

func (h *Handler) componentHealth(ctx context.Context) ([]componentStatus, string, int) {
	overallStatus := "ok"
	statusCode := http.StatusOK
	recordComponent := func(component string, err error) componentStatus {
		status := "ok"
		message := ""
		if err != nil {
			status = "degraded"
			message = err.Error()
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}
		return componentStatus{Component: component, Status: status, Error: message}
	}

	components := make([]componentStatus, 0, len(h.HealthProbes))
	for _, probe := range h.HealthProbes {
		if probe.Ping == nil {
			continue
		}
		probeCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
		components = append(components, recordComponent(probe.Component, probe.Ping(probeCtx)))
		cancel()
	}
	return components, overallStatus, statusCode
}

// Health reports the state of every configured dependency. It answers 503
// when any of them fails.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	components, status, code := h.componentHealth(r.Context())
	for _, component := range components {
		if component.Error != "" {
			h.requestLogger(r).Warn("health probe failed", "component", component.Component, "error", component.Error)
		}
	}
	writeJSON(w, code, healthResponse{Status: status, Components: components})
}
