// Package health provides system health monitoring and status reporting.
package health

import "github.com/vietddude/replayer/internal/core/domain"

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// ComponentHealth is the result of pinging one backing service.
type ComponentHealth struct {
	Name      string       `json:"name"`
	Status    SystemStatus `json:"status"`
	LatencyMS int64        `json:"latency_ms"`
	Error     string       `json:"error,omitempty"`
}

// SessionHealth summarizes a replay session run by this process.
type SessionHealth struct {
	SessionID       string              `json:"session_id"`
	Mode            domain.Mode         `json:"mode"`
	State           domain.SessionState `json:"state"`
	CurrentLedger   uint64              `json:"current_ledger"`
	EventsProcessed uint64              `json:"events_processed"`
	EventsFailed    uint64              `json:"events_failed"`
	Status          SystemStatus        `json:"status"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus               `json:"system_status"`
	Components   map[string]ComponentHealth `json:"components"`
	Sessions     []SessionHealth            `json:"sessions"`
}

// worst returns the more severe of two statuses.
func worst(a, b SystemStatus) SystemStatus {
	rank := map[SystemStatus]int{StatusHealthy: 0, StatusDegraded: 1, StatusCritical: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
