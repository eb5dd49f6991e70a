package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/replayer/internal/core/domain"
)

// Pinger checks a backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// SessionSource lists the sessions this process is running.
type SessionSource interface {
	Sessions() []*domain.ReplayMetadata
}

type component struct {
	name     string
	pinger   Pinger
	critical bool
}

// Monitor aggregates health status from various system components.
type Monitor struct {
	components []component
	sessions   SessionSource
	cacheTTL   time.Duration
	lastCheck  time.Time
	lastReport *HealthReport
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor. sessions may be nil.
func NewMonitor(sessions SessionSource) *Monitor {
	return &Monitor{
		sessions: sessions,
		cacheTTL: 10 * time.Second,
	}
}

// AddComponent registers a service to ping. A failing critical component
// makes the whole system critical; others degrade it.
func (m *Monitor) AddComponent(name string, pinger Pinger, critical bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components = append(m.components, component{name: name, pinger: pinger, critical: critical})
	m.lastReport = nil
}

// CheckHealth pings every component and summarizes running sessions.
func (m *Monitor) CheckHealth(ctx context.Context) *HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Rate limit checks (max once per cacheTTL) to avoid hammering the stores
	if m.lastReport != nil && time.Since(m.lastCheck) < m.cacheTTL {
		return m.lastReport
	}

	report := &HealthReport{
		SystemStatus: StatusHealthy,
		Components:   make(map[string]ComponentHealth),
		Sessions:     []SessionHealth{},
	}

	for _, c := range m.components {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		start := time.Now()
		err := c.pinger.Ping(pingCtx)
		cancel()

		health := ComponentHealth{
			Name:      c.name,
			Status:    StatusHealthy,
			LatencyMS: time.Since(start).Milliseconds(),
		}
		if err != nil {
			health.Error = err.Error()
			health.Status = StatusDegraded
			if c.critical {
				health.Status = StatusCritical
			}
		}
		report.Components[c.name] = health
		report.SystemStatus = worst(report.SystemStatus, health.Status)
	}

	if m.sessions != nil {
		for _, meta := range m.sessions.Sessions() {
			sh := SessionHealth{
				SessionID:       meta.SessionID,
				Mode:            meta.Config.Mode,
				State:           meta.Status.State,
				CurrentLedger:   meta.Status.CurrentLedger,
				EventsProcessed: meta.Status.EventsProcessed,
				EventsFailed:    meta.Status.EventsFailed,
				Status:          sessionStatus(meta.Status),
			}
			report.Sessions = append(report.Sessions, sh)
			report.SystemStatus = worst(report.SystemStatus, sh.Status)
		}
		sort.Slice(report.Sessions, func(i, j int) bool {
			return report.Sessions[i].SessionID < report.Sessions[j].SessionID
		})
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}

// sessionStatus degrades on failed sessions and on sessions where more
// than 10% of events failed.
func sessionStatus(s domain.SessionStatus) SystemStatus {
	if s.State == domain.SessionFailed {
		return StatusDegraded
	}
	total := s.EventsProcessed + s.EventsFailed
	if total > 0 && s.EventsFailed*10 > total {
		return StatusDegraded
	}
	return StatusHealthy
}
