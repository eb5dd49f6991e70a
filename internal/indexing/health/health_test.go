package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/vietddude/replayer/internal/core/domain"
)

// =============================================================================
// Mocks
// =============================================================================

type mockPinger struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (m *mockPinger) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.err
}

type stubSessions struct {
	sessions []*domain.ReplayMetadata
}

func (s *stubSessions) Sessions() []*domain.ReplayMetadata { return s.sessions }

func session(id string, status domain.SessionStatus) *domain.ReplayMetadata {
	return &domain.ReplayMetadata{
		SessionID: id,
		Config:    domain.DefaultReplayConfig(),
		Status:    status,
	}
}

// =============================================================================
// Tests
// =============================================================================

func TestMonitor_Healthy(t *testing.T) {
	monitor := NewMonitor(&stubSessions{sessions: []*domain.ReplayMetadata{
		session("s1", domain.StatusInProgress(100, 50, 1)),
	}})
	monitor.AddComponent("database", &mockPinger{}, true)

	report := monitor.CheckHealth(context.Background())
	if report.SystemStatus != StatusHealthy {
		t.Errorf("expected healthy, got %s", report.SystemStatus)
	}
	if len(report.Sessions) != 1 || report.Sessions[0].CurrentLedger != 100 {
		t.Errorf("unexpected sessions: %+v", report.Sessions)
	}
}

func TestMonitor_Degraded(t *testing.T) {
	tests := []struct {
		name     string
		sessions []*domain.ReplayMetadata
		redisErr error
	}{
		{"redis down", nil, errors.New("connection refused")},
		{"failed session", []*domain.ReplayMetadata{
			session("s1", domain.StatusFailed(errors.New("boom"), 10)),
		}, nil},
		{"high failure rate", []*domain.ReplayMetadata{
			session("s1", domain.StatusInProgress(100, 5, 5)),
		}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			monitor := NewMonitor(&stubSessions{sessions: tt.sessions})
			monitor.AddComponent("database", &mockPinger{}, true)
			monitor.AddComponent("redis", &mockPinger{err: tt.redisErr}, false)

			if got := monitor.CheckHealth(context.Background()).SystemStatus; got != StatusDegraded {
				t.Errorf("expected degraded, got %s", got)
			}
		})
	}
}

func TestMonitor_Critical(t *testing.T) {
	monitor := NewMonitor(nil)
	monitor.AddComponent("database", &mockPinger{err: errors.New("timeout")}, true)

	report := monitor.CheckHealth(context.Background())
	if report.SystemStatus != StatusCritical {
		t.Errorf("expected critical, got %s", report.SystemStatus)
	}
	if report.Components["database"].Error != "timeout" {
		t.Errorf("expected component error, got %+v", report.Components["database"])
	}
}

func TestMonitor_Caches(t *testing.T) {
	pinger := &mockPinger{}
	monitor := NewMonitor(nil)
	monitor.AddComponent("database", pinger, true)

	monitor.CheckHealth(context.Background())
	monitor.CheckHealth(context.Background())

	if pinger.calls != 1 {
		t.Errorf("expected cached report, got %d pings", pinger.calls)
	}
}

func TestServer_Health(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   int
		wantStatus string
	}{
		{"healthy", nil, http.StatusOK, "healthy"},
		{"critical", errors.New("down"), http.StatusServiceUnavailable, "critical"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			monitor := NewMonitor(nil)
			monitor.AddComponent("database", &mockPinger{err: tt.err}, true)
			srv := NewServer(monitor, 0)

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, rec.Code)
			}
			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("invalid body: %v", err)
			}
			if body["status"] != tt.wantStatus {
				t.Errorf("expected %s, got %s", tt.wantStatus, body["status"])
			}
		})
	}
}

func TestServer_Detailed(t *testing.T) {
	monitor := NewMonitor(&stubSessions{sessions: []*domain.ReplayMetadata{
		session("s1", domain.StatusInProgress(7, 1, 0)),
	}})
	srv := NewServer(monitor, 0)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/detailed", nil))

	var report HealthReport
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if len(report.Sessions) != 1 || report.Sessions[0].SessionID != "s1" {
		t.Errorf("unexpected report: %+v", report)
	}
}
