package control

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/replayer/internal/core/domain"
	"github.com/vietddude/replayer/internal/core/worker"
	"github.com/vietddude/replayer/internal/indexing/health"
)

const pausePollInterval = time.Second

// RunOptions control the services that run next to a session.
type RunOptions struct {
	// Serve starts the health and metrics server on the configured port.
	Serve bool
	// OnSession is called with the new session id before replay starts.
	OnSession func(sessionID string)
}

// Run executes one replay session. The health server, the checkpoint
// pruner, the session lease and the pause watcher run until the session
// ends.
func (r *Replayer) Run(ctx context.Context, rc domain.ReplayConfig, opts RunOptions) (*domain.ReplayMetadata, error) {
	started := make(chan string, 1)
	eng, err := r.newEngine(rc, func(id string) {
		started <- id
		if opts.OnSession != nil {
			opts.OnSession(id)
		}
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		if id := eng.SessionID(); id != "" {
			r.sessions.forget(id)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	servicesCtx, stopServices := context.WithCancel(gctx)
	defer stopServices()

	if opts.Serve {
		server := health.NewServer(r.Monitor(), r.cfg.Server.Port)
		g.Go(func() error {
			r.log.Info("Health server listening", "port", r.cfg.Server.Port)
			return server.Start()
		})
		g.Go(func() error {
			<-servicesCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			return server.Stop(shutdownCtx)
		})
	}

	if r.db != nil {
		r.db.StartMetricsCollector(servicesCtx)
	}

	pruner := worker.NewPruner(r.cfg.Checkpoints, r.stores.Checkpoints)
	g.Go(func() error {
		pruner.Start(servicesCtx)
		return nil
	})

	var meta *domain.ReplayMetadata
	g.Go(func() error {
		defer stopServices()
		var runErr error
		meta, runErr = eng.Start(gctx)
		return runErr
	})

	if r.redis != nil {
		g.Go(func() error {
			var id string
			select {
			case id = <-started:
			case <-servicesCtx.Done():
				return nil
			}
			lease := r.redis.NewLease(id, owner(), r.cfg.Redis.LockTTL)
			sg, sctx := errgroup.WithContext(servicesCtx)
			sg.Go(func() error { return lease.Hold(sctx) })
			sg.Go(func() error {
				watchPause(sctx, r.redis, eng, id)
				return nil
			})
			return sg.Wait()
		})
	}

	err = g.Wait()
	return meta, err
}

type pauseSource interface {
	IsPaused(ctx context.Context, sessionID string) (bool, error)
}

type pausable interface {
	Pause()
	Resume()
}

// watchPause mirrors the remote pause flag of a session onto the engine.
func watchPause(ctx context.Context, src pauseSource, target pausable, sessionID string) {
	ticker := time.NewTicker(pausePollInterval)
	defer ticker.Stop()

	paused := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			flag, err := src.IsPaused(ctx, sessionID)
			if err != nil {
				continue
			}
			switch {
			case flag && !paused:
				target.Pause()
			case !flag && paused:
				target.Resume()
			}
			paused = flag
		}
	}
}

func owner() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s:%d", host, os.Getpid())
}

// sessionSet tracks the latest status of the sessions this process runs.
type sessionSet struct {
	mu       sync.RWMutex
	sessions map[string]*domain.ReplayMetadata
}

func newSessionSet() *sessionSet {
	return &sessionSet{sessions: make(map[string]*domain.ReplayMetadata)}
}

func (s *sessionSet) update(meta *domain.ReplayMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[meta.SessionID] = meta.Clone()
}

func (s *sessionSet) forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Sessions implements health.SessionSource.
func (s *sessionSet) Sessions() []*domain.ReplayMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.ReplayMetadata, 0, len(s.sessions))
	for _, meta := range s.sessions {
		out = append(out, meta.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}
