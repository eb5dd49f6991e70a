// Package control is the composition root: it builds stores, processors,
// the state sink and the replay engine from the application config, and
// runs a session alongside its supporting services.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vietddude/replayer/internal/core/config"
	"github.com/vietddude/replayer/internal/core/domain"
	"github.com/vietddude/replayer/internal/indexing/engine"
	"github.com/vietddude/replayer/internal/indexing/health"
	"github.com/vietddude/replayer/internal/indexing/processor"
	"github.com/vietddude/replayer/internal/indexing/recovery"
	"github.com/vietddude/replayer/internal/indexing/state"
	redisclient "github.com/vietddude/replayer/internal/infra/redis"
	"github.com/vietddude/replayer/internal/infra/sink"
	"github.com/vietddude/replayer/internal/infra/storage"
	"github.com/vietddude/replayer/internal/infra/storage/memory"
	"github.com/vietddude/replayer/internal/infra/storage/sqldb"
)

// ErrNoRedis is returned by remote pause and resume without Redis.
var ErrNoRedis = errors.New("redis is not configured")

// Stores groups the repositories a replayer works with.
type Stores struct {
	Events      storage.EventRepository
	Checkpoints storage.CheckpointStore
	Markers     storage.MarkerRepository
	Snapshots   storage.SnapshotRepository
	Failures    storage.FailedEventRepository
	States      storage.StateRepository
}

// Replayer owns the backing services of the replay subsystem.
type Replayer struct {
	cfg      *config.AppConfig
	stores   Stores
	db       *sqldb.DB
	redis    *redisclient.Client
	sink     sink.Sink
	sessions *sessionSet
	log      *slog.Logger
}

// New connects the configured backing services. Without a database URL
// every store is in memory; Redis is optional.
func New(ctx context.Context, cfg *config.AppConfig) (*Replayer, error) {
	r := &Replayer{
		cfg:      cfg,
		sessions: newSessionSet(),
		log:      slog.Default().With("component", "control"),
	}

	if cfg.Database.URL != "" {
		db, err := sqldb.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		r.db = db
		r.stores = Stores{
			Events:      sqldb.NewEventRepo(db),
			Checkpoints: sqldb.NewCheckpointStore(db),
			Markers:     sqldb.NewMarkerRepo(db),
			Snapshots:   sqldb.NewSnapshotRepo(db),
			Failures:    sqldb.NewFailedEventRepo(db),
			States:      sqldb.NewStateRepo(db),
		}
		r.log.Info("Using SQL storage", "driver", db.Driver())
	} else {
		store := memory.NewMemoryStorage()
		r.stores = Stores{
			Events:      memory.NewEventRepo(store),
			Checkpoints: memory.NewCheckpointStore(store),
			Markers:     memory.NewMarkerRepo(store),
			Snapshots:   memory.NewSnapshotRepo(store),
			Failures:    memory.NewFailedEventRepo(store),
			States:      memory.NewStateRepo(store),
		}
		r.log.Info("Using memory storage")
	}

	if cfg.Redis.URL != "" {
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		r.redis = client
		r.stores.Markers = redisclient.NewMarkerRepo(client, 0)
		if r.db == nil {
			r.stores.Failures = redisclient.NewFailedEventRepo(client)
		}
		r.log.Info("Using Redis for markers, leases and pause flags")
	}

	s, err := sink.New(ctx, cfg.Sink, r.stores.States)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("failed to init state sink: %w", err)
	}
	r.sink = s

	return r, nil
}

// NewWithStores builds a replayer over existing stores, without SQL or
// Redis connections.
func NewWithStores(cfg *config.AppConfig, stores Stores, s sink.Sink) *Replayer {
	if s == nil {
		s = sink.Discard{}
	}
	return &Replayer{
		cfg:      cfg,
		stores:   stores,
		sink:     s,
		sessions: newSessionSet(),
		log:      slog.Default().With("component", "control"),
	}
}

// Stores returns the repositories.
func (r *Replayer) Stores() Stores {
	return r.stores
}

// Sink returns the state sink.
func (r *Replayer) Sink() sink.Sink {
	return r.sink
}

// DB returns the SQL connection, nil in memory mode.
func (r *Replayer) DB() *sqldb.DB {
	return r.db
}

// Close releases connections. It is safe to call more than once.
func (r *Replayer) Close() {
	if r.sink != nil {
		if err := r.sink.Close(); err != nil {
			r.log.Warn("Failed to close state sink", "error", err)
		}
		r.sink = nil
	}
	if r.redis != nil {
		if err := r.redis.Close(); err != nil {
			r.log.Warn("Failed to close Redis", "error", err)
		}
		r.redis = nil
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			r.log.Warn("Failed to close database", "error", err)
		}
		r.db = nil
	}
}

// Dispatcher builds the configured processors behind a retrying dispatcher.
func (r *Replayer) Dispatcher() (*processor.Dispatcher, error) {
	processors, err := processor.Build(r.cfg.Processors, processor.Deps{
		Markers:   r.stores.Markers,
		Snapshots: r.stores.Snapshots,
	})
	if err != nil {
		return nil, err
	}

	backoff := recovery.DefaultBackoff(recovery.StorageAwareClassifier(sqldb.IsTransient))
	if r.cfg.Replay.RetryBaseDelay > 0 {
		backoff.InitialDelay = r.cfg.Replay.RetryBaseDelay
	}
	return processor.NewDispatcher(backoff, processors...), nil
}

// NewEngine wires an engine for one session config.
func (r *Replayer) NewEngine(rc domain.ReplayConfig) (*engine.Engine, error) {
	return r.newEngine(rc, nil)
}

func (r *Replayer) newEngine(rc domain.ReplayConfig, onSession func(string)) (*engine.Engine, error) {
	dispatcher, err := r.Dispatcher()
	if err != nil {
		return nil, err
	}
	return engine.New(rc, engine.Deps{
		Events:     r.stores.Events,
		Store:      r.stores.Checkpoints,
		Dispatcher: dispatcher,
		State:      state.NewLedgerState(r.sink),
		Failures:   recovery.NewHandler(r.stores.Failures),
		OnSession:  onSession,
		OnStatus:   r.sessions.update,
	})
}

// Monitor builds a health monitor over the backing services and the
// sessions this process runs.
func (r *Replayer) Monitor() *health.Monitor {
	monitor := health.NewMonitor(r.sessions)
	if r.db != nil {
		monitor.AddComponent("database", health.PingFunc(r.db.Health), true)
	}
	if r.redis != nil {
		monitor.AddComponent("redis", health.PingFunc(r.redis.Ping), false)
	}
	return monitor
}

// Pause sets the remote pause flag of a session run by any process.
func (r *Replayer) Pause(ctx context.Context, sessionID string) error {
	if r.redis == nil {
		return ErrNoRedis
	}
	return r.redis.SetPause(ctx, sessionID)
}

// Resume clears the remote pause flag of a session.
func (r *Replayer) Resume(ctx context.Context, sessionID string) error {
	if r.redis == nil {
		return ErrNoRedis
	}
	return r.redis.ClearPause(ctx, sessionID)
}
