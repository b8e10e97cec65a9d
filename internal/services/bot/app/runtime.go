// Package server wires the bot maintenance daemon: the singleton runtime
// lease, the config watcher, the periodic maintenance sweep, and the gRPC
// health lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/featherpost/featherpost/internal/platform/config"
	platformerrors "github.com/featherpost/featherpost/internal/platform/errors"
	"github.com/featherpost/featherpost/internal/platform/id"
	"github.com/featherpost/featherpost/internal/platform/timeouts"
	"github.com/featherpost/featherpost/internal/services/bot/domain/botconfig"
	"github.com/featherpost/featherpost/internal/services/bot/storage"
	botsqlite "github.com/featherpost/featherpost/internal/services/bot/storage/sqlite"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// RuntimeLockName is the singleton lease guarding the posting pipeline.
const RuntimeLockName = "poster"

type serverEnv struct {
	DBPath string `env:"FEATHERPOST_BOT_DB_PATH"`
}

func loadServerEnv() serverEnv {
	var cfg serverEnv
	_ = config.ParseEnv(&cfg)
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = filepath.Join("data", "bot.db")
	}
	return cfg
}

// Options configures the daemon runtime.
type Options struct {
	Port          int
	DBPath        string
	Holder        string
	LockTTL       time.Duration
	SweepInterval time.Duration
	WatchInterval time.Duration
}

func (o *Options) fill() {
	if strings.TrimSpace(o.DBPath) == "" {
		o.DBPath = loadServerEnv().DBPath
	}
	if o.LockTTL <= 0 {
		o.LockTTL = timeouts.RuntimeLockTTL
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = timeouts.MaintenanceSweep
	}
	if o.WatchInterval <= 0 {
		o.WatchInterval = timeouts.ConfigWatch
	}
}

// Server hosts the bot maintenance runtime and gRPC health lifecycle.
type Server struct {
	opts       Options
	listener   net.Listener
	grpcServer *grpc.Server
	health     *health.Server
	store      *botsqlite.Store
	watcher    *botconfig.Watcher
	lease      storage.Lease
}

// New creates a configured daemon listening on the provided port. It fails
// fast when another instance already holds the runtime lease.
func New(opts Options) (*Server, error) {
	opts.fill()
	if strings.TrimSpace(opts.Holder) == "" {
		uid, err := id.NewID()
		if err != nil {
			return nil, fmt.Errorf("generate holder id: %w", err)
		}
		opts.Holder = "botd-" + uid
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", opts.Port))
	if err != nil {
		return nil, fmt.Errorf("listen on port %d: %w", opts.Port, err)
	}

	store, err := botsqlite.Open(opts.DBPath)
	if err != nil {
		_ = listener.Close()
		return nil, err
	}

	lease, err := store.AcquireLock(context.Background(), RuntimeLockName, opts.Holder, opts.LockTTL)
	if err != nil {
		_ = store.Close()
		_ = listener.Close()
		if platformerrors.CodeOf(err) == platformerrors.CodeLockHeld {
			return nil, fmt.Errorf("another instance holds the %s lock: %w", RuntimeLockName, err)
		}
		return nil, fmt.Errorf("acquire runtime lock: %w", err)
	}

	watcher, err := botconfig.NewWatcher(context.Background(), store, opts.WatchInterval)
	if err != nil {
		_ = store.ReleaseLock(context.Background(), lease)
		_ = store.Close()
		_ = listener.Close()
		return nil, err
	}

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	return &Server{
		opts:       opts,
		listener:   listener,
		grpcServer: grpcServer,
		health:     healthServer,
		store:      store,
		watcher:    watcher,
		lease:      lease,
	}, nil
}

// Addr returns the listener address for the server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Store exposes the opened store for tests and tooling.
func (s *Server) Store() *botsqlite.Store {
	if s == nil {
		return nil
	}
	return s.store
}

// Run creates and serves a daemon until context cancellation.
func Run(ctx context.Context, opts Options) error {
	server, err := New(opts)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve runs the maintenance loop and gRPC server until context cancellation.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	loopCtx, cancelLoops := context.WithCancel(ctx)
	defer cancelLoops()

	var loops sync.WaitGroup
	loops.Add(3)
	go func() {
		defer loops.Done()
		if err := s.watcher.Run(loopCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("config watcher stopped: %v", err)
		}
	}()
	go func() {
		defer loops.Done()
		s.consumeChanges(loopCtx)
	}()
	go func() {
		defer loops.Done()
		s.maintenanceLoop(loopCtx)
	}()

	log.Printf("bot daemon listening at %v as %s", s.listener.Addr(), s.opts.Holder)
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.grpcServer.Serve(s.listener)
	}()

	// Every loop goroutine must have stopped before the deferred Close
	// touches the store and lease. Both exit paths share the sequence.
	shutdown := func() {
		if s.health != nil {
			s.health.Shutdown()
		}
		cancelLoops()
		loops.Wait()
		s.grpcServer.GracefulStop()
	}

	select {
	case <-ctx.Done():
		shutdown()
		err := <-serveErr
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return ctx.Err()
		}
		return err
	case err := <-serveErr:
		shutdown()
		return err
	}
}

// Close releases the runtime lease and storage.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.store != nil {
		releaseCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		if err := s.store.ReleaseLock(releaseCtx, s.lease); err != nil {
			log.Printf("release runtime lock: %v", err)
		}
		cancel()
		if err := s.store.Close(); err != nil {
			log.Printf("close store: %v", err)
		}
		s.store = nil
	}
}

func (s *Server) consumeChanges(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-s.watcher.Changes():
			if !ok {
				return
			}
			log.Printf("config %s advanced to version %d", change.Domain, change.Version)
		}
	}
}

func (s *Server) maintenanceLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep is one maintenance pass: renew the lease, put expired schedule
// claims back in the queue, and make sure today's and this month's budget
// ledgers exist.
func (s *Server) sweep(ctx context.Context) {
	renewed, err := s.store.RenewLock(ctx, s.lease, s.opts.LockTTL)
	if err != nil {
		log.Printf("renew runtime lock: %v", err)
	} else {
		s.lease = renewed
	}

	reclaimed, err := s.store.ReclaimExpired(ctx, time.Now().UTC())
	if err != nil {
		log.Printf("reclaim schedule claims: %v", err)
	} else if reclaimed > 0 {
		log.Printf("reclaimed %d expired schedule claims", reclaimed)
	}

	if err := s.ensureLedgers(ctx); err != nil {
		log.Printf("ensure budget ledgers: %v", err)
	}
}

func (s *Server) ensureLedgers(ctx context.Context) error {
	policy := s.budgetPolicy(ctx)
	now := time.Now().UTC()

	if _, err := s.store.EnsureDay(ctx, now.Format("2006-01-02"), policy.DailyLimitUSD); err != nil {
		return fmt.Errorf("ensure day ledger: %w", err)
	}

	resetAt := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	if _, err := s.store.EnsureMonth(ctx, now.Format("2006-01"), policy.MonthlyPostCap, policy.MonthlyLimitUSD, resetAt); err != nil {
		return fmt.Errorf("ensure month ledger: %w", err)
	}
	return nil
}

// budgetPolicy loads the stored budget document, falling back to defaults
// when the row is missing or unreadable.
func (s *Server) budgetPolicy(ctx context.Context) botconfig.BudgetPolicy {
	fallback, _ := botconfig.Defaults(botconfig.DomainBudget)
	policy := fallback.(botconfig.BudgetPolicy)

	record, err := s.store.GetConfig(ctx, string(botconfig.DomainBudget))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("load budget config: %v", err)
		}
		return policy
	}
	doc, err := botconfig.DecodeDomain(botconfig.DomainBudget, record.Value)
	if err != nil {
		log.Printf("decode budget config: %v", err)
		return policy
	}
	return *doc.(*botconfig.BudgetPolicy)
}
