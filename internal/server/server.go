// Package server assembles the attendance daemon: storage backend, LINE
// client, state machine and HTTP routes.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/celerix-dev/celerix-attendance/internal/api"
	"github.com/celerix-dev/celerix-attendance/internal/attendance"
	"github.com/celerix-dev/celerix-attendance/internal/config"
	"github.com/celerix-dev/celerix-attendance/internal/engine"
	"github.com/celerix-dev/celerix-attendance/internal/line"
	"github.com/celerix-dev/celerix-attendance/internal/log"
	"github.com/celerix-dev/celerix-attendance/internal/metrics"
)

type Server struct {
	cfg      config.Config
	http     *http.Server
	sessions engine.SessionStore
	names    engine.Directory
	metrics  *metrics.Recorder
	cleanup  []func() error
}

type options struct {
	lineOpts []line.Option
	now      func() time.Time
}

// Option customizes how the server is assembled.
type Option func(*options)

// WithLineOptions passes options to the LINE client.
func WithLineOptions(opts ...line.Option) Option {
	return func(o *options) { o.lineOpts = append(o.lineOpts, opts...) }
}

// WithClock overrides the time source of the state machine.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New validates cfg, opens the storage backend and wires the HTTP handler.
// Loading state happens here, so a corrupt document fails startup unless
// cfg.RecoverCorruptState is set.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{cfg: cfg, metrics: metrics.New()}
	if err := s.openBackend(ctx); err != nil {
		s.close()
		return nil, err
	}

	bot, err := line.New(cfg.ChannelSecret, cfg.ChannelAccessToken, o.lineOpts...)
	if err != nil {
		s.close()
		return nil, err
	}

	var machineOpts []attendance.Option
	if o.now != nil {
		machineOpts = append(machineOpts, attendance.WithClock(o.now))
	}
	machine := attendance.NewMachine(s.sessions, attendance.NewNameResolver(s.names, bot), machineOpts...)

	h := &api.Handler{
		Machine:  machine,
		Events:   bot,
		Replier:  bot,
		Sessions: s.sessions,
		Names:    s.names,
		Metrics:  s.metrics,
	}
	r := gin.New()
	r.Use(log.Middleware(), log.Recovery())
	h.RegisterRoutes(r)

	s.http = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) openBackend(ctx context.Context) error {
	if s.cfg.UseRedis() {
		client, err := engine.DialRedis(ctx, s.cfg.RedisAddr, s.cfg.RedisPassword)
		if err != nil {
			return fmt.Errorf("server: connecting to redis at %s: %w", s.cfg.RedisAddr, err)
		}
		s.cleanup = append(s.cleanup, client.Close)
		s.sessions = engine.NewRedisStore(client)
		s.names = engine.NewRedisDirectory(client)
		log.Info(ctx).Str("backend", "redis").Str("addr", s.cfg.RedisAddr).Msg("server: storage ready")
		return nil
	}

	p, err := engine.NewPersistence(s.cfg.DataDir)
	if err != nil {
		return fmt.Errorf("server: failed to initialize persistence: %w", err)
	}

	order, data, err := p.LoadSessions()
	if err != nil {
		if err := s.recoverDocument(ctx, p, engine.SessionsFile, err); err != nil {
			return err
		}
		order, data = nil, nil
	}
	names, err := p.LoadNames()
	if err != nil {
		if err := s.recoverDocument(ctx, p, engine.NamesFile, err); err != nil {
			return err
		}
		names = nil
	}

	store := engine.NewMemStore(order, data, p)
	store.OnFlush(s.metrics.Flush)
	s.sessions = store
	s.names = engine.NewMemDirectory(names, p)
	log.Info(ctx).Str("backend", "file").Str("dir", s.cfg.DataDir).
		Int("users", len(order)).Int("names", len(names)).
		Msg("server: storage ready")
	return nil
}

// recoverDocument applies the corrupt-state policy to a failed load. It
// returns nil only when the document was quarantined.
func (s *Server) recoverDocument(ctx context.Context, p *engine.Persistence, name string, loadErr error) error {
	if !errors.Is(loadErr, engine.ErrCorruptState) || !s.cfg.RecoverCorruptState {
		return loadErr
	}
	moved, err := p.Quarantine(name)
	if err != nil {
		return errors.Join(loadErr, fmt.Errorf("server: quarantining %s: %w", name, err))
	}
	log.Warn(ctx).Err(loadErr).Str("document", name).Str("moved_to", moved).
		Msg("server: corrupt document quarantined, starting empty")
	return nil
}

// Handler returns the HTTP handler, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Addr is the listen address.
func (s *Server) Addr() string {
	return s.http.Addr
}

// Run serves until Shutdown is called.
func (s *Server) Run() error {
	if err := s.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones and releases
// the backend. File-backed state is already on disk: every mutation is
// flushed before it is acknowledged.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	return errors.Join(err, s.close())
}

func (s *Server) close() error {
	var errs []error
	for _, fn := range s.cleanup {
		errs = append(errs, fn())
	}
	s.cleanup = nil
	return errors.Join(errs...)
}
