// Package server hosts the Web Connector SOAP endpoint alongside the REST
// and websocket surface used to feed and observe the job queue.
package server

import (
	"context"
	"database/sql"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/qbridge/am"
	"github.com/teranos/qbridge/db"
	"github.com/teranos/qbridge/errors"
	"github.com/teranos/qbridge/jobs"
	"github.com/teranos/qbridge/logger"
	"github.com/teranos/qbridge/qbwc"
)

// Server owns the queue, the session and the dispatcher for one deployment
type Server struct {
	db      *sql.DB // nil when the queue lives in memory
	queue   *jobs.Queue
	service *qbwc.Service
	limiter *rate.Limiter
	logger  *zap.SugaredLogger
	mux     *http.ServeMux

	cfgMu sync.RWMutex
	cfg   am.Config

	clients map[*Client]bool
	mu      sync.RWMutex

	httpServer    *http.Server
	configWatcher *am.ConfigWatcher

	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	broadcastDrops atomic.Int64
	state          atomic.Int32
	startedAt      time.Time
}

// New builds a server from cfg. With database.path set, jobs persist in
// SQLite and jobs a previous run left processing are reported.
func New(cfg *am.Config, log *zap.SugaredLogger) (*Server, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	store, database, err := openStore(cfg.Database.Path, log)
	if err != nil {
		return nil, err
	}

	queue := jobs.NewQueue(store, log.Named("jobs"))
	if database != nil {
		stale, err := queue.RecoverStale()
		if err != nil {
			database.Close()
			return nil, errors.Wrap(err, "failed to inspect jobs from previous run")
		}
		if len(stale) > 0 {
			log.Warnw("Jobs stuck in processing; abandon them via POST /api/queue/{id}/abandon",
				logger.FieldCount, len(stale))
		}
	}

	service := qbwc.NewService(queue, qbwc.NewSession(), serviceConfig(cfg), log.Named("qbwc"))
	if cfg.QBWC.RequeryOnDuplicate {
		service.AddObserver(qbwc.NewAlreadyExistsRequeuer(queue, log.Named("requeue")))
	}

	s := &Server{
		db:        database,
		queue:     queue,
		service:   service,
		limiter:   newEnqueueLimiter(cfg.Server.EnqueueRatePerMinute),
		logger:    log,
		cfg:       *cfg,
		clients:   make(map[*Client]bool),
		startedAt: time.Now(),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.setupHTTPRoutes()
	s.startJobUpdateBroadcaster()

	return s, nil
}

func openStore(path string, log *zap.SugaredLogger) (jobs.Store, *sql.DB, error) {
	if path == "" {
		log.Infow("Using in-memory job queue; jobs are lost on restart")
		return jobs.NewMemoryStore(), nil, nil
	}

	database, err := db.OpenWithMigrations(path, log.Named("db"))
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to open job database %s", path)
	}
	return jobs.NewSQLStore(database), database, nil
}

func serviceConfig(cfg *am.Config) qbwc.Config {
	return qbwc.Config{
		Username:         cfg.QBWC.Username,
		Password:         cfg.QBWC.Password,
		CompanyFile:      cfg.QBWC.CompanyFile,
		ServerVersion:    cfg.QBWC.ServerVersion,
		QBXMLVersion:     cfg.QBWC.QBXMLVersion,
		MinClientVersion: cfg.QBWC.MinClientVersion,
	}
}

// newEnqueueLimiter returns a token bucket refilling perMinute tokens a
// minute, with a burst of the same size. 0 disables throttling.
func newEnqueueLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Queue returns the job queue
func (s *Server) Queue() *jobs.Queue {
	return s.queue
}

// Service returns the Web Connector dispatcher
func (s *Server) Service() *qbwc.Service {
	return s.service
}

func (s *Server) config() am.Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// ApplyConfig swaps the settings that can change without a restart:
// the QBWC section, allowed origins and the enqueue rate.
// Port, TLS and database changes need a restart and are only logged.
func (s *Server) ApplyConfig(cfg *am.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.cfgMu.Lock()
	old := s.cfg
	s.cfg.QBWC = cfg.QBWC
	s.cfg.Server.AllowedOrigins = cfg.Server.AllowedOrigins
	s.cfgMu.Unlock()

	s.service.UpdateConfig(serviceConfig(cfg))

	if cfg.Server.EnqueueRatePerMinute != old.Server.EnqueueRatePerMinute {
		if cfg.Server.EnqueueRatePerMinute <= 0 {
			s.limiter.SetLimit(rate.Inf)
		} else {
			s.limiter.SetLimit(rate.Limit(float64(cfg.Server.EnqueueRatePerMinute) / 60.0))
			s.limiter.SetBurst(cfg.Server.EnqueueRatePerMinute)
		}
		s.cfgMu.Lock()
		s.cfg.Server.EnqueueRatePerMinute = cfg.Server.EnqueueRatePerMinute
		s.cfgMu.Unlock()
	}

	if cfg.Server.Port != old.Server.Port || cfg.Server.TLS != old.Server.TLS || cfg.Database.Path != old.Database.Path {
		s.logger.Warnw("Listener or database settings changed; restart to apply",
			logger.FieldPort, cfg.Server.Port,
			"database", cfg.Database.Path,
		)
	}
	return nil
}
