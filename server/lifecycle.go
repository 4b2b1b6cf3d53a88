package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/teranos/qbridge/am"
	"github.com/teranos/qbridge/errors"
	"github.com/teranos/qbridge/logger"
)

// getState returns the current server state
func (s *Server) getState() ServerState {
	return ServerState(s.state.Load())
}

// setState atomically updates the server state
func (s *Server) setState(newState ServerState) {
	s.state.Store(int32(newState))
	s.logger.Infow("Server state changed", "new_state", stateString(newState))
}

// stateString returns human-readable state name
func stateString(state ServerState) string {
	switch state {
	case ServerStateRunning:
		return "running"
	case ServerStateDraining:
		return "draining"
	case ServerStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Start listens on the configured port and serves until Stop is called
func (s *Server) Start() error {
	cfg := s.config()
	addr := fmt.Sprintf(":%d", cfg.Server.Port)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", addr)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln. TLS is used when server.tls is enabled.
// Returns nil after a graceful Stop.
func (s *Server) Serve(ln net.Listener) error {
	cfg := s.config()

	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		// Web Connector posts whole query responses; allow time for large bodies
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	useTLS := cfg.Server.TLS.Enabled
	protocol := "http"
	if useTLS {
		protocol = "https"
	}
	s.logger.Infow("Server ready",
		"url", fmt.Sprintf("%s://%s", protocol, ln.Addr()),
		logger.FieldAddress, ln.Addr().String(),
		"tls", useTLS,
	)

	var err error
	if useTLS {
		err = srv.ServeTLS(ln, cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
	} else {
		err = srv.Serve(ln)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// WatchConfig reloads path on change and applies what can change live
func (s *Server) WatchConfig(path string) error {
	watcher, err := am.NewConfigWatcher(path)
	if err != nil {
		return err
	}
	watcher.OnReload(s.ApplyConfig)
	am.SetGlobalWatcher(watcher)
	watcher.Start()

	s.mu.Lock()
	s.configWatcher = watcher
	s.mu.Unlock()

	s.logger.Infow("Watching config file", "path", path)
	return nil
}

// Stop gracefully shuts down the server and cleans up resources
func (s *Server) Stop() error {
	if s.getState() == ServerStateStopped {
		return nil
	}
	s.logger.Infow("Initiating server shutdown")
	s.setState(ServerStateDraining)

	s.mu.Lock()
	srv := s.httpServer
	watcher := s.configWatcher
	clientsToClose := make([]*Client, 0, len(s.clients))
	for client := range s.clients {
		clientsToClose = append(clientsToClose, client)
		delete(s.clients, client)
	}
	s.mu.Unlock()

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		if err := srv.Shutdown(ctx); err != nil {
			s.logger.Warnw("HTTP shutdown did not complete", logger.FieldError, err)
		}
		cancel()
	}

	// Hijacked websocket connections are not covered by Shutdown
	if len(clientsToClose) > 0 {
		s.logger.Infow("Closing client connections", logger.FieldCount, len(clientsToClose))
		for _, client := range clientsToClose {
			client.close()
		}
	}

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Debugw("All goroutines stopped cleanly")
	case <-time.After(ShutdownTimeout):
		s.logger.Warnw("Goroutine shutdown timed out, forcing exit", "timeout", ShutdownTimeout)
	}

	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			s.logger.Warnw("Failed to stop config watcher", logger.FieldError, err)
		}
		if am.GetGlobalWatcher() == watcher {
			am.SetGlobalWatcher(nil)
		}
	}

	s.queue.Close()

	var closeErr error
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			closeErr = errors.Wrap(err, "failed to close job database")
		}
	}

	s.setState(ServerStateStopped)
	s.logger.Infow("Server shutdown complete", "broadcast_drops", s.broadcastDrops.Load())

	return closeErr
}
