package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dd0wney/cluso-apx/pkg/logging"
)

// ConfigReloadFunc reloads configuration on SIGHUP
type ConfigReloadFunc func() error

// ShutdownFunc runs when the graceful server shuts down, before the HTTP
// server stops accepting requests.
type ShutdownFunc func(ctx context.Context) error

// GracefulServer serves the status HTTP API and turns SIGINT and SIGTERM
// into an orderly shutdown and SIGHUP into a config reload.
type GracefulServer struct {
	// ShutdownTimeout bounds the shutdown started by SIGINT or SIGTERM
	ShutdownTimeout time.Duration

	server         *http.Server
	logger         logging.Logger
	shutdownCh     chan struct{}
	shutdownOnce   sync.Once
	configReloadFn ConfigReloadFunc
	onShutdown     []ShutdownFunc
	configMu       sync.RWMutex
	listener       net.Listener
	listenerReady  chan struct{}
}

// NewGracefulServer creates a status server on addr
func NewGracefulServer(addr string, handler http.Handler, logger logging.Logger) *GracefulServer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &GracefulServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    64 << 10,
		},
		ShutdownTimeout: DefaultShutdownTimeout,
		logger:          logger.With(logging.Component("status")),
		shutdownCh:      make(chan struct{}),
		listenerReady:   make(chan struct{}),
	}
}

// Start serves until Shutdown. Signals are handled while it runs.
func (gs *GracefulServer) Start() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)
	go gs.handleSignals(sigCh)

	ln, err := net.Listen("tcp", gs.server.Addr)
	if err != nil {
		close(gs.listenerReady)
		return err
	}
	gs.listener = ln
	close(gs.listenerReady)

	gs.logger.Info("status server listening", logging.Remote(ln.Addr().String()))
	if err := gs.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-gs.shutdownCh
	return nil
}

// Addr waits for Start to listen and returns the address, or nil when
// listening failed.
func (gs *GracefulServer) Addr() net.Addr {
	<-gs.listenerReady
	if gs.listener == nil {
		return nil
	}
	return gs.listener.Addr()
}

// OnShutdown registers fn to run during Shutdown, in registration order
func (gs *GracefulServer) OnShutdown(fn ShutdownFunc) {
	gs.configMu.Lock()
	defer gs.configMu.Unlock()
	gs.onShutdown = append(gs.onShutdown, fn)
}

// Shutdown runs the shutdown hooks and stops the HTTP server. Only the
// first call has an effect.
func (gs *GracefulServer) Shutdown(timeout time.Duration) error {
	var err error
	gs.shutdownOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		gs.logger.Info("initiating graceful shutdown", logging.Duration("timeout", timeout))

		gs.configMu.RLock()
		hooks := append([]ShutdownFunc(nil), gs.onShutdown...)
		gs.configMu.RUnlock()

		var errs []error
		for _, fn := range hooks {
			errs = append(errs, fn(ctx))
		}
		errs = append(errs, gs.server.Shutdown(ctx))
		err = errors.Join(errs...)
		if err != nil {
			gs.logger.Error("error during shutdown", logging.Error(err))
		} else {
			gs.logger.Info("shutdown complete")
		}
		close(gs.shutdownCh)
	})
	return err
}

func (gs *GracefulServer) handleSignals(sigCh <-chan os.Signal) {
	for {
		select {
		case <-gs.shutdownCh:
			return
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGINT, syscall.SIGTERM:
				gs.logger.Info("received signal, shutting down", logging.String("signal", sig.String()))
				go gs.Shutdown(gs.ShutdownTimeout)
			case syscall.SIGHUP:
				if err := gs.ReloadConfig(); err != nil {
					gs.logger.Error("configuration reload failed", logging.Error(err))
				}
			}
		}
	}
}

// IsShuttingDown reports whether Shutdown has completed
func (gs *GracefulServer) IsShuttingDown() bool {
	select {
	case <-gs.shutdownCh:
		return true
	default:
		return false
	}
}

// SetConfigReloadFunc sets the SIGHUP handler
func (gs *GracefulServer) SetConfigReloadFunc(fn ConfigReloadFunc) {
	gs.configMu.Lock()
	defer gs.configMu.Unlock()
	gs.configReloadFn = fn
}

// ReloadConfig runs the reload function, if one is set
func (gs *GracefulServer) ReloadConfig() error {
	gs.configMu.RLock()
	reloadFn := gs.configReloadFn
	gs.configMu.RUnlock()

	if reloadFn == nil {
		gs.logger.Info("configuration reload requested, but no reload function configured")
		return nil
	}
	gs.logger.Info("reloading configuration")
	if err := reloadFn(); err != nil {
		return err
	}
	gs.logger.Info("configuration reload complete")
	return nil
}
