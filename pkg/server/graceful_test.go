package server

import (
	"context"
	"errors"
	"net/http"
	"syscall"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func startGraceful(t *testing.T, gs *GracefulServer) <-chan error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- gs.Start() }()
	if gs.Addr() == nil {
		t.Fatalf("status server did not listen: %v", <-errCh)
	}
	return errCh
}

func TestGracefulServer_ServesAndShutsDown(t *testing.T) {
	gs := NewGracefulServer("127.0.0.1:0", okHandler(), nil)
	errCh := startGraceful(t, gs)

	resp, err := http.Get("http://" + gs.Addr().String() + "/")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	var hooks []string
	gs.OnShutdown(func(context.Context) error { hooks = append(hooks, "rmf"); return nil })
	gs.OnShutdown(func(context.Context) error { hooks = append(hooks, "store"); return errors.New("flush failed") })

	if err := gs.Shutdown(time.Second); err == nil {
		t.Error("Shutdown() should report the failing hook")
	}
	if len(hooks) != 2 || hooks[0] != "rmf" || hooks[1] != "store" {
		t.Errorf("hooks ran as %v", hooks)
	}
	if !gs.IsShuttingDown() {
		t.Error("IsShuttingDown() = false after Shutdown")
	}
	if err := <-errCh; err != nil {
		t.Errorf("Start() error = %v", err)
	}
	if err := gs.Shutdown(time.Second); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}

func TestGracefulServer_ConfigReload(t *testing.T) {
	gs := NewGracefulServer("127.0.0.1:0", okHandler(), nil)
	reloaded := make(chan struct{}, 1)
	gs.SetConfigReloadFunc(func() error {
		reloaded <- struct{}{}
		return nil
	})
	startGraceful(t, gs)
	defer gs.Shutdown(time.Second)

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGHUP); err != nil {
		t.Fatalf("Failed to send SIGHUP: %v", err)
	}
	select {
	case <-reloaded:
	case <-time.After(2 * time.Second):
		t.Fatal("SIGHUP did not reload the configuration")
	}
	if gs.IsShuttingDown() {
		t.Error("Server should not be shutting down after SIGHUP")
	}
}

func TestGracefulServer_ReloadConfig(t *testing.T) {
	gs := NewGracefulServer(":0", okHandler(), nil)
	if err := gs.ReloadConfig(); err != nil {
		t.Errorf("ReloadConfig() without a function = %v", err)
	}

	want := errors.New("bad config")
	gs.SetConfigReloadFunc(func() error { return want })
	if err := gs.ReloadConfig(); !errors.Is(err, want) {
		t.Errorf("ReloadConfig() = %v, want %v", err, want)
	}
}
