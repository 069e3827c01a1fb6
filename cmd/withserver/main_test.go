package main

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/PentesterFlow/uiprobe/internal/logger"
	"github.com/PentesterFlow/uiprobe/internal/server"
)

func runningServer(t *testing.T) *server.Manager {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	host, portStr, _ := net.SplitHostPort(srv.Listener.Addr().String())
	port, _ := strconv.Atoi(portStr)

	return server.New(server.Config{
		Host:         host,
		Port:         port,
		Command:      []string{"sh", "-c", "exit 7"},
		PollInterval: 20 * time.Millisecond,
		MaxAttempts:  3,
	}, logger.Nop())
}

func TestSession_PropagatesExitCode(t *testing.T) {
	tests := []struct {
		name string
		argv []string
		want int
	}{
		{"success", []string{"sh", "-c", "exit 0"}, 0},
		{"failure", []string{"sh", "-c", "exit 3"}, 3},
		{"base url exported", []string{"sh", "-c", `case "$UIPROBE_BASE_URL" in http://127.0.0.1:*) exit 0;; *) exit 9;; esac`}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr := runningServer(t)
			var stdout, stderr bytes.Buffer

			code, err := session(context.Background(), mgr, tt.argv, &stdout, &stderr)
			if err != nil {
				t.Fatalf("session() error = %v", err)
			}
			if code != tt.want {
				t.Errorf("exit code = %d, want %d (stderr: %s)", code, tt.want, stderr.String())
			}
			if mgr.State() != server.AlreadyRunning {
				t.Errorf("State() = %s, the existing server should be left alone", mgr.State())
			}
		})
	}
}

func TestSession_CommandOutput(t *testing.T) {
	mgr := runningServer(t)
	var stdout, stderr bytes.Buffer

	session(context.Background(), mgr, []string{"sh", "-c", "echo ok; echo oops >&2"}, &stdout, &stderr)

	if strings.TrimSpace(stdout.String()) != "ok" || strings.TrimSpace(stderr.String()) != "oops" {
		t.Errorf("stdout = %q, stderr = %q", stdout.String(), stderr.String())
	}
}

func TestSession_MissingCommand(t *testing.T) {
	mgr := runningServer(t)

	code, err := session(context.Background(), mgr, []string{"/nonexistent/uiprobe-tests"}, &bytes.Buffer{}, &bytes.Buffer{})
	if err == nil {
		t.Fatal("session() should fail for a missing command")
	}
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
}

func TestSession_WaitsForSignal(t *testing.T) {
	mgr := runningServer(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan int, 1)
	go func() {
		code, _ := session(ctx, mgr, nil, &bytes.Buffer{}, &bytes.Buffer{})
		done <- code
	}()

	select {
	case <-done:
		t.Fatal("session() returned before the context was cancelled")
	case <-time.After(50 * time.Millisecond):
	}

	cancel()

	select {
	case code := <-done:
		if code != 0 {
			t.Errorf("exit code = %d, want 0", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session() did not return after cancellation")
	}
}

func TestSession_StartupFailure(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	mgr := server.New(server.Config{
		Host:         "127.0.0.1",
		Port:         port,
		Command:      []string{"sh", "-c", "echo boom; exit 1"},
		PollInterval: 20 * time.Millisecond,
		MaxAttempts:  50,
	}, logger.Nop())

	code, err := session(context.Background(), mgr, []string{"sh", "-c", "exit 0"}, &bytes.Buffer{}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("session() error = %v, want startup error with output", err)
	}
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
}
