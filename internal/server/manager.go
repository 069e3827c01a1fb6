package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/PentesterFlow/uiprobe/internal/errors"
	"github.com/PentesterFlow/uiprobe/internal/logger"
)

// Manager checks, starts and stops one development server.
type Manager struct {
	mu     sync.Mutex
	config Config
	log    *logger.Logger
	client *http.Client

	state       State
	cmd         *exec.Cmd
	output      *tailBuffer
	exited      chan struct{}
	exitErr     error
	startedByUs bool
}

// New creates a manager. Zero fields of config take their defaults.
func New(config Config, log *logger.Logger) *Manager {
	config = config.withDefaults()
	if log == nil {
		log = logger.Nop()
	}

	return &Manager{
		config: config,
		log:    log.WithComponent("server").WithField("addr", config.Addr()),
		client: &http.Client{
			Timeout: config.ReadyTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		state: Unknown,
	}
}

// Config returns the effective configuration.
func (m *Manager) Config() Config {
	return m.config
}

// URL returns the server root URL.
func (m *Manager) URL() string {
	return m.config.URL()
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// StartedByUs reports whether this manager owns a running process.
func (m *Manager) StartedByUs() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startedByUs
}

// Output returns the captured stdout and stderr of the started process.
func (m *Manager) Output() string {
	m.mu.Lock()
	out := m.output
	m.mu.Unlock()
	if out == nil {
		return ""
	}
	return out.String()
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	from := m.state
	m.state = s
	m.mu.Unlock()

	if from != s {
		m.log.StateEvent(from.String(), s.String(), m.config.Port)
	}
}

// IsPortOpen reports whether a TCP connection to the server succeeds.
func (m *Manager) IsPortOpen() bool {
	conn, err := net.DialTimeout("tcp", m.config.Addr(), m.config.PortTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// IsServerReady reports whether the port is open and GET / answers below 500.
func (m *Manager) IsServerReady(ctx context.Context) bool {
	if !m.IsPortOpen() {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.config.URL(), nil)
	if err != nil {
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}

// EnsureRunning leaves a ready server alone and starts one otherwise.
func (m *Manager) EnsureRunning(ctx context.Context) error {
	m.setState(Checking)

	if m.IsServerReady(ctx) {
		m.setState(AlreadyRunning)
		m.log.Info("Server already running")
		return nil
	}

	return m.StartServer(ctx)
}

// StartServer spawns the configured command and polls until the server is
// ready, the process exits, or the attempt ceiling is reached. After a
// timeout the process is still owned by the manager; StopServer releases it.
func (m *Manager) StartServer(ctx context.Context) error {
	if err := m.config.Validate(); err != nil {
		m.setState(Failed)
		return errors.NewStartupError(m.config.Addr(), "invalid configuration", err)
	}

	m.mu.Lock()
	if m.startedByUs {
		m.mu.Unlock()
		return errors.NewStartupError(m.config.Addr(), "server process already started", nil)
	}

	cmd := exec.Command(m.config.Command[0], m.config.Command[1:]...)
	cmd.Dir = m.config.Dir
	cmd.Env = append(os.Environ(), m.config.Env...)
	output := newTailBuffer(m.config.OutputLimit)
	cmd.Stdout = output
	cmd.Stderr = output
	cmd.WaitDelay = 500 * time.Millisecond
	setProcessGroup(cmd)

	m.output = output
	m.mu.Unlock()
	m.setState(Starting)

	m.log.Event(logger.InfoLevel).
		Strs("command", m.config.Command).
		Str("dir", m.config.Dir).
		Msg("Starting server")

	if err := cmd.Start(); err != nil {
		m.setState(Failed)
		return errors.NewStartupError(m.config.Addr(), "failed to start server process", err)
	}

	exited := make(chan struct{})
	m.mu.Lock()
	m.cmd = cmd
	m.exited = exited
	m.exitErr = nil
	m.startedByUs = true
	m.mu.Unlock()

	go func() {
		err := cmd.Wait()
		m.mu.Lock()
		m.exitErr = err
		m.mu.Unlock()
		close(exited)
	}()

	return m.waitReady(ctx, exited)
}

func (m *Manager) waitReady(ctx context.Context, exited <-chan struct{}) error {
	limiter := rate.NewLimiter(rate.Every(m.config.PollInterval), 1)
	limiter.Allow()

	for attempt := 1; attempt <= m.config.MaxAttempts; attempt++ {
		select {
		case <-exited:
			return m.exitedEarly()
		default:
		}

		if m.IsServerReady(ctx) {
			m.setState(Ready)
			m.log.Event(logger.InfoLevel).Int("attempts", attempt).Msg("Server ready")
			return nil
		}

		if attempt%m.config.ProgressEvery == 0 {
			m.log.Event(logger.InfoLevel).
				Int("attempt", attempt).
				Int("max_attempts", m.config.MaxAttempts).
				Msg("Waiting for server")
		}

		if attempt == m.config.MaxAttempts {
			break
		}

		timer := time.NewTimer(limiter.Reserve().Delay())
		select {
		case <-timer.C:
		case <-exited:
			timer.Stop()
			return m.exitedEarly()
		case <-ctx.Done():
			timer.Stop()
			m.StopServer()
			m.setState(Failed)
			return errors.NewCancelledError(m.config.URL(), "start_server")
		}
	}

	m.setState(TimedOut)
	waited := time.Duration(m.config.MaxAttempts) * m.config.PollInterval
	return errors.NewStartupError(m.config.Addr(),
		fmt.Sprintf("server not ready after %d attempts (%s)", m.config.MaxAttempts, waited), nil)
}

func (m *Manager) exitedEarly() error {
	m.mu.Lock()
	exitErr := m.exitErr
	pid := 0
	if m.cmd != nil && m.cmd.Process != nil {
		pid = m.cmd.Process.Pid
	}
	m.mu.Unlock()

	// the leader is gone but anything it spawned still belongs to us
	if pid > 0 {
		if err := killGroup(pid); err != nil {
			m.log.WithField("pid", pid).WithError(errors.NewShutdownError(m.config.Addr(), err)).Warn("Failed to kill server process group")
		}
	}

	m.mu.Lock()
	m.startedByUs = false
	m.cmd = nil
	m.mu.Unlock()

	m.setState(Failed)
	out := m.Output()
	m.log.Event(logger.ErrorLevel).Err(exitErr).Str("output", out).Msg("Server process exited early")

	msg := "server process exited before becoming ready"
	if out != "" {
		msg += ":\n" + out
	}
	return errors.NewStartupError(m.config.Addr(), msg, exitErr)
}

// StopServer terminates the process group this manager started, escalating
// to SIGKILL after the grace period. The group is signalled even when its
// leader has already exited. Servers found already running are never
// touched. Escalation failures are logged, never returned.
func (m *Manager) StopServer() {
	m.mu.Lock()
	cmd := m.cmd
	exited := m.exited
	owned := m.startedByUs
	m.mu.Unlock()

	if !owned || cmd == nil || cmd.Process == nil {
		return
	}

	pid := cmd.Process.Pid
	log := m.log.WithField("pid", pid)

	log.Info("Stopping server")
	if err := terminateGroup(pid); err != nil {
		log.WithError(errors.NewShutdownError(m.config.Addr(), err)).Warn("Failed to signal server")
	}

	if !waitGone(pid, exited, m.config.StopGrace) {
		log.Warn("Server did not stop in time, killing")
		if err := killGroup(pid); err != nil {
			log.WithError(errors.NewShutdownError(m.config.Addr(), err)).Warn("Failed to kill server")
		}
		if !waitGone(pid, exited, m.config.StopGrace) {
			log.Error("Server process did not exit after kill")
		}
	}

	m.mu.Lock()
	m.cmd = nil
	m.startedByUs = false
	m.mu.Unlock()
	m.setState(Stopped)
}

// waitGone waits until the leader has been reaped and no process of its
// group remains, or d elapses.
func waitGone(pid int, exited <-chan struct{}, d time.Duration) bool {
	deadline := time.NewTimer(d)
	defer deadline.Stop()
	tick := time.NewTicker(25 * time.Millisecond)
	defer tick.Stop()

	for {
		reaped := false
		select {
		case <-exited:
			reaped = true
		default:
		}
		if reaped && !groupAlive(pid) {
			return true
		}

		select {
		case <-deadline.C:
			return false
		case <-tick.C:
		}
	}
}
