// Package server makes sure a local development server is reachable, starting
// it on demand and stopping only a process it started itself.
package server

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Config holds server lifecycle settings.
type Config struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`

	// Command is the argv used to start the server.
	Command []string `json:"command" yaml:"command"`
	// Dir is the working directory of the server process.
	Dir string `json:"dir" yaml:"dir"`
	// Env is appended to the current environment.
	Env []string `json:"env" yaml:"env"`

	PortTimeout  time.Duration `json:"port_timeout" yaml:"port_timeout"`
	ReadyTimeout time.Duration `json:"ready_timeout" yaml:"ready_timeout"`
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`
	MaxAttempts  int           `json:"max_attempts" yaml:"max_attempts"`
	StopGrace    time.Duration `json:"stop_grace" yaml:"stop_grace"`

	// ProgressEvery logs a waiting message every N attempts.
	ProgressEvery int `json:"progress_every" yaml:"progress_every"`
	// OutputLimit caps the captured process output in bytes; older output is dropped.
	OutputLimit int `json:"output_limit" yaml:"output_limit"`
}

// DefaultConfig returns defaults for a Vite dev server.
func DefaultConfig() Config {
	return Config{
		Host:          "localhost",
		Port:          5173,
		Command:       []string{"npm", "run", "dev"},
		Dir:           ".",
		PortTimeout:   1 * time.Second,
		ReadyTimeout:  2 * time.Second,
		PollInterval:  500 * time.Millisecond,
		MaxAttempts:   60,
		StopGrace:     5 * time.Second,
		ProgressEvery: 4,
		OutputLimit:   64 * 1024,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if len(c.Command) == 0 || c.Command[0] == "" {
		return fmt.Errorf("command is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1")
	}
	return nil
}

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// URL returns the root URL of the server.
func (c Config) URL() string {
	return "http://" + c.Addr() + "/"
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Host == "" {
		c.Host = d.Host
	}
	if c.Port == 0 {
		c.Port = d.Port
	}
	if len(c.Command) == 0 {
		c.Command = d.Command
	}
	if c.PortTimeout <= 0 {
		c.PortTimeout = d.PortTimeout
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = d.ReadyTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.StopGrace <= 0 {
		c.StopGrace = d.StopGrace
	}
	if c.ProgressEvery <= 0 {
		c.ProgressEvery = d.ProgressEvery
	}
	if c.OutputLimit <= 0 {
		c.OutputLimit = d.OutputLimit
	}
	return c
}
