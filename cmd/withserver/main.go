// Command withserver makes sure the development server is up, optionally runs
// a command against it, and stops the server afterwards if it started it.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/PentesterFlow/uiprobe/internal/logger"
	"github.com/PentesterFlow/uiprobe/internal/server"
	"github.com/PentesterFlow/uiprobe/internal/shutdown"
	"github.com/PentesterFlow/uiprobe/pkg/explorer"
)

var (
	version = "1.0.0"

	configFile    string
	host          string
	port          int
	serverCommand string
	serverDir     string
	maxAttempts   int
	quiet         bool
	debug         bool

	exitCode int
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "withserver [command ...]",
		Short: "Run a command against the development server",
		Long: `withserver checks the development server and starts it when it is not
answering. With a command, it runs the command and exits with its exit code.
Without one, it keeps the server up until SIGINT or SIGTERM.

A server that was already running is left alone.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runWithServer,
	}
	rootCmd.Flags().SetInterspersed(false)

	rootCmd.Flags().StringVarP(&configFile, "config", "c", "", "Configuration file (YAML or JSON)")
	rootCmd.Flags().StringVar(&host, "host", "", "Server host (default: localhost)")
	rootCmd.Flags().IntVarP(&port, "port", "p", 0, "Server port (default: 5173)")
	rootCmd.Flags().StringVar(&serverCommand, "server-cmd", "", "Command that starts the server (default: npm run dev)")
	rootCmd.Flags().StringVar(&serverDir, "dir", "", "Working directory of the server")
	rootCmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "Readiness checks before giving up (default: 60)")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only log warnings and errors")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "Debug mode")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(exitCode)
}

func loadServerConfig(cmd *cobra.Command) (server.Config, error) {
	config := explorer.DefaultConfig()
	if configFile != "" {
		fileConfig, err := explorer.LoadFromFile(configFile)
		if err != nil {
			return server.Config{}, fmt.Errorf("failed to load config file: %w", err)
		}
		config = fileConfig
	}
	if err := config.ApplyEnv(os.LookupEnv); err != nil {
		return server.Config{}, err
	}

	cfg := config.Server
	if cmd.Flags().Changed("host") {
		cfg.Host = host
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = port
	}
	if cmd.Flags().Changed("server-cmd") {
		cfg.Command = strings.Fields(serverCommand)
	}
	if cmd.Flags().Changed("dir") {
		cfg.Dir = serverDir
	}
	if cmd.Flags().Changed("max-attempts") {
		cfg.MaxAttempts = maxAttempts
	}
	return cfg, cfg.Validate()
}

func runWithServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadServerConfig(cmd)
	if err != nil {
		return err
	}

	level := logger.InfoLevel
	if debug {
		level = logger.DebugLevel
	} else if quiet {
		level = logger.WarnLevel
	}
	log := logger.New(logger.Config{Level: level, Pretty: true})

	mgr := server.New(cfg, log)

	sh := shutdown.New(shutdown.Config{Log: log})
	sh.RegisterFunc("server", mgr.StopServer)
	sh.Listen()
	defer sh.Shutdown()

	code, err := session(sh.Context(), mgr, args, os.Stdout, os.Stderr)
	if sig := sh.Signal(); sig != nil {
		log.Event(logger.InfoLevel).Str("signal", sig.String()).Msg("Stopped by signal")
	}
	if err != nil {
		return err
	}
	exitCode = code
	return nil
}

// session ensures the server is running, then runs argv or, when argv is
// empty, waits for ctx. The server is stopped before returning if this
// session started it.
func session(ctx context.Context, mgr *server.Manager, argv []string, stdout, stderr io.Writer) (int, error) {
	defer mgr.StopServer()

	if err := mgr.EnsureRunning(ctx); err != nil {
		return 1, err
	}

	if len(argv) == 0 {
		fmt.Fprintf(stdout, "Server ready at %s (%s). Press Ctrl+C to stop.\n", mgr.URL(), mgr.State())
		<-ctx.Done()
		return 0, nil
	}

	return runCommand(ctx, argv, mgr.URL(), stdout, stderr)
}

// runCommand runs argv with UIPROBE_BASE_URL pointing at the server and
// returns its exit code.
func runCommand(ctx context.Context, argv []string, baseURL string, stdout, stderr io.Writer) (int, error) {
	c := exec.CommandContext(ctx, argv[0], argv[1:]...)
	c.Stdin = os.Stdin
	c.Stdout = stdout
	c.Stderr = stderr
	c.Env = append(os.Environ(), explorer.EnvBaseURL+"="+strings.TrimSuffix(baseURL, "/"))

	err := c.Run()
	if err == nil {
		return 0, nil
	}

	if exitErr, ok := err.(*exec.ExitError); ok {
		if code := exitErr.ExitCode(); code > 0 {
			return code, nil
		}
		// killed by a signal
		return 1, nil
	}
	return 1, fmt.Errorf("failed to run %s: %w", argv[0], err)
}
