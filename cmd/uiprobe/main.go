package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/PentesterFlow/uiprobe/internal/dom"
	"github.com/PentesterFlow/uiprobe/internal/shutdown"
	"github.com/PentesterFlow/uiprobe/pkg/explorer"
)

var (
	version = "1.0.0"

	// Global flags
	configFile  string
	historyPath string
	reportsDir  string
	quiet       bool
	debug       bool

	// Discover flags
	backend    string
	outputFile string
	screenshot bool
	noStats    bool
	noGeneric  bool
	noHistory  bool
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "uiprobe",
		Short: "uiprobe - UI element discovery for login pages",
		Long: `uiprobe loads one page of a web application and records its inputs, buttons,
links, forms, headings, images and interactive widgets in a JSON report.

Pages are read either as served HTML (static) or after rendering in a
headless Chromium (rendered).`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	discoverCmd := &cobra.Command{
		Use:   "discover [url]",
		Short: "Discover the elements of a page",
		Long:  "Load a page, classify its elements and save a discovery report.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runDiscover,
	}

	screenshotCmd := &cobra.Command{
		Use:   "screenshot [url]",
		Short: "Capture a full-page screenshot",
		Long:  "Render a page in a headless browser and save a full-page PNG.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runScreenshot,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&historyPath, "history", "", "Run history database (default: <reports-dir>/history.db)")
	rootCmd.PersistentFlags().StringVar(&reportsDir, "reports-dir", "", "Reports directory (default: reports)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Hide per-element progress")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Debug mode")

	// Discover flags
	discoverCmd.Flags().StringVarP(&backend, "backend", "b", dom.BackendStatic, "Page backend (static, rendered)")
	discoverCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Report file (default: element_discovery_<timestamp>.json)")
	discoverCmd.Flags().BoolVar(&screenshot, "screenshot", false, "Also save a screenshot (rendered backend)")
	discoverCmd.Flags().BoolVar(&noStats, "no-stats", false, "Omit statistics from the report")
	discoverCmd.Flags().BoolVar(&noGeneric, "no-generic", false, "Skip the generic interactive selectors")
	discoverCmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not record the run in the history database")

	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(screenshotCmd)
	rootCmd.AddCommand(newHistoryCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig layers the config file, environment and global flags over the defaults.
func loadConfig(cmd *cobra.Command) (*explorer.Config, error) {
	config := explorer.DefaultConfig()
	if configFile != "" {
		fileConfig, err := explorer.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		config = fileConfig
	}

	if err := config.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("reports-dir") {
		config.ReportsDir = reportsDir
	}
	if cmd.Flags().Changed("history") {
		config.HistoryPath = historyPath
	}
	config.Quiet = config.Quiet || quiet
	config.Debug = config.Debug || debug

	return config, nil
}

func runDiscover(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if len(args) > 0 {
		config.BaseURL = args[0]
	}
	if cmd.Flags().Changed("backend") {
		config.Backend = backend
	}
	if noStats {
		config.Statistics = false
	}
	if noGeneric {
		config.Classify.DisableGeneric = true
	}
	if noHistory {
		config.History = false
	}

	filename := ""
	if outputFile != "" {
		if dir := filepath.Dir(outputFile); dir != "." {
			// history stays where the history command looks for it
			if config.History && config.HistoryPath == "" {
				config.HistoryPath = config.HistoryFile()
			}
			config.ReportsDir = dir
		}
		filename = filepath.Base(outputFile)
	}

	if screenshot && config.Backend != dom.BackendRendered {
		return fmt.Errorf("--screenshot needs --backend %s", dom.BackendRendered)
	}

	ex, err := explorer.New(explorer.WithConfig(config))
	if err != nil {
		return fmt.Errorf("failed to create explorer: %w", err)
	}

	sh := shutdown.New(shutdown.Config{Log: ex.Logger()})
	sh.Register("explorer", func(ctx context.Context) error { return ex.Close() })
	sh.Listen()
	defer sh.Shutdown()

	fmt.Printf("Exploring %s (%s)\n", config.BaseURL, config.Backend)

	if _, err := ex.DiscoverAll(sh.Context(), config.BaseURL); err != nil {
		if sig := sh.Signal(); sig != nil {
			return fmt.Errorf("discovery interrupted by %s", sig)
		}
		return fmt.Errorf("discovery failed: %w", err)
	}
	ex.PrintSummary(os.Stdout)

	path, err := ex.SaveReport(filename)
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	fmt.Printf("Report saved: %s\n", path)

	if screenshot {
		c, err := ex.Screenshot(sh.Context())
		if err != nil {
			return fmt.Errorf("screenshot failed: %w", err)
		}
		fmt.Printf("Screenshot saved: %s\n", c.Path)
	}

	return nil
}

func runScreenshot(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if len(args) > 0 {
		config.BaseURL = args[0]
	}
	config.Backend = dom.BackendRendered

	ex, err := explorer.New(explorer.WithConfig(config))
	if err != nil {
		return fmt.Errorf("failed to create explorer: %w", err)
	}

	sh := shutdown.New(shutdown.Config{Log: ex.Logger()})
	sh.Register("explorer", func(ctx context.Context) error { return ex.Close() })
	sh.Listen()
	defer sh.Shutdown()

	if _, err := ex.DiscoverAll(sh.Context(), config.BaseURL); err != nil {
		if sig := sh.Signal(); sig != nil {
			return fmt.Errorf("interrupted by %s", sig)
		}
		return fmt.Errorf("failed to load page: %w", err)
	}

	c, err := ex.Screenshot(sh.Context())
	if err != nil {
		return fmt.Errorf("screenshot failed: %w", err)
	}

	fmt.Printf("Screenshot saved: %s (%dx%d)\n", c.Path, c.Width, c.Height)
	if c.ThumbnailPath != "" {
		fmt.Printf("Thumbnail saved:  %s\n", c.ThumbnailPath)
	}
	return nil
}
