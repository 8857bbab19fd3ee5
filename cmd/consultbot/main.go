package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dispatch-tools/consultbot/internal/browser"
	"github.com/dispatch-tools/consultbot/internal/classify"
	"github.com/dispatch-tools/consultbot/internal/config"
	"github.com/dispatch-tools/consultbot/internal/credentials"
	"github.com/dispatch-tools/consultbot/internal/dispatch"
	"github.com/dispatch-tools/consultbot/internal/runlog"
	"github.com/dispatch-tools/consultbot/internal/runner"
	"github.com/dispatch-tools/consultbot/internal/session"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

type options struct {
	cfgFile  string
	headless bool
	dryRun   bool
	verbose  bool
	update   bool
}

func main() {
	var opts options

	rootCmd := &cobra.Command{
		Use:   "consultbot",
		Short: "Close out due consultation tasks on the dispatch site",
		Long: `consultbot logs in to the dispatch site, finds consultation tasks that
are due, classifies each job as Free, Billable or Unknown, writes a
dispatch summary into the task and closes it.

Run without flags to process every due task once.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsult(cmd, opts)
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/consultbot/config.yaml)")
	rootCmd.Flags().BoolVar(&opts.headless, "headless", true, "Run the browser without a window")
	rootCmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Classify and summarize but write nothing back")
	rootCmd.Flags().BoolVar(&opts.verbose, "verbose", false, "Echo the run log to stdout and log debug detail")
	rootCmd.Flags().BoolVar(&opts.update, "update", false, "Accepted for compatibility; does nothing")

	rootCmd.AddCommand(initCmd(&opts))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func initCmd(opts *options) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the built-in defaults",
		Long:  "Create a config file holding the default site paths, classifier rules and file locations, ready for editing.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(resolveConfigPath(opts.cfgFile), force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	return cmd
}

func runInit(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
	}
	cfg := config.Default()
	if err := config.Save(path, &cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	fmt.Printf("Wrote default configuration to %s\n", path)
	return nil
}

func resolveConfigPath(cfgFile string) string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

func runConsult(cmd *cobra.Command, opts options) error {
	cfg, err := config.Load(resolveConfigPath(opts.cfgFile))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("headless") {
		cfg.Browser.Headless = opts.headless
	}
	if opts.dryRun {
		cfg.Finalize.DryRun = true
	}

	level := zerolog.InfoLevel
	if opts.verbose {
		level = zerolog.DebugLevel
	}
	logger, err := runlog.New(runlog.Options{Dir: cfg.Paths.LogDir, Level: level, Echo: opts.verbose})
	if err != nil {
		return fmt.Errorf("failed to open run log: %w", err)
	}
	defer logger.Close()
	log := logger.Logger

	if opts.update {
		log.Debug().Msg("--update given; self-update is not supported, continuing")
	}
	log.Info().Str("version", version).Str("log", logger.Path).Msg("consultation run starting")

	err = run(cmd.Context(), cfg, log)
	var cfgErr *config.ConfigurationError
	switch {
	case errors.As(err, &cfgErr):
		log.Error().Err(err).Msg("configuration error, stopping")
	case errors.Is(err, context.Canceled):
		log.Warn().Msg("run cancelled")
	case err != nil:
		log.Error().Err(err).Msg("run failed")
	}
	return err
}

func run(parent context.Context, cfg *config.Config, log zerolog.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := session.NewStore(cfg.Paths.StateFile)
	unlock, err := store.Lock()
	if err != nil {
		return err
	}
	defer unlock()
	log.Debug().Str("path", store.Path()).Msg("session state locked")

	creds := credentials.NewChain(
		credentials.NewEnvProvider(cfg.Credentials.UserEnv, cfg.Credentials.PasswordEnv, cfg.Credentials.EnvFile),
		credentials.NewKeyringProvider(cfg.Credentials.KeyringService),
		credentials.NewPromptProvider(),
	)

	browserCfg := browser.DefaultConfig()
	browserCfg.Headless = cfg.Browser.Headless
	browserCfg.Timeout = time.Duration(cfg.Browser.TimeoutSec) * time.Second
	browserCfg.NavigateAttempts = cfg.Browser.NavigateAttempts
	browserCfg.ScreenshotDir = cfg.Browser.ScreenshotDir
	browserCfg.FrameSelector = dispatch.SelMainView
	browserCfg.OverlaySelectors = dispatch.OverlayButtons
	if cfg.Browser.UserAgent != "" {
		browserCfg.UserAgent = cfg.Browser.UserAgent
	}
	if cfg.Browser.WindowWidth > 0 && cfg.Browser.WindowHeight > 0 {
		browserCfg.WindowWidth = cfg.Browser.WindowWidth
		browserCfg.WindowHeight = cfg.Browser.WindowHeight
	}
	if cfg.Browser.BlockImages {
		browserCfg.BlockedURLs = []string{"*.png", "*.jpg", "*.jpeg", "*.gif", "*.svg"}
	}

	b, err := browser.New(browserCfg, log)
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer b.Close()

	summarizer, err := dispatch.NewSummarizer(cfg.Site.BaseURL, log)
	if err != nil {
		return err
	}

	r := runner.New(runner.Deps{
		Page:       b,
		Auth:       dispatch.NewAuthenticator(cfg.Site.BaseURL, cfg.LoginURL(), store, creds, log),
		Lister:     dispatch.NewLister(cfg.TaskListURL(), log),
		Classifier: classify.New(classifierRules(cfg.Classifier.Rules), cfg.Classifier.Threshold),
		Summarizer: summarizer,
		Finalizer: dispatch.NewFinalizer(dispatch.FinalizerOptions{
			DryRun:          cfg.Finalize.DryRun,
			CompleteUnknown: cfg.Finalize.CompleteUnknown,
		}, log),
		Log: log,
	})

	_, err = r.Run(ctx)
	return err
}

func classifierRules(rules []config.Rule) []classify.Rule {
	out := make([]classify.Rule, 0, len(rules))
	for _, r := range rules {
		out = append(out, classify.Rule{Label: classify.Label(r.Label), Phrases: r.Phrases})
	}
	return out
}
