package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

const (
	appName = "consultbot"

	defaultBaseURL        = "http://inside.sockettelecom.com"
	defaultTaskListPath   = "/menu.php?tabid=45&tasktype=2&nID=1439&width=1440&height=731"
	defaultLoginPath      = "/system/login.php"
	defaultTimeoutSec     = 30
	defaultThreshold      = 90
	defaultUserEnv        = "UNITY_USER"
	defaultPasswordEnv    = "PASSWORD"
	defaultKeyringService = "consultbot"
)

func checkFilePermissions(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %04o; should be 0600", path, perm)
	}
	return nil
}

type Config struct {
	Site        Site        `yaml:"site"`
	Browser     Browser     `yaml:"browser"`
	Classifier  Classifier  `yaml:"classifier"`
	Finalize    Finalize    `yaml:"finalize"`
	Credentials Credentials `yaml:"credentials"`
	Paths       Paths       `yaml:"paths"`
}

// Site holds the remote dispatch system's addresses
type Site struct {
	BaseURL      string `yaml:"base_url"`
	TaskListPath string `yaml:"task_list_path"`
	LoginPath    string `yaml:"login_path"`
}

// Browser holds browser automation settings
type Browser struct {
	Headless         bool   `yaml:"headless"`
	TimeoutSec       int    `yaml:"timeout_sec"`       // Per-operation timeout
	NavigateAttempts uint   `yaml:"navigate_attempts"` // 1 = single attempt
	BlockImages      bool   `yaml:"block_images"`
	ScreenshotDir    string `yaml:"screenshot_dir,omitempty"`
	UserAgent        string `yaml:"user_agent,omitempty"`
	WindowWidth      int    `yaml:"window_width,omitempty"`
	WindowHeight     int    `yaml:"window_height,omitempty"`
}

// Classifier holds the job-type rule set and acceptance threshold
type Classifier struct {
	Threshold float64 `yaml:"threshold"`
	Rules     []Rule  `yaml:"rules,omitempty"`
}

// Rule maps a job-type label to the phrases that identify it
type Rule struct {
	Label   string   `yaml:"label"`
	Phrases []string `yaml:"phrases"`
}

type Finalize struct {
	DryRun          bool `yaml:"dry_run"`
	CompleteUnknown bool `yaml:"complete_unknown"` // Mark Unknown jobs complete instead of notes-only
}

type Credentials struct {
	UserEnv        string `yaml:"user_env"`
	PasswordEnv    string `yaml:"password_env"`
	EnvFile        string `yaml:"env_file,omitempty"`
	KeyringService string `yaml:"keyring_service,omitempty"`
}

type Paths struct {
	StateFile string `yaml:"state_file"`
	LogDir    string `yaml:"log_dir"`
}

// DefaultRules is the built-in classification rule set. Order matters: on a
// score tie the earlier label wins.
func DefaultRules() []Rule {
	return []Rule{
		{
			Label: "Free",
			Phrases: []string{
				"WiFi Survey", "NID/IW/CopperTest", "equipment check", "swap router",
				"ONT Swap", "STB to ONN Conversion", "Jack/FXS/Phone Check", "Blank",
				"Go-Live", "Install", "rouge ont", "onn swap", "ont dying", "stb swap",
				"Tie down", "onn",
			},
		},
		{
			Label: "Billable",
			Phrases: []string{
				"ONT Move", "ONT in Disco", "Fiber Cut", "Broken Fiber", "Fiber Move",
			},
		},
	}
}

// Default returns a configuration populated with built-in defaults
func Default() Config {
	return Config{
		Site: Site{
			BaseURL:      defaultBaseURL,
			TaskListPath: defaultTaskListPath,
			LoginPath:    defaultLoginPath,
		},
		Browser: Browser{
			Headless:         true,
			TimeoutSec:       defaultTimeoutSec,
			NavigateAttempts: 1,
			BlockImages:      true,
			WindowWidth:      1440,
			WindowHeight:     900,
		},
		Classifier: Classifier{
			Threshold: defaultThreshold,
			Rules:     DefaultRules(),
		},
		Credentials: Credentials{
			UserEnv:        defaultUserEnv,
			PasswordEnv:    defaultPasswordEnv,
			EnvFile:        ".env",
			KeyringService: defaultKeyringService,
		},
		Paths: Paths{
			StateFile: DefaultStatePath(),
			LogDir:    DefaultLogDir(),
		},
	}
}

func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, appName, "config.yaml")
}

func DefaultStatePath() string {
	return filepath.Join(xdg.StateHome, appName, "state.json")
}

func DefaultLogDir() string {
	return filepath.Join(xdg.StateHome, appName, "logs")
}

// Load reads the config file at path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		if err := checkFilePermissions(path); err != nil {
			fmt.Fprintf(os.Stderr, "WARNING: %v\n", err)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, &ConfigurationError{Op: "validate config", Err: err}
	}
	return &cfg, nil
}

// applyDefaults fills zero values left by a partial config file
func (c *Config) applyDefaults() {
	d := Default()
	if c.Site.BaseURL == "" {
		c.Site.BaseURL = d.Site.BaseURL
	}
	if c.Site.TaskListPath == "" {
		c.Site.TaskListPath = d.Site.TaskListPath
	}
	if c.Site.LoginPath == "" {
		c.Site.LoginPath = d.Site.LoginPath
	}
	if c.Browser.TimeoutSec == 0 {
		c.Browser.TimeoutSec = d.Browser.TimeoutSec
	}
	if c.Browser.NavigateAttempts == 0 {
		c.Browser.NavigateAttempts = 1
	}
	if c.Classifier.Threshold == 0 {
		c.Classifier.Threshold = d.Classifier.Threshold
	}
	if len(c.Classifier.Rules) == 0 {
		c.Classifier.Rules = d.Classifier.Rules
	}
	if c.Credentials.UserEnv == "" {
		c.Credentials.UserEnv = d.Credentials.UserEnv
	}
	if c.Credentials.PasswordEnv == "" {
		c.Credentials.PasswordEnv = d.Credentials.PasswordEnv
	}
	if c.Credentials.KeyringService == "" {
		c.Credentials.KeyringService = d.Credentials.KeyringService
	}
	if c.Paths.StateFile == "" {
		c.Paths.StateFile = d.Paths.StateFile
	}
	if c.Paths.LogDir == "" {
		c.Paths.LogDir = d.Paths.LogDir
	}
}

func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// TaskListURL returns the absolute task-list address
func (c *Config) TaskListURL() string { return c.Site.BaseURL + c.Site.TaskListPath }

// LoginURL returns the absolute login form address
func (c *Config) LoginURL() string { return c.Site.BaseURL + c.Site.LoginPath }
