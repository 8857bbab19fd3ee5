package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/hay-kot/criterio"
)

// ConfigurationError is fatal: the run cannot start without fixing it.
type ConfigurationError struct {
	Op  string
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %v", e.Op, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Validate checks structural configuration values.
func (c *Config) Validate() error {
	return criterio.ValidateStruct(
		criterio.Run("site.base_url", c.Site.BaseURL, isHTTPURL),
		criterio.Run("site.task_list_path", c.Site.TaskListPath, isAbsPath),
		criterio.Run("site.login_path", c.Site.LoginPath, isAbsPath),
		c.validateBrowser(),
		c.validateClassifier(),
		criterio.Run("credentials.user_env", c.Credentials.UserEnv, notBlank),
		criterio.Run("credentials.password_env", c.Credentials.PasswordEnv, notBlank),
		criterio.Run("paths.state_file", c.Paths.StateFile, notBlank),
		criterio.Run("paths.log_dir", c.Paths.LogDir, notBlank),
	)
}

func (c *Config) validateBrowser() error {
	var errs criterio.FieldErrorsBuilder
	if c.Browser.TimeoutSec < 1 {
		errs = errs.Append("browser.timeout_sec", fmt.Errorf("must be at least 1"))
	}
	if c.Browser.NavigateAttempts < 1 {
		errs = errs.Append("browser.navigate_attempts", fmt.Errorf("must be at least 1"))
	}
	return errs.ToError()
}

func (c *Config) validateClassifier() error {
	var errs criterio.FieldErrorsBuilder
	if c.Classifier.Threshold <= 0 || c.Classifier.Threshold >= 100 {
		errs = errs.Append("classifier.threshold", fmt.Errorf("must be between 0 and 100, got %v", c.Classifier.Threshold))
	}

	seen := make(map[string]bool)
	for i, rule := range c.Classifier.Rules {
		field := fmt.Sprintf("classifier.rules[%d]", i)
		label := strings.TrimSpace(rule.Label)
		switch {
		case label == "":
			errs = errs.Append(field+".label", fmt.Errorf("label is required"))
		case strings.EqualFold(label, "unknown"):
			errs = errs.Append(field+".label", fmt.Errorf("%q is reserved", label))
		case seen[strings.ToLower(label)]:
			errs = errs.Append(field+".label", fmt.Errorf("duplicate label %q", label))
		}
		seen[strings.ToLower(label)] = true

		if len(rule.Phrases) == 0 {
			errs = errs.Append(field+".phrases", fmt.Errorf("at least one phrase is required"))
		}
	}
	return errs.ToError()
}

func isHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must be an http(s) URL, got %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	return nil
}

func isAbsPath(p string) error {
	if !strings.HasPrefix(p, "/") {
		return fmt.Errorf("must start with '/', got %q", p)
	}
	return nil
}

func notBlank(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("cannot be empty")
	}
	return nil
}
