package credentials

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// EnvProvider reads the login from two environment variables, after
// loading an optional dotenv file. Variables already set in the real
// environment win over the file.
type EnvProvider struct {
	UserVar     string
	PasswordVar string
	EnvFile     string

	loaded bool
}

func NewEnvProvider(userVar, passwordVar, envFile string) *EnvProvider {
	return &EnvProvider{UserVar: userVar, PasswordVar: passwordVar, EnvFile: envFile}
}

func (p *EnvProvider) Name() string { return "environment" }

func (p *EnvProvider) Available() bool { return true }

func (p *EnvProvider) Fill(_ context.Context, partial Credentials) (Credentials, error) {
	if err := p.loadFile(); err != nil {
		return partial, err
	}
	return merge(partial, os.Getenv(p.UserVar), os.Getenv(p.PasswordVar)), nil
}

func (p *EnvProvider) loadFile() error {
	if p.loaded || p.EnvFile == "" {
		return nil
	}
	p.loaded = true

	if _, err := os.Stat(p.EnvFile); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(p.EnvFile); err != nil {
		return fmt.Errorf("failed to load %s: %w", p.EnvFile, err)
	}
	return nil
}

var _ Source = (*EnvProvider)(nil)
