// Package credentials supplies the dispatch site login from whichever
// sources are available at runtime.
package credentials

import (
	"context"
	"fmt"
	"strings"

	"github.com/dispatch-tools/consultbot/internal/config"
)

// Credentials is a username/password pair. It is never persisted.
type Credentials struct {
	Username string
	Password string
}

func (c Credentials) Complete() bool { return c.Username != "" && c.Password != "" }

// Provider yields a complete credential pair or an error
type Provider interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// Source fills in whichever half of a credential pair it can. Sources are
// consulted only when Available reports true.
type Source interface {
	Name() string
	Available() bool
	Fill(ctx context.Context, partial Credentials) (Credentials, error)
}

// Chain consults its sources in order until both halves are known
type Chain struct {
	sources []Source
}

func NewChain(sources ...Source) *Chain {
	return &Chain{sources: sources}
}

func (c *Chain) Credentials(ctx context.Context) (Credentials, error) {
	var creds Credentials
	var skipped []string

	for _, src := range c.sources {
		if creds.Complete() {
			break
		}
		if !src.Available() {
			skipped = append(skipped, src.Name())
			continue
		}
		filled, err := src.Fill(ctx, creds)
		if err != nil {
			return Credentials{}, err
		}
		creds = filled
	}

	if !creds.Complete() {
		msg := "no source supplied both username and password"
		if len(skipped) > 0 {
			msg += fmt.Sprintf(" (unavailable: %s)", strings.Join(skipped, ", "))
		}
		return Credentials{}, &config.ConfigurationError{Op: "load credentials", Err: fmt.Errorf("%s", msg)}
	}
	return creds, nil
}

var _ Provider = (*Chain)(nil)

func merge(partial Credentials, user, password string) Credentials {
	if partial.Username == "" {
		partial.Username = strings.TrimSpace(user)
	}
	if partial.Password == "" {
		partial.Password = password
	}
	return partial
}
