package credentials

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/dispatch-tools/consultbot/internal/config"
)

// PromptProvider asks for missing values on the terminal. The password is
// read without echo.
type PromptProvider struct {
	in           *bufio.Reader
	out          io.Writer
	isTerminal   func() bool
	readPassword func() ([]byte, error)
}

func NewPromptProvider() *PromptProvider {
	fd := int(os.Stdin.Fd())
	return &PromptProvider{
		in:           bufio.NewReader(os.Stdin),
		out:          os.Stderr,
		isTerminal:   func() bool { return term.IsTerminal(fd) },
		readPassword: func() ([]byte, error) { return term.ReadPassword(fd) },
	}
}

func (p *PromptProvider) Name() string { return "terminal prompt" }

func (p *PromptProvider) Available() bool { return p.isTerminal() }

func (p *PromptProvider) Fill(ctx context.Context, partial Credentials) (Credentials, error) {
	if !p.isTerminal() {
		return partial, &config.ConfigurationError{
			Op:  "prompt for credentials",
			Err: fmt.Errorf("stdin is not a terminal"),
		}
	}

	if partial.Username == "" {
		fmt.Fprint(p.out, "Username: ")
		line, err := p.in.ReadString('\n')
		if err != nil && line == "" {
			return partial, fmt.Errorf("failed to read username: %w", err)
		}
		partial.Username = strings.TrimSpace(line)
	}
	if err := ctx.Err(); err != nil {
		return partial, err
	}

	if partial.Password == "" {
		fmt.Fprint(p.out, "Password: ")
		pw, err := p.readPassword()
		fmt.Fprintln(p.out)
		if err != nil {
			return partial, fmt.Errorf("failed to read password: %w", err)
		}
		partial.Password = string(pw)
	}
	return partial, nil
}

var _ Source = (*PromptProvider)(nil)
