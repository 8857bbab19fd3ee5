package credentials

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/dispatch-tools/consultbot/internal/config"
)

type staticSource struct {
	name      string
	available bool
	creds     Credentials
	calls     int
}

func (s *staticSource) Name() string    { return s.name }
func (s *staticSource) Available() bool { return s.available }
func (s *staticSource) Fill(_ context.Context, partial Credentials) (Credentials, error) {
	s.calls++
	return merge(partial, s.creds.Username, s.creds.Password), nil
}

func fakePrompt(input string, terminal bool, password string) (*PromptProvider, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return &PromptProvider{
		in:           bufio.NewReader(strings.NewReader(input)),
		out:          out,
		isTerminal:   func() bool { return terminal },
		readPassword: func() ([]byte, error) { return []byte(password), nil },
	}, out
}

func TestChain_FirstCompleteSourceWins(t *testing.T) {
	first := &staticSource{name: "a", available: true, creds: Credentials{"alice", "pw1"}}
	second := &staticSource{name: "b", available: true, creds: Credentials{"bob", "pw2"}}

	creds, err := NewChain(first, second).Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Credentials{"alice", "pw1"}, creds)
	assert.Equal(t, 0, second.calls)
}

func TestChain_MergesHalves(t *testing.T) {
	userOnly := &staticSource{name: "a", available: true, creds: Credentials{Username: "alice"}}
	passOnly := &staticSource{name: "b", available: true, creds: Credentials{Username: "ignored", Password: "pw"}}

	creds, err := NewChain(userOnly, passOnly).Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Credentials{"alice", "pw"}, creds)
}

func TestChain_SkipsUnavailable(t *testing.T) {
	off := &staticSource{name: "off", available: false, creds: Credentials{"x", "y"}}
	on := &staticSource{name: "on", available: true, creds: Credentials{"alice", "pw"}}

	creds, err := NewChain(off, on).Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", creds.Username)
	assert.Equal(t, 0, off.calls)
}

func TestChain_IncompleteIsConfigurationError(t *testing.T) {
	userOnly := &staticSource{name: "a", available: true, creds: Credentials{Username: "alice"}}
	prompt, _ := fakePrompt("", false, "")

	_, err := NewChain(userOnly, prompt).Credentials(context.Background())
	require.Error(t, err)

	var cfgErr *config.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, err.Error(), "terminal prompt")
}

func TestEnvProvider(t *testing.T) {
	t.Setenv("CB_TEST_USER", "from-env")

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("CB_TEST_USER=from-file\nCB_TEST_PASS=secret\n"), 0600))
	t.Cleanup(func() { os.Unsetenv("CB_TEST_PASS") })

	p := NewEnvProvider("CB_TEST_USER", "CB_TEST_PASS", envFile)
	creds, err := p.Fill(context.Background(), Credentials{})
	require.NoError(t, err)

	assert.Equal(t, "from-env", creds.Username, "real environment wins over the dotenv file")
	assert.Equal(t, "secret", creds.Password)
}

func TestEnvProvider_MissingFileIsFine(t *testing.T) {
	p := NewEnvProvider("CB_TEST_NOPE_USER", "CB_TEST_NOPE_PASS", filepath.Join(t.TempDir(), "missing.env"))
	creds, err := p.Fill(context.Background(), Credentials{})
	require.NoError(t, err)
	assert.False(t, creds.Complete())
}

func TestKeyringProvider(t *testing.T) {
	keyring.MockInit()
	require.NoError(t, keyring.Set("consultbot-test", keyringUserKey, "kuser"))
	require.NoError(t, keyring.Set("consultbot-test", keyringPasswordKey, "kpass"))

	p := NewKeyringProvider("consultbot-test")
	require.True(t, p.Available())

	creds, err := p.Fill(context.Background(), Credentials{Username: "kept"})
	require.NoError(t, err)
	assert.Equal(t, Credentials{"kept", "kpass"}, creds)
}

func TestKeyringProvider_NotFoundIsEmpty(t *testing.T) {
	keyring.MockInit()

	creds, err := NewKeyringProvider("consultbot-empty").Fill(context.Background(), Credentials{})
	require.NoError(t, err)
	assert.Equal(t, Credentials{}, creds)
}

func TestPromptProvider(t *testing.T) {
	p, out := fakePrompt("  alice \n", true, "hunter2")

	creds, err := p.Fill(context.Background(), Credentials{})
	require.NoError(t, err)
	assert.Equal(t, Credentials{"alice", "hunter2"}, creds)
	assert.Contains(t, out.String(), "Username: ")
	assert.Contains(t, out.String(), "Password: ")
	assert.NotContains(t, out.String(), "hunter2")
}

func TestPromptProvider_OnlyAsksForMissing(t *testing.T) {
	p, out := fakePrompt("", true, "pw")

	creds, err := p.Fill(context.Background(), Credentials{Username: "from-env"})
	require.NoError(t, err)
	assert.Equal(t, Credentials{"from-env", "pw"}, creds)
	assert.NotContains(t, out.String(), "Username")
}

func TestPromptProvider_NoTerminal(t *testing.T) {
	p, _ := fakePrompt("alice\n", false, "pw")

	_, err := p.Fill(context.Background(), Credentials{})
	var cfgErr *config.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}
