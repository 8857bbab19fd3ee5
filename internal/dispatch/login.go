package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dispatch-tools/consultbot/internal/browser"
	"github.com/dispatch-tools/consultbot/internal/credentials"
	"github.com/dispatch-tools/consultbot/internal/session"
)

var ErrLoginRejected = errors.New("site rejected the credentials")

// StateStore is the part of session.Store the login flow needs
type StateStore interface {
	Restore() (*session.State, error)
	Save(*session.State) error
	Clear() error
}

// Authenticator establishes a logged-in browser session, reusing saved
// cookies when the site still accepts them.
type Authenticator struct {
	baseURL  string
	loginURL string
	store    StateStore
	creds    credentials.Provider
	log      zerolog.Logger
}

func NewAuthenticator(baseURL, loginURL string, store StateStore, creds credentials.Provider, log zerolog.Logger) *Authenticator {
	return &Authenticator{
		baseURL:  strings.TrimRight(baseURL, "/") + "/",
		loginURL: loginURL,
		store:    store,
		creds:    creds,
		log:      log,
	}
}

// Login restores the saved session if the site accepts it and falls back to
// the login form otherwise. It reports whether the saved session was used.
// Credential errors are returned unwrapped so callers can treat them as
// fatal.
func (a *Authenticator) Login(ctx context.Context, page Page) (restored bool, err error) {
	state, err := a.store.Restore()
	if err != nil {
		a.log.Warn().Err(err).Msg("ignoring unreadable session state")
	}
	if state != nil && len(state.Cookies) > 0 {
		if err := page.SetCookies(ctx, state.Cookies); err != nil {
			a.log.Warn().Err(err).Msg("could not apply saved cookies")
		}
	}

	if err := page.Navigate(ctx, a.baseURL); err != nil {
		return false, fmt.Errorf("open %s: %w", a.baseURL, err)
	}
	current, err := page.URL(ctx)
	if err != nil {
		return false, fmt.Errorf("read current URL: %w", err)
	}
	if !strings.Contains(current, loginMarker) {
		a.log.Info().Msg("session restored with stored state")
		return true, nil
	}

	if state != nil && len(state.Cookies) > 0 {
		a.log.Info().Msg("saved session expired, logging in again")
		if err := a.store.Clear(); err != nil {
			a.log.Warn().Err(err).Msg("could not clear expired session state")
		}
	}

	creds, err := a.creds.Credentials(ctx)
	if err != nil {
		return false, err
	}

	if err := page.Navigate(ctx, a.loginURL); err != nil {
		return false, fmt.Errorf("open login form: %w", err)
	}
	if err := page.Fill(ctx, SelLoginUser, creds.Username); err != nil {
		return false, fmt.Errorf("fill username: %w", err)
	}
	if err := page.Fill(ctx, SelLoginPass, creds.Password); err != nil {
		return false, fmt.Errorf("fill password: %w", err)
	}
	if err := page.Click(ctx, SelLoginSubmit); err != nil {
		return false, fmt.Errorf("submit login: %w", err)
	}
	if err := page.WaitFor(ctx, SelMainView, browser.WaitAttached); err != nil {
		if current, urlErr := page.URL(ctx); urlErr == nil && strings.Contains(current, loginMarker) {
			return false, ErrLoginRejected
		}
		return false, fmt.Errorf("wait for main view: %w", err)
	}

	cookies, err := page.Cookies(ctx)
	if err != nil {
		a.log.Warn().Err(err).Msg("could not read cookies; session not saved")
	} else if err := a.store.Save(&session.State{Cookies: cookies}); err != nil {
		a.log.Warn().Err(err).Msg("could not save session state")
	}

	a.log.Info().Str("user", creds.Username).Msg("logged in via credentials")
	return false, nil
}
