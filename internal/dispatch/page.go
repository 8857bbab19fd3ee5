package dispatch

import (
	"context"

	"github.com/dispatch-tools/consultbot/internal/browser"
	"github.com/dispatch-tools/consultbot/internal/session"
)

// Page is the browser capability the workflow drives. Selectors resolve
// inside the MainView frame when it is loaded and the top document
// otherwise. *browser.Browser satisfies it; tests use an in-memory fake.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, sel string) error
	ClickNearest(ctx context.Context, sel, container, target string) error
	Fill(ctx context.Context, sel, value string) error
	SetChecked(ctx context.Context, sel string, checked bool) error
	ReadText(ctx context.Context, sel string) (string, error)
	ReadValue(ctx context.Context, sel string) (string, error)
	WaitFor(ctx context.Context, sel string, state browser.WaitState) error
	Visible(ctx context.Context, sel string) (bool, error)
	HTML(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
	Screenshot(ctx context.Context, name string) (string, error)
	Cookies(ctx context.Context) ([]session.Cookie, error)
	SetCookies(ctx context.Context, cookies []session.Cookie) error
}

var _ Page = (*browser.Browser)(nil)
