// Package dispatchtest provides an in-memory stand-in for the browser so
// the workflow can be exercised against HTML fixtures.
package dispatchtest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/dispatch-tools/consultbot/internal/browser"
	"github.com/dispatch-tools/consultbot/internal/session"
)

// Page serves fixture HTML by URL and records every write
type Page struct {
	mu sync.Mutex

	// Sites maps a URL to the HTML served for it
	Sites map[string]string
	// Fail makes navigation to a URL return the error
	Fail map[string]error
	// Redirect, when set, may rewrite a URL before it is served
	Redirect func(url string) string
	// OnClick runs after a click on the selector
	OnClick map[string]func(p *Page)
	// OnWait runs when WaitFor starts waiting on the selector, standing in
	// for markup the site renders late
	OnWait map[string]func(p *Page)
	// Hidden selectors exist but are not rendered
	Hidden map[string]bool
	// FillFail makes filling the selector return the error
	FillFail map[string]error

	Current    string
	Navigated  []string
	Clicks     []string
	Fills      map[string]string
	Checked    map[string]bool
	Jar        []session.Cookie
	SetJar     []session.Cookie
	Shots      []string
	ActionsLog []string

	// ClickedText holds the text of each element ClickNearest clicked
	ClickedText []string
}

func New() *Page {
	return &Page{
		Sites:    make(map[string]string),
		Fail:     make(map[string]error),
		OnClick:  make(map[string]func(*Page)),
		OnWait:   make(map[string]func(*Page)),
		Hidden:   make(map[string]bool),
		FillFail: make(map[string]error),
		Fills:    make(map[string]string),
		Checked:  make(map[string]bool),
	}
}

func (p *Page) record(format string, args ...any) {
	p.ActionsLog = append(p.ActionsLog, fmt.Sprintf(format, args...))
}

func (p *Page) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Navigated = append(p.Navigated, url)
	p.record("navigate %s", url)
	if err, ok := p.Fail[url]; ok {
		return err
	}
	if p.Redirect != nil {
		url = p.Redirect(url)
	}
	if _, ok := p.Sites[url]; !ok {
		return fmt.Errorf("navigate %s: %w", url, browser.ErrNavigationTimeout)
	}
	p.Current = url
	// a fresh page load drops any unsaved form state
	p.Fills = make(map[string]string)
	return nil
}

func (p *Page) doc() (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(p.Sites[p.Current]))
}

func (p *Page) exists(sel string) bool {
	doc, err := p.doc()
	if err != nil {
		return false
	}
	return doc.Find(sel).Length() > 0
}

func (p *Page) Click(_ context.Context, sel string) error {
	p.mu.Lock()
	if !p.exists(sel) {
		p.mu.Unlock()
		return fmt.Errorf("click %s: %w", sel, browser.ErrElementNotFound)
	}
	p.Clicks = append(p.Clicks, sel)
	p.record("click %s", sel)
	hook := p.OnClick[sel]
	p.mu.Unlock()

	if hook != nil {
		hook(p)
	}
	return nil
}

// NearestKey names a ClickNearest call in Clicks and OnClick
func NearestKey(sel, container, target string) string {
	return fmt.Sprintf("%s of %s near %s", target, container, sel)
}

func (p *Page) ClickNearest(_ context.Context, sel, container, target string) error {
	p.mu.Lock()
	doc, err := p.doc()
	if err != nil {
		p.mu.Unlock()
		return err
	}
	el := doc.Find(sel).First().Closest(container).ChildrenFiltered(target).First()
	if el.Length() == 0 {
		p.mu.Unlock()
		return fmt.Errorf("click %s near %s: %w", target, sel, browser.ErrElementNotFound)
	}
	key := NearestKey(sel, container, target)
	p.Clicks = append(p.Clicks, key)
	p.ClickedText = append(p.ClickedText, strings.TrimSpace(el.Text()))
	p.record("click %s", key)
	hook := p.OnClick[key]
	p.mu.Unlock()

	if hook != nil {
		hook(p)
	}
	return nil
}

func (p *Page) Fill(_ context.Context, sel, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err, ok := p.FillFail[sel]; ok {
		return err
	}
	if !p.exists(sel) {
		return fmt.Errorf("fill %s: %w", sel, browser.ErrElementNotFound)
	}
	p.Fills[sel] = value
	p.record("fill %s", sel)
	return nil
}

func (p *Page) SetChecked(_ context.Context, sel string, checked bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.exists(sel) {
		return fmt.Errorf("check %s: %w", sel, browser.ErrElementNotFound)
	}
	p.Checked[sel] = checked
	p.record("check %s=%t", sel, checked)
	return nil
}

func (p *Page) ReadText(_ context.Context, sel string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	doc, err := p.doc()
	if err != nil {
		return "", err
	}
	found := doc.Find(sel).First()
	if found.Length() == 0 {
		return "", fmt.Errorf("read %s: %w", sel, browser.ErrElementNotFound)
	}
	return strings.TrimSpace(found.Text()), nil
}

func (p *Page) ReadValue(_ context.Context, sel string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if v, ok := p.Fills[sel]; ok {
		return v, nil
	}
	doc, err := p.doc()
	if err != nil {
		return "", err
	}
	found := doc.Find(sel).First()
	if found.Length() == 0 {
		return "", fmt.Errorf("read %s: %w", sel, browser.ErrElementNotFound)
	}
	if goquery.NodeName(found) == "textarea" {
		return found.Text(), nil
	}
	return found.AttrOr("value", ""), nil
}

func (p *Page) WaitFor(_ context.Context, sel string, state browser.WaitState) error {
	p.mu.Lock()
	hook := p.OnWait[sel]
	p.mu.Unlock()
	if hook != nil {
		hook(p)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	present := p.exists(sel)
	visible := present && !p.Hidden[sel]
	ok := false
	switch state {
	case browser.WaitAttached:
		ok = present
	case browser.WaitVisible:
		ok = visible
	case browser.WaitHidden:
		ok = !visible
	}
	if !ok {
		return fmt.Errorf("wait for %s %s: %w", sel, state, browser.ErrNavigationTimeout)
	}
	return nil
}

func (p *Page) Visible(_ context.Context, sel string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exists(sel) && !p.Hidden[sel], nil
}

func (p *Page) HTML(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Sites[p.Current], nil
}

func (p *Page) URL(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Current, nil
}

func (p *Page) Screenshot(_ context.Context, name string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Shots = append(p.Shots, name)
	return "", nil
}

func (p *Page) Cookies(context.Context) ([]session.Cookie, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]session.Cookie(nil), p.Jar...), nil
}

func (p *Page) SetCookies(_ context.Context, cookies []session.Cookie) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SetJar = append(p.SetJar, cookies...)
	p.Jar = append(p.Jar, cookies...)
	return nil
}

// CountClicks returns how often sel was clicked
func (p *Page) CountClicks(sel string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.Clicks {
		if c == sel {
			n++
		}
	}
	return n
}
