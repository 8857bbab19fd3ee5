package browser

import (
	"context"
	"math"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/dispatch-tools/consultbot/internal/session"
)

// Cookies returns every cookie the tab holds
func (b *Browser) Cookies(ctx context.Context) ([]session.Cookie, error) {
	var raw []*network.Cookie
	err := b.op(ctx, "read cookies", func(opCtx context.Context) error {
		return chromedp.Run(opCtx, chromedp.ActionFunc(func(c context.Context) error {
			var err error
			raw, err = network.GetCookies().Do(c)
			return err
		}))
	})
	if err != nil {
		return nil, err
	}
	return fromNetworkCookies(raw), nil
}

// SetCookies loads previously saved cookies into the tab
func (b *Browser) SetCookies(ctx context.Context, cookies []session.Cookie) error {
	params := toCookieParams(cookies)
	if len(params) == 0 {
		return nil
	}
	return b.op(ctx, "set cookies", func(opCtx context.Context) error {
		return chromedp.Run(opCtx, network.SetCookies(params))
	})
}

func fromNetworkCookies(raw []*network.Cookie) []session.Cookie {
	out := make([]session.Cookie, 0, len(raw))
	for _, c := range raw {
		if c == nil {
			continue
		}
		expires := c.Expires
		if c.Session || expires < 0 {
			expires = 0
		}
		out = append(out, session.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	return out
}

func toCookieParams(cookies []session.Cookie) []*network.CookieParam {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		if c.Name == "" {
			continue
		}
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: network.CookieSameSite(c.SameSite),
		}
		if c.Expires > 0 {
			sec, frac := math.Modf(c.Expires)
			expires := cdp.TimeSinceEpoch(time.Unix(int64(sec), int64(frac*1e9)))
			p.Expires = &expires
		}
		params = append(params, p)
	}
	return params
}
