package browser

import (
	"net/http"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// listen dismisses JavaScript dialogs and logs failing HTTP traffic
func (b *Browser) listen() {
	chromedp.ListenTarget(b.ctx, func(ev interface{}) {
		switch ev := ev.(type) {
		case *page.EventJavascriptDialogOpening:
			b.log.Debug().Str("type", string(ev.Type)).Str("message", ev.Message).Msg("dismissing dialog")
			// Handling the dialog is itself a CDP call, which cannot run on
			// the event goroutine.
			go func() {
				if err := chromedp.Run(b.ctx, page.HandleJavaScriptDialog(false)); err != nil {
					b.log.Debug().Err(err).Msg("dialog dismiss failed")
				}
			}()

		case *network.EventRequestWillBeSent:
			if ev.Type == network.ResourceTypeXHR || ev.Type == network.ResourceTypeFetch {
				b.mu.Lock()
				b.requests[ev.RequestID] = ev.Request.URL
				b.mu.Unlock()
			}

		case *network.EventResponseReceived:
			b.forget(ev.RequestID)
			b.logResponse(int(ev.Response.Status), ev.Response.URL)

		case *network.EventLoadingFailed:
			url, tracked := b.forget(ev.RequestID)
			if !tracked {
				return
			}
			reason := ev.ErrorText
			if reason == "" {
				reason = "<no error text>"
			}
			b.log.Warn().Str("url", url).Str("reason", reason).Msg("XHR failed")
		}
	})
}

func (b *Browser) logResponse(status int, url string) {
	switch {
	case status == http.StatusTooManyRequests:
		b.log.Warn().Str("url", url).Msg("rate limit hit (429 Too Many Requests)")
	case status >= 400:
		b.log.Warn().Int("status", status).Str("url", url).Msg("HTTP error response")
	}
}

func (b *Browser) forget(id network.RequestID) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	url, ok := b.requests[id]
	delete(b.requests, id)
	return url, ok
}
