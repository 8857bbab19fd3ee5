package browser

import (
	"context"
	"time"
)

const (
	// maxOverlayClicks bounds the loop for one selector in case a button
	// never goes away
	maxOverlayClicks = 10
	overlaySettle    = 200 * time.Millisecond
)

// dismissOverlays clicks every visible overlay button, selector by
// selector, until none remain. Evaluation errors end the pass quietly; the
// page is usually mid-navigation when that happens.
func (b *Browser) dismissOverlays(ctx context.Context) error {
	for _, sel := range b.config.OverlaySelectors {
		for i := 0; i < maxOverlayClicks; i++ {
			var clicked bool
			if err := b.eval(ctx, b.script(jsClickVisible, sel), &clicked); err != nil || !clicked {
				break
			}
			b.log.Debug().Str("selector", sel).Msg("dismissed overlay")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(overlaySettle):
			}
		}
	}
	return nil
}
