// Package browser drives a single Chrome tab through chromedp
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
)

// Browser wraps one chromedp tab for the whole run
type Browser struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
	config      Config
	log         zerolog.Logger

	eval evalFunc

	mu       sync.Mutex
	requests map[network.RequestID]string // in-flight XHR URLs, for failure logging
}

// Config holds browser automation settings
type Config struct {
	Headless         bool
	Timeout          time.Duration // Per operation
	NavigateAttempts uint
	ScreenshotDir    string
	UserAgent        string
	WindowWidth      int
	WindowHeight     int

	FrameSelector    string   // Content frame that operations target when present
	OverlaySelectors []string // Buttons that close popups, clicked after every navigation and click
	BlockedURLs      []string // Request patterns to block, e.g. "*.png"
}

// DefaultConfig returns sensible default browser settings
func DefaultConfig() Config {
	return Config{
		Headless:         true,
		Timeout:          30 * time.Second,
		NavigateAttempts: 1,
		UserAgent:        "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		WindowWidth:      1440,
		WindowHeight:     900,
	}
}

// New starts Chrome and opens the tab every operation will use
func New(cfg Config, log zerolog.Logger) (*Browser, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.NavigateAttempts == 0 {
		cfg.NavigateAttempts = 1
	}

	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.DisableGPU,
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	b := &Browser{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		ctx:         ctx,
		cancel:      cancel,
		config:      cfg,
		log:         log.With().Str("component", "browser").Logger(),
		requests:    make(map[network.RequestID]string),
	}
	b.eval = b.evaluate

	b.listen()

	if err := chromedp.Run(ctx, setupActions(cfg)...); err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	return b, nil
}

// setupActions enables network events and applies the URL block list
func setupActions(cfg Config) []chromedp.Action {
	setup := []chromedp.Action{network.Enable()}
	if len(cfg.BlockedURLs) > 0 {
		setup = append(setup, network.SetBlockedURLS(cfg.BlockedURLs))
	}
	return setup
}

// Close cleans up browser resources
func (b *Browser) Close() {
	if b.cancel != nil {
		b.cancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
}

// op runs fn under the per-operation timeout. The context handed to fn
// carries the chromedp tab and is also cancelled when ctx is.
func (b *Browser) op(ctx context.Context, name string, fn func(context.Context) error) error {
	opCtx, cancel := context.WithTimeout(b.ctx, b.config.Timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := fn(opCtx)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(opCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w after %s", name, ErrNavigationTimeout, b.config.Timeout)
	}
	return fmt.Errorf("%s: %w", name, err)
}

// Navigate loads url, waits for the content frame to settle and clears any
// overlays. Failed attempts are retried up to NavigateAttempts times.
func (b *Browser) Navigate(ctx context.Context, url string) error {
	start := time.Now()
	err := retry.Do(
		func() error {
			return b.op(ctx, "navigate "+url, func(opCtx context.Context) error {
				if err := chromedp.Run(opCtx, chromedp.Navigate(url)); err != nil {
					return err
				}
				return b.settle(opCtx)
			})
		},
		retry.Attempts(b.config.NavigateAttempts),
		retry.Context(ctx),
		retry.Delay(time.Second),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, context.Canceled)
		}),
		retry.OnRetry(func(n uint, err error) {
			b.log.Warn().Err(err).Uint("attempt", n+1).Str("url", url).Msg("navigation failed, retrying")
		}),
	)
	if err != nil {
		return err
	}
	b.log.Info().Msgf("navigated to %q in %.2fs", url, time.Since(start).Seconds())
	return nil
}

// settle waits for the content frame and clears overlays
func (b *Browser) settle(ctx context.Context) error {
	if err := b.poll(ctx, b.script(jsFrameReady)); err != nil {
		return err
	}
	return b.dismissOverlays(ctx)
}

// URL returns the top-level document address
func (b *Browser) URL(ctx context.Context) (string, error) {
	var url string
	err := b.op(ctx, "read url", func(opCtx context.Context) error {
		return chromedp.Run(opCtx, chromedp.Location(&url))
	})
	return url, err
}

// HTML returns a snapshot of the content frame, or of the top document when
// no frame is loaded.
func (b *Browser) HTML(ctx context.Context) (string, error) {
	var html string
	err := b.op(ctx, "read html", func(opCtx context.Context) error {
		return b.eval(opCtx, b.script(jsOuterHTML), &html)
	})
	return html, err
}

// Screenshot captures the page into ScreenshotDir. It returns an empty path
// when screenshots are disabled.
func (b *Browser) Screenshot(ctx context.Context, name string) (string, error) {
	if b.config.ScreenshotDir == "" {
		return "", nil
	}

	var buf []byte
	err := b.op(ctx, "screenshot", func(opCtx context.Context) error {
		return chromedp.Run(opCtx, chromedp.FullScreenshot(&buf, 90))
	})
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(b.config.ScreenshotDir, 0755); err != nil {
		return "", err
	}
	filename := fmt.Sprintf("%s_%s.png", name, time.Now().Format("20060102_150405"))
	path := filepath.Join(b.config.ScreenshotDir, filename)
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return "", err
	}
	return path, nil
}

func (b *Browser) evaluate(ctx context.Context, js string, res any) error {
	return chromedp.Run(ctx, chromedp.Evaluate(js, res))
}
