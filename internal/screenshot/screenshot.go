// Package screenshot renders the complaint dashboard's trends chart with a
// headless browser.
package screenshot

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// chartSelector is the Highcharts container the dashboard draws the trends
// chart into. When it never appears (blocked script, layout change) the
// capture falls back to the full page so the caller still gets something to
// look at.
const chartSelector = "div.highcharts-container"

// Capturer owns a long-lived Chrome context; starting Chrome per capture is
// far more expensive than a navigation. Construct once, call Capture per
// URL, Close on shutdown.
type Capturer struct {
	allocCtx  context.Context
	cancelAll context.CancelFunc
	brCtx     context.Context
	cancelBr  context.CancelFunc

	DefaultTO time.Duration
}

// New starts a reusable headless browser sized for the dashboard layout.
func New(defaultTO time.Duration, userAgent string) (*Capturer, error) {
	if defaultTO <= 0 {
		defaultTO = 45 * time.Second
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.WindowSize(1600, 1000),
		chromedp.UserAgent(userAgent),
	)
	actx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	bctx, cancelBr := chromedp.NewContext(actx)

	return &Capturer{
		allocCtx:  actx,
		cancelAll: cancelAlloc,
		brCtx:     bctx,
		cancelBr:  cancelBr,
		DefaultTO: defaultTO,
	}, nil
}

// Close tears down Chrome resources.
func (c *Capturer) Close() {
	if c.cancelBr != nil {
		c.cancelBr()
	}
	if c.cancelAll != nil {
		c.cancelAll()
	}
}

// Capture navigates to target, waits for the chart to render, and returns a
// PNG of the chart element. Each capture runs in its own tab so a hung page
// cannot wedge the shared browser.
func (c *Capturer) Capture(ctx context.Context, target string) ([]byte, error) {
	if strings.TrimSpace(target) == "" {
		return nil, errors.New("invalid url")
	}

	tabCtx, cancelTab := chromedp.NewContext(c.brCtx)
	defer cancelTab()
	tabCtx, cancelTO := context.WithTimeout(tabCtx, c.DefaultTO)
	defer cancelTO()

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cancelTab()
		case <-stop:
		}
	}()
	defer close(stop)

	var png []byte
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.WaitVisible(chartSelector, chromedp.ByQuery),
		chromedp.Sleep(2*time.Second),
		chromedp.Screenshot(chartSelector, &png, chromedp.NodeVisible, chromedp.ByQuery),
	)
	if err == nil {
		return png, nil
	}

	// Chart never rendered; grab the whole page instead of failing.
	fallbackCtx, cancelFb := chromedp.NewContext(c.brCtx)
	defer cancelFb()
	fallbackCtx, cancelFbTO := context.WithTimeout(fallbackCtx, c.DefaultTO)
	defer cancelFbTO()

	if fbErr := chromedp.Run(fallbackCtx,
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(2*time.Second),
		chromedp.FullScreenshot(&png, 90),
	); fbErr != nil {
		return nil, err
	}
	return png, nil
}
