package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

// BrowserFetcher loads pages through headless Chrome, for sites whose
// article markup is assembled client-side.
type BrowserFetcher struct {
	timeout time.Duration
	ctxPool sync.Pool
}

func NewBrowserFetcher(timeout time.Duration) *BrowserFetcher {
	f := &BrowserFetcher{timeout: timeout}
	f.ctxPool.New = func() interface{} {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
		allocCtx, _ := chromedp.NewExecAllocator(context.Background(), opts...)
		return allocCtx
	}
	return f
}

func (f *BrowserFetcher) Get(ctx context.Context, rawURL string) ([]byte, error) {
	allocCtx := f.ctxPool.Get().(context.Context)
	defer f.ctxPool.Put(allocCtx)

	taskCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()
	taskCtx, cancelTimeout := context.WithTimeout(taskCtx, f.timeout)
	defer cancelTimeout()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	defer close(done)

	var htmlContent string
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(rawURL),
		chromedp.WaitVisible("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &htmlContent),
	)
	if err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}
	return []byte(htmlContent), nil
}
