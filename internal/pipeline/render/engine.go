// internal/pipeline/render/engine.go
package render

import (
	"context"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// A4 paper in inches, margins 15/15/18/15 mm converted.
const (
	paperWidthIn   = 8.27
	paperHeightIn  = 11.69
	marginTopIn    = 0.59
	marginSideIn   = 0.59
	marginBottomIn = 0.71
)

// Engine drives one headless Chrome process shared by every render; each call
// opens a fresh tab so renders never share page state.
type Engine struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
}

func NewEngine(config *Config) *Engine {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
	)
	if config.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(config.ChromePath))
	}
	if config.DisableSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}

	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &Engine{allocCtx: allocCtx, allocCancel: cancel}
}

func (e *Engine) PrintPDF(ctx context.Context, html string) ([]byte, error) {
	tabCtx, cancel := chromedp.NewContext(e.allocCtx)
	defer cancel()

	// The tab context derives from the allocator, not the caller; forward the
	// caller's cancellation and deadline by hand.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-stop:
		}
	}()

	var pdf []byte
	err := chromedp.Run(tabCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frameTree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frameTree.Frame.ID, html).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(paperWidthIn).
				WithPaperHeight(paperHeightIn).
				WithMarginTop(marginTopIn).
				WithMarginBottom(marginBottomIn).
				WithMarginLeft(marginSideIn).
				WithMarginRight(marginSideIn).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = buf
			return nil
		}),
	)
	if err != nil {
		// Surface the caller's deadline as the cause when the tab died for it.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return pdf, nil
}

// Close tears down the shared browser allocator.
func (e *Engine) Close() {
	e.allocCancel()
}
