package capture

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	appLog "apptcal/internal/log"
	"apptcal/internal/model"
)

const (
	DefaultWidth      = 1280
	DefaultHeight     = 960
	DefaultTimeoutSec = 30

	readySelector = `[data-ready="true"]`
)

// ViewOptions selects the calendar view to snapshot.
type ViewOptions struct {
	// BaseURL is the front-end root, e.g. "http://127.0.0.1:3000".
	BaseURL string
	// Date is the focus date; zero means the front-end's default.
	Date time.Time
	// View is the grid mode; empty means the front-end's default.
	View model.ViewMode

	// OutputPath is where the PNG is written.
	OutputPath string

	// Width and Height are the viewport size in pixels. If zero,
	// DefaultWidth / DefaultHeight are used.
	Width  int
	Height int

	// Timeout bounds the whole capture. If zero, DefaultTimeoutSec applies.
	Timeout time.Duration
}

// ViewURL is the calendar page URL carrying the date and view parameters
// the front-end navigates to on load.
func ViewURL(base string, date time.Time, view model.ViewMode) (string, error) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return "", errors.New("capture: base URL is required")
	}
	u, err := url.Parse(base + "/calendar")
	if err != nil {
		return "", fmt.Errorf("capture: base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("capture: base URL %q must be http(s)", base)
	}
	q := u.Query()
	if !date.IsZero() {
		q.Set("date", date.Format(model.DateLayout))
	}
	if view != "" {
		q.Set("view", string(view))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// CaptureView opens the calendar page in headless Chromium, waits for the
// page to mark itself ready with data-ready="true" (set once events have
// loaded and the URL view was applied), and writes a full-page PNG.
func CaptureView(parentCtx context.Context, opts ViewOptions) error {
	target, err := ViewURL(opts.BaseURL, opts.Date, opts.View)
	if err != nil {
		return err
	}
	if opts.OutputPath == "" {
		return errors.New("capture: OutputPath is required")
	}
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultHeight
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Duration(DefaultTimeoutSec) * time.Second
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()
	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	appLog.Info("capture start", "url", target, "width", opts.Width, "height", opts.Height)

	var png []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(target),
		chromedp.WaitVisible(readySelector, chromedp.ByQuery),
		// Let the all-day lane relayout settle before the screenshot.
		chromedp.Sleep(300 * time.Millisecond),
		chromedp.FullScreenshot(&png, 100),
	}
	if err := chromedp.Run(ctx, tasks); err != nil {
		return fmt.Errorf("capture: chromedp run failed: %w", err)
	}

	if dir := filepath.Dir(opts.OutputPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("capture: create output dir: %w", err)
		}
	}
	if err := os.WriteFile(opts.OutputPath, png, 0o644); err != nil {
		return fmt.Errorf("capture: failed to write PNG: %w", err)
	}
	appLog.Info("capture done", "path", opts.OutputPath, "bytes", len(png))
	return nil
}
