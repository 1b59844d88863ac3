package pdfjobs

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/alnah/go-pdfjobs/internal/fileutil"
	"github.com/alnah/go-pdfjobs/internal/process"
)

// PageRenderer turns HTML into files on disk. The caller owns the returned
// path and must delete it.
type PageRenderer interface {
	// RenderImage rasterizes html to a PNG of width x height points.
	RenderImage(ctx context.Context, html string, width, height float64) (string, error)
	// RenderPDF prints html to a PDF on the given paper.
	RenderPDF(ctx context.Context, html string, page *PageSettings) (string, error)
	Close() error
}

// Compile-time interface check
var _ PageRenderer = (*RodRenderer)(nil)

// DefaultRenderTimeout bounds a single page load.
const DefaultRenderTimeout = 30 * time.Second

// bandScale is the device scale factor used when rasterizing bands.
const bandScale = 2.0

// RodRenderer renders with headless Chrome via go-rod.
// Rod downloads Chromium on first use if none is found.
type RodRenderer struct {
	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
	timeout  time.Duration
	tempDir  string
}

// NewRodRenderer creates a renderer; the browser starts on first use.
// A non-positive timeout selects DefaultRenderTimeout.
func NewRodRenderer(timeout time.Duration, tempDir string) *RodRenderer {
	if timeout <= 0 {
		timeout = DefaultRenderTimeout
	}
	return &RodRenderer{timeout: timeout, tempDir: tempDir}
}

// ensureBrowser lazily launches and connects to the browser.
func (r *RodRenderer) ensureBrowser() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != nil {
		return r.browser, nil
	}

	l := launcher.New()

	// Use pre-installed browser if specified (Docker/containerized environments)
	if bin := os.Getenv("ROD_BROWSER_BIN"); bin != "" {
		l = l.Bin(bin)
	}

	// NoSandbox required for CI and containerized environments
	if os.Getenv("CI") == "true" || os.Getenv("ROD_BROWSER_BIN") != "" || os.Getenv("ROD_NO_SANDBOX") == "1" {
		l = l.NoSandbox(true)
	}

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrowserConnect, err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("%w: %v", ErrBrowserConnect, err)
	}
	r.browser = browser
	r.launcher = l
	return browser, nil
}

// Close shuts the browser down and kills any leftover child processes.
func (r *RodRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	if r.browser != nil {
		err = r.browser.Close()
		r.browser = nil
	}
	if r.launcher != nil {
		if pid := r.launcher.PID(); pid > 0 {
			_ = process.KillProcessGroup(pid)
		}
		r.launcher.Kill()
		r.launcher = nil
	}
	return err
}

// RenderImage loads html in a viewport of width x height CSS pixels
// (one per point) and captures a PNG at twice that density.
func (r *RodRenderer) RenderImage(ctx context.Context, html string, width, height float64) (string, error) {
	if width <= 0 || height <= 0 {
		return "", fmt.Errorf("%w: viewport %.1fx%.1f", ErrRender, width, height)
	}

	var png []byte
	err := r.withPage(ctx, html, func(page *rod.Page) error {
		shot, err := page.Screenshot(false, &proto.PageCaptureScreenshot{
			Format: proto.PageCaptureScreenshotFormatPng,
		})
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRender, err)
		}
		png = shot
		return nil
	}, &proto.EmulationSetDeviceMetricsOverride{
		Width:             int(math.Ceil(width)),
		Height:            int(math.Ceil(height)),
		DeviceScaleFactor: bandScale,
	})
	if err != nil {
		return "", err
	}

	path, _, err := fileutil.WriteTempFile(r.tempDir, png, "png")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRender, err)
	}
	return path, nil
}

// RenderPDF prints html with the given paper settings.
func (r *RodRenderer) RenderPDF(ctx context.Context, html string, page *PageSettings) (string, error) {
	if err := page.Validate(); err != nil {
		return "", err
	}

	var doc []byte
	err := r.withPage(ctx, html, func(p *rod.Page) error {
		reader, err := p.PDF(buildPDFOptions(page))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRender, err)
		}
		data, err := io.ReadAll(reader)
		if err != nil {
			return fmt.Errorf("%w: reading PDF stream: %v", ErrRender, err)
		}
		doc = data
		return nil
	}, nil)
	if err != nil {
		return "", err
	}

	path, _, err := fileutil.WriteTempFile(r.tempDir, doc, "pdf")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRender, err)
	}
	return path, nil
}

// withPage writes html to a temp file, opens it in a fresh tab sized by
// viewport (when non-nil), waits for load and runs fn.
func (r *RodRenderer) withPage(ctx context.Context, html string, fn func(*rod.Page) error, viewport *proto.EmulationSetDeviceMetricsOverride) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	htmlPath, cleanup, err := fileutil.WriteTempFile(r.tempDir, []byte(html), "html")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRender, err)
	}
	defer cleanup()

	browser, err := r.ensureBrowser()
	if err != nil {
		return err
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPageCreate, err)
	}
	defer func() { _ = page.Close() }()

	if viewport != nil {
		if err := page.SetViewport(viewport); err != nil {
			return fmt.Errorf("%w: %v", ErrPageCreate, err)
		}
	}

	// Wait for page to load with timeout from context or default
	timeout := r.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return context.DeadlineExceeded
		}
	}

	loader := page.Timeout(timeout)
	if err := loader.Navigate("file://" + htmlPath); err != nil {
		return fmt.Errorf("%w: %v", ErrPageLoad, err)
	}
	if err := loader.WaitLoad(); err != nil {
		return fmt.Errorf("%w: %v", ErrPageLoad, err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(page)
}

// buildPDFOptions converts page settings into Chrome print options.
func buildPDFOptions(page *PageSettings) *proto.PagePrintToPDF {
	if page == nil {
		page = DefaultPageSettings()
	}
	w, h := page.paperInches()
	return &proto.PagePrintToPDF{
		PaperWidth:      floatPtr(w),
		PaperHeight:     floatPtr(h),
		MarginTop:       floatPtr(page.Margin),
		MarginBottom:    floatPtr(page.Margin),
		MarginLeft:      floatPtr(page.Margin),
		MarginRight:     floatPtr(page.Margin),
		PrintBackground: true,
	}
}

// floatPtr returns a pointer to a float64 value.
func floatPtr(v float64) *float64 {
	return &v
}
