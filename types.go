package pdfjobs

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Operation names a pipeline request kind.
type Operation string

// Supported operations.
const (
	OpGenerate      Operation = "generate"
	OpFillForm      Operation = "fillForm"
	OpMerge         Operation = "merge"
	OpSplit         Operation = "split"
	OpHeaderFooter  Operation = "headerFooter"
	OpReplaceImages Operation = "replaceImages"
	OpAddImages     Operation = "addImages"
)

// Status is the outcome carried by acknowledgements and results.
type Status string

// Result statuses.
const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Page size constants.
const (
	PageSizeLetter = "letter"
	PageSizeA4     = "a4"
	PageSizeLegal  = "legal"
)

// Orientation constants.
const (
	OrientationPortrait  = "portrait"
	OrientationLandscape = "landscape"
)

// Margin bounds in inches.
const (
	MinMargin     = 0.0
	MaxMargin     = 3.0
	DefaultMargin = 0.5
)

// PageSettings configures the paper used when a template is printed.
type PageSettings struct {
	Size        string  `json:"size,omitempty"`        // "letter", "a4", "legal"
	Orientation string  `json:"orientation,omitempty"` // "portrait", "landscape"
	Margin      float64 `json:"margin,omitempty"`      // inches, applied to all sides
}

// DefaultPageSettings returns A4 portrait with half-inch margins.
func DefaultPageSettings() *PageSettings {
	return &PageSettings{
		Size:        PageSizeA4,
		Orientation: OrientationPortrait,
		Margin:      DefaultMargin,
	}
}

// Validate checks that page settings are valid.
// Returns nil if p is nil (nil means use defaults).
func (p *PageSettings) Validate() error {
	if p == nil {
		return nil
	}
	switch strings.ToLower(p.Size) {
	case "", PageSizeLetter, PageSizeA4, PageSizeLegal:
	default:
		return fmt.Errorf("%w: unknown size %q", ErrInvalidPage, p.Size)
	}
	switch strings.ToLower(p.Orientation) {
	case "", OrientationPortrait, OrientationLandscape:
	default:
		return fmt.Errorf("%w: unknown orientation %q", ErrInvalidPage, p.Orientation)
	}
	if p.Margin < MinMargin || p.Margin > MaxMargin {
		return fmt.Errorf("%w: margin %.2f (must be between %.2f and %.2f)", ErrInvalidPage, p.Margin, MinMargin, MaxMargin)
	}
	return nil
}

// paperInches returns the paper width and height in inches after orientation.
func (p *PageSettings) paperInches() (w, h float64) {
	size, orientation := PageSizeA4, OrientationPortrait
	if p != nil {
		if p.Size != "" {
			size = strings.ToLower(p.Size)
		}
		if p.Orientation != "" {
			orientation = strings.ToLower(p.Orientation)
		}
	}
	switch size {
	case PageSizeLetter:
		w, h = 8.5, 11
	case PageSizeLegal:
		w, h = 8.5, 14
	default:
		w, h = 8.27, 11.69
	}
	if orientation == OrientationLandscape {
		w, h = h, w
	}
	return w, h
}

// PageSelection is an optional 1-based inclusive page range.
// A nil bound means "from the first page" or "to the last page".
type PageSelection struct {
	Start *int `json:"start,omitempty"`
	End   *int `json:"end,omitempty"`
}

// FormField is the value assigned to a named AcroForm field.
type FormField struct {
	Value    string `json:"value"`
	ReadOnly bool   `json:"readOnly,omitempty"`
}

// ImagePlacement positions an image on a page, in PDF points from the
// bottom-left corner. FullPage ignores the rectangle and covers the page.
type ImagePlacement struct {
	PageIndex int      `json:"pageIndex"`
	FileID    string   `json:"fileId"`
	X         *float64 `json:"x,omitempty"`
	Y         *float64 `json:"y,omitempty"`
	Width     *float64 `json:"width,omitempty"`
	Height    *float64 `json:"height,omitempty"`
	FullPage  bool     `json:"fullPage,omitempty"`
}

// BandSpec describes a header or footer band. Exactly one of ImageFileID
// or HTML is set. HTML is expanded with Data before rendering.
type BandSpec struct {
	ImageFileID string         `json:"imageFileId,omitempty"`
	HTML        string         `json:"html,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	Height      float64        `json:"height"`
}

// Validate checks the band source and height.
// Returns nil if b is nil (nil means no band).
func (b *BandSpec) Validate() error {
	if b == nil {
		return nil
	}
	hasImage := strings.TrimSpace(b.ImageFileID) != ""
	hasHTML := strings.TrimSpace(b.HTML) != ""
	if hasImage == hasHTML {
		return fmt.Errorf("%w: exactly one of imageFileId or html is required", ErrInvalidBand)
	}
	if b.Height <= 0 {
		return fmt.Errorf("%w: height must be positive, got %.2f", ErrInvalidBand, b.Height)
	}
	return nil
}

// FileRef identifies a file uploaded to the binary store.
type FileRef struct {
	FileID      string `json:"fileId"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// FileMeta describes a file downloaded from the binary store.
type FileMeta struct {
	FileID      string `json:"fileId"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// Result is the terminal outcome of a job.
// On success exactly one of File or Files is set and Message is nil
// (encoded as null); on error Message is set.
type Result struct {
	Status  Status    `json:"status"`
	File    *FileRef  `json:"file"`
	Files   []FileRef `json:"files,omitempty"`
	Message *string   `json:"message"`
}

// ErrorMessage returns the failure message, or "" for a successful result.
func (r Result) ErrorMessage() string {
	if r.Message == nil {
		return ""
	}
	return *r.Message
}

// Ack is the synchronous acknowledgement returned by the async operations.
type Ack struct {
	RequestID string `json:"requestId"`
	Status    Status `json:"status"`
}

// okResult wraps a single uploaded file.
func okResult(ref FileRef) Result {
	return Result{Status: StatusOK, File: &ref}
}

// okFilesResult wraps the ordered files of a split.
func okFilesResult(refs []FileRef) Result {
	return Result{Status: StatusOK, Files: refs}
}

// errorResult converts a job failure into a terminal result.
func errorResult(err error) Result {
	msg := err.Error()
	return Result{Status: StatusError, Message: &msg}
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// pipelineConfig holds internal configuration for Pipeline.
type pipelineConfig struct {
	workers          int
	drainInterval    time.Duration
	uploadRetryDelay time.Duration
	localizeImages   bool
	tempDir          string
}

// Defaults used when no option overrides them.
const (
	DefaultWorkers          = 3
	DefaultDrainInterval    = 3 * time.Second
	DefaultUploadRetryDelay = 500 * time.Millisecond
)

// WithWorkers sets the worker pool size.
// Panics if n <= 0 (programmer error, similar to time.NewTicker).
func WithWorkers(n int) Option {
	if n <= 0 {
		panic("pdfjobs: WithWorkers count must be positive")
	}
	return func(p *Pipeline) {
		p.cfg.workers = n
	}
}

// WithDrainInterval sets how often the template queue is drained.
// Panics if d <= 0.
func WithDrainInterval(d time.Duration) Option {
	if d <= 0 {
		panic("pdfjobs: WithDrainInterval duration must be positive")
	}
	return func(p *Pipeline) {
		p.cfg.drainInterval = d
	}
}

// WithUploadRetryDelay sets the pause before the second upload attempt.
// Panics if d < 0.
func WithUploadRetryDelay(d time.Duration) Option {
	if d < 0 {
		panic("pdfjobs: WithUploadRetryDelay duration cannot be negative")
	}
	return func(p *Pipeline) {
		p.cfg.uploadRetryDelay = d
	}
}

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithEventSink sets where terminal results are published.
func WithEventSink(sink EventSink) Option {
	return func(p *Pipeline) {
		if sink != nil {
			p.sink = sink
		}
	}
}

// WithTemplateRenderer replaces the html/template based renderer.
func WithTemplateRenderer(t TemplateRenderer) Option {
	return func(p *Pipeline) {
		if t != nil {
			p.templates = t
		}
	}
}

// WithImageLocalization makes generate requests download remote images
// referenced by the expanded HTML before queuing.
func WithImageLocalization(enabled bool) Option {
	return func(p *Pipeline) {
		p.cfg.localizeImages = enabled
	}
}

// WithTempDir sets the parent directory of per-job workspaces.
// Empty means the system temp directory.
func WithTempDir(dir string) Option {
	return func(p *Pipeline) {
		p.cfg.tempDir = dir
	}
}
