package pdfjobs

import "errors"

// Sentinel errors for library operations.
var (
	// Request validation errors. Returned synchronously, never enter the pipeline.
	ErrEmptyTemplate    = errors.New("template cannot be empty")
	ErrBlankFileID      = errors.New("file id cannot be blank")
	ErrInvalidInterval  = errors.New("split interval must be positive")
	ErrInvalidPageRange = errors.New("invalid page range")
	ErrNoDocuments      = errors.New("at least one document is required")
	ErrNoImages         = errors.New("at least one image is required")
	ErrInvalidBand      = errors.New("invalid header/footer band")
	ErrInvalidPlacement = errors.New("invalid image placement")
	ErrNoFields         = errors.New("at least one form field is required")

	// Template errors. Returned synchronously before queuing.
	ErrTemplateSyntax = errors.New("failed to parse template")
	ErrTemplateIO     = errors.New("failed to render template")

	// Compositor errors. Reported through the terminal event.
	ErrReadDocument    = errors.New("failed to read PDF document")
	ErrWriteDocument   = errors.New("failed to write PDF document")
	ErrCorruptOutput   = errors.New("produced PDF failed verification")
	ErrEmptySelection  = errors.New("page selection matches no pages")
	ErrPageOutOfRange  = errors.New("page index out of range")
	ErrImageNotFound   = errors.New("image not found")
	ErrUnsupportedFile = errors.New("unsupported image format")

	// Renderer errors.
	ErrBrowserConnect = errors.New("failed to connect to browser")
	ErrPageCreate     = errors.New("failed to create browser page")
	ErrPageLoad       = errors.New("failed to load page")
	ErrRender         = errors.New("page rendering failed")

	// Pipeline errors.
	ErrUpload       = errors.New("failed to upload result")
	ErrDownload     = errors.New("failed to download file")
	ErrPoolClosed   = errors.New("worker pool is closed")
	ErrNoRenderer   = errors.New("no page renderer configured")
	ErrInvalidPage  = errors.New("invalid page settings")
	ErrUnknownInput = errors.New("unknown job payload")
)

// IsValidation reports whether err belongs to the synchronous validation
// or template classes, the errors a caller gets back instead of an event.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrEmptyTemplate, ErrBlankFileID, ErrInvalidInterval, ErrInvalidPageRange,
		ErrNoDocuments, ErrNoImages, ErrInvalidBand, ErrInvalidPlacement, ErrNoFields,
		ErrInvalidPage, ErrTemplateSyntax, ErrTemplateIO,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
