package pdfjobs

import (
	"fmt"
	"strings"
)

// GenerateRequest renders a template with data into a PDF.
type GenerateRequest struct {
	ID       string         `json:"id,omitempty"`
	Template string         `json:"template"`
	Data     map[string]any `json:"data,omitempty"`
	Format   TemplateFormat `json:"format,omitempty"`
	Page     *PageSettings  `json:"page,omitempty"`
	FileName string         `json:"fileName,omitempty"`
}

// Validate checks the template and page settings.
func (r *GenerateRequest) Validate() error {
	if strings.TrimSpace(r.Template) == "" {
		return ErrEmptyTemplate
	}
	if err := r.Format.validate(); err != nil {
		return err
	}
	return r.Page.Validate()
}

// FillFormRequest sets AcroForm field values on a stored document.
type FillFormRequest struct {
	ID       string               `json:"id,omitempty"`
	FileID   string               `json:"fileId"`
	Fields   map[string]FormField `json:"fields"`
	FileName string               `json:"fileName,omitempty"`
}

// Validate checks the source file and the field names.
func (r *FillFormRequest) Validate() error {
	if err := validateFileID(r.FileID); err != nil {
		return err
	}
	if len(r.Fields) == 0 {
		return ErrNoFields
	}
	for name := range r.Fields {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: blank field name", ErrNoFields)
		}
	}
	return nil
}

// MergeDocument is one input of a merge with its optional page range.
type MergeDocument struct {
	FileID    string        `json:"fileId"`
	Selection PageSelection `json:"selection"`
}

// MergeRequest concatenates selected pages of several documents.
type MergeRequest struct {
	ID        string          `json:"id,omitempty"`
	Documents []MergeDocument `json:"documents"`
	FileName  string          `json:"fileName,omitempty"`
}

// Validate checks every document reference and selection.
func (r *MergeRequest) Validate() error {
	if len(r.Documents) == 0 {
		return ErrNoDocuments
	}
	for i, doc := range r.Documents {
		if err := validateFileID(doc.FileID); err != nil {
			return fmt.Errorf("document %d: %w", i, err)
		}
		if err := doc.Selection.Validate(); err != nil {
			return fmt.Errorf("document %d: %w", i, err)
		}
	}
	return nil
}

// SplitRequest cuts a document into chunks of Interval pages.
type SplitRequest struct {
	ID       string `json:"id,omitempty"`
	FileID   string `json:"fileId"`
	Interval int    `json:"interval"`
	FileName string `json:"fileName,omitempty"`
}

// Validate checks the source file and the interval.
func (r *SplitRequest) Validate() error {
	if err := validateFileID(r.FileID); err != nil {
		return err
	}
	if r.Interval <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidInterval, r.Interval)
	}
	return nil
}

// HeaderFooterRequest stamps a header and/or footer band on every page.
type HeaderFooterRequest struct {
	ID       string    `json:"id,omitempty"`
	FileID   string    `json:"fileId"`
	Header   *BandSpec `json:"header,omitempty"`
	Footer   *BandSpec `json:"footer,omitempty"`
	FileName string    `json:"fileName,omitempty"`
}

// Validate checks the source file and both bands.
func (r *HeaderFooterRequest) Validate() error {
	if err := validateFileID(r.FileID); err != nil {
		return err
	}
	if r.Header == nil && r.Footer == nil {
		return fmt.Errorf("%w: header or footer is required", ErrInvalidBand)
	}
	if err := r.Header.Validate(); err != nil {
		return fmt.Errorf("header: %w", err)
	}
	if err := r.Footer.Validate(); err != nil {
		return fmt.Errorf("footer: %w", err)
	}
	return nil
}

// ImageReplacement swaps the Index-th image stored on page PageIndex.
type ImageReplacement struct {
	PageIndex int    `json:"pageIndex"`
	Index     int    `json:"index"`
	FileID    string `json:"fileId"`
}

// ReplaceImagesRequest replaces existing embedded images.
type ReplaceImagesRequest struct {
	ID           string             `json:"id,omitempty"`
	FileID       string             `json:"fileId"`
	Replacements []ImageReplacement `json:"replacements"`
	FileName     string             `json:"fileName,omitempty"`
}

// Validate checks every replacement reference.
func (r *ReplaceImagesRequest) Validate() error {
	if err := validateFileID(r.FileID); err != nil {
		return err
	}
	if len(r.Replacements) == 0 {
		return ErrNoImages
	}
	for i, rep := range r.Replacements {
		if err := validateFileID(rep.FileID); err != nil {
			return fmt.Errorf("replacement %d: %w", i, err)
		}
		if rep.PageIndex < 0 || rep.Index < 0 {
			return fmt.Errorf("replacement %d: %w: negative index", i, ErrInvalidPlacement)
		}
	}
	return nil
}

// AddImagesRequest draws new images on top of existing pages.
type AddImagesRequest struct {
	ID       string           `json:"id,omitempty"`
	FileID   string           `json:"fileId"`
	Images   []ImagePlacement `json:"images"`
	FileName string           `json:"fileName,omitempty"`
}

// Validate checks every placement.
func (r *AddImagesRequest) Validate() error {
	if err := validateFileID(r.FileID); err != nil {
		return err
	}
	if len(r.Images) == 0 {
		return ErrNoImages
	}
	for i, img := range r.Images {
		if err := img.Validate(); err != nil {
			return fmt.Errorf("image %d: %w", i, err)
		}
	}
	return nil
}

// Validate checks the image reference and, unless FullPage, the rectangle.
func (p ImagePlacement) Validate() error {
	if err := validateFileID(p.FileID); err != nil {
		return err
	}
	if p.PageIndex < 0 {
		return fmt.Errorf("%w: negative page index %d", ErrInvalidPlacement, p.PageIndex)
	}
	if p.FullPage {
		return nil
	}
	if p.Width != nil && *p.Width <= 0 {
		return fmt.Errorf("%w: width must be positive", ErrInvalidPlacement)
	}
	if p.Height != nil && *p.Height <= 0 {
		return fmt.Errorf("%w: height must be positive", ErrInvalidPlacement)
	}
	return nil
}

func validateFileID(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrBlankFileID
	}
	return nil
}
