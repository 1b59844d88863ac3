package pdfjobs

import (
	"context"
	"fmt"
	"os"
)

// MergeInput is one document of a merge with the pages to keep.
type MergeInput struct {
	Document  []byte
	Selection PageSelection
}

// Band is a resolved header or footer: raw image bytes or expanded HTML.
type Band struct {
	Image  []byte
	HTML   string
	Height float64
}

// PlacedImage pairs raw image bytes with where to draw them.
type PlacedImage struct {
	Image     []byte
	Placement ImagePlacement
}

// Replacement swaps the Index-th stored image of page PageIndex (both 0-based).
type Replacement struct {
	PageIndex int
	Index     int
	Image     []byte
}

// Compositor performs structural edits on in-memory PDF documents.
// Every produced document is re-read and its page count checked before
// it is returned. It is safe for concurrent use.
type Compositor struct {
	engine   pdfEngine
	renderer PageRenderer
	verify   func(doc []byte, pages int) error
}

// NewCompositor creates a Compositor backed by pdfcpu. The renderer is used
// for HTML bands and may be nil when no band is ever given as HTML.
func NewCompositor(renderer PageRenderer) *Compositor {
	return &Compositor{
		engine:   newPDFCPUEngine(),
		renderer: renderer,
		verify:   verifyDocument,
	}
}

// PageCount returns the number of pages in doc.
func (c *Compositor) PageCount(doc []byte) (int, error) {
	sizes, err := c.engine.PageSizes(doc)
	if err != nil {
		return 0, err
	}
	return len(sizes), nil
}

// Merge concatenates the selected pages of each input, in input order.
func (c *Compositor) Merge(ctx context.Context, inputs []MergeInput) ([]byte, error) {
	if len(inputs) == 0 {
		return nil, ErrNoDocuments
	}

	parts := make([][]byte, 0, len(inputs))
	total := 0
	for i, in := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := in.Selection.Validate(); err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		sizes, err := c.engine.PageSizes(in.Document)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		pages := in.Selection.Pages(len(sizes))
		if len(pages) == 0 {
			// Contributes nothing; only an empty total is an error.
			continue
		}

		part := in.Document
		if len(pages) != len(sizes) {
			if part, err = c.engine.ExtractPages(in.Document, pages); err != nil {
				return nil, fmt.Errorf("document %d: %w", i, err)
			}
		}
		parts = append(parts, part)
		total += len(pages)
	}

	if total == 0 {
		return nil, fmt.Errorf("%w: no document contributes a page", ErrEmptySelection)
	}

	out := parts[0]
	if len(parts) > 1 {
		var err error
		if out, err = c.engine.Merge(parts); err != nil {
			return nil, err
		}
	}
	if err := c.verify(out, total); err != nil {
		return nil, err
	}
	return out, nil
}

// Split cuts doc into consecutive chunks of interval pages; the last chunk
// holds the remainder.
func (c *Compositor) Split(ctx context.Context, doc []byte, interval int) ([][]byte, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidInterval, interval)
	}
	total, err := c.PageCount(doc)
	if err != nil {
		return nil, err
	}
	ranges := splitRanges(total, interval)
	if len(ranges) == 0 {
		return nil, fmt.Errorf("%w: document has no pages", ErrEmptySelection)
	}

	chunks := make([][]byte, 0, len(ranges))
	for _, r := range ranges {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunk := doc
		if len(ranges) > 1 {
			if chunk, err = c.engine.ExtractPages(doc, r.pages()); err != nil {
				return nil, fmt.Errorf("pages %d-%d: %w", r.From, r.Thru, err)
			}
		}
		if err := c.verify(chunk, r.Thru-r.From+1); err != nil {
			return nil, fmt.Errorf("pages %d-%d: %w", r.From, r.Thru, err)
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// OverlayBands stamps the header at the top and the footer at the bottom of
// every page. Each band spans the full page width at its fixed height and
// is drawn over existing content; nothing outside the bands changes.
func (c *Compositor) OverlayBands(ctx context.Context, doc []byte, header, footer *Band) ([]byte, error) {
	sizes, err := c.engine.PageSizes(doc)
	if err != nil {
		return nil, err
	}

	headers := newBandCache(c, header)
	footers := newBandCache(c, footer)
	stamps := make(map[int][]stamp, len(sizes))
	for i, size := range sizes {
		page := i + 1
		if err := header.fits(size); err != nil {
			return nil, fmt.Errorf("header on page %d: %w", page, err)
		}
		if err := footer.fits(size); err != nil {
			return nil, fmt.Errorf("footer on page %d: %w", page, err)
		}
		if header != nil {
			img, err := headers.imageFor(ctx, size.Width)
			if err != nil {
				return nil, fmt.Errorf("header: %w", err)
			}
			stamps[page] = append(stamps[page], stamp{Image: img, Rect: headerRect(size, header.Height)})
		}
		if footer != nil {
			img, err := footers.imageFor(ctx, size.Width)
			if err != nil {
				return nil, fmt.Errorf("footer: %w", err)
			}
			stamps[page] = append(stamps[page], stamp{Image: img, Rect: footerRect(size, footer.Height)})
		}
	}
	if len(stamps) == 0 {
		return doc, nil
	}

	out, err := c.engine.Stamp(doc, stamps)
	if err != nil {
		return nil, err
	}
	if err := c.verify(out, len(sizes)); err != nil {
		return nil, err
	}
	return out, nil
}

// fits checks that a band's height lies in (0, page height]. A nil band
// always fits.
func (b *Band) fits(size PageSize) error {
	if b == nil {
		return nil
	}
	if b.Height <= 0 || b.Height > size.Height {
		return fmt.Errorf("%w: height %.2f outside (0, %.2f]", ErrInvalidBand, b.Height, size.Height)
	}
	return nil
}

// bandCache renders a band once per distinct page width.
type bandCache struct {
	c       *Compositor
	band    *Band
	source  *rasterImage
	byWidth map[float64]rasterImage
}

func newBandCache(c *Compositor, band *Band) *bandCache {
	return &bandCache{c: c, band: band, byWidth: make(map[float64]rasterImage)}
}

func (b *bandCache) imageFor(ctx context.Context, width float64) (rasterImage, error) {
	if img, ok := b.byWidth[width]; ok {
		return img, nil
	}

	var img rasterImage
	var err error
	if b.band.HTML != "" {
		img, err = b.c.renderBand(ctx, b.band.HTML, width, b.band.Height)
	} else {
		if b.source == nil {
			src, loadErr := loadImage(b.band.Image)
			if loadErr != nil {
				return rasterImage{}, loadErr
			}
			b.source = &src
		}
		img = *b.source
	}
	if err != nil {
		return rasterImage{}, err
	}
	if img, err = img.fitAspect(width, b.band.Height); err != nil {
		return rasterImage{}, err
	}
	b.byWidth[width] = img
	return img, nil
}

// renderBand rasterizes HTML at the band size and removes the rendered file.
func (c *Compositor) renderBand(ctx context.Context, html string, width, height float64) (rasterImage, error) {
	if c.renderer == nil {
		return rasterImage{}, ErrNoRenderer
	}
	path, err := c.renderer.RenderImage(ctx, html, width, height)
	if err != nil {
		return rasterImage{}, err
	}
	defer func() { _ = os.Remove(path) }()

	data, err := os.ReadFile(path) // #nosec G304 -- path returned by our renderer
	if err != nil {
		return rasterImage{}, fmt.Errorf("%w: reading rendered band: %v", ErrRender, err)
	}
	return loadImage(data)
}

// AddImages draws each image on top of its target page. Full-page images
// cover the page keeping their aspect ratio; others fill their rectangle.
func (c *Compositor) AddImages(ctx context.Context, doc []byte, images []PlacedImage) ([]byte, error) {
	if len(images) == 0 {
		return nil, ErrNoImages
	}
	sizes, err := c.engine.PageSizes(doc)
	if err != nil {
		return nil, err
	}

	stamps := make(map[int][]stamp)
	for i, im := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		idx := im.Placement.PageIndex
		if idx < 0 || idx >= len(sizes) {
			return nil, fmt.Errorf("image %d: %w: page index %d, document has %d pages", i, ErrPageOutOfRange, idx, len(sizes))
		}
		img, err := loadImage(im.Image)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}

		var rect Rect
		if im.Placement.FullPage {
			rect = coverRect(sizes[idx], float64(img.width), float64(img.height))
		} else {
			rect = placementRect(im.Placement)
			if img, err = img.fitAspect(rect.Width, rect.Height); err != nil {
				return nil, fmt.Errorf("image %d: %w", i, err)
			}
		}
		stamps[idx+1] = append(stamps[idx+1], stamp{Image: img, Rect: rect})
	}

	out, err := c.engine.Stamp(doc, stamps)
	if err != nil {
		return nil, err
	}
	if err := c.verify(out, len(sizes)); err != nil {
		return nil, err
	}
	return out, nil
}

// ReplaceImages swaps stored images by index. All targets are resolved
// before the first edit, so an index that does not exist leaves the
// document untouched.
func (c *Compositor) ReplaceImages(ctx context.Context, doc []byte, reps []Replacement) ([]byte, error) {
	if len(reps) == 0 {
		return nil, ErrNoImages
	}
	sizes, err := c.engine.PageSizes(doc)
	if err != nil {
		return nil, err
	}

	targets := make([]embeddedImage, len(reps))
	images := make([]rasterImage, len(reps))
	for i, rep := range reps {
		if rep.PageIndex < 0 || rep.PageIndex >= len(sizes) {
			return nil, fmt.Errorf("replacement %d: %w: page index %d, document has %d pages", i, ErrPageOutOfRange, rep.PageIndex, len(sizes))
		}
		stored, err := c.engine.Images(doc, rep.PageIndex+1)
		if err != nil {
			return nil, err
		}
		if rep.Index < 0 || rep.Index >= len(stored) {
			return nil, fmt.Errorf("replacement %d: %w: index %d on page %d (page has %d images)",
				i, ErrImageNotFound, rep.Index, rep.PageIndex, len(stored))
		}
		targets[i] = stored[rep.Index]
		img, err := loadImage(rep.Image)
		if err != nil {
			return nil, fmt.Errorf("replacement %d: %w", i, err)
		}
		// The stored XObject keeps its pixel size, so the new image must match it.
		if images[i], err = img.resize(targets[i].Width, targets[i].Height); err != nil {
			return nil, fmt.Errorf("replacement %d: %w", i, err)
		}
	}

	out := doc
	for i := range reps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if out, err = c.engine.ReplaceImage(out, targets[i], images[i].data); err != nil {
			return nil, fmt.Errorf("replacement %d: %w", i, err)
		}
	}
	if err := c.verify(out, len(sizes)); err != nil {
		return nil, err
	}
	return out, nil
}

// FillForm assigns values to named form fields.
func (c *Compositor) FillForm(ctx context.Context, doc []byte, fields map[string]FormField) ([]byte, error) {
	if len(fields) == 0 {
		return nil, ErrNoFields
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	total, err := c.PageCount(doc)
	if err != nil {
		return nil, err
	}
	out, err := c.engine.FillForm(doc, fields)
	if err != nil {
		return nil, err
	}
	if err := c.verify(out, total); err != nil {
		return nil, err
	}
	return out, nil
}
