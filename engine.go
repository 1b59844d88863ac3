package pdfjobs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// pdfEngine abstracts low-level PDF manipulation to allow testing the
// compositor without real documents. Page numbers are 1-based.
type pdfEngine interface {
	PageSizes(doc []byte) ([]PageSize, error)
	ExtractPages(doc []byte, pages []int) ([]byte, error)
	Merge(docs [][]byte) ([]byte, error)
	Stamp(doc []byte, stamps map[int][]stamp) ([]byte, error)
	Images(doc []byte, page int) ([]embeddedImage, error)
	ReplaceImage(doc []byte, target embeddedImage, img []byte) ([]byte, error)
	FillForm(doc []byte, fields map[string]FormField) ([]byte, error)
}

// Compile-time interface check
var _ pdfEngine = (*pdfcpuEngine)(nil)

// stamp draws an image on top of a page. The image must already have the
// aspect ratio of Rect; it is scaled uniformly to Rect.Width.
type stamp struct {
	Image rasterImage
	Rect  Rect
}

// embeddedImage identifies an image XObject referenced by a page.
type embeddedImage struct {
	ObjNr  int
	Page   int
	Name   string
	Width  int
	Height int
}

var disableConfigDir sync.Once

// pdfcpuEngine implements pdfEngine with pdfcpu's in-memory API.
type pdfcpuEngine struct {
	conf *model.Configuration
}

// newPDFCPUEngine creates an engine with relaxed validation. Output uses a
// classic xref table so any reader can verify it.
func newPDFCPUEngine() *pdfcpuEngine {
	disableConfigDir.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	conf.WriteObjectStream = false
	conf.WriteXRefStream = false
	return &pdfcpuEngine{conf: conf}
}

func (e *pdfcpuEngine) PageSizes(doc []byte) ([]PageSize, error) {
	dims, err := api.PageDims(bytes.NewReader(doc), e.conf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadDocument, err)
	}
	sizes := make([]PageSize, len(dims))
	for i, d := range dims {
		sizes[i] = PageSize{Width: d.Width, Height: d.Height}
	}
	return sizes, nil
}

func (e *pdfcpuEngine) ExtractPages(doc []byte, pages []int) ([]byte, error) {
	if len(pages) == 0 {
		return nil, ErrEmptySelection
	}
	selected := make([]string, len(pages))
	for i, p := range pages {
		selected[i] = strconv.Itoa(p)
	}
	return e.write(func(w io.Writer) error {
		return api.Trim(bytes.NewReader(doc), w, selected, e.conf)
	})
}

func (e *pdfcpuEngine) Merge(docs [][]byte) ([]byte, error) {
	readers := make([]io.ReadSeeker, len(docs))
	for i, d := range docs {
		readers[i] = bytes.NewReader(d)
	}
	return e.write(func(w io.Writer) error {
		return api.MergeRaw(readers, w, false, e.conf)
	})
}

func (e *pdfcpuEngine) Stamp(doc []byte, stamps map[int][]stamp) ([]byte, error) {
	watermarks := make(map[int][]*model.Watermark, len(stamps))
	for page, list := range stamps {
		for _, s := range list {
			wm, err := api.ImageWatermarkForReader(bytes.NewReader(s.Image.data), s.description(), true, false, types.POINTS)
			if err != nil {
				return nil, fmt.Errorf("%w: preparing image for page %d: %v", ErrWriteDocument, page, err)
			}
			watermarks[page] = append(watermarks[page], wm)
		}
	}
	return e.write(func(w io.Writer) error {
		return api.AddWatermarksSliceMap(bytes.NewReader(doc), w, watermarks, e.conf)
	})
}

// description renders the stamp as a pdfcpu watermark description anchored
// bottom-left, so the offset is the rectangle origin.
func (s stamp) description() string {
	return fmt.Sprintf("position:bl, offset:%.4f %.4f, scalefactor:%.6f abs, rotation:0, opacity:1",
		s.Rect.X, s.Rect.Y, s.Image.scaleFor(s.Rect.Width))
}

// Images lists the page's images sorted by object number, the order they
// were stored in the file.
func (e *pdfcpuEngine) Images(doc []byte, page int) ([]embeddedImage, error) {
	pages, err := api.Images(bytes.NewReader(doc), []string{strconv.Itoa(page)}, e.conf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadDocument, err)
	}
	var found []embeddedImage
	for _, m := range pages {
		for objNr, img := range m {
			found = append(found, embeddedImage{
				ObjNr:  objNr,
				Page:   page,
				Name:   img.Name,
				Width:  img.Width,
				Height: img.Height,
			})
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].ObjNr < found[j].ObjNr })
	return found, nil
}

func (e *pdfcpuEngine) ReplaceImage(doc []byte, target embeddedImage, img []byte) ([]byte, error) {
	return e.write(func(w io.Writer) error {
		return api.UpdateImages(bytes.NewReader(doc), bytes.NewReader(img), w, target.ObjNr, 0, "", e.conf)
	})
}

// formJSON is the subset of pdfcpu's form fill document we produce.
type formJSON struct {
	Forms []formGroupJSON `json:"forms"`
}

type formGroupJSON struct {
	TextFields []textFieldJSON `json:"textfield"`
}

type textFieldJSON struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Locked bool   `json:"locked"`
}

func (e *pdfcpuEngine) FillForm(doc []byte, fields map[string]FormField) ([]byte, error) {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	group := formGroupJSON{TextFields: make([]textFieldJSON, 0, len(names))}
	for _, name := range names {
		f := fields[name]
		group.TextFields = append(group.TextFields, textFieldJSON{Name: name, Value: f.Value, Locked: f.ReadOnly})
	}
	payload, err := json.Marshal(formJSON{Forms: []formGroupJSON{group}})
	if err != nil {
		return nil, fmt.Errorf("encoding form values: %w", err)
	}
	return e.write(func(w io.Writer) error {
		return api.FillForm(bytes.NewReader(doc), bytes.NewReader(payload), w, e.conf)
	})
}

// write runs op against a buffer and classifies its failure.
func (e *pdfcpuEngine) write(op func(w io.Writer) error) ([]byte, error) {
	var buf bytes.Buffer
	if err := op(&buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWriteDocument, err)
	}
	return buf.Bytes(), nil
}
