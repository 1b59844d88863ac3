package pdfjobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// ---------------------------------------------------------------------------
// Fake documents: JSON page lists understood by fakeEngine
// ---------------------------------------------------------------------------

type fakePage struct {
	Width  float64  `json:"w"`
	Height float64  `json:"h"`
	Label  string   `json:"label"`
	Stamps []Rect   `json:"stamps,omitempty"`
	Images []string `json:"images,omitempty"`
}

type fakeDocument struct {
	Pages  []fakePage           `json:"pages"`
	Fields map[string]FormField `json:"fields,omitempty"`
}

// fakeDoc builds a document whose pages are labeled prefix1..prefixN.
func fakeDoc(prefix string, n int) []byte {
	doc := fakeDocument{}
	for i := 1; i <= n; i++ {
		doc.Pages = append(doc.Pages, fakePage{Width: 612, Height: 792, Label: fmt.Sprintf("%s%d", prefix, i)})
	}
	return encodeFake(doc)
}

func encodeFake(doc fakeDocument) []byte {
	data, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	return data
}

func decodeFake(data []byte) (fakeDocument, error) {
	var doc fakeDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fakeDocument{}, fmt.Errorf("%w: %v", ErrReadDocument, err)
	}
	return doc, nil
}

func mustDecodeFake(t *testing.T, data []byte) fakeDocument {
	t.Helper()
	doc, err := decodeFake(data)
	if err != nil {
		t.Fatalf("decoding fake document: %v", err)
	}
	return doc
}

func labels(doc fakeDocument) []string {
	out := make([]string, len(doc.Pages))
	for i, p := range doc.Pages {
		out[i] = p.Label
	}
	return out
}

// ---------------------------------------------------------------------------
// fakeEngine - pdfEngine over fake documents
// ---------------------------------------------------------------------------

type fakeEngine struct {
	mu           sync.Mutex
	stampCalls   []map[int][]stamp
	replaceCalls int
	mergeCalls   int
}

var _ pdfEngine = (*fakeEngine)(nil)

func (e *fakeEngine) PageSizes(data []byte) ([]PageSize, error) {
	doc, err := decodeFake(data)
	if err != nil {
		return nil, err
	}
	sizes := make([]PageSize, len(doc.Pages))
	for i, p := range doc.Pages {
		sizes[i] = PageSize{Width: p.Width, Height: p.Height}
	}
	return sizes, nil
}

func (e *fakeEngine) ExtractPages(data []byte, pages []int) ([]byte, error) {
	doc, err := decodeFake(data)
	if err != nil {
		return nil, err
	}
	out := fakeDocument{Fields: doc.Fields}
	for _, n := range pages {
		if n < 1 || n > len(doc.Pages) {
			return nil, fmt.Errorf("%w: page %d", ErrWriteDocument, n)
		}
		out.Pages = append(out.Pages, doc.Pages[n-1])
	}
	return encodeFake(out), nil
}

func (e *fakeEngine) Merge(docs [][]byte) ([]byte, error) {
	e.mu.Lock()
	e.mergeCalls++
	e.mu.Unlock()

	out := fakeDocument{}
	for _, d := range docs {
		doc, err := decodeFake(d)
		if err != nil {
			return nil, err
		}
		out.Pages = append(out.Pages, doc.Pages...)
	}
	return encodeFake(out), nil
}

func (e *fakeEngine) Stamp(data []byte, stamps map[int][]stamp) ([]byte, error) {
	e.mu.Lock()
	e.stampCalls = append(e.stampCalls, stamps)
	e.mu.Unlock()

	doc, err := decodeFake(data)
	if err != nil {
		return nil, err
	}
	for page, list := range stamps {
		for _, s := range list {
			doc.Pages[page-1].Stamps = append(doc.Pages[page-1].Stamps, s.Rect)
		}
	}
	return encodeFake(doc), nil
}

func (e *fakeEngine) Images(data []byte, page int) ([]embeddedImage, error) {
	doc, err := decodeFake(data)
	if err != nil {
		return nil, err
	}
	var out []embeddedImage
	for i, name := range doc.Pages[page-1].Images {
		out = append(out, embeddedImage{ObjNr: page*100 + i, Page: page, Name: name, Width: 8, Height: 6})
	}
	return out, nil
}

func (e *fakeEngine) ReplaceImage(data []byte, target embeddedImage, img []byte) ([]byte, error) {
	e.mu.Lock()
	e.replaceCalls++
	e.mu.Unlock()

	cfg, _, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return nil, err
	}
	if cfg.Width != target.Width || cfg.Height != target.Height {
		return nil, fmt.Errorf("invalid image dimensions, want(%d,%d), got(%d,%d)", cfg.Width, cfg.Height, target.Width, target.Height)
	}
	doc, err := decodeFake(data)
	if err != nil {
		return nil, err
	}
	idx := target.ObjNr - target.Page*100
	doc.Pages[target.Page-1].Images[idx] = "replaced"
	return encodeFake(doc), nil
}

func (e *fakeEngine) FillForm(data []byte, fields map[string]FormField) ([]byte, error) {
	doc, err := decodeFake(data)
	if err != nil {
		return nil, err
	}
	if doc.Fields == nil {
		doc.Fields = make(map[string]FormField)
	}
	for k, v := range fields {
		doc.Fields[k] = v
	}
	return encodeFake(doc), nil
}

func (e *fakeEngine) stamps() []map[int][]stamp {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stampCalls
}

// fakeVerify checks the page count of a fake document.
func fakeVerify(doc []byte, want int) error {
	d, err := decodeFake(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptOutput, err)
	}
	if want >= 0 && len(d.Pages) != want {
		return fmt.Errorf("%w: got %d pages, want %d", ErrCorruptOutput, len(d.Pages), want)
	}
	return nil
}

func newFakeCompositor(renderer PageRenderer) (*Compositor, *fakeEngine) {
	e := &fakeEngine{}
	return &Compositor{engine: e, renderer: renderer, verify: fakeVerify}, e
}

// ---------------------------------------------------------------------------
// mockRenderer - PageRenderer writing small files
// ---------------------------------------------------------------------------

type renderCall struct {
	html          string
	width, height float64
}

type mockRenderer struct {
	mu          sync.Mutex
	dir         string
	imageCalls  []renderCall
	pdfCalls    []string
	pdfOutput   []byte
	err         error
	closed      bool
	closeCalled int
}

var _ PageRenderer = (*mockRenderer)(nil)

func newMockRenderer(t *testing.T) *mockRenderer {
	return &mockRenderer{dir: t.TempDir()}
}

func (m *mockRenderer) RenderImage(_ context.Context, html string, width, height float64) (string, error) {
	m.mu.Lock()
	m.imageCalls = append(m.imageCalls, renderCall{html: html, width: width, height: height})
	n := len(m.imageCalls)
	m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	path := filepath.Join(m.dir, fmt.Sprintf("band-%d.png", n))
	return path, os.WriteFile(path, pngBytes(int(width*bandScale), int(height*bandScale)), 0o600)
}

func (m *mockRenderer) RenderPDF(_ context.Context, html string, _ *PageSettings) (string, error) {
	m.mu.Lock()
	m.pdfCalls = append(m.pdfCalls, html)
	n := len(m.pdfCalls)
	m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	out := m.pdfOutput
	if out == nil {
		out = []byte("%PDF-1.4 rendered " + html)
	}
	path := filepath.Join(m.dir, fmt.Sprintf("doc-%d.pdf", n))
	return path, os.WriteFile(path, out, 0o600)
}

func (m *mockRenderer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.closeCalled++
	return nil
}

func (m *mockRenderer) images() []renderCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]renderCall(nil), m.imageCalls...)
}

// ---------------------------------------------------------------------------
// memStore - BinaryStore in memory with injectable upload failures
// ---------------------------------------------------------------------------

type memFile struct {
	name        string
	contentType string
	data        []byte
}

type memStore struct {
	mu          sync.Mutex
	files       map[string]memFile
	uploadCalls int
	failUploads int
	// failFrom makes every upload from that call number on fail (1-based).
	failFrom int
	deleted  []string
	nextID   int
}

var _ BinaryStore = (*memStore)(nil)

var errStoreUnavailable = errors.New("store unavailable")

func newMemStore() *memStore {
	return &memStore{files: make(map[string]memFile)}
}

func (s *memStore) put(id string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[id] = memFile{name: id, contentType: "application/octet-stream", data: data}
}

func (s *memStore) get(id string) (memFile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	return f, ok
}

func (s *memStore) Download(_ context.Context, fileID string) (io.ReadCloser, FileMeta, error) {
	f, ok := s.get(fileID)
	if !ok {
		return nil, FileMeta{}, fmt.Errorf("file %q not found", fileID)
	}
	meta := FileMeta{FileID: fileID, Name: f.name, ContentType: f.contentType, Size: int64(len(f.data))}
	return io.NopCloser(bytes.NewReader(f.data)), meta, nil
}

func (s *memStore) Upload(_ context.Context, name string, r io.Reader, contentType string) (FileRef, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return FileRef{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploadCalls++
	if s.failUploads > 0 {
		s.failUploads--
		return FileRef{}, errStoreUnavailable
	}
	if s.failFrom > 0 && s.uploadCalls >= s.failFrom {
		return FileRef{}, errStoreUnavailable
	}
	s.nextID++
	id := fmt.Sprintf("out-%d", s.nextID)
	s.files[id] = memFile{name: name, contentType: contentType, data: data}
	return FileRef{FileID: id, Name: name, ContentType: contentType, Size: int64(len(data))}, nil
}

func (s *memStore) Delete(_ context.Context, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[fileID]; !ok {
		return fmt.Errorf("%s: not found", fileID)
	}
	delete(s.files, fileID)
	s.deleted = append(s.deleted, fileID)
	return nil
}

func (s *memStore) uploads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploadCalls
}

// ---------------------------------------------------------------------------
// Images and real PDFs
// ---------------------------------------------------------------------------

func pngBytes(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, max(w, 1), max(h, 1)))
	for x := range img.Bounds().Dx() {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// opaquePNG is a solid image without an alpha channel, embedded by pdfcpu
// as a single XObject with no soft mask.
func opaquePNG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{G: 120, B: 200, A: 255}}, image.Point{}, draw.Src)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// buildPDF writes a minimal valid PDF with one page per width, each 792pt
// high, so page order survives edits and can be read back from MediaBoxes.
func buildPDF(widths ...float64) []byte {
	kids := make([]string, len(widths))
	for i := range widths {
		kids[i] = fmt.Sprintf("%d 0 R", 3+2*i)
	}
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(widths)),
	}
	for i, w := range widths {
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %g 792] /Resources << >> /Contents %d 0 R >>", w, 4+2*i),
			contentStream("0 0 m 10 10 l S"))
	}
	return assemblePDF(objects...)
}

// buildFormPDF writes a one-page letter PDF whose AcroForm holds a single
// empty text field named field, drawn with Helvetica.
func buildFormPDF(field string) []byte {
	return assemblePDF(
		"<< /Type /Catalog /Pages 2 0 R /AcroForm << /Fields [4 0 R] /DA (/Helv 0 Tf 0 g) /DR << /Font << /Helv 5 0 R >> >> >> >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /Helv 5 0 R >> >> /Contents 6 0 R /Annots [4 0 R] >>",
		fmt.Sprintf("<< /Type /Annot /Subtype /Widget /FT /Tx /T (%s) /V () /Rect [50 700 250 720] /P 3 0 R /F 4 /DA (/Helv 12 Tf 0 g) >>", field),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
		contentStream("0 0 m 10 10 l S"),
	)
}

func contentStream(content string) string {
	return fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content)
}

// assemblePDF numbers objects from 1 in order, with object 1 as the
// catalog, and writes the classic xref table and trailer.
func assemblePDF(objects ...string) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, body := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func intPtr(v int) *int { return &v }

func floatPtrTest(v float64) *float64 { return &v }
