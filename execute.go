package pdfjobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/alnah/go-pdfjobs/internal/fileutil"
)

// maxConcurrentDownloads bounds parallel fetches inside one job.
const maxConcurrentDownloads = 4

// output is a produced document waiting for upload.
type output struct {
	name string
	data []byte
}

// process executes job inside its own workspace, uploads what it produced
// and returns the terminal Result. The workspace, and every asset adopted by
// it, is removed before process returns, whatever the outcome.
func (p *Pipeline) process(ctx context.Context, job *Job) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Str("request_id", job.RequestID).
				Interface("panic", r).
				Msg("job panicked")
			res = errorResult(fmt.Errorf("internal error: %v", r))
		}
	}()

	ws, err := fileutil.NewWorkspace(p.cfg.tempDir, "pdfjobs-"+strings.ToLower(string(job.Operation)))
	if err != nil {
		job.discardAssets()
		return errorResult(err)
	}
	ws.Track(job.assets...)
	defer func() {
		if err := ws.Cleanup(); err != nil {
			p.logger.Warn().Err(err).Str("request_id", job.RequestID).Msg("workspace cleanup failed")
		}
	}()

	outputs, err := p.execute(ctx, ws, job)
	if err != nil {
		return errorResult(err)
	}

	refs := make([]FileRef, 0, len(outputs))
	for i, out := range outputs {
		ref, err := p.upload(ctx, ws, job, i, out)
		if err != nil {
			p.discardUploads(ctx, job, refs)
			return errorResult(err)
		}
		refs = append(refs, ref)
	}
	if job.Operation == OpSplit {
		return okFilesResult(refs)
	}
	return okResult(refs[0])
}

// execute dispatches on the job payload.
func (p *Pipeline) execute(ctx context.Context, ws *fileutil.Workspace, job *Job) ([]output, error) {
	switch req := job.payload.(type) {
	case *renderJob:
		return p.executeGenerate(ctx, ws, job, req)
	case *FillFormRequest:
		return p.executeFillForm(ctx, ws, job, req)
	case *MergeRequest:
		return p.executeMerge(ctx, ws, job, req)
	case *SplitRequest:
		return p.executeSplit(ctx, ws, job, req)
	case *HeaderFooterRequest:
		return p.executeHeaderFooter(ctx, ws, job, req)
	case *ReplaceImagesRequest:
		return p.executeReplaceImages(ctx, ws, job, req)
	case *AddImagesRequest:
		return p.executeAddImages(ctx, ws, job, req)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownInput, job.payload)
	}
}

func (p *Pipeline) executeGenerate(ctx context.Context, ws *fileutil.Workspace, job *Job, req *renderJob) ([]output, error) {
	if p.renderer == nil {
		return nil, ErrNoRenderer
	}
	path, err := p.renderer.RenderPDF(ctx, req.html, req.page)
	if err != nil {
		return nil, err
	}
	ws.Track(path)

	data, err := os.ReadFile(path) // #nosec G304 -- path returned by our renderer
	if err != nil {
		return nil, fmt.Errorf("%w: reading rendered PDF: %v", ErrRender, err)
	}
	return []output{{name: outputName(req.fileName, job), data: data}}, nil
}

func (p *Pipeline) executeFillForm(ctx context.Context, ws *fileutil.Workspace, job *Job, req *FillFormRequest) ([]output, error) {
	doc, err := p.fetch(ctx, ws, req.FileID, "input.pdf")
	if err != nil {
		return nil, err
	}
	filled, err := p.compositor.FillForm(ctx, doc, req.Fields)
	if err != nil {
		return nil, err
	}
	return []output{{name: outputName(req.FileName, job), data: filled}}, nil
}

func (p *Pipeline) executeMerge(ctx context.Context, ws *fileutil.Workspace, job *Job, req *MergeRequest) ([]output, error) {
	inputs := make([]MergeInput, len(req.Documents))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentDownloads)
	for i, doc := range req.Documents {
		g.Go(func() error {
			data, err := p.fetch(gctx, ws, doc.FileID, fmt.Sprintf("input-%d.pdf", i))
			if err != nil {
				return err
			}
			inputs[i] = MergeInput{Document: data, Selection: doc.Selection}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged, err := p.compositor.Merge(ctx, inputs)
	if err != nil {
		return nil, err
	}
	return []output{{name: outputName(req.FileName, job), data: merged}}, nil
}

func (p *Pipeline) executeSplit(ctx context.Context, ws *fileutil.Workspace, job *Job, req *SplitRequest) ([]output, error) {
	doc, err := p.fetch(ctx, ws, req.FileID, "input.pdf")
	if err != nil {
		return nil, err
	}
	chunks, err := p.compositor.Split(ctx, doc, req.Interval)
	if err != nil {
		return nil, err
	}

	base := strings.TrimSuffix(outputName(req.FileName, job), ".pdf")
	outputs := make([]output, len(chunks))
	for i, chunk := range chunks {
		outputs[i] = output{name: fmt.Sprintf("%s-%d.pdf", base, i+1), data: chunk}
	}
	return outputs, nil
}

func (p *Pipeline) executeHeaderFooter(ctx context.Context, ws *fileutil.Workspace, job *Job, req *HeaderFooterRequest) ([]output, error) {
	doc, err := p.fetch(ctx, ws, req.FileID, "input.pdf")
	if err != nil {
		return nil, err
	}
	header, err := p.resolveBand(ctx, ws, req.Header, "header")
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	footer, err := p.resolveBand(ctx, ws, req.Footer, "footer")
	if err != nil {
		return nil, fmt.Errorf("footer: %w", err)
	}

	stamped, err := p.compositor.OverlayBands(ctx, doc, header, footer)
	if err != nil {
		return nil, err
	}
	return []output{{name: outputName(req.FileName, job), data: stamped}}, nil
}

// resolveBand downloads the band image or expands its HTML template.
func (p *Pipeline) resolveBand(ctx context.Context, ws *fileutil.Workspace, spec *BandSpec, slot string) (*Band, error) {
	if spec == nil {
		return nil, nil
	}
	if spec.ImageFileID != "" {
		img, err := p.fetch(ctx, ws, spec.ImageFileID, slot+".img")
		if err != nil {
			return nil, err
		}
		return &Band{Image: img, Height: spec.Height}, nil
	}
	html, err := p.templates.Render(ctx, spec.HTML, spec.Data, FormatHTML)
	if err != nil {
		return nil, err
	}
	return &Band{HTML: html, Height: spec.Height}, nil
}

func (p *Pipeline) executeReplaceImages(ctx context.Context, ws *fileutil.Workspace, job *Job, req *ReplaceImagesRequest) ([]output, error) {
	doc, err := p.fetch(ctx, ws, req.FileID, "input.pdf")
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(req.Replacements))
	for i, r := range req.Replacements {
		ids[i] = r.FileID
	}
	images, err := p.fetchImages(ctx, ws, ids)
	if err != nil {
		return nil, err
	}

	reps := make([]Replacement, len(req.Replacements))
	for i, r := range req.Replacements {
		reps[i] = Replacement{PageIndex: r.PageIndex, Index: r.Index, Image: images[r.FileID]}
	}
	replaced, err := p.compositor.ReplaceImages(ctx, doc, reps)
	if err != nil {
		return nil, err
	}
	return []output{{name: outputName(req.FileName, job), data: replaced}}, nil
}

func (p *Pipeline) executeAddImages(ctx context.Context, ws *fileutil.Workspace, job *Job, req *AddImagesRequest) ([]output, error) {
	doc, err := p.fetch(ctx, ws, req.FileID, "input.pdf")
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(req.Images))
	for i, img := range req.Images {
		ids[i] = img.FileID
	}
	images, err := p.fetchImages(ctx, ws, ids)
	if err != nil {
		return nil, err
	}

	placed := make([]PlacedImage, len(req.Images))
	for i, img := range req.Images {
		placed[i] = PlacedImage{Image: images[img.FileID], Placement: img}
	}
	out, err := p.compositor.AddImages(ctx, doc, placed)
	if err != nil {
		return nil, err
	}
	return []output{{name: outputName(req.FileName, job), data: out}}, nil
}

// fetchImages downloads each distinct file id once, concurrently.
func (p *Pipeline) fetchImages(ctx context.Context, ws *fileutil.Workspace, ids []string) (map[string][]byte, error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}

	data := make([][]byte, len(unique))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentDownloads)
	for i, id := range unique {
		g.Go(func() error {
			img, err := p.fetch(gctx, ws, id, fmt.Sprintf("image-%d", i))
			if err != nil {
				return err
			}
			data[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	images := make(map[string][]byte, len(unique))
	for i, id := range unique {
		images[id] = data[i]
	}
	return images, nil
}

// fetch copies a stored file into the workspace and returns its bytes.
func (p *Pipeline) fetch(ctx context.Context, ws *fileutil.Workspace, fileID, slot string) ([]byte, error) {
	rc, meta, err := p.store.Download(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDownload, fileID, err)
	}
	defer func() { _ = rc.Close() }()

	path, n, err := ws.CopyFrom(slot, rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDownload, fileID, err)
	}
	p.logger.Debug().
		Str("file_id", fileID).
		Str("content_type", meta.ContentType).
		Int64("bytes", n).
		Msg("file downloaded")

	data, err := os.ReadFile(path) // #nosec G304 -- path inside job workspace
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDownload, fileID, err)
	}
	return data, nil
}

// outputName keeps the caller's name (forcing a .pdf extension) or derives
// one from the operation and request id.
func outputName(requested string, job *Job) string {
	name := filepath.Base(strings.TrimSpace(requested))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return fmt.Sprintf("%s-%s.pdf", job.Operation, job.RequestID)
	}
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		name += ".pdf"
	}
	return name
}
