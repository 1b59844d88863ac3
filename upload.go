package pdfjobs

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/alnah/go-pdfjobs/internal/fileutil"
)

// maxUploadAttempts is the first try plus exactly one retry.
const maxUploadAttempts = 2

const pdfContentType = "application/pdf"

// upload writes out to the workspace and stores it, retrying once after
// the configured delay. Each attempt re-reads the file from the start.
func (p *Pipeline) upload(ctx context.Context, ws *fileutil.Workspace, job *Job, index int, out output) (FileRef, error) {
	path, err := ws.WriteFile(fmt.Sprintf("output-%d.pdf", index), out.data)
	if err != nil {
		return FileRef{}, fmt.Errorf("%w: %v", ErrUpload, err)
	}

	for attempt := 1; ; attempt++ {
		ref, err := p.uploadFile(ctx, path, out.name)
		if err == nil {
			return ref, nil
		}
		if attempt >= maxUploadAttempts {
			return FileRef{}, fmt.Errorf("%w: %s after %d attempts: %v", ErrUpload, out.name, attempt, err)
		}

		p.logger.Warn().
			Err(err).
			Str("request_id", job.RequestID).
			Str("name", out.name).
			Int("attempt", attempt).
			Dur("retry_in", p.cfg.uploadRetryDelay).
			Msg("upload failed, retrying")

		if err := sleepContext(ctx, p.cfg.uploadRetryDelay); err != nil {
			return FileRef{}, fmt.Errorf("%w: %s: %v", ErrUpload, out.name, err)
		}
	}
}

func (p *Pipeline) uploadFile(ctx context.Context, path, name string) (FileRef, error) {
	f, err := os.Open(path) // #nosec G304 -- path inside job workspace
	if err != nil {
		return FileRef{}, err
	}
	defer func() { _ = f.Close() }()
	return p.store.Upload(ctx, name, f, pdfContentType)
}

// discardUploads deletes the files a failed job already uploaded, when the
// store supports deletion. Failures are logged; the job's error stands.
func (p *Pipeline) discardUploads(ctx context.Context, job *Job, refs []FileRef) {
	d, ok := p.store.(Deleter)
	if !ok {
		return
	}
	for _, ref := range refs {
		if err := d.Delete(ctx, ref.FileID); err != nil {
			p.logger.Warn().
				Err(err).
				Str("request_id", job.RequestID).
				Str("file_id", ref.FileID).
				Msg("removing partial upload failed")
		}
	}
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
