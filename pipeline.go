package pdfjobs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/alnah/go-pdfjobs/internal/htmlprep"
)

// Pipeline accepts document requests, runs them in the background and
// publishes exactly one terminal Event per accepted request.
//
// Template requests are expanded synchronously, queued, and rendered one at
// a time by a drain loop. All other operations go to a bounded worker pool.
type Pipeline struct {
	cfg        pipelineConfig
	logger     zerolog.Logger
	store      BinaryStore
	renderer   PageRenderer
	templates  TemplateRenderer
	compositor *Compositor
	sink       EventSink
	httpClient *http.Client

	queue   *JobQueue
	pool    *WorkerPool
	waiters *haxmap.Map[string, chan Result]
	newID   func() string

	mu        sync.Mutex
	running   bool
	closed    bool
	stopDrain context.CancelFunc
	drainDone chan struct{}
}

// ErrNoStore is returned by New when no binary store is given.
var ErrNoStore = errors.New("binary store is required")

// New creates a Pipeline reading from and writing to store. renderer may be
// nil if no generate request or HTML band is ever submitted. The worker pool
// starts immediately; call Start to begin draining template jobs.
func New(store BinaryStore, renderer PageRenderer, opts ...Option) (*Pipeline, error) {
	if store == nil {
		return nil, ErrNoStore
	}

	p := &Pipeline{
		cfg: pipelineConfig{
			workers:          DefaultWorkers,
			drainInterval:    DefaultDrainInterval,
			uploadRetryDelay: DefaultUploadRetryDelay,
		},
		logger:     zerolog.Nop(),
		store:      store,
		renderer:   renderer,
		templates:  NewGoTemplateRenderer(),
		sink:       discardSink{},
		httpClient: &http.Client{Timeout: 30 * time.Second},
		queue:      NewJobQueue(),
		waiters:    haxmap.New[string, chan Result](),
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.compositor == nil {
		p.compositor = NewCompositor(renderer)
	}
	p.pool = NewWorkerPool(p.cfg.workers, p.logger)
	return p, nil
}

// withCompositor replaces the pdfcpu-backed compositor.
func withCompositor(c *Compositor) Option {
	return func(p *Pipeline) {
		p.compositor = c
	}
}

// withHTTPClient sets the client used to localize remote images.
func withHTTPClient(c *http.Client) Option {
	return func(p *Pipeline) {
		p.httpClient = c
	}
}

// Start launches the template drain loop. It returns immediately; the loop
// stops when ctx is canceled or Close is called.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}
	if p.running {
		return nil
	}

	drainCtx, cancel := context.WithCancel(ctx)
	p.stopDrain = cancel
	p.drainDone = make(chan struct{})
	p.running = true

	p.logger.Info().
		Int("workers", p.pool.Size()).
		Dur("drain_interval", p.cfg.drainInterval).
		Msg("pipeline started")

	go p.drainLoop(drainCtx, p.drainDone)
	return nil
}

// Close stops accepting requests, finishes queued template jobs and waits
// for the worker pool to drain or ctx to end. Injected collaborators
// (store, renderer, sink) are not closed.
func (p *Pipeline) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	running, stop, done := p.running, p.stopDrain, p.drainDone
	p.mu.Unlock()

	if running {
		stop()
		<-done
	}
	p.drainOnce(context.WithoutCancel(ctx))

	err := p.pool.Close(ctx)
	p.logger.Info().Err(err).Msg("pipeline stopped")
	return err
}

// QueueDepth returns the number of template jobs waiting to be rendered.
func (p *Pipeline) QueueDepth() int {
	return p.queue.Size()
}

// Backlog returns the number of direct jobs waiting for a worker.
func (p *Pipeline) Backlog() int {
	return p.pool.Backlog()
}

func (p *Pipeline) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// drainLoop renders queued template jobs every interval, or sooner when
// work is enqueued. Each pass empties the queue before sleeping again.
func (p *Pipeline) drainLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.cfg.drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-p.queue.Ready():
		}
		p.drainOnce(context.WithoutCancel(ctx))
	}
}

// drainOnce processes queued jobs sequentially until the queue is empty.
func (p *Pipeline) drainOnce(ctx context.Context) {
	for {
		jobs := p.queue.DrainAll()
		if len(jobs) == 0 {
			return
		}
		for _, job := range jobs {
			p.run(ctx, job)
		}
	}
}

// GenerateFromTemplate expands the template now and queues the rendering.
// Validation and template errors are returned directly and produce no event.
func (p *Pipeline) GenerateFromTemplate(ctx context.Context, req GenerateRequest) (Ack, error) {
	if err := req.Validate(); err != nil {
		return Ack{}, err
	}
	if p.renderer == nil {
		return Ack{}, ErrNoRenderer
	}
	if p.isClosed() {
		return Ack{}, ErrPoolClosed
	}

	html, err := p.templates.Render(ctx, req.Template, req.Data, req.Format)
	if err != nil {
		return Ack{}, err
	}

	var assets []string
	if p.cfg.localizeImages {
		html, assets, err = htmlprep.LocalizeImages(ctx, p.httpClient, html, p.cfg.tempDir)
		if err != nil {
			return Ack{}, fmt.Errorf("%w: %v", ErrTemplateIO, err)
		}
	}

	job := &Job{
		RequestID: p.requestID(req.ID),
		Operation: OpGenerate,
		payload:   &renderJob{html: html, page: req.Page, fileName: req.FileName},
		assets:    assets,
	}
	// Close drains the queue once after setting closed, so a job enqueued
	// under the same lock is always rendered.
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		job.discardAssets()
		return Ack{}, ErrPoolClosed
	}
	p.queue.Enqueue(job)
	p.mu.Unlock()

	p.logger.Debug().
		Str("request_id", job.RequestID).
		Int("queue_depth", p.queue.Size()).
		Msg("template job queued")
	return Ack{RequestID: job.RequestID, Status: StatusOK}, nil
}

// FillForm queues filling the document's form fields.
func (p *Pipeline) FillForm(_ context.Context, req FillFormRequest) (Ack, error) {
	if err := req.Validate(); err != nil {
		return Ack{}, err
	}
	return p.submit(p.newJob(req.ID, OpFillForm, &req))
}

// FillFormSync fills the form and waits for the Result instead of emitting
// an event. If ctx ends first, the job still completes and its Result is
// published as an event.
func (p *Pipeline) FillFormSync(ctx context.Context, req FillFormRequest) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	job := p.newJob(req.ID, OpFillForm, &req)
	job.waiter = p.newID()
	ch := make(chan Result, 1)
	p.waiters.Set(job.waiter, ch)

	if _, err := p.submit(job); err != nil {
		p.waiters.Del(job.waiter)
		return Result{}, err
	}

	select {
	case res := <-ch:
		return res, nil
	case <-ctx.Done():
		if !p.claimWaiter(job.waiter, ch) {
			// The job finished first and its Result is already on the way.
			return <-ch, nil
		}
		return Result{}, ctx.Err()
	}
}

// claimWaiter takes ownership of a waiter's channel. Of deliver and the
// blocked caller, exactly one wins; the loser must not touch the channel.
func (p *Pipeline) claimWaiter(id string, ch chan Result) bool {
	if !p.waiters.CompareAndSwap(id, ch, nil) {
		return false
	}
	p.waiters.Del(id)
	return true
}

// MergeDocuments queues concatenating the selected pages of each document.
func (p *Pipeline) MergeDocuments(_ context.Context, req MergeRequest) (Ack, error) {
	if err := req.Validate(); err != nil {
		return Ack{}, err
	}
	return p.submit(p.newJob(req.ID, OpMerge, &req))
}

// SplitDocument queues cutting a document into fixed-size chunks.
func (p *Pipeline) SplitDocument(_ context.Context, req SplitRequest) (Ack, error) {
	if err := req.Validate(); err != nil {
		return Ack{}, err
	}
	return p.submit(p.newJob(req.ID, OpSplit, &req))
}

// ReplaceHeaderFooter queues stamping header and footer bands.
func (p *Pipeline) ReplaceHeaderFooter(_ context.Context, req HeaderFooterRequest) (Ack, error) {
	if err := req.Validate(); err != nil {
		return Ack{}, err
	}
	if p.renderer == nil && (bandUsesHTML(req.Header) || bandUsesHTML(req.Footer)) {
		return Ack{}, ErrNoRenderer
	}
	return p.submit(p.newJob(req.ID, OpHeaderFooter, &req))
}

// ReplaceImages queues replacing embedded images by index.
func (p *Pipeline) ReplaceImages(_ context.Context, req ReplaceImagesRequest) (Ack, error) {
	if err := req.Validate(); err != nil {
		return Ack{}, err
	}
	return p.submit(p.newJob(req.ID, OpReplaceImages, &req))
}

// AddImages queues drawing new images on existing pages.
func (p *Pipeline) AddImages(_ context.Context, req AddImagesRequest) (Ack, error) {
	if err := req.Validate(); err != nil {
		return Ack{}, err
	}
	return p.submit(p.newJob(req.ID, OpAddImages, &req))
}

func bandUsesHTML(b *BandSpec) bool {
	return b != nil && b.HTML != ""
}

func (p *Pipeline) newJob(id string, op Operation, payload any) *Job {
	return &Job{RequestID: p.requestID(id), Operation: op, payload: payload}
}

// requestID keeps the caller's correlation id or mints one.
func (p *Pipeline) requestID(id string) string {
	if id != "" {
		return id
	}
	return p.newID()
}

// submit hands job to the worker pool.
func (p *Pipeline) submit(job *Job) (Ack, error) {
	err := p.pool.Submit(func() {
		p.run(context.Background(), job)
	})
	if err != nil {
		return Ack{}, err
	}
	p.logger.Debug().
		Str("request_id", job.RequestID).
		Str("operation", string(job.Operation)).
		Msg("job submitted")
	return Ack{RequestID: job.RequestID, Status: StatusOK}, nil
}

// run processes job and delivers its Result. The job's workspace is gone
// before delivery.
func (p *Pipeline) run(ctx context.Context, job *Job) {
	start := time.Now()
	res := p.process(ctx, job)

	evt := p.logger.Info()
	if res.Status == StatusError {
		evt = p.logger.Warn().Str("error", res.ErrorMessage())
	}
	evt.Str("request_id", job.RequestID).
		Str("operation", string(job.Operation)).
		Str("status", string(res.Status)).
		Dur("elapsed", time.Since(start)).
		Msg("job finished")

	p.deliver(ctx, job, res)
}

// deliver hands res to a synchronous waiter if one is registered, else to the sink.
func (p *Pipeline) deliver(ctx context.Context, job *Job, res Result) {
	if job.waiter != "" {
		if ch, ok := p.waiters.Get(job.waiter); ok && ch != nil && p.claimWaiter(job.waiter, ch) {
			ch <- res
			return
		}
	}
	p.sink.Emit(ctx, Event{RequestID: job.RequestID, Operation: job.Operation, Result: res})
}
