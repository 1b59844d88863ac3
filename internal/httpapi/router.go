package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	pdfjobs "github.com/alnah/go-pdfjobs"
)

// Service is the operation surface of *pdfjobs.Pipeline.
type Service interface {
	GenerateFromTemplate(ctx context.Context, req pdfjobs.GenerateRequest) (pdfjobs.Ack, error)
	FillForm(ctx context.Context, req pdfjobs.FillFormRequest) (pdfjobs.Ack, error)
	FillFormSync(ctx context.Context, req pdfjobs.FillFormRequest) (pdfjobs.Result, error)
	MergeDocuments(ctx context.Context, req pdfjobs.MergeRequest) (pdfjobs.Ack, error)
	SplitDocument(ctx context.Context, req pdfjobs.SplitRequest) (pdfjobs.Ack, error)
	ReplaceHeaderFooter(ctx context.Context, req pdfjobs.HeaderFooterRequest) (pdfjobs.Ack, error)
	ReplaceImages(ctx context.Context, req pdfjobs.ReplaceImagesRequest) (pdfjobs.Ack, error)
	AddImages(ctx context.Context, req pdfjobs.AddImagesRequest) (pdfjobs.Ack, error)
	QueueDepth() int
	Backlog() int
}

// Compile-time interface check
var _ Service = (*pdfjobs.Pipeline)(nil)

// NewRouter mounts the API. hub may be nil to disable the event stream.
func NewRouter(svc Service, hub *Hub, logger zerolog.Logger) http.Handler {
	h := &handlers{svc: svc, logger: logger}

	r := chi.NewRouter()
	r.Use(requestID, middleware.RealIP, accessLog(logger), middleware.Recoverer)

	r.Get("/v1/healthz", h.health)

	r.Route("/v1/pdf", func(r chi.Router) {
		r.Post("/generate", accept(h, svc.GenerateFromTemplate))
		r.Post("/fill-form", h.fillForm)
		r.Post("/merge", accept(h, svc.MergeDocuments))
		r.Post("/split", accept(h, svc.SplitDocument))
		r.Post("/header-footer", accept(h, svc.ReplaceHeaderFooter))
		r.Post("/replace-images", accept(h, svc.ReplaceImages))
		r.Post("/add-images", accept(h, svc.AddImages))
	})

	if hub != nil {
		r.Get("/v1/events", hub.ServeWS)
	}
	return r
}
