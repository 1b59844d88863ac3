// Package pdfjobs runs PDF document jobs in the background: rendering
// templates to PDF, filling forms, merging, splitting, stamping headers and
// footers, and adding or replacing images.
//
// # Quick Start
//
// Create a pipeline over a binary store, start it, and submit requests:
//
//	renderer := pdfjobs.NewRodRenderer(30*time.Second, "")
//	defer renderer.Close()
//
//	p, err := pdfjobs.New(store, renderer,
//	    pdfjobs.WithEventSink(pdfjobs.SinkFunc(func(ctx context.Context, evt pdfjobs.Event) {
//	        log.Printf("%s: %s", evt.RequestID, evt.Status)
//	    })),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := p.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Close(context.Background())
//
//	ack, err := p.MergeDocuments(ctx, pdfjobs.MergeRequest{
//	    Documents: []pdfjobs.MergeDocument{{FileID: "a"}, {FileID: "b"}},
//	})
//
// # Request Lifecycle
//
// Every operation validates its request synchronously. Validation and
// template errors are returned to the caller and no event follows. An
// accepted request returns an Ack immediately; its Result arrives later as
// exactly one Event on the configured EventSink:
//
//  1. Template requests are expanded, then queued in a JobQueue drained
//     by a single loop every interval (3s by default) or as soon as work
//     arrives.
//  2. Other requests go straight to a WorkerPool of N goroutines (3 by
//     default) with an unbounded backlog.
//  3. Each job downloads its inputs into a private workspace, runs the
//     Compositor, and uploads the output, retrying the upload once.
//  4. The workspace is deleted, then the Event is emitted.
//
// FillFormSync is the one exception: it blocks and returns the Result
// instead of emitting an event.
//
// # Compositor
//
// Compositor edits documents held in memory and can be used on its own:
//
//	c := pdfjobs.NewCompositor(nil)
//	chunks, err := c.Split(ctx, doc, 2)
//
// Coordinates are PDF points with the origin at the bottom-left corner of
// the page. Every produced document is re-read with an independent parser
// and its page count checked before it is returned.
//
// # Rendering
//
// RodRenderer drives headless Chrome through go-rod. Set ROD_BROWSER_BIN to
// use a pre-installed browser. RendererPool spreads rendering over several
// browsers; size it with ResolvePoolSize.
package pdfjobs
