package pdfjobs_test

import (
	"context"
	"fmt"

	"github.com/alnah/go-pdfjobs"
)

func ExamplePageSelection_Pages() {
	start, end := 2, 3
	sel := pdfjobs.PageSelection{Start: &start, End: &end}
	fmt.Println(sel.Pages(5))
	// Output: [2 3]
}

// ExampleEventRecorder collects terminal events, which is how the CLI waits
// for a job it submitted.
func ExampleEventRecorder() {
	rec := pdfjobs.NewEventRecorder()
	sink := pdfjobs.MultiSink{rec, pdfjobs.SinkFunc(func(_ context.Context, evt pdfjobs.Event) {
		fmt.Println(evt.RequestID, evt.Status)
	})}

	sink.Emit(context.Background(), pdfjobs.Event{
		RequestID: "req-1",
		Operation: pdfjobs.OpMerge,
		Result:    pdfjobs.Result{Status: pdfjobs.StatusOK},
	})
	fmt.Println(len(rec.Events()))
	// Output:
	// req-1 ok
	// 1
}
