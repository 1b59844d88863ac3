package pdfjobs

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// verifyDocument re-reads produced bytes with an independent parser and
// checks the page count. wantPages < 0 skips the count check.
func verifyDocument(doc []byte, wantPages int) (err error) {
	// The parser panics on some malformed input.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrCorruptOutput, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(doc), int64(len(doc)))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptOutput, err)
	}
	if got := r.NumPage(); wantPages >= 0 && got != wantPages {
		return fmt.Errorf("%w: got %d pages, want %d", ErrCorruptOutput, got, wantPages)
	}
	return nil
}
