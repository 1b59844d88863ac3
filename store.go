package pdfjobs

import (
	"context"
	"io"
)

// BinaryStore is the external file storage the pipeline reads inputs from
// and writes results to.
type BinaryStore interface {
	// Download opens the file identified by fileID. The caller closes the reader.
	Download(ctx context.Context, fileID string) (io.ReadCloser, FileMeta, error)
	// Upload stores r under a newly minted file id.
	Upload(ctx context.Context, name string, r io.Reader, contentType string) (FileRef, error)
}

// Deleter is implemented by stores that can remove files. The pipeline uses
// it to remove the chunks of a split whose later upload failed.
type Deleter interface {
	Delete(ctx context.Context, fileID string) error
}
