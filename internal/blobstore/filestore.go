package blobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/teris-io/shortid"

	pdfjobs "github.com/alnah/go-pdfjobs"
)

// Compile-time interface check
var (
	_ pdfjobs.BinaryStore = (*FileStore)(nil)
	_ pdfjobs.Deleter     = (*FileStore)(nil)
)

// FileStore keeps each file as <id>.bin next to an <id>.json metadata
// sidecar under a root directory.
type FileStore struct {
	root  string
	newID func() (string, error)
}

// NewFileStore creates root if needed.
func NewFileStore(root string) (*FileStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, ErrStoreRequired
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	return &FileStore{root: root, newID: shortid.Generate}, nil
}

// Root returns the store directory.
func (s *FileStore) Root() string {
	return s.root
}

// Upload streams r into a new file and returns its reference.
func (s *FileStore) Upload(ctx context.Context, name string, r io.Reader, contentType string) (pdfjobs.FileRef, error) {
	if err := ctx.Err(); err != nil {
		return pdfjobs.FileRef{}, err
	}
	id, err := s.newID()
	if err != nil {
		return pdfjobs.FileRef{}, fmt.Errorf("minting file id: %w", err)
	}

	tmp, err := os.CreateTemp(s.root, ".upload-*")
	if err != nil {
		return pdfjobs.FileRef{}, fmt.Errorf("creating file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	n, copyErr := io.Copy(tmp, io.LimitReader(r, MaxFileSize+1))
	closeErr := tmp.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		return pdfjobs.FileRef{}, fmt.Errorf("writing file: %w", err)
	}
	if n > MaxFileSize {
		return pdfjobs.FileRef{}, fmt.Errorf("%w: more than %d bytes", ErrFileTooLarge, MaxFileSize)
	}

	meta := pdfjobs.FileMeta{
		FileID:      id,
		Name:        sanitizeName(name, id),
		ContentType: contentType,
		Size:        n,
	}
	if err := s.writeMeta(meta); err != nil {
		return pdfjobs.FileRef{}, err
	}
	if err := os.Rename(tmp.Name(), s.dataPath(id)); err != nil {
		_ = os.Remove(s.metaPath(id))
		return pdfjobs.FileRef{}, fmt.Errorf("storing file: %w", err)
	}
	return pdfjobs.FileRef(meta), nil
}

// Download opens a stored file. The caller closes the reader.
func (s *FileStore) Download(ctx context.Context, fileID string) (io.ReadCloser, pdfjobs.FileMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, pdfjobs.FileMeta{}, err
	}
	if err := checkID(fileID); err != nil {
		return nil, pdfjobs.FileMeta{}, err
	}

	meta, err := s.readMeta(fileID)
	if err != nil {
		return nil, pdfjobs.FileMeta{}, err
	}
	f, err := os.Open(s.dataPath(fileID)) // #nosec G304 -- id checked against validID
	if err != nil {
		if os.IsNotExist(err) {
			return nil, pdfjobs.FileMeta{}, fmt.Errorf("%w: %s", ErrNotFound, fileID)
		}
		return nil, pdfjobs.FileMeta{}, fmt.Errorf("opening file: %w", err)
	}
	return f, meta, nil
}

// Delete removes a stored file and its metadata.
func (s *FileStore) Delete(_ context.Context, fileID string) error {
	if err := checkID(fileID); err != nil {
		return err
	}
	err := os.Remove(s.dataPath(fileID))
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, fileID)
	}
	if err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	if err := os.Remove(s.metaPath(fileID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting metadata: %w", err)
	}
	return nil
}

func (s *FileStore) dataPath(id string) string {
	return filepath.Join(s.root, id+".bin")
}

func (s *FileStore) metaPath(id string) string {
	return filepath.Join(s.root, id+".json")
}

func (s *FileStore) writeMeta(meta pdfjobs.FileMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	if err := os.WriteFile(s.metaPath(meta.FileID), data, 0o600); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}
	return nil
}

func (s *FileStore) readMeta(id string) (pdfjobs.FileMeta, error) {
	data, err := os.ReadFile(s.metaPath(id)) // #nosec G304 -- id checked against validID
	if err != nil {
		if os.IsNotExist(err) {
			return pdfjobs.FileMeta{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return pdfjobs.FileMeta{}, fmt.Errorf("reading metadata: %w", err)
	}
	var meta pdfjobs.FileMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return pdfjobs.FileMeta{}, fmt.Errorf("decoding metadata for %s: %w", id, err)
	}
	return meta, nil
}

// sanitizeName strips directories and control characters from a client
// supplied name, falling back to the id.
func sanitizeName(name, id string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	if name == "" || name == "." || name == "/" || name == ".." {
		return id
	}
	return name
}
