package blobstore

import (
	"errors"
	"fmt"
	"regexp"
)

// Sentinel errors shared by every store.
var (
	ErrNotFound      = errors.New("file not found")
	ErrInvalidID     = errors.New("invalid file id")
	ErrFileTooLarge  = errors.New("file exceeds maximum size")
	ErrStoreRequired = errors.New("store location is required")
)

// MaxFileSize limits a single stored file (default 100MB).
var MaxFileSize int64 = 100 << 20

// validID accepts shortid and uuid identifiers only, so ids can never
// address anything outside a store.
var validID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

func checkID(id string) error {
	if !validID.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}
