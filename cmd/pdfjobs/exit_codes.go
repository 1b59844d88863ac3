package main

import (
	"errors"
	"os"

	"github.com/alnah/go-pdfjobs"
	"github.com/alnah/go-pdfjobs/internal/blobstore"
	"github.com/alnah/go-pdfjobs/internal/config"
	"github.com/alnah/go-pdfjobs/internal/logging"
)

// Exit codes for the pdfjobs CLI.
// Follows Unix conventions: 0=success, 1=general, 2=usage, and custom codes < 126.
const (
	ExitSuccess = 0 // Command completed
	ExitGeneral = 1 // General/unexpected error
	ExitUsage   = 2 // Invalid flags, config, or validation
	ExitIO      = 3 // File not found, permission denied, store failures
	ExitBrowser = 4 // Browser/Chrome errors
)

// CLI errors.
var (
	ErrUnknownCommand   = errors.New("unknown command")
	ErrInvalidFlags     = errors.New("invalid flags")
	ErrMissingArgs      = errors.New("missing arguments")
	ErrInvalidSelection = errors.New("invalid page selection")
	ErrReadInput        = errors.New("failed to read input")
	ErrWriteOutput      = errors.New("failed to write output")
	ErrListen           = errors.New("failed to listen")
	ErrOpenStore        = errors.New("failed to open binary store")
)

// exitCodeFor returns the appropriate exit code for an error.
// It uses errors.Is to check wrapped errors, so callers must use fmt.Errorf("%w", err).
func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	// Browser errors (exit 4)
	if errors.Is(err, pdfjobs.ErrBrowserConnect) ||
		errors.Is(err, pdfjobs.ErrPageCreate) ||
		errors.Is(err, pdfjobs.ErrPageLoad) ||
		errors.Is(err, pdfjobs.ErrRender) {
		return ExitBrowser
	}

	// I/O errors (exit 3)
	if errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, os.ErrPermission) ||
		errors.Is(err, ErrReadInput) ||
		errors.Is(err, ErrWriteOutput) ||
		errors.Is(err, ErrListen) ||
		errors.Is(err, ErrOpenStore) ||
		errors.Is(err, pdfjobs.ErrReadDocument) ||
		errors.Is(err, pdfjobs.ErrWriteDocument) ||
		errors.Is(err, blobstore.ErrNotFound) {
		return ExitIO
	}

	// Usage/config/validation errors (exit 2)
	if errors.Is(err, ErrInvalidFlags) ||
		errors.Is(err, ErrMissingArgs) ||
		errors.Is(err, ErrInvalidSelection) ||
		errors.Is(err, config.ErrConfigNotFound) ||
		errors.Is(err, config.ErrEmptyConfigName) ||
		errors.Is(err, config.ErrConfigParse) ||
		errors.Is(err, config.ErrInvalidValue) ||
		errors.Is(err, logging.ErrInvalidLevel) ||
		errors.Is(err, pdfjobs.ErrEmptySelection) ||
		errors.Is(err, pdfjobs.ErrPageOutOfRange) ||
		pdfjobs.IsValidation(err) {
		return ExitUsage
	}

	return ExitGeneral
}
