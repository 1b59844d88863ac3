// Package hints provides actionable error hints for common failure scenarios.
// Hints are formatted consistently as "\n  hint: <text>" for appending to error messages.
package hints

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/alnah/go-pdfjobs/internal/fileutil"
)

// IsInContainer detects if running inside a Docker container or similar.
// Checks for /.dockerenv file which Docker creates automatically.
var IsInContainer = func() bool {
	return fileutil.FileExists("/.dockerenv")
}

// ForBrowserConnect returns hints for browser connection errors.
func ForBrowserConnect() string {
	var hints []string

	inCI := os.Getenv("CI") != "" ||
		os.Getenv("GITHUB_ACTIONS") != "" ||
		os.Getenv("GITLAB_CI") != "" ||
		os.Getenv("JENKINS_URL") != ""

	if (inCI || IsInContainer()) && os.Getenv("ROD_NO_SANDBOX") != "1" {
		hints = append(hints, "set ROD_NO_SANDBOX=1 for Docker/CI")
	}
	if os.Getenv("ROD_BROWSER_BIN") == "" {
		hints = append(hints, "set ROD_BROWSER_BIN to use custom Chrome")
	}

	return formatHints(hints)
}

// ForConfigNotFound suggests --config or creating the searched file in the
// user config directory (.../pdfjobs/).
func ForConfigNotFound(searchedPaths []string) string {
	hint := "use --config /path/to/file.yaml"

	for _, p := range searchedPaths {
		if filepath.Base(filepath.Dir(p)) == "pdfjobs" {
			hint += " or create " + p
			break
		}
	}

	return format(hint)
}

// ForStore returns hints for binary store setup errors.
func ForStore(driver string) string {
	switch driver {
	case "postgres":
		return format("check PDFJOBS_DATABASE_URL and that the database accepts connections")
	case "fs":
		return format("check store.path exists and is writable")
	}
	return format("store.driver must be fs or postgres")
}

// ForAddrInUse returns a hint when the listen address is taken.
func ForAddrInUse(addr string) string {
	return format("another process listens on " + addr + "; use --addr or PDFJOBS_ADDR")
}

// ForPageSelection explains the file.pdf[:from-to] syntax of the merge command.
func ForPageSelection() string {
	return format("select pages with file.pdf:2-5, file.pdf:3- or file.pdf:-4")
}

// format creates a single hint string with consistent formatting.
func format(hint string) string {
	if hint == "" {
		return ""
	}
	return "\n  hint: " + hint
}

// formatHints joins multiple hints with consistent formatting.
func formatHints(hints []string) string {
	if len(hints) == 0 {
		return ""
	}
	return format(strings.Join(hints, "; "))
}
