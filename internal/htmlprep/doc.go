// Package htmlprep prepares HTML before it reaches the browser.
//
// It covers the two steps between template expansion and rendering:
//   - Markdown to HTML conversion via Goldmark, with syntax highlighting
//   - Localization of remote images, so Chrome loads them from disk
//
// Rendering itself lives in the root pdfjobs package, which drives headless
// Chrome through go-rod.
package htmlprep
