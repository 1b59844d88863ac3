//go:build integration

package pdfjobs

// Notes:
// - Requires Chrome (set ROD_BROWSER_BIN or let rod download Chromium).
// - Run with: go test -tags integration -run Integration ./...

import (
	"bytes"
	"context"
	"image/png"
	"os"
	"testing"
	"time"
)

const integrationTimeout = 60 * time.Second

func TestIntegration_RodRenderer(t *testing.T) {
	r := NewRodRenderer(integrationTimeout, t.TempDir())
	t.Cleanup(func() { _ = r.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), integrationTimeout)
	defer cancel()

	t.Run("pdf", func(t *testing.T) {
		path, err := r.RenderPDF(ctx, "<h1>Invoice</h1><p>Total: 42</p>", &PageSettings{Size: "letter"})
		if err != nil {
			t.Fatalf("RenderPDF() error = %v", err)
		}
		defer func() { _ = os.Remove(path) }()

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile() error = %v", err)
		}
		if !bytes.HasPrefix(data, []byte("%PDF-")) {
			t.Fatalf("output is not a PDF: %q", data[:min(10, len(data))])
		}
		sizes, err := newPDFCPUEngine().PageSizes(data)
		if err != nil {
			t.Fatalf("PageSizes() error = %v", err)
		}
		if len(sizes) != 1 || sizes[0].Width != 612 {
			t.Errorf("page sizes = %v, want one letter page", sizes)
		}
	})

	t.Run("band image", func(t *testing.T) {
		path, err := r.RenderImage(ctx, `<div style="background:#c00;height:100%">Header</div>`, 300, 40)
		if err != nil {
			t.Fatalf("RenderImage() error = %v", err)
		}
		defer func() { _ = os.Remove(path) }()

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile() error = %v", err)
		}
		cfg, err := png.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("DecodeConfig() error = %v", err)
		}
		if cfg.Width != 600 || cfg.Height != 80 {
			t.Errorf("band image = %dx%d, want 600x80", cfg.Width, cfg.Height)
		}
	})

	t.Run("header footer", func(t *testing.T) {
		c := NewCompositor(r)
		out, err := c.OverlayBands(ctx, buildPDF(612, 612),
			&Band{HTML: "<p>Header</p>", Height: 40},
			&Band{Image: pngBytes(600, 60), Height: 30},
		)
		if err != nil {
			t.Fatalf("OverlayBands() error = %v", err)
		}
		if err := verifyDocument(out, 2); err != nil {
			t.Errorf("verifyDocument() error = %v", err)
		}
	})
}
