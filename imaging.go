package pdfjobs

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"math"

	// Decoders for the formats accepted as image inputs.
	_ "image/gif"
	_ "image/jpeg"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// rasterImage is an image ready to be embedded: PNG or JPEG bytes plus
// its pixel dimensions.
type rasterImage struct {
	data          []byte
	width, height int
}

// loadImage reads image bytes in any registered format. PNG and JPEG pass
// through untouched; everything else is re-encoded as PNG.
func loadImage(data []byte) (rasterImage, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return rasterImage{}, fmt.Errorf("%w: %v", ErrUnsupportedFile, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return rasterImage{}, fmt.Errorf("%w: empty image", ErrUnsupportedFile)
	}
	if format == "png" || format == "jpeg" {
		return rasterImage{data: data, width: cfg.Width, height: cfg.Height}, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return rasterImage{}, fmt.Errorf("%w: %v", ErrUnsupportedFile, err)
	}
	return encodePNG(img)
}

// fitAspect resamples the image so its pixel ratio matches w:h. Images
// already at that ratio are returned unchanged.
func (r rasterImage) fitAspect(w, h float64) (rasterImage, error) {
	if sameAspect(r.width, r.height, w, h) {
		return r, nil
	}
	src, _, err := image.Decode(bytes.NewReader(r.data))
	if err != nil {
		return rasterImage{}, fmt.Errorf("%w: %v", ErrUnsupportedFile, err)
	}
	pxW := r.width
	pxH := max(1, int(math.Round(float64(pxW)*h/w)))
	dst := image.NewRGBA(image.Rect(0, 0, pxW, pxH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return encodePNG(dst)
}

// resize resamples the image to exactly w×h pixels. An image already at
// that size is returned unchanged.
func (r rasterImage) resize(w, h int) (rasterImage, error) {
	if w <= 0 || h <= 0 {
		return rasterImage{}, fmt.Errorf("%w: target size %dx%d", ErrUnsupportedFile, w, h)
	}
	if r.width == w && r.height == h {
		return r, nil
	}
	src, _, err := image.Decode(bytes.NewReader(r.data))
	if err != nil {
		return rasterImage{}, fmt.Errorf("%w: %v", ErrUnsupportedFile, err)
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return encodePNG(dst)
}

// scaleFor returns the uniform factor that maps the image width onto w points.
func (r rasterImage) scaleFor(w float64) float64 {
	return w / float64(r.width)
}

func encodePNG(img image.Image) (rasterImage, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return rasterImage{}, fmt.Errorf("encoding png: %w", err)
	}
	b := img.Bounds()
	return rasterImage{data: buf.Bytes(), width: b.Dx(), height: b.Dy()}, nil
}
