package pdfjobs

import "math"

// Rect is an axis-aligned rectangle in PDF points, origin bottom-left.
type Rect struct {
	X, Y, Width, Height float64
}

// PageSize is a page's media box dimensions in PDF points.
type PageSize struct {
	Width, Height float64
}

// Default placement used when an ImagePlacement leaves a field unset.
const (
	DefaultImageX      = 20.0
	DefaultImageY      = 20.0
	DefaultImageWidth  = 100.0
	DefaultImageHeight = 100.0
)

// placementRect resolves the explicit rectangle, filling unset fields with defaults.
func placementRect(p ImagePlacement) Rect {
	return Rect{
		X:      floatOr(p.X, DefaultImageX),
		Y:      floatOr(p.Y, DefaultImageY),
		Width:  floatOr(p.Width, DefaultImageWidth),
		Height: floatOr(p.Height, DefaultImageHeight),
	}
}

// coverRect scales an image uniformly so it covers the whole page, anchored
// at the top-left corner. At least one dimension equals the page exactly;
// overflow leaves the page on the right or bottom edge.
func coverRect(page PageSize, imgW, imgH float64) Rect {
	sx := page.Width / imgW
	sy := page.Height / imgH
	var w, h float64
	if sx >= sy {
		w, h = page.Width, imgH*sx
	} else {
		w, h = imgW*sy, page.Height
	}
	return Rect{X: 0, Y: page.Height - h, Width: w, Height: h}
}

// headerRect is the full-width band at the top of the page.
func headerRect(page PageSize, height float64) Rect {
	return Rect{X: 0, Y: page.Height - height, Width: page.Width, Height: height}
}

// footerRect is the full-width band at the bottom of the page.
func footerRect(page PageSize, height float64) Rect {
	return Rect{X: 0, Y: 0, Width: page.Width, Height: height}
}

// sameAspect reports whether two width/height ratios match within half a pixel.
func sameAspect(pxW, pxH int, w, h float64) bool {
	want := float64(pxW) * h / w
	return math.Abs(want-float64(pxH)) < 0.5
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}
