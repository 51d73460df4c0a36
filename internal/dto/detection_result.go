package dto

import "image"

// Region is one detected face in normalized (0..1) image coordinates.
type Region struct {
	X          float64
	Y          float64
	Width      float64
	Height     float64
	Confidence float64
}

// DetectionResult holds the regions found in one frame and the display size
// the caller wants them scaled to.
type DetectionResult struct {
	Regions []Region
	Display image.Point
}

// Count returns the number of detected regions.
func (r DetectionResult) Count() int {
	return len(r.Regions)
}

// Scaled returns the regions in display pixel coordinates, clamped to the display.
func (r DetectionResult) Scaled() []image.Rectangle {
	rects := make([]image.Rectangle, 0, len(r.Regions))
	bounds := image.Rect(0, 0, r.Display.X, r.Display.Y)
	for _, region := range r.Regions {
		x0 := int(region.X * float64(r.Display.X))
		y0 := int(region.Y * float64(r.Display.Y))
		x1 := int((region.X + region.Width) * float64(r.Display.X))
		y1 := int((region.Y + region.Height) * float64(r.Display.Y))
		rects = append(rects, image.Rect(x0, y0, x1, y1).Intersect(bounds))
	}
	return rects
}

// NormalizeRect converts a pixel rectangle within an image of the given size to a Region.
func NormalizeRect(rect image.Rectangle, size image.Point, confidence float64) Region {
	if size.X <= 0 || size.Y <= 0 {
		return Region{Confidence: confidence}
	}
	rect = rect.Intersect(image.Rect(0, 0, size.X, size.Y))
	return Region{
		X:          float64(rect.Min.X) / float64(size.X),
		Y:          float64(rect.Min.Y) / float64(size.Y),
		Width:      float64(rect.Dx()) / float64(size.X),
		Height:     float64(rect.Dy()) / float64(size.Y),
		Confidence: confidence,
	}
}
