package dto

import (
	"encoding/base64"
	"strings"
	"time"
)

// Frame is one encoded image taken from the video source. It is never modified after capture.
type Frame struct {
	Data       []byte
	Format     string // encoder extension, e.g. ".png" or ".jpg"
	CapturedAt time.Time
}

// MimeType maps the encoder extension to a media type.
func (f Frame) MimeType() string {
	switch strings.ToLower(strings.TrimPrefix(f.Format, ".")) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	default:
		return "image/png"
	}
}

// DataURL returns the frame as a base64 data URL, the form the collector stores.
func (f Frame) DataURL() string {
	return "data:" + f.MimeType() + ";base64," + base64.StdEncoding.EncodeToString(f.Data)
}
