package service

import (
	"context"
	"image"

	"faceenroll/internal/dto"
	"faceenroll/internal/service/stream"
)

// FrameSource is the camera as the manager sees it.
type FrameSource interface {
	Open(ctx context.Context) error
	Read() (dto.Frame, error)
	Close() error
	Display() image.Point
}

// Publisher is the collector channel as the manager sees it.
type Publisher interface {
	Connect(ctx context.Context, endpoint string, opts stream.Options) error
	EmitFrame(label string, frame dto.Frame) error
	EmitCompletion(ctx context.Context, label string) error
	Disconnect()
	OnWarning(fn func(error))
}

// Annotator draws detections onto a frame for the local preview.
type Annotator interface {
	Annotate(frame dto.Frame, result dto.DetectionResult) ([]byte, error)
}

// Broadcaster fans a message out to local viewers.
type Broadcaster interface {
	Broadcast(msg []byte)
}

// Stopper is anything Release must stop first.
type Stopper interface {
	Stop()
}
