// Package capture reads frames from a local video device.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"faceenroll/internal/dto"
	"faceenroll/internal/logger"

	"gocv.io/x/gocv"
)

// ErrCameraNotOpen is returned by Read before Open or after Close.
var ErrCameraNotOpen = errors.New("camera not open")

// Camera is a video-only capture device.
type Camera struct {
	device int
	width  int
	height int
	format string
	logger *logger.Logger

	mu      sync.Mutex
	capture *gocv.VideoCapture
	frame   gocv.Mat
	display image.Point
}

func NewCamera(device, width, height int, format string, logger *logger.Logger) *Camera {
	if format == "" {
		format = ".png"
	}
	return &Camera{
		device:  device,
		width:   width,
		height:  height,
		format:  format,
		logger:  logger,
		display: image.Pt(width, height),
	}
}

// Open starts the device and checks that it produces a frame.
func (c *Camera) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.capture != nil {
		return nil
	}

	vc, err := gocv.OpenVideoCapture(c.device)
	if err != nil {
		return fmt.Errorf("failed to open device %d: %w", c.device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return fmt.Errorf("device %d did not open", c.device)
	}
	if c.width > 0 && c.height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(c.width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(c.height))
	}

	mat := gocv.NewMat()
	if ok := vc.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		vc.Close()
		return fmt.Errorf("device %d returned no frame", c.device)
	}

	c.capture = vc
	c.frame = mat
	if c.width <= 0 || c.height <= 0 {
		c.display = image.Pt(mat.Cols(), mat.Rows())
	}
	c.logger.Info("📷 Capturing %dx%d from device %d", mat.Cols(), mat.Rows(), c.device)
	return nil
}

// Read grabs the current frame and encodes it.
func (c *Camera) Read() (dto.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.capture == nil {
		return dto.Frame{}, ErrCameraNotOpen
	}

	if ok := c.capture.Read(&c.frame); !ok || c.frame.Empty() {
		return dto.Frame{}, fmt.Errorf("device %d returned no frame", c.device)
	}
	captured := time.Now()

	buf, err := gocv.IMEncode(gocv.FileExt(c.format), c.frame)
	if err != nil {
		return dto.Frame{}, fmt.Errorf("failed to encode frame: %w", err)
	}
	defer buf.Close()

	data := make([]byte, len(buf.GetBytes()))
	copy(data, buf.GetBytes())
	return dto.Frame{Data: data, Format: c.format, CapturedAt: captured}, nil
}

// Display returns the size detections are scaled to.
func (c *Camera) Display() image.Point {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.display
}

// Close stops the device. Idempotent.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.capture == nil {
		return nil
	}
	err := c.capture.Close()
	c.frame.Close()
	c.capture = nil
	c.logger.Info("📷 Device %d closed", c.device)
	return err
}
