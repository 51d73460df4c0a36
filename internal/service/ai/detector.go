package ai

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"sync"

	"faceenroll/internal/config"
	"faceenroll/internal/dto"
	"faceenroll/internal/logger"

	"gocv.io/x/gocv"
)

const (
	BackendCascade = "cascade"
	BackendDNN     = "dnn"

	// DetectionThreshold is the default minimum confidence for DNN detections.
	DetectionThreshold = 0.5
)

// DetectorService finds faces in encoded frames, either with a Haar cascade
// or with an SSD face network.
type DetectorService struct {
	backend   string
	cascade   gocv.CascadeClassifier
	net       gocv.Net
	threshold float64
	minSize   image.Point
	display   image.Point
	mu        sync.Mutex
	closed    bool
	logger    *logger.Logger
}

// ErrDetectorClosed is returned by Detect after Close.
var ErrDetectorClosed = errors.New("face detector closed")

// NewDetectorService loads the configured backend. display is the size
// results are scaled to; a zero value means the frame's own size.
func NewDetectorService(opts config.DetectorOptions, display image.Point, logger *logger.Logger) (*DetectorService, error) {
	s := &DetectorService{
		backend:   opts.Backend,
		threshold: opts.DetectionThreshold,
		minSize:   image.Pt(opts.MinFaceSize, opts.MinFaceSize),
		display:   display,
		logger:    logger,
	}
	if s.threshold <= 0 {
		s.threshold = DetectionThreshold
	}

	var err error
	switch opts.Backend {
	case BackendCascade:
		err = s.initializeCascade(opts.CascadePath)
	case BackendDNN:
		err = s.initializeNet(opts.ModelPath, opts.ConfigPath)
	default:
		err = fmt.Errorf("unknown detector backend %q", opts.Backend)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *DetectorService) initializeCascade(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("cascade file not found: %s", path)
	}

	s.cascade = gocv.NewCascadeClassifier()
	if !s.cascade.Load(path) {
		s.cascade.Close()
		return fmt.Errorf("failed to load cascade %s", path)
	}
	s.logger.Info("Face cascade loaded from %s", path)
	return nil
}

// initializeNet loads the face network from model and config files
func (s *DetectorService) initializeNet(modelPath, configPath string) error {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", modelPath)
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", configPath)
	}

	net := gocv.ReadNet(modelPath, configPath)
	if net.Empty() {
		return fmt.Errorf("failed to load network")
	}
	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return fmt.Errorf("failed to set preferable backend or target")
	}

	s.net = net
	s.logger.Info("Face detection network initialized successfully")
	return nil
}

// Detect returns the faces found in frame. The native call cannot be
// interrupted, so ctx is checked before and after it.
func (s *DetectorService) Detect(ctx context.Context, frame dto.Frame) (dto.DetectionResult, error) {
	if err := ctx.Err(); err != nil {
		return dto.DetectionResult{}, err
	}

	mat, err := gocv.IMDecode(frame.Data, gocv.IMReadColor)
	if err != nil {
		return dto.DetectionResult{}, fmt.Errorf("failed to decode image: %v", err)
	}
	defer mat.Close()
	if mat.Empty() {
		return dto.DetectionResult{}, fmt.Errorf("decoded image is empty")
	}

	size := image.Pt(mat.Cols(), mat.Rows())
	result := dto.DetectionResult{Display: s.display}
	if result.Display.X <= 0 || result.Display.Y <= 0 {
		result.Display = size
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return dto.DetectionResult{}, ErrDetectorClosed
	}
	if s.backend == BackendDNN {
		result.Regions = s.detectNet(mat)
	} else {
		result.Regions, err = s.detectCascade(mat, size)
	}
	s.mu.Unlock()
	if err != nil {
		return dto.DetectionResult{}, err
	}

	if err := ctx.Err(); err != nil {
		return dto.DetectionResult{}, err
	}
	if n := result.Count(); n > 0 {
		s.logger.Debug("Detected %d face(s)", n)
	}
	return result, nil
}

func (s *DetectorService) detectCascade(mat gocv.Mat, size image.Point) ([]dto.Region, error) {
	gray := gocv.NewMat()
	defer gray.Close()
	if err := gocv.CvtColor(mat, &gray, gocv.ColorBGRToGray); err != nil {
		return nil, fmt.Errorf("failed to convert image to grayscale: %v", err)
	}
	gocv.EqualizeHist(gray, &gray)

	rects := s.cascade.DetectMultiScaleWithParams(gray, 1.1, 5, 0, s.minSize, image.Point{})
	regions := make([]dto.Region, 0, len(rects))
	for _, rect := range rects {
		regions = append(regions, dto.NormalizeRect(rect, size, 1))
	}
	return regions, nil
}

// detectNet runs the SSD network. Output rows are
// [batch, class, confidence, x0, y0, x1, y1] with normalized corners.
func (s *DetectorService) detectNet(mat gocv.Mat) []dto.Region {
	blob := gocv.BlobFromImage(mat, 1.0, image.Pt(300, 300), gocv.NewScalar(104, 177, 123, 0), false, false)
	defer blob.Close()

	s.net.SetInput(blob, "")
	output := s.net.Forward("")
	defer output.Close()

	var regions []dto.Region
	outputReshaped := output.Reshape(1, output.Total()/7)
	defer outputReshaped.Close()
	for i := 0; i < outputReshaped.Rows(); i++ {
		confidence := float64(outputReshaped.GetFloatAt(i, 2))
		if confidence <= s.threshold {
			continue
		}
		x0 := clamp01(float64(outputReshaped.GetFloatAt(i, 3)))
		y0 := clamp01(float64(outputReshaped.GetFloatAt(i, 4)))
		x1 := clamp01(float64(outputReshaped.GetFloatAt(i, 5)))
		y1 := clamp01(float64(outputReshaped.GetFloatAt(i, 6)))
		if x1 <= x0 || y1 <= y0 {
			continue
		}
		regions = append(regions, dto.Region{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0, Confidence: confidence})
	}
	return regions
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// Annotate draws the detected regions on a copy of frame and re-encodes it.
func (s *DetectorService) Annotate(frame dto.Frame, result dto.DetectionResult) ([]byte, error) {
	green := color.RGBA{R: 0, G: 255, B: 0, A: 0}

	mat, err := gocv.IMDecode(frame.Data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %v", err)
	}
	defer mat.Close()

	// Draw in the frame's own pixel space.
	onFrame := dto.DetectionResult{Regions: result.Regions, Display: image.Pt(mat.Cols(), mat.Rows())}
	for i, rect := range onFrame.Scaled() {
		if err := gocv.Rectangle(&mat, rect, green, 2); err != nil {
			return nil, fmt.Errorf("failed to draw rectangle: %v", err)
		}

		label := fmt.Sprintf("face (%.2f)", result.Regions[i].Confidence)
		pt := image.Pt(rect.Min.X, rect.Min.Y-5)
		if err := gocv.PutText(&mat, label, pt, gocv.FontHersheySimplex, 0.5, green, 1); err != nil {
			return nil, fmt.Errorf("failed to draw text: %v", err)
		}
	}

	format := frame.Format
	if format == "" {
		format = ".jpg"
	}
	buf, err := gocv.IMEncode(gocv.FileExt(format), mat)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %v", err)
	}
	defer buf.Close()
	annotated := make([]byte, len(buf.GetBytes()))
	copy(annotated, buf.GetBytes())
	return annotated, nil
}

// Close frees the classifier or network. It waits for a running detection.
func (s *DetectorService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	switch s.backend {
	case BackendCascade:
		s.cascade.Close()
	case BackendDNN:
		s.net.Close()
	}
}
