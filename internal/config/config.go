package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// DefaultQuota is the number of accepted frames an enrollment needs.
	DefaultQuota = 25
	// DefaultIntervalMs is the sampling period in milliseconds.
	DefaultIntervalMs = 100
	// DefaultCollectorURL is the remote collector the frames are streamed to.
	DefaultCollectorURL = "https://ebitsvisionai.in"
)

// DetectorOptions is handed to the face detector as-is.
type DetectorOptions struct {
	Backend            string // "cascade" or "dnn"
	CascadePath        string
	ModelPath          string
	ConfigPath         string
	DetectionThreshold float64
	MinFaceSize        int
}

type Config struct {
	CollectorURL string
	Label        string

	Quota      int
	IntervalMs int

	CameraDevice int
	FrameWidth   int
	FrameHeight  int
	ImageFormat  string

	Detector DetectorOptions

	RequireAck     bool          // wait for the collector to acknowledge "train"
	AckTimeout     time.Duration // how long to wait for that acknowledgment
	ConnectTimeout time.Duration
	DrainTimeout   time.Duration // upper bound on flushing queued frames at disconnect
	SendQueue      int

	MaxCaptureFailures int // consecutive camera read failures before the session fails

	LogDirectory string
	LogLevel     string
	DatabasePath string

	StatusPort  int // 0 disables the local status server
	StatusToken string
}

// Load reads an optional .env file and then the process environment.
func Load() *Config {
	// A missing .env is the normal case outside development.
	_ = godotenv.Load()

	return &Config{
		CollectorURL: getEnv("COLLECTOR_URL", DefaultCollectorURL),
		Label:        getEnv("ENROLL_LABEL", ""),
		Quota:        getEnvAsInt("QUOTA", DefaultQuota),
		IntervalMs:   getEnvAsInt("INTERVAL_MS", DefaultIntervalMs),
		CameraDevice: getEnvAsInt("CAMERA_DEVICE", 0),
		FrameWidth:   getEnvAsInt("FRAME_WIDTH", 640),
		FrameHeight:  getEnvAsInt("FRAME_HEIGHT", 480),
		ImageFormat:  getEnv("IMAGE_FORMAT", ".png"),
		Detector: DetectorOptions{
			Backend:            getEnv("DETECTOR_BACKEND", "cascade"),
			CascadePath:        getEnv("CASCADE_PATH", filepath.Join(".", "models", "haarcascade_frontalface_default.xml")),
			ModelPath:          getEnv("MODEL_PATH", filepath.Join(".", "models", "res10_300x300_ssd_iter_140000.caffemodel")),
			ConfigPath:         getEnv("CONFIG_PATH", filepath.Join(".", "models", "deploy.prototxt")),
			DetectionThreshold: getEnvAsFloat("DETECTION_THRESHOLD", 0.5),
			MinFaceSize:        getEnvAsInt("MIN_FACE_SIZE", 80),
		},
		RequireAck:         getEnvAsBool("REQUIRE_ACK", false),
		AckTimeout:         getEnvAsDuration("ACK_TIMEOUT", 10*time.Second),
		ConnectTimeout:     getEnvAsDuration("CONNECT_TIMEOUT", 10*time.Second),
		DrainTimeout:       getEnvAsDuration("DRAIN_TIMEOUT", 5*time.Second),
		SendQueue:          getEnvAsInt("SEND_QUEUE", 64),
		MaxCaptureFailures: getEnvAsInt("MAX_CAPTURE_FAILURES", 10),
		LogDirectory:       getEnv("LOG_DIR", filepath.Join(".", "logs")),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DatabasePath:       getEnv("DB_PATH", filepath.Join(".", "data", "enroll.db")),
		StatusPort:         getEnvAsInt("STATUS_PORT", 0),
		StatusToken:        getEnv("STATUS_TOKEN", ""),
	}
}

// Interval returns the sampling period as a duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}

// Validate reports the first setting that would make a session impossible.
func (c *Config) Validate() error {
	if c.Quota < 1 {
		return fmt.Errorf("quota must be at least 1, got %d", c.Quota)
	}
	if c.IntervalMs <= 0 {
		return fmt.Errorf("interval must be positive, got %dms", c.IntervalMs)
	}
	if strings.TrimSpace(c.CollectorURL) == "" {
		return fmt.Errorf("collector url is required")
	}
	switch c.Detector.Backend {
	case "cascade", "dnn":
	default:
		return fmt.Errorf("unknown detector backend %q", c.Detector.Backend)
	}
	if c.SendQueue < 1 {
		return fmt.Errorf("send queue must be at least 1, got %d", c.SendQueue)
	}
	if c.MaxCaptureFailures < 1 {
		return fmt.Errorf("max capture failures must be at least 1, got %d", c.MaxCaptureFailures)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("750ms") or a bare number of seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
