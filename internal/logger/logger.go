package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Logger provides leveled logging (debug/info/warning/error) to files and a console writer.
type Logger struct {
	debugLog   *log.Logger
	infoLog    *log.Logger
	warningLog *log.Logger
	errorLog   *log.Logger
	debug      bool
	logDir     string
	files      []*os.File
	mu         sync.Mutex
}

const flags = log.Ldate | log.Ltime | log.Lmicroseconds

// NewLogger creates a Logger that writes each level to its own file in logDir
// and mirrors everything to console.
func NewLogger(logDir, level string, console io.Writer) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	l := &Logger{logDir: logDir, debug: strings.EqualFold(level, "debug")}

	infoFile, err := l.openLogFile("info.log")
	if err != nil {
		return nil, err
	}
	warningFile, err := l.openLogFile("warning.log")
	if err != nil {
		l.Close()
		return nil, err
	}
	errorFile, err := l.openLogFile("error.log")
	if err != nil {
		l.Close()
		return nil, err
	}

	l.setupLoggers(
		io.MultiWriter(console, infoFile),
		io.MultiWriter(console, warningFile),
		io.MultiWriter(console, errorFile),
	)
	return l, nil
}

// New creates a console-only Logger. Tests pass io.Discard.
func New(w io.Writer) *Logger {
	l := &Logger{}
	l.setupLoggers(w, w, w)
	return l
}

func (l *Logger) setupLoggers(info, warning, errw io.Writer) {
	l.debugLog = log.New(info, "🔍 DEBUG   ", flags)
	l.infoLog = log.New(info, "ℹ️  INFO    ", flags)
	l.warningLog = log.New(warning, "⚠️  WARNING ", flags)
	l.errorLog = log.New(errw, "❌ ERROR   ", flags)
}

// openLogFile opens or creates a log file for appending.
func (l *Logger) openLogFile(name string) (*os.File, error) {
	file, err := os.OpenFile(filepath.Join(l.logDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", name, err)
	}
	l.files = append(l.files, file)
	return file, nil
}

// Debug writes a formatted debug-level entry when debug logging is enabled.
func (l *Logger) Debug(format string, v ...interface{}) {
	if !l.debug {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debugLog.Printf(format, v...)
}

// Info writes a formatted info-level log entry.
func (l *Logger) Info(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infoLog.Printf(format, v...)
}

// Warning writes a formatted warning-level log entry.
func (l *Logger) Warning(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warningLog.Printf(format, v...)
}

// Error writes a formatted error-level log entry.
func (l *Logger) Error(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errorLog.Printf(format, v...)
}

// Dir returns the directory holding the level files, empty for console-only loggers.
func (l *Logger) Dir() string {
	return l.logDir
}

// CleanLogs truncates the specified log file.
func (l *Logger) CleanLogs(fileName string) error {
	if l.logDir == "" {
		return nil
	}
	filePath := filepath.Join(l.logDir, filepath.Base(fileName))

	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := os.OpenFile(filePath, os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to truncate %s: %w", fileName, err)
	}
	return file.Close()
}

// Close closes the underlying log files.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, f := range l.files {
		f.Close()
	}
	l.files = nil
}
