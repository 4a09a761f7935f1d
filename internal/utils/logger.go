package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// Logger writes level-prefixed lines to stdout or a file. It is safe for
// concurrent use by scan workers and request handlers.
type Logger struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	logger *log.Logger
}

// NewLogger creates a logger appending to filePath, or writing to stdout when
// filePath is empty.
func NewLogger(filePath string) (*Logger, error) {
	if filePath == "" {
		return NewWriterLogger(os.Stdout), nil
	}
	file, err := openLog(filePath)
	if err != nil {
		return nil, err
	}
	return &Logger{
		path:   filePath,
		file:   file,
		logger: log.New(file, "", log.LstdFlags),
	}, nil
}

// NewWriterLogger creates a logger on w; tests pass io.Discard or a buffer.
func NewWriterLogger(w io.Writer) *Logger {
	return &Logger{logger: log.New(w, "", log.LstdFlags)}
}

func openLog(path string) (*os.File, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return file, nil
}

func (l *Logger) print(prefix, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.SetPrefix(prefix)
	l.logger.Println(msg)
}

// Info logs an info message
func (l *Logger) Info(msg string) { l.print("INFO: ", msg) }

// Warn logs a warning message
func (l *Logger) Warn(msg string) { l.print("WARN: ", msg) }

// Error logs an error message
func (l *Logger) Error(msg string) { l.print("ERROR: ", msg) }

func (l *Logger) Infof(format string, args ...any)  { l.Info(fmt.Sprintf(format, args...)) }
func (l *Logger) Warnf(format string, args ...any)  { l.Warn(fmt.Sprintf(format, args...)) }
func (l *Logger) Errorf(format string, args ...any) { l.Error(fmt.Sprintf(format, args...)) }

// Reopen closes and reopens the log file so an external rotator can move it
// away. Stdout loggers are left alone.
func (l *Logger) Reopen() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	file, err := openLog(l.path)
	if err != nil {
		return err
	}
	l.file.Close()
	l.file = file
	l.logger.SetOutput(file)
	return nil
}

// Close closes the log file, if any.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}
