package mealprep

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// CoordinationLogger records every completion attempt made on behalf of a request.
type CoordinationLogger interface {
	LogAttempt(attempt AttemptLog) error
}

// NewCoordinationLogFilePath returns a file path based on a cleaned up model name or id to make it easier to identify logs produced with various models.
func NewCoordinationLogFilePath(dir, model string) string {
	name := strings.NewReplacer(":", "_", "/", "_").Replace(strings.ToLower(model))
	return filepath.Join(dir, fmt.Sprintf("%d.%s.json", time.Now().Unix(), name))
}

// AttemptLog represents a single completion attempt.
type AttemptLog struct {
	Operation string    `json:"operation"`
	Attempt   int       `json:"attempt"`
	Timestamp time.Time `json:"timestamp"`
	Schema    string    `json:"schema,omitempty"`
	Prompt    string    `json:"prompt,omitempty"`
	Output    string    `json:"output,omitempty"`
	Valid     bool      `json:"valid"`
	Error     string    `json:"error,omitempty"`
}

// FileCoordinationLogger accumulates attempts and flushes them as one JSON document.
type FileCoordinationLogger struct {
	mu       sync.Mutex
	attempts []AttemptLog
	writer   io.Writer
}

func NewFileCoordinationLogger(writer io.Writer) *FileCoordinationLogger {
	return &FileCoordinationLogger{
		attempts: make([]AttemptLog, 0),
		writer:   writer,
	}
}

// LogAttempt buffers the attempt; nothing is written until Flush.
func (fcl *FileCoordinationLogger) LogAttempt(attempt AttemptLog) error {
	fcl.mu.Lock()
	defer fcl.mu.Unlock()
	fcl.attempts = append(fcl.attempts, attempt)
	return nil
}

// Flush writes all buffered attempts to the writer and clears the buffer.
func (fcl *FileCoordinationLogger) Flush() error {
	fcl.mu.Lock()
	defer fcl.mu.Unlock()

	if fcl.writer == nil {
		return nil
	}

	data, err := json.MarshalIndent(map[string]any{
		"coordination_session": map[string]any{
			"timestamp": time.Now(),
			"attempts":  fcl.attempts,
		},
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal coordination log: %w", err)
	}

	if _, err := fcl.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write coordination log: %w", err)
	}

	fcl.attempts = fcl.attempts[:0]
	return nil
}

// NoOpCoordinationLogger discards all attempts.
type NoOpCoordinationLogger struct{}

func NewNoOpCoordinationLogger() *NoOpCoordinationLogger {
	return &NoOpCoordinationLogger{}
}

func (nop *NoOpCoordinationLogger) LogAttempt(attempt AttemptLog) error {
	return nil
}

// StdoutCoordinationLogger writes each attempt as a JSON line (for Lambda/CloudWatch).
type StdoutCoordinationLogger struct {
	w io.Writer
}

func NewStdoutCoordinationLogger() *StdoutCoordinationLogger {
	return &StdoutCoordinationLogger{w: os.Stdout}
}

func (l *StdoutCoordinationLogger) LogAttempt(attempt AttemptLog) error {
	data, err := json.Marshal(attempt)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(l.w, string(data))
	return err
}
