package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/sofatutor/llm-observer/internal/eventbus"
)

// FileBackend appends records as JSON lines to a local file. Useful for
// inspecting the pipeline without a collector.
type FileBackend struct {
	filepath string
	file     *os.File
	mu       sync.Mutex
}

// NewFileBackend creates an uninitialized file backend.
func NewFileBackend() *FileBackend {
	return &FileBackend{}
}

// Init opens the target file for appending. cfg["filepath"] is required.
func (b *FileBackend) Init(cfg map[string]string) error {
	filepath, ok := cfg["filepath"]
	if !ok || filepath == "" {
		return fmt.Errorf("filepath is required for file backend")
	}
	b.filepath = filepath

	file, err := os.OpenFile(filepath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", filepath, err)
	}
	b.file = file
	return nil
}

// SendEvents writes one JSON line per record and syncs to disk.
func (b *FileBackend) SendEvents(ctx context.Context, events []eventbus.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.file == nil {
		return fmt.Errorf("file backend not initialized")
	}
	for _, evt := range events {
		data, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		if _, err := b.file.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("failed to write to file: %w", err)
		}
	}
	return b.file.Sync()
}

// Close closes the file handle.
func (b *FileBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.file != nil {
		return b.file.Close()
	}
	return nil
}
