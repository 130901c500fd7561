package sink

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/phobologic/phpconsistent/internal/model"
)

// File appends one line per failure to a log file.
type File struct {
	mu sync.Mutex
	f  *os.File
}

// NewFile opens path for appending, creating it if needed.
func NewFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening failure log: %w", err)
	}
	return &File{f: f}, nil
}

func (s *File) Write(_ context.Context, f model.Failure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintln(s.f, f.String())
	return err
}

func (s *File) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
