package sink

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/phobologic/phpconsistent/internal/model"
)

var (
	kindStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#E06C75"))
	locationStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7F848E"))
	targetStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#61AFEF"))
)

// Console prints styled failures to a writer, typically stdout.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole returns a console sink writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (s *Console) Write(_ context.Context, f model.Failure) error {
	line := fmt.Sprintf("%s %s %s\n    %s",
		kindStyle.Render(fmt.Sprintf("[%s]", f.Kind)),
		targetStyle.Render(f.Target),
		locationStyle.Render(fmt.Sprintf("%s:%d", f.File, f.Line)),
		f.Message())

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintln(s.w, line)
	return err
}

func (s *Console) Close() error { return nil }
