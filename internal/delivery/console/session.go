package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/rs/zerolog/log"

	"github.com/shelflens/backend/internal/domain"
)

const helpText = `Enter one or more image paths separated by spaces.
One path scores a single photo, several paths are treated as views of the same shelf.

Commands:
  :format table|json|yaml   change the output format
  :help                     show this help
  :quit                     leave the session`

// Analyzer runs a shelf analysis over uploaded images
type Analyzer interface {
	Analyze(ctx context.Context, images []domain.ImageInput) (*domain.ShelfAnalysis, error)
}

// lineReader is the part of *readline.Instance the loop needs
type lineReader interface {
	Readline() (string, error)
}

// Session is an interactive prompt that analyzes image files
type Session struct {
	analyzer Analyzer
	format   Format
	out      io.Writer
	readFile func(string) ([]byte, error)
}

// NewSession creates a session printing to out
func NewSession(analyzer Analyzer, format Format, out io.Writer) *Session {
	if format == "" {
		format = FormatTable
	}
	return &Session{
		analyzer: analyzer,
		format:   format,
		out:      out,
		readFile: os.ReadFile,
	}
}

// RunOnce analyzes the given files and prints the result
func (s *Session) RunOnce(ctx context.Context, paths []string) error {
	images, err := s.loadImages(paths)
	if err != nil {
		return err
	}

	result, err := s.analyzer.Analyze(ctx, images)
	if err != nil {
		return err
	}

	return Render(s.out, s.format, result)
}

// Interactive reads paths from a readline prompt until EOF, interrupt or :quit
func (s *Session) Interactive(ctx context.Context) error {
	historyFile := ""
	if home, err := os.UserHomeDir(); err == nil {
		historyFile = filepath.Join(home, ".shelflens_history")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "shelf> ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       ":quit",
		Stdout:          s.out,
	})
	if err != nil {
		return fmt.Errorf("start prompt: %w", err)
	}
	defer func() {
		_ = rl.Close()
	}()

	fmt.Fprintln(s.out, "ShelfLens console. Type :help for usage.")
	return s.loop(ctx, rl)
}

func (s *Session) loop(ctx context.Context, lines lineReader) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		line, err := lines.Readline()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, readline.ErrInterrupt) {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, ":") {
			if quit := s.command(line[1:]); quit {
				return nil
			}
			continue
		}

		if err := s.RunOnce(ctx, splitPaths(line)); err != nil {
			log.Debug().Err(err).Msg("console analysis failed")
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	}
}

// command runs a ":" command and reports whether the session should end
func (s *Session) command(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		fmt.Fprintln(s.out, helpText)
		return false
	}

	switch fields[0] {
	case "q", "quit", "exit":
		return true
	case "format":
		if len(fields) != 2 {
			fmt.Fprintf(s.out, "format is %s\n", s.format)
			return false
		}
		format, err := ParseFormat(fields[1])
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
			return false
		}
		s.format = format
		fmt.Fprintf(s.out, "format set to %s\n", format)
	default:
		fmt.Fprintln(s.out, helpText)
	}
	return false
}

// loadImages reads each file; the media type is left for the encoder to sniff
func (s *Session) loadImages(paths []string) ([]domain.ImageInput, error) {
	if len(paths) == 0 {
		return nil, domain.ErrNoImageData
	}

	images := make([]domain.ImageInput, 0, len(paths))
	for _, path := range paths {
		data, err := s.readFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
		}
		images = append(images, domain.ImageInput{
			Filename: filepath.Base(path),
			Data:     data,
		})
	}
	return images, nil
}

// splitPaths splits a prompt line on whitespace, dropping the quotes a
// terminal adds to dragged-in files
func splitPaths(line string) []string {
	fields := strings.Fields(line)
	paths := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, `"'`)
		if f != "" {
			paths = append(paths, f)
		}
	}
	return paths
}
