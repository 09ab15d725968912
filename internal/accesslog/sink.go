package accesslog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// FileName is the access log written inside the configured logs directory.
const FileName = "access.log"

var ErrNoLogsPath = errors.New("log file path is not configured")

// Sink receives formatted access log lines.
// FileSink is the production implementation; tests provide in-memory ones.
type Sink interface {
	Append(line string) error
}

// FileSink appends lines to <dir>/access.log. Every Append opens the file
// with O_APPEND and issues a single write, so concurrent appends from
// several goroutines or processes do not interleave within a line.
type FileSink struct {
	dir    string
	logger zerolog.Logger
}

// NewFileSink returns a sink for dir and makes sure the directory exists.
// A directory that cannot be created is reported on the logger; the sink is
// still returned and later appends report their own failures.
func NewFileSink(dir string, logger zerolog.Logger) *FileSink {
	s := &FileSink{dir: dir, logger: logger.With().Str("component", "LogSink").Logger()}
	if err := s.EnsureDir(); err != nil {
		s.logger.Error().Err(err).Str("path", dir).Msg("error creating logs folder")
	}
	return s
}

// Path returns the full path of the access log file.
func (s *FileSink) Path() string {
	return filepath.Join(s.dir, FileName)
}

// EnsureDir creates the logs directory when it is missing. Calling it again,
// or racing another process that creates it first, is not an error.
func (s *FileSink) EnsureDir() error {
	if s.dir == "" {
		return ErrNoLogsPath
	}
	info, err := os.Stat(s.dir)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("logs path %s is not a directory", s.dir)
		}
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat logs path: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("create logs path: %w", err)
	}
	s.logger.Info().Str("path", s.dir).Msg("logs folder created")
	return nil
}

// Append writes line followed by a newline.
func (s *FileSink) Append(line string) error {
	if s.dir == "" {
		return ErrNoLogsPath
	}
	f, err := os.OpenFile(s.Path(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open access log: %w", err)
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("write access log: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close access log: %w", err)
	}
	return nil
}
