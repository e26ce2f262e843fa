package cli

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// rotation gives each attach session its own output file.
type rotation struct {
	pathBuilder    func(int) (string, error)
	outputFile     *os.File
	bufferedWriter *bufio.Writer
}

func newRotation(pb func(int) (string, error)) *rotation {
	return &rotation{pathBuilder: pb}
}

// sessionPath keeps base for the first session and numbers the rest:
// out.ndjson, out.2.ndjson, out.3.ndjson, ...
func sessionPath(base string) func(int) (string, error) {
	return func(session int) (string, error) {
		if strings.TrimSpace(base) == "" {
			return "", fmt.Errorf("empty output path")
		}
		if session <= 1 {
			return base, nil
		}
		ext := filepath.Ext(base)
		return fmt.Sprintf("%s.%d%s", strings.TrimSuffix(base, ext), session, ext), nil
	}
}

// Open closes the previous session's file and creates the next one. It
// returns a nil writer when no path builder is configured.
func (r *rotation) Open(session int) (writer *bufio.Writer, path string, err error) {
	if r.pathBuilder == nil {
		return nil, "", nil
	}
	r.Close()

	path, err = r.pathBuilder(session)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build path: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, "", fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	r.outputFile, err = os.Create(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create output file: %w", err)
	}
	r.bufferedWriter = bufio.NewWriter(r.outputFile)
	return r.bufferedWriter, path, nil
}

// Flush pushes buffered output to the current file.
func (r *rotation) Flush() error {
	if r.bufferedWriter == nil {
		return nil
	}
	return r.bufferedWriter.Flush()
}

func (r *rotation) Close() {
	if r.bufferedWriter != nil {
		r.bufferedWriter.Flush()
		r.bufferedWriter = nil
	}
	if r.outputFile != nil {
		r.outputFile.Close()
		r.outputFile = nil
	}
}
