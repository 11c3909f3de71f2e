// Package artifacts stores files produced by scenario runs.
package artifacts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"bytemomo/rhembatch/internal/domain"
)

// Dir writes artifacts into a local directory, creating it on demand.
type Dir struct {
	Path string
}

func NewDir(path string) *Dir { return &Dir{Path: path} }

func (d *Dir) Put(_ context.Context, name string, body io.Reader, _ int64) (string, error) {
	name, err := cleanName(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(d.Path, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	dst := filepath.Join(d.Path, name)
	f, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return "", fmt.Errorf("write %s: %w", dst, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return dst, nil
}

// Tee stores each artifact in every sink in order. The first sink's location
// is returned. Bodies are buffered once so every sink sees the full content.
type Tee []domain.ArtifactSink

func (t Tee) Put(ctx context.Context, name string, body io.Reader, size int64) (string, error) {
	if len(t) == 0 {
		return "", nil
	}
	if len(t) == 1 {
		return t[0].Put(ctx, name, body, size)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	var first string
	for i, s := range t {
		loc, err := s.Put(ctx, name, bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return "", err
		}
		if i == 0 {
			first = loc
		}
	}
	return first, nil
}

func cleanName(name string) (string, error) {
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." || base == "" {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	return base, nil
}
