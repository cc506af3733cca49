package dataset

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sewik-mapa/sewikmapa/internal/fetch"
)

// Source retrieves raw dataset documents (partitions, metadata, index) by
// relative file name. A document that does not exist is reported as
// ErrPartitionNotFound.
type Source interface {
	Fetch(ctx context.Context, file string) ([]byte, error)
	Name() string
}

// cleanName rejects names that would escape the dataset root.
func cleanName(file string) (string, error) {
	cleaned := path.Clean("/" + strings.ReplaceAll(file, "\\", "/"))
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return "", fmt.Errorf("invalid file name %q", file)
	}
	return cleaned, nil
}

// HTTPSource fetches documents relative to a base URL.
type HTTPSource struct {
	baseURL string
	client  *fetch.Client
}

// NewHTTPSource creates a source rooted at baseURL.
func NewHTTPSource(baseURL string, client *fetch.Client) *HTTPSource {
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// Name implements Source.
func (s *HTTPSource) Name() string { return "http" }

// Fetch implements Source.
func (s *HTTPSource) Fetch(ctx context.Context, file string) ([]byte, error) {
	name, err := cleanName(file)
	if err != nil {
		return nil, err
	}

	segments := strings.Split(name, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}

	body, err := s.client.Get(ctx, s.baseURL+"/"+strings.Join(segments, "/"))
	if err != nil {
		if fetch.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrPartitionNotFound, name)
		}
		return nil, fmt.Errorf("fetching %s: %w", name, err)
	}
	return body, nil
}

// Health returns the state of the upstream client.
func (s *HTTPSource) Health() fetch.Health {
	return s.client.Health()
}

// FileSource reads documents from a local directory.
type FileSource struct {
	dir string
}

// NewFileSource creates a source rooted at dir.
func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir}
}

// Name implements Source.
func (s *FileSource) Name() string { return "file" }

// Fetch implements Source.
func (s *FileSource) Fetch(ctx context.Context, file string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name, err := cleanName(file)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(s.dir, filepath.FromSlash(name)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrPartitionNotFound, name)
		}
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return data, nil
}

// Files lists the partition files in the directory.
func (s *FileSource) Files() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", s.dir, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "accidents_") && strings.HasSuffix(e.Name(), ".geojson") {
			files = append(files, e.Name())
		}
	}
	return files, nil
}
