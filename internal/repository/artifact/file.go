package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/oshokin/heat-sentinel/internal/config"
	"github.com/oshokin/heat-sentinel/internal/domain/sentinel"
)

// Repository defines persistence operations for captured images.
type Repository interface {
	SaveRaw(ctx context.Context, artifact *sentinel.CaptureArtifact) (string, error)
	SaveAnnotated(ctx context.Context, artifact *sentinel.CaptureArtifact, data []byte) (string, error)
}

// FileRepository writes images into a directory on local disk.
type FileRepository struct {
	// dir is the directory holding raw and annotated images.
	dir string
	// mu serializes directory creation and writes.
	mu sync.Mutex
}

var (
	// ErrEmptyImage is returned when there are no bytes to write.
	ErrEmptyImage = errors.New("image is empty")
	// errMissingID is returned when the artifact has no identifier.
	errMissingID = errors.New("capture identifier is empty")
)

// NewFileRepository creates a repository rooted at dir.
func NewFileRepository(dir string) *FileRepository {
	if dir == "" {
		dir = config.DefaultOutputDir
	}

	return &FileRepository{
		dir: filepath.Clean(dir),
	}
}

// Dir returns the directory the repository writes into.
func (r *FileRepository) Dir() string {
	return r.dir
}

// SaveRaw writes the captured JPEG as <id>.jpg and returns its path.
func (r *FileRepository) SaveRaw(_ context.Context, artifact *sentinel.CaptureArtifact) (string, error) {
	if artifact.ID == "" {
		return "", errMissingID
	}

	return r.write(artifact.ImageReference(), artifact.RawBytes)
}

// SaveAnnotated writes the annotated JPEG as <id>-op.jpg and returns its path.
func (r *FileRepository) SaveAnnotated(
	_ context.Context,
	artifact *sentinel.CaptureArtifact,
	data []byte,
) (string, error) {
	if artifact.ID == "" {
		return "", errMissingID
	}

	return r.write(artifact.AnnotatedReference(), data)
}

// write stores data under name inside the repository directory.
func (r *FileRepository) write(name string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyImage
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.dir, config.DefaultDirPermissions); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	path := filepath.Join(r.dir, filepath.Base(name))
	if err := os.WriteFile(path, data, config.DefaultFilePermissions); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}

	return path, nil
}
