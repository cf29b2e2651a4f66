// Package artifacts publishes files produced by the automation worker so that viewers can
// resolve them: into a local directory served under /artifacts/, or into an S3-compatible
// bucket.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/target/runboard/internal/core"
	apperrors "github.com/target/runboard/internal/errors"
)

// URLPrefix is the path under which the HTTP server resolves published artifacts.
const URLPrefix = "/artifacts/"

var (
	_ core.ArtifactPublisher = (*LocalPublisher)(nil)
	_ core.ArtifactReader    = (*LocalPublisher)(nil)
)

// LocalPublisher copies artifacts into <dir>/<jobID>/<uuid><ext>.
type LocalPublisher struct {
	dir string
}

// NewLocalPublisher creates dir if needed.
func NewLocalPublisher(dir string) (*LocalPublisher, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("artifact directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create artifact dir %s: %w", dir, err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve artifact dir %s: %w", dir, err)
	}
	return &LocalPublisher{dir: abs}, nil
}

// Publish copies the file and returns its /artifacts/ locator.
func (p *LocalPublisher) Publish(ctx context.Context, req core.PublishRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key := objectKey(req)
	dst := filepath.Join(p.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}
	if err := copyFileAtomic(req.Path, dst); err != nil {
		return "", err
	}
	return URLPrefix + key, nil
}

// Open opens a published artifact by key. Keys escaping the artifact directory are NotFound.
func (p *LocalPublisher) Open(_ context.Context, key string) (io.ReadCloser, error) {
	clean, ok := cleanKey(key)
	if !ok {
		return nil, apperrors.NotFoundf("artifact %q not found", key)
	}
	f, err := os.Open(filepath.Join(p.dir, filepath.FromSlash(clean)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.NotFoundf("artifact %q not found", key)
		}
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	return f, nil
}

// objectKey names an artifact <jobID>/<uuid><ext>, keeping the source extension so viewers can
// infer the content type.
func objectKey(req core.PublishRequest) string {
	ext := strings.ToLower(filepath.Ext(req.Path))
	return path.Join(req.JobID.String(), uuid.NewString()+ext)
}

func cleanKey(key string) (string, bool) {
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return "", false
	}
	clean := path.Clean(key)
	if clean == "." || strings.HasPrefix(clean, "../") || clean == ".." || path.IsAbs(clean) {
		return "", false
	}
	return clean, true
}

func copyFileAtomic(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open produced file: %w", err)
	}
	defer func() { _ = in.Close() }()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = io.Copy(tmp, in); err != nil {
		return fmt.Errorf("copy artifact: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync artifact: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close artifact: %w", err)
	}
	if err = os.Rename(tmpName, dst); err != nil {
		return fmt.Errorf("publish artifact: %w", err)
	}
	return nil
}
