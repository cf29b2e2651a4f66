package artifacts

import (
	"context"

	"github.com/target/runboard/config"
	"github.com/target/runboard/internal/core"
)

// Store both publishes artifacts and serves them back to viewers.
type Store interface {
	core.ArtifactPublisher
	core.ArtifactReader
}

// New builds the configured artifact backend.
func New(ctx context.Context, cfg config.ArtifactsConfig) (Store, error) {
	if cfg.Backend == config.ArtifactBackendS3 {
		return NewS3Publisher(ctx, cfg.S3)
	}
	return NewLocalPublisher(cfg.Dir)
}
