package config

import "strings"

// ArtifactBackend names an artifact publisher implementation.
type ArtifactBackend string

const (
	// ArtifactBackendLocal copies artifacts under a directory served at /artifacts/.
	ArtifactBackendLocal ArtifactBackend = "local"
	// ArtifactBackendS3 uploads artifacts to an S3-compatible bucket (MinIO).
	ArtifactBackendS3 ArtifactBackend = "s3"
)

// ArtifactsConfig controls where produced recordings, documents, and exports are published.
type ArtifactsConfig struct {
	Backend ArtifactBackend `env:"ARTIFACTS_BACKEND" envDefault:"local"`
	// Dir is the local artifact root.
	Dir string   `env:"ARTIFACTS_DIR" envDefault:"./data/artifacts"`
	S3  S3Config `envPrefix:"ARTIFACTS_S3_"`
}

// S3Config contains the S3-compatible object storage settings.
type S3Config struct {
	Endpoint  string `env:"ENDPOINT"   envDefault:"localhost:9000"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Bucket    string `env:"BUCKET"     envDefault:"runboard-artifacts"`
	Region    string `env:"REGION"     envDefault:"us-east-1"`
	UseSSL    bool   `env:"USE_SSL"    envDefault:"false"`
	// PublicURL is the base URL viewers use to fetch objects. Empty proxies through /artifacts/.
	PublicURL string `env:"PUBLIC_URL"`
}

// Sanitize normalises artifact configuration and falls back to local publishing when the S3
// settings are incomplete.
func (a *ArtifactsConfig) Sanitize() {
	a.Backend = ArtifactBackend(strings.ToLower(strings.TrimSpace(string(a.Backend))))
	if strings.TrimSpace(a.Dir) == "" {
		a.Dir = "./data/artifacts"
	}
	a.S3.Endpoint = strings.TrimSpace(a.S3.Endpoint)
	a.S3.Bucket = strings.TrimSpace(a.S3.Bucket)
	a.S3.PublicURL = strings.TrimRight(strings.TrimSpace(a.S3.PublicURL), "/")
	if a.Backend != ArtifactBackendS3 {
		a.Backend = ArtifactBackendLocal
		return
	}
	if a.S3.Endpoint == "" || a.S3.Bucket == "" || a.S3.AccessKey == "" || a.S3.SecretKey == "" {
		a.Backend = ArtifactBackendLocal
	}
}
