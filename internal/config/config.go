// Package config loads the service's environment-driven configuration
// (§6), using cleanenv the way the teacher's go.mod declares but never
// wired into a committed config.go.
package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Port string `env:"PORT" env-default:"8080"`

	PostgresHost     string `env:"POSTGRES_HOST" env-default:"localhost"`
	PostgresPort     string `env:"POSTGRES_PORT" env-default:"5432"`
	PostgresDB       string `env:"POSTGRES_DB" env-default:"imagerevisions"`
	PostgresUser     string `env:"POSTGRES_USER" env-default:"postgres"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" env-default:""`

	RedisURL string `env:"REDIS_URL" env-default:"redis://localhost:6379/0"`

	// GCPProjectID is read and surfaced for operators but otherwise unused:
	// the Object Store has a single backend (MinIO's S3-compatible API, see
	// DESIGN.md) and no local-filesystem fallback, so nothing branches on
	// its presence or absence.
	GCPProjectID    string `env:"GCP_PROJECT_ID" env-default:""`
	GCSBucketPrefix string `env:"GCS_BUCKET_PREFIX" env-default:"imgrev"`

	MinioEndpoint  string `env:"MINIO_ENDPOINT" env-default:"localhost:9000"`
	MinioAccessKey string `env:"MINIO_ACCESS_KEY" env-default:"minioadmin"`
	MinioSecretKey string `env:"MINIO_SECRET_KEY" env-default:"minioadmin"`
	MinioUseSSL    bool   `env:"MINIO_USE_SSL" env-default:"false"`

	KafkaBrokers string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`

	CORSOrigin string `env:"CORS_ORIGIN" env-default:"*"`

	// SkipDBCheck toggles the stateless degraded mode discussed in the
	// reference design notes. Out of scope here: the field is read and
	// surfaced so operators can see it is recognized, but the service
	// always requires a live metadata store (see DESIGN.md).
	SkipDBCheck bool `env:"SKIP_DB_CHECK" env-default:"false"`

	LogLevel string `env:"LOG_LEVEL" env-default:"info"`
}

func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.PostgresUser, c.PostgresPassword, c.PostgresHost, c.PostgresPort, c.PostgresDB)
}

// MustLoad reads environment variables into a Config, panicking on a
// malformed value — mirroring the teacher's config.MustLoad() call site
// from cmd/worker/main.go, which referenced a package that did not exist
// in the retrieved slice.
func MustLoad() *Config {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return &cfg
}
