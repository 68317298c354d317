// Package config handles configuration for the server: defaults, a dotenv /
// environment overlay, an optional JSON file and command-line flags.
package config

import "time"

// Blob store backends understood by the server.
const (
	BackendS3     = "s3"
	BackendMinio  = "minio"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config holds runtime settings for the server.
//
// Fields:
//   - HTTPAddr: bind address of the HTTP API.
//   - Environment: "development" relaxes CORS to any origin.
//   - DatabaseDSN: PostgreSQL DSN (pgx) for the ownership registry; empty keeps ownership in memory.
//   - SecretKey: HMAC secret used to verify bearer JWTs (HS256). Do not use test defaults in prod.
//   - BlobBackend: one of s3, minio, redis, memory.
//   - S3RootUser / S3RootPassword / S3Bucket / S3Region / S3BaseEndpoint / S3UsePathStyle:
//     object storage settings shared by the s3 and minio backends.
//   - RedisAddress: address of the redis backend.
//   - LogBackend / LogFormat / LogLevel: see logging.Options.
//   - AnnotationMaxAttempts / AnnotationRetryBackoff / AnnotationTimeout: sidecar
//     read-modify-write retry budget.
//   - CascadeDelete: delete comment and question documents together with their file.
//   - ShutdownTimeout: grace period for in-flight requests on stop.
//   - CORSAllowedOrigins: allowed origins outside development.
type Config struct {
	HTTPAddr               string
	Environment            string
	DatabaseDSN            string
	SecretKey              string
	BlobBackend            string
	S3RootUser             string
	S3RootPassword         string
	S3Bucket               string
	S3Region               string
	S3BaseEndpoint         string
	S3UsePathStyle         bool
	RedisAddress           string
	LogBackend             string
	LogFormat              string
	LogLevel               string
	AnnotationMaxAttempts  int
	AnnotationRetryBackoff time.Duration
	AnnotationTimeout      time.Duration
	CascadeDelete          bool
	ShutdownTimeout        time.Duration
	CORSAllowedOrigins     []string
}

// LoadDefaults populates Config with development defaults.
// NOTE: These values are insecure for production and should be overridden.
func (c *Config) LoadDefaults() {
	c.HTTPAddr = ":8080"
	c.Environment = "development"
	c.DatabaseDSN = ""
	c.SecretKey = "secretKey"
	c.BlobBackend = BackendS3
	c.S3RootUser = "admin"
	c.S3RootPassword = "secretpassword"
	c.S3Bucket = "files"
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = "http://127.0.0.1:9000/"
	c.S3UsePathStyle = true
	c.RedisAddress = "localhost:6379"
	c.LogBackend = "slog"
	c.LogFormat = "json"
	c.LogLevel = "info"
	c.AnnotationMaxAttempts = 5
	c.AnnotationRetryBackoff = 25 * time.Millisecond
	c.AnnotationTimeout = 2 * time.Second
	c.CascadeDelete = true
	c.ShutdownTimeout = 5 * time.Second
	c.CORSAllowedOrigins = nil
}

// IsDevelopment reports whether the server runs in the development environment.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from the environment (and an optional dotenv file), a JSON file and finally
// command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
