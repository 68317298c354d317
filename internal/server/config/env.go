package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/enginuity/internal/flagx"
	"github.com/joho/godotenv"
)

// defaultEnvFile is loaded when present and no -env flag is given.
const defaultEnvFile = ".env"

// parseEnv overlays Config with environment variables. A dotenv file
// (-env flag, or ./.env when it exists) is loaded first; variables already
// set in the process environment take precedence over the file.
//
// Recognised variables:
//
//	HTTP_ADDR, PORT                 HTTP bind address (PORT yields ":<port>")
//	ENV                             environment name
//	DATABASE_DSN                    PostgreSQL DSN
//	POSTGRES_HOST/PORT/USER/PASSWORD/DB  DSN parts, used when DATABASE_DSN is unset
//	JWT_SECRET                      token secret
//	BLOB_BACKEND                    s3 | minio | redis | memory
//	S3_BUCKET, AWS_REGION, AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY, S3_ENDPOINT, S3_PATH_STYLE
//	REDIS_ADDRESS
//	LOG_BACKEND, LOG_FORMAT, LOG_LEVEL
//	ANNOTATION_MAX_ATTEMPTS, ANNOTATION_RETRY_BACKOFF, ANNOTATION_TIMEOUT
//	CASCADE_DELETE, SHUTDOWN_TIMEOUT, CORS_ALLOWED_ORIGINS (comma separated)
//
// Malformed numeric, boolean or duration values cause a panic, the same way
// an unreadable JSON config does.
func parseEnv(config *Config) {
	envFile := flagx.EnvFileFlags()
	if envFile == "" {
		if _, err := os.Stat(defaultEnvFile); err == nil {
			envFile = defaultEnvFile
		}
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			panic(fmt.Errorf("load env file %s: %w", envFile, err))
		}
	}

	if v, ok := lookup("PORT"); ok {
		config.HTTPAddr = ":" + v
	}
	setString(&config.HTTPAddr, "HTTP_ADDR")
	setString(&config.Environment, "ENV")

	if dsn := postgresDSN(); dsn != "" {
		config.DatabaseDSN = dsn
	}
	setString(&config.DatabaseDSN, "DATABASE_DSN")

	setString(&config.SecretKey, "JWT_SECRET")
	setString(&config.BlobBackend, "BLOB_BACKEND")
	setString(&config.S3Bucket, "S3_BUCKET")
	setString(&config.S3Region, "AWS_REGION")
	setString(&config.S3RootUser, "AWS_ACCESS_KEY_ID")
	setString(&config.S3RootPassword, "AWS_SECRET_ACCESS_KEY")
	setString(&config.S3BaseEndpoint, "S3_ENDPOINT")
	setBool(&config.S3UsePathStyle, "S3_PATH_STYLE")
	setString(&config.RedisAddress, "REDIS_ADDRESS")
	setString(&config.LogBackend, "LOG_BACKEND")
	setString(&config.LogFormat, "LOG_FORMAT")
	setString(&config.LogLevel, "LOG_LEVEL")
	setInt(&config.AnnotationMaxAttempts, "ANNOTATION_MAX_ATTEMPTS")
	setDuration(&config.AnnotationRetryBackoff, "ANNOTATION_RETRY_BACKOFF")
	setDuration(&config.AnnotationTimeout, "ANNOTATION_TIMEOUT")
	setBool(&config.CascadeDelete, "CASCADE_DELETE")
	setDuration(&config.ShutdownTimeout, "SHUTDOWN_TIMEOUT")

	if v, ok := lookup("CORS_ALLOWED_ORIGINS"); ok {
		config.CORSAllowedOrigins = splitList(v)
	}
}

// postgresDSN assembles a DSN from POSTGRES_* parts, as the docker-compose
// setup exports them. Returns "" when POSTGRES_HOST is unset.
func postgresDSN() string {
	host, ok := lookup("POSTGRES_HOST")
	if !ok {
		return ""
	}
	port := getEnv("POSTGRES_PORT", "5432")
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(getEnv("POSTGRES_USER", "postgres"), getEnv("POSTGRES_PASSWORD", "")),
		Host:     net.JoinHostPort(host, port),
		Path:     "/" + getEnv("POSTGRES_DB", "postgres"),
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func getEnv(key, defaultValue string) string {
	if v, ok := lookup(key); ok {
		return v
	}
	return defaultValue
}

func setString(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := lookup(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			panic(fmt.Errorf("%s: %w", key, err))
		}
		*dst = n
	}
}

func setBool(dst *bool, key string) {
	if v, ok := lookup(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			panic(fmt.Errorf("%s: %w", key, err))
		}
		*dst = b
	}
}

func setDuration(dst *time.Duration, key string) {
	if v, ok := lookup(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			panic(fmt.Errorf("%s: %w", key, err))
		}
		*dst = d
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
