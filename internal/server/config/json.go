package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/enginuity/internal/flagx"
	"github.com/dmitrijs2005/enginuity/internal/timex"
)

// JsonConfig is the on-disk shape of the JSON config file. Durations use
// timex.Duration so both "2s" and integer nanoseconds are accepted; booleans
// are pointers so an explicit false can be told apart from an absent key.
//
// Only keys present in the file override the running Config.
type JsonConfig struct {
	HTTPAddr               string         `json:"http_addr"`
	Environment            string         `json:"environment"`
	DatabaseDSN            string         `json:"database_dsn"`
	SecretKey              string         `json:"secret_key"`
	BlobBackend            string         `json:"blob_backend"`
	S3RootUser             string         `json:"s3_root_user"`
	S3RootPassword         string         `json:"s3_root_password"`
	S3Bucket               string         `json:"s3_bucket"`
	S3Region               string         `json:"s3_region"`
	S3BaseEndpoint         string         `json:"s3_base_endpoint"`
	S3UsePathStyle         *bool          `json:"s3_use_path_style"`
	RedisAddress           string         `json:"redis_address"`
	LogBackend             string         `json:"log_backend"`
	LogFormat              string         `json:"log_format"`
	LogLevel               string         `json:"log_level"`
	AnnotationMaxAttempts  int            `json:"annotation_max_attempts"`
	AnnotationRetryBackoff timex.Duration `json:"annotation_retry_backoff"`
	AnnotationTimeout      timex.Duration `json:"annotation_timeout"`
	CascadeDelete          *bool          `json:"cascade_delete"`
	ShutdownTimeout        timex.Duration `json:"shutdown_timeout"`
	CORSAllowedOrigins     []string       `json:"cors_allowed_origins"`
}

// parseJson loads the file named by -c / -config into config. Without the
// flag nothing happens. An unreadable or invalid file panics.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()

	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	overlayString(&config.HTTPAddr, c.HTTPAddr)
	overlayString(&config.Environment, c.Environment)
	overlayString(&config.DatabaseDSN, c.DatabaseDSN)
	overlayString(&config.SecretKey, c.SecretKey)
	overlayString(&config.BlobBackend, c.BlobBackend)
	overlayString(&config.S3RootUser, c.S3RootUser)
	overlayString(&config.S3RootPassword, c.S3RootPassword)
	overlayString(&config.S3Bucket, c.S3Bucket)
	overlayString(&config.S3Region, c.S3Region)
	overlayString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	overlayString(&config.RedisAddress, c.RedisAddress)
	overlayString(&config.LogBackend, c.LogBackend)
	overlayString(&config.LogFormat, c.LogFormat)
	overlayString(&config.LogLevel, c.LogLevel)

	if c.S3UsePathStyle != nil {
		config.S3UsePathStyle = *c.S3UsePathStyle
	}
	if c.CascadeDelete != nil {
		config.CascadeDelete = *c.CascadeDelete
	}
	if c.AnnotationMaxAttempts > 0 {
		config.AnnotationMaxAttempts = c.AnnotationMaxAttempts
	}
	if c.AnnotationRetryBackoff.Duration > 0 {
		config.AnnotationRetryBackoff = c.AnnotationRetryBackoff.Duration
	}
	if c.AnnotationTimeout.Duration > 0 {
		config.AnnotationTimeout = c.AnnotationTimeout.Duration
	}
	if c.ShutdownTimeout.Duration > 0 {
		config.ShutdownTimeout = c.ShutdownTimeout.Duration
	}
	if len(c.CORSAllowedOrigins) > 0 {
		config.CORSAllowedOrigins = c.CORSAllowedOrigins
	}
}

func overlayString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
