// Package server wires the file service together: logging, the blob store
// backend, the ownership registry, the annotation repository and the HTTP
// API, and runs it until a termination signal arrives.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/enginuity/internal/logging"
	"github.com/dmitrijs2005/enginuity/internal/server/annotations"
	"github.com/dmitrijs2005/enginuity/internal/server/blobstore"
	miniostore "github.com/dmitrijs2005/enginuity/internal/server/blobstore/minio"
	"github.com/dmitrijs2005/enginuity/internal/server/blobstore/redisstore"
	s3store "github.com/dmitrijs2005/enginuity/internal/server/blobstore/s3"
	"github.com/dmitrijs2005/enginuity/internal/server/config"
	"github.com/dmitrijs2005/enginuity/internal/server/files"
	"github.com/dmitrijs2005/enginuity/internal/server/httpapi"
	"github.com/dmitrijs2005/enginuity/internal/server/listing"
	"github.com/dmitrijs2005/enginuity/internal/server/migrations"
	"github.com/dmitrijs2005/enginuity/internal/server/owners"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	store   blobstore.Store
	owners  owners.Registry
	server  *httpapi.Server
	closers []func() error
}

func NewApp(c *config.Config) (*App, error) {
	logger, err := logging.New(os.Stdout, logging.Options{
		Backend: c.LogBackend,
		Format:  c.LogFormat,
		Level:   c.LogLevel,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	app := &App{config: c, logger: logger}
	ctx := context.Background()

	if app.store, err = app.newStore(ctx); err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("blob store init error: %w", err)
	}
	if app.owners, err = app.newRegistry(ctx); err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("db init error: %w", err)
	}

	repo := annotations.NewRepository(app.store, logger, annotations.Options{
		MaxAttempts: c.AnnotationMaxAttempts,
		Backoff:     c.AnnotationRetryBackoff,
		Timeout:     c.AnnotationTimeout,
	})
	fileService := files.NewService(app.store, app.owners, repo, logger, files.Options{CascadeDelete: c.CascadeDelete})

	if !c.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	var origins []string
	if !c.IsDevelopment() {
		origins = c.CORSAllowedOrigins
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Files:       fileService,
		Listing:     listing.NewService(app.store),
		Annotations: repo,
		Secret:      []byte(c.SecretKey),
		Logger:      logger,
		CORSOrigins: origins,
		Checks:      app.healthChecks(),
	})
	app.server = httpapi.NewServer(c.HTTPAddr, router, logger, c.ShutdownTimeout)

	return app, nil
}

func (app *App) newStore(ctx context.Context) (blobstore.Store, error) {
	c := app.config

	switch c.BlobBackend {
	case config.BackendS3:
		client, err := s3store.NewClient(ctx, s3store.ClientOptions{
			Region:       c.S3Region,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			Endpoint:     c.S3BaseEndpoint,
			UsePathStyle: c.S3UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		return s3store.NewStore(client, c.S3Bucket), nil

	case config.BackendMinio:
		client, err := miniostore.NewClient(miniostore.ClientOptions{
			Endpoint:  c.S3BaseEndpoint,
			AccessKey: c.S3RootUser,
			SecretKey: c.S3RootPassword,
			Region:    c.S3Region,
		})
		if err != nil {
			return nil, err
		}
		store := miniostore.NewStore(client, c.S3Bucket)
		if err := store.EnsureBucket(ctx, c.S3Region); err != nil {
			return nil, err
		}
		return store, nil

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: c.RedisAddress})
		app.closers = append(app.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		return redisstore.NewStore(client), nil

	case config.BackendMemory:
		app.logger.Warn(ctx, "using in-memory blob store, files are lost on restart")
		return blobstore.NewMemoryStore(), nil
	}

	return nil, fmt.Errorf("unknown blob backend %q", c.BlobBackend)
}

func (app *App) newRegistry(ctx context.Context) (owners.Registry, error) {
	if app.config.DatabaseDSN == "" {
		app.logger.Info(ctx, "no database configured, file ownership is kept in memory")
		return owners.NewMemoryRegistry(), nil
	}

	db, err := owners.Open(ctx, app.config.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, db.Close)

	if err := migrations.Up(ctx, db); err != nil {
		return nil, err
	}
	return owners.NewPostgresRegistry(db), nil
}

func (app *App) healthChecks() map[string]httpapi.HealthCheck {
	checks := map[string]httpapi.HealthCheck{
		"db": app.owners.Ping,
	}
	if p, ok := app.store.(blobstore.Pinger); ok {
		checks["store"] = p.Ping
	}
	return checks
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves until ctx is cancelled or a termination signal arrives.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "backend", app.config.BlobBackend, "env", app.config.Environment)

	app.initSignalHandler(cancelFunc)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.server.Run(ctx)
	})

	if err := g.Wait(); err != nil {
		app.logger.Error(ctx, err.Error())
		return err
	}
	return nil
}

// Close releases the store and database handles.
func (app *App) Close() error {
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		errs = append(errs, app.closers[i]())
	}
	app.closers = nil
	return errors.Join(errs...)
}
