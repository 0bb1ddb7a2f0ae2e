// Package server wires GophDrive together: catalog database, blob store,
// chunk codec, file and collaboration services, HTTP and websocket
// endpoints, background jobs and graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/logging"
	"github.com/dmitrijs2005/gophdrive/internal/server/blobstore"
	"github.com/dmitrijs2005/gophdrive/internal/server/cache"
	"github.com/dmitrijs2005/gophdrive/internal/server/collab"
	"github.com/dmitrijs2005/gophdrive/internal/server/config"
	"github.com/dmitrijs2005/gophdrive/internal/server/httpapi"
	"github.com/dmitrijs2005/gophdrive/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophdrive/internal/server/scheduler"
	"github.com/dmitrijs2005/gophdrive/internal/server/services"
	"github.com/dmitrijs2005/gophdrive/internal/server/ws"
	"github.com/gorilla/mux"
)

const (
	cacheEntries    = 10_000
	shutdownTimeout = 15 * time.Second
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	db        *sql.DB
	blobs     blobstore.Store
	cache     *cache.FileCache
	files     *services.FileService
	collab    *collab.Service
	scheduler *scheduler.Scheduler
	handler   http.Handler
}

func NewApp(c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)
	ctx := context.Background()

	codec, err := newCodec(c, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("chunk key error: %w", err)
	}

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("db migrations error: %w", err)
	}

	blobs, err := newBlobStore(ctx, c)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("blob store init error: %w", err)
	}

	fc, err := cache.New(cacheEntries, c.CacheTTL)
	if err != nil {
		blobs.Close()
		db.Close()
		return nil, fmt.Errorf("cache init error: %w", err)
	}

	files := services.NewFileService(db, rm, blobs, codec, fc, c.ChunkSize, logger)
	cs := collab.NewService(db, rm, collab.NewHub(collab.DefaultQueueSize), c.FlushThreshold, logger)

	sch := scheduler.New(logger)
	for _, t := range scheduler.MaintenanceTasks(cs, files, c.FlushInterval, c.SweepInterval, c.OrphanTTL, logger) {
		if err := sch.Register(t); err != nil {
			fc.Close()
			blobs.Close()
			db.Close()
			return nil, err
		}
	}

	return &App{
		config:    c,
		logger:    logger,
		db:        db,
		blobs:     blobs,
		cache:     fc,
		files:     files,
		collab:    cs,
		scheduler: sch,
		handler:   newRouter(c, files, cs, logger),
	}, nil
}

func newRouter(c *config.Config, files httpapi.Files, cs ws.Collab, logger logging.Logger) *mux.Router {
	r := mux.NewRouter()
	httpapi.NewHandler(files, c.SecretKey, logger).Register(r)
	r.Handle("/ws", ws.NewServer(cs, c.SecretKey, logger))
	return r
}

func newBlobStore(ctx context.Context, c *config.Config) (blobstore.Store, error) {
	switch c.BlobBackend {
	case config.BlobBackendBadger:
		return blobstore.NewBadgerStore(c.BadgerPath)
	case config.BlobBackendS3:
		s, err := blobstore.NewS3Store(ctx, blobstore.S3Options{
			Bucket:       c.S3Bucket,
			Region:       c.S3Region,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			BaseEndpoint: c.S3BaseEndpoint,
		})
		if err != nil {
			return nil, err
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown blob backend %q", c.BlobBackend)
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// startJobs starts the maintenance schedule and sweeps orphan chunks once
// without waiting for the first interval.
func (app *App) startJobs(ctx context.Context, wg *sync.WaitGroup) {
	app.scheduler.Start()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.scheduler.RunNow(scheduler.TaskSweepOrphans); err != nil && ctx.Err() == nil {
			app.logger.Warn(ctx, "startup orphan sweep failed", "error", err)
		}
	}()
}

// Run serves until ctx is canceled or a termination signal arrives, then
// stops background jobs, drains connections and flushes live sessions.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(cancelFunc)

	srv := &http.Server{
		Addr:              app.config.EndpointAddrHTTP,
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	var (
		wg       sync.WaitGroup
		serveErr error
	)
	app.startJobs(ctx, &wg)
	wg.Add(1)
	go func() {
		defer wg.Done()
		app.logger.Info(ctx, "Starting HTTP server", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
			app.logger.Error(ctx, "HTTP server failed", "error", err)
			cancelFunc()
		}
	}()

	<-ctx.Done()
	app.logger.Info(ctx, "Stopping app...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	app.scheduler.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.logger.Error(shutdownCtx, "HTTP shutdown failed", "error", err)
	}
	wg.Wait()

	if err := app.collab.FlushAll(shutdownCtx); err != nil {
		app.logger.Error(shutdownCtx, "session flush on shutdown failed", "error", err)
	}

	app.cache.Close()
	if err := app.blobs.Close(); err != nil {
		app.logger.Error(shutdownCtx, "blob store close failed", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(shutdownCtx, "db close failed", "error", err)
	}

	return serveErr
}
