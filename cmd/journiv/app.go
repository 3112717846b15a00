package main

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/xxxsen/journiv/internal/archive"
	"github.com/xxxsen/journiv/internal/cache"
	"github.com/xxxsen/journiv/internal/config"
	"github.com/xxxsen/journiv/internal/db"
	"github.com/xxxsen/journiv/internal/fetch"
	"github.com/xxxsen/journiv/internal/filestore"
	"github.com/xxxsen/journiv/internal/job"
	"github.com/xxxsen/journiv/internal/mediastore"
	"github.com/xxxsen/journiv/internal/repo"
	"github.com/xxxsen/journiv/internal/schedule"
	"github.com/xxxsen/journiv/internal/service"
	"github.com/xxxsen/journiv/internal/source"
	"github.com/xxxsen/journiv/internal/source/dayone"
)

var version = "dev"

type app struct {
	cfg       *config.Config
	db        *sql.DB
	users     *repo.UserRepo
	uploads   *service.UploadService
	exports   *service.ExportService
	media     *service.MediaService
	jobs      *service.JobService
	scheduler *schedule.CronScheduler
}

func newApp(cfg *config.Config) (*app, error) {
	conn, err := db.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	mirror, err := filestore.New(cfg.ArchiveStore)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("init archive store: %w", err)
	}

	stores := service.NewStores(conn)
	engine := mediastore.New(cfg.Storage.MediaRoot, stores.Media)
	fetcher := fetch.New(fetch.Options{
		Timeout:      time.Duration(cfg.RemoteFetch.TimeoutSeconds) * time.Second,
		RetryCount:   cfg.RemoteFetch.RetryCount,
		RetryWait:    time.Duration(cfg.RemoteFetch.RetryWaitMS) * time.Millisecond,
		RetryMaxWait: time.Duration(cfg.RemoteFetch.RetryMaxWaitMS) * time.Millisecond,
		MaxBytes:     cfg.RemoteFetch.MaxBytes,
	})
	uploads := service.NewUploadService(cfg.Storage.ImportTempDir, cfg.Limits.MaxUploadBytes)
	importer := service.NewMediaImporter(engine, fetcher, cfg.Transfer.MediaConcurrency, cfg.Storage.ImportTempDir)
	extractor := archive.NewExtractor(archive.Limits{
		MaxTotalBytes: cfg.Limits.MaxExtractBytes,
		MaxEntries:    cfg.Limits.MaxZipEntries,
		MaxNameLength: cfg.Limits.MaxFilenameLength,
	})
	registry := source.NewRegistry(dayone.NewAdapter(dayone.ParserLimits{
		MaxJSONFiles: cfg.Limits.DayOneMaxFiles,
		MaxJSONBytes: cfg.Limits.DayOneMaxFileBytes,
		MaxEntries:   cfg.Limits.DayOneMaxEntries,
	}))
	ids := cache.NewScoped[string](cfg.Cache.Size, time.Duration(cfg.Cache.TTLSeconds)*time.Second)
	imports := service.NewImportService(repo.NewTxRunner(conn), stores, importer, extractor, registry, uploads, ids)
	exports := service.NewExportService(stores, engine, cfg.Storage.ExportDir, mirror, version)

	importJobs := repo.NewImportJobRepo(conn)
	exportJobs := repo.NewExportJobRepo(conn)
	jobs := service.NewJobService(importJobs, exportJobs, imports, exports, uploads,
		cfg.Transfer.ProgressEveryItems, time.Duration(cfg.Transfer.ProgressEverySeconds)*time.Second)

	scheduler := schedule.NewCronScheduler()
	exportCleanup := job.NewExportCleanupJob(exportJobs, exports, time.Duration(cfg.Transfer.ExportRetentionHours)*time.Hour)
	if err := scheduler.AddJob(exportCleanup, cfg.Schedule.ExportCleanup); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("schedule export cleanup: %w", err)
	}
	importCleanup := job.NewImportCleanupJob(importJobs, uploads, time.Duration(cfg.Transfer.ImportTempMaxAgeHours)*time.Hour)
	if err := scheduler.AddJob(importCleanup, cfg.Schedule.ImportCleanup); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("schedule import cleanup: %w", err)
	}

	return &app{
		cfg:       cfg,
		db:        conn,
		users:     repo.NewUserRepo(conn),
		uploads:   uploads,
		exports:   exports,
		media:     service.NewMediaService(stores, engine),
		jobs:      jobs,
		scheduler: scheduler,
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}
