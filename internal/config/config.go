package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port         int              `json:"port"`
	JWTSecret    string           `json:"jwt_secret"`
	LogConfig    logger.LogConfig `json:"log_config"`
	Database     DatabaseConfig   `json:"database"`
	Storage      StorageConfig    `json:"storage"`
	Limits       LimitsConfig     `json:"limits"`
	Transfer     TransferConfig   `json:"transfer"`
	RemoteFetch  FetchConfig      `json:"remote_fetch"`
	ArchiveStore FileStoreConfig  `json:"archive_store"`
	Schedule     ScheduleConfig   `json:"schedule"`
	Cache        CacheConfig      `json:"cache"`
	HTTP         HTTPConfig       `json:"http"`
}

type HTTPConfig struct {
	CORSOrigins []string `json:"cors_origins"`
	// JobCreateIntervalMS throttles job creation per user and route.
	JobCreateIntervalMS int `json:"job_create_interval_ms"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver   string `json:"driver"`
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

type StorageConfig struct {
	MediaRoot     string `json:"media_root"`
	ExportDir     string `json:"export_dir"`
	ImportTempDir string `json:"import_temp_dir"`
}

type LimitsConfig struct {
	MaxUploadBytes     int64 `json:"max_upload_bytes"`
	MaxExtractBytes    int64 `json:"max_extract_bytes"`
	MaxZipEntries      int   `json:"max_zip_entries"`
	MaxFilenameLength  int   `json:"max_filename_length"`
	DayOneMaxFiles     int   `json:"dayone_max_files"`
	DayOneMaxFileBytes int64 `json:"dayone_max_file_bytes"`
	DayOneMaxEntries   int   `json:"dayone_max_entries"`
}

type TransferConfig struct {
	ProgressEveryItems    int `json:"progress_every_items"`
	ProgressEverySeconds  int `json:"progress_every_seconds"`
	MediaConcurrency      int `json:"media_concurrency"`
	ExportRetentionHours  int `json:"export_retention_hours"`
	ImportTempMaxAgeHours int `json:"import_temp_max_age_hours"`
	WorkerCount           int `json:"worker_count"`
	QueueSize             int `json:"queue_size"`
}

type FetchConfig struct {
	TimeoutSeconds int   `json:"timeout_seconds"`
	RetryCount     int   `json:"retry_count"`
	RetryWaitMS    int   `json:"retry_wait_ms"`
	RetryMaxWaitMS int   `json:"retry_max_wait_ms"`
	MaxBytes       int64 `json:"max_bytes"`
}

// FileStoreConfig describes where finished export archives are mirrored.
// An empty type disables the mirror.
type FileStoreConfig struct {
	Type string   `json:"type"`
	Dir  string   `json:"dir"`
	S3   S3Config `json:"s3"`
}

type S3Config struct {
	Endpoint  string `json:"endpoint"`
	SecretID  string `json:"secret_id"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	Prefix    string `json:"prefix"`
	UseSSL    bool   `json:"use_ssl"`
}

type ScheduleConfig struct {
	ExportCleanup string `json:"export_cleanup"`
	ImportCleanup string `json:"import_cleanup"`
}

type CacheConfig struct {
	Size       int `json:"size"`
	TTLSeconds int `json:"ttl_seconds"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration usable by the offline CLI commands, which
// only need storage and database settings.
func Default() *Config {
	cfg := &Config{Port: 8080, JWTSecret: "offline", Database: DatabaseConfig{Driver: "sqlite"}}
	_ = cfg.normalize()
	return cfg
}

func (c *Config) normalize() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	if c.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if c.LogConfig.Level == "" {
		c.LogConfig.Level = "info"
	}
	if err := c.Database.normalize(); err != nil {
		return err
	}
	c.Storage.normalize()
	c.Limits.normalize()
	c.Transfer.normalize()
	c.RemoteFetch.normalize()
	if c.Schedule.ExportCleanup == "" {
		c.Schedule.ExportCleanup = "0 */6 * * *"
	}
	if c.Schedule.ImportCleanup == "" {
		c.Schedule.ImportCleanup = "30 * * * *"
	}
	if c.Cache.Size <= 0 {
		c.Cache.Size = 1024
	}
	if c.Cache.TTLSeconds <= 0 {
		c.Cache.TTLSeconds = 600
	}
	if c.HTTP.JobCreateIntervalMS < 0 {
		c.HTTP.JobCreateIntervalMS = 0
	}
	switch c.ArchiveStore.Type {
	case "":
	case "local":
		if c.ArchiveStore.Dir == "" {
			return fmt.Errorf("archive_store.dir is required for local store")
		}
	case "s3":
		s3 := c.ArchiveStore.S3
		if s3.Endpoint == "" || s3.Bucket == "" || s3.SecretID == "" || s3.SecretKey == "" {
			return fmt.Errorf("archive_store.s3 endpoint/bucket/secret_id/secret_key are required for s3 store")
		}
		if s3.Region == "" {
			c.ArchiveStore.S3.Region = "cn"
		}
	default:
		return fmt.Errorf("archive_store.type must be local or s3")
	}
	return nil
}

func (d *DatabaseConfig) normalize() error {
	switch d.Driver {
	case "":
		d.Driver = "postgres"
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite")
	}
	if d.Driver == "sqlite" && d.DSN == "" {
		d.DSN = "journiv.db"
	}
	if d.Driver == "postgres" && d.DSN == "" && d.Host == "" {
		return fmt.Errorf("database.dsn or database.host is required")
	}
	if d.Port == 0 {
		d.Port = 5432
	}
	return nil
}

func (s *StorageConfig) normalize() {
	if s.MediaRoot == "" {
		s.MediaRoot = "data/media"
	}
	if s.ExportDir == "" {
		s.ExportDir = "data/exports"
	}
	if s.ImportTempDir == "" {
		s.ImportTempDir = "data/imports"
	}
}

func (l *LimitsConfig) normalize() {
	if l.MaxUploadBytes <= 0 {
		l.MaxUploadBytes = 500 * 1024 * 1024
	}
	if l.MaxExtractBytes <= 0 {
		l.MaxExtractBytes = 500 * 1024 * 1024
	}
	if l.MaxZipEntries <= 0 {
		l.MaxZipEntries = 50000
	}
	if l.MaxFilenameLength <= 0 {
		l.MaxFilenameLength = 255
	}
	if l.DayOneMaxFiles <= 0 {
		l.DayOneMaxFiles = 100
	}
	if l.DayOneMaxFileBytes <= 0 {
		l.DayOneMaxFileBytes = 500 * 1024 * 1024
	}
	if l.DayOneMaxEntries <= 0 {
		l.DayOneMaxEntries = 100000
	}
}

func (t *TransferConfig) normalize() {
	if t.ProgressEveryItems <= 0 {
		t.ProgressEveryItems = 10
	}
	if t.ProgressEverySeconds <= 0 {
		t.ProgressEverySeconds = 2
	}
	if t.MediaConcurrency <= 0 {
		t.MediaConcurrency = 3
	}
	if t.ExportRetentionHours <= 0 {
		t.ExportRetentionHours = 24 * 7
	}
	if t.ImportTempMaxAgeHours <= 0 {
		t.ImportTempMaxAgeHours = 24
	}
	if t.WorkerCount <= 0 {
		t.WorkerCount = 2
	}
	if t.QueueSize <= 0 {
		t.QueueSize = 64
	}
}

func (f *FetchConfig) normalize() {
	if f.TimeoutSeconds <= 0 {
		f.TimeoutSeconds = 10
	}
	if f.RetryCount < 0 {
		f.RetryCount = 0
	}
	if f.RetryCount == 0 {
		f.RetryCount = 2
	}
	if f.RetryWaitMS <= 0 {
		f.RetryWaitMS = 200
	}
	if f.RetryMaxWaitMS <= 0 {
		f.RetryMaxWaitMS = 2000
	}
	if f.MaxBytes <= 0 {
		f.MaxBytes = 100 * 1024 * 1024
	}
}
