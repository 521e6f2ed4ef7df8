package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/kjk/regstore/backup"
	"github.com/kjk/regstore/log"
	"github.com/kjk/regstore/recstore"
	"gopkg.in/yaml.v3"
)

const (
	envS3Access = "REGSTORE_S3_ACCESS"
	envS3Secret = "REGSTORE_S3_SECRET"
)

type FileConfig struct {
	Dir            string `yaml:"dir"`
	Name           string `yaml:"name"`
	SyncWrite      bool   `yaml:"sync_write"`
	SubstringMatch bool   `yaml:"substring_match"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type LogConfig struct {
	Dir          string `yaml:"dir"`
	Verbose      bool   `yaml:"verbose"`
	RemoteServer string `yaml:"remote_server"`
	ApiKey       string `yaml:"api_key"`
}

type S3Config struct {
	Endpoint string `yaml:"endpoint"`
	Access   string `yaml:"access"`
	Secret   string `yaml:"secret"`
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region"`
}

type BackupConfig struct {
	Dir          string   `yaml:"dir"`
	Compression  string   `yaml:"compression"`
	RemotePrefix string   `yaml:"remote_prefix"`
	S3           S3Config `yaml:"s3"`
}

type Config struct {
	// recstore.BackendFile or recstore.BackendDatabase
	Backend          string         `yaml:"backend"`
	RejectDuplicates bool           `yaml:"reject_duplicates"`
	File             FileConfig     `yaml:"file"`
	Database         DatabaseConfig `yaml:"database"`
	Log              LogConfig      `yaml:"log"`
	Backup           BackupConfig   `yaml:"backup"`
}

// Default returns a configuration that stores records in archivo.txt
// in the current directory
func Default() Config {
	return Config{
		Backend: recstore.BackendFile,
		File: FileConfig{
			Dir:  ".",
			Name: recstore.DefaultFileName,
		},
		Database: DatabaseConfig{
			Driver: recstore.DefaultDriver,
			DSN:    "file:regstore.db",
		},
		Log: LogConfig{
			Dir: "logs",
		},
		Backup: BackupConfig{
			Dir:          "backups",
			Compression:  backup.CompressionZstd,
			RemotePrefix: "regstore/backups",
		},
	}
}

// Load reads YAML configuration on top of Default().
// Unknown fields are an error. Empty path returns defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to open config: %w", err)
		}
		defer file.Close()

		decoder := yaml.NewDecoder(file)
		decoder.KnownFields(true)
		// empty file is ok, we keep defaults
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return cfg, fmt.Errorf("YAML syntax error in config '%s': %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(envS3Access); v != "" {
		c.Backup.S3.Access = v
	}
	if v := os.Getenv(envS3Secret); v != "" {
		c.Backup.S3.Secret = v
	}
}

func (c *Config) Validate() error {
	switch c.Backend {
	case recstore.BackendFile:
		if c.File.Dir == "" {
			return fmt.Errorf("file.dir must be set for backend '%s'", c.Backend)
		}
	case recstore.BackendDatabase:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn must be set for backend '%s'", c.Backend)
		}
	default:
		return fmt.Errorf("invalid backend '%s', must be '%s' or '%s'", c.Backend, recstore.BackendFile, recstore.BackendDatabase)
	}
	switch c.Backup.Compression {
	case backup.CompressionZstd, backup.CompressionBrotli, backup.CompressionNone:
	default:
		return fmt.Errorf("invalid backup.compression '%s'", c.Backup.Compression)
	}
	return nil
}

func (c *Config) StoreOptions() recstore.Options {
	return recstore.Options{
		Backend:          c.Backend,
		RejectDuplicates: c.RejectDuplicates,
		Dir:              c.File.Dir,
		FileName:         c.File.Name,
		SyncWrite:        c.File.SyncWrite,
		SubstringMatch:   c.File.SubstringMatch,
		Driver:           c.Database.Driver,
		DSN:              c.Database.DSN,
	}
}

func (c *Config) LogConfig() *log.Config {
	return &log.Config{
		Dir:          c.Log.Dir,
		Verbose:      c.Log.Verbose,
		RemoteServer: c.Log.RemoteServer,
		ApiKey:       c.Log.ApiKey,
	}
}
