// Package config loads tmux-backup settings. Values come from, lowest
// priority first: Default, the YAML config file, TMUX_BACKUP_* environment
// variables, and command line flags applied by the caller.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/alchemmist/tmux-backup/internal/retention"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "TMUX_BACKUP"

const appDir = "tmux-backup"

type Config struct {
	TmuxBin    string `yaml:"tmux_bin" envconfig:"TMUX_BIN"`
	TmuxSocket string `yaml:"tmux_socket" envconfig:"TMUX_SOCKET"`
	BackupDir  string `yaml:"dirpath" envconfig:"DIRPATH"`
	Strategy   string `yaml:"strategy" envconfig:"STRATEGY"`
	NumBackups int    `yaml:"num_backups" envconfig:"NUM_BACKUPS"`
	// LinesToDrop trims the last lines of every captured pane, usually the
	// shell prompt that would otherwise be printed twice after restore.
	LinesToDrop  int           `yaml:"lines_to_drop" envconfig:"LINES_TO_DROP"`
	SaveInterval time.Duration `yaml:"save_interval" envconfig:"SAVE_INTERVAL"`
	// Parallelism bounds concurrent pane captures and session restores.
	// Zero means no bound.
	Parallelism int    `yaml:"parallelism" envconfig:"PARALLELISM"`
	LogLevel    string `yaml:"log_level" envconfig:"LOG_LEVEL"`
}

func Default() Config {
	return Config{
		TmuxBin:      "tmux",
		BackupDir:    DefaultBackupDir(os.LookupEnv),
		Strategy:     retention.MostRecentName,
		NumBackups:   10,
		SaveInterval: 5 * time.Minute,
		Parallelism:  8,
		LogLevel:     "warn",
	}
}

// DefaultBackupDir resolves the backup directory from the environment:
// $XDG_STATE_HOME/tmux-backup, then $HOME/.local/state/tmux-backup.
func DefaultBackupDir(lookup func(string) (string, bool)) string {
	if v, ok := lookup("XDG_STATE_HOME"); ok && strings.TrimSpace(v) != "" {
		return filepath.Join(v, appDir)
	}
	if v, ok := lookup("HOME"); ok && strings.TrimSpace(v) != "" {
		return filepath.Join(v, ".local", "state", appDir)
	}
	return "." + appDir
}

// DefaultConfigPath is $XDG_CONFIG_HOME/tmux-backup/config.yaml, falling
// back to ~/.config. It is empty when neither variable is set.
func DefaultConfigPath(lookup func(string) (string, bool)) string {
	if v, ok := lookup("XDG_CONFIG_HOME"); ok && strings.TrimSpace(v) != "" {
		return filepath.Join(v, appDir, "config.yaml")
	}
	if v, ok := lookup("HOME"); ok && strings.TrimSpace(v) != "" {
		return filepath.Join(v, ".config", appDir, "config.yaml")
	}
	return ""
}

// Load applies the config file and the environment over Default. An empty
// path means DefaultConfigPath, which may be missing; an explicit path must
// exist.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath(os.LookupEnv)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return Config{}, err
			}
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// Validate rejects settings the commands cannot run with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.BackupDir) == "" {
		errs = append(errs, errors.New("backup directory is empty"))
	}
	if c.NumBackups < 1 {
		errs = append(errs, fmt.Errorf("num-backups must be at least 1, got %d", c.NumBackups))
	}
	if _, err := c.RetentionStrategy(); err != nil {
		errs = append(errs, err)
	}
	if c.LinesToDrop < 0 {
		errs = append(errs, fmt.Errorf("lines to drop must not be negative, got %d", c.LinesToDrop))
	}
	if c.Parallelism < 0 {
		errs = append(errs, fmt.Errorf("parallelism must not be negative, got %d", c.Parallelism))
	}
	if c.SaveInterval <= 0 {
		errs = append(errs, fmt.Errorf("save interval must be positive, got %s", c.SaveInterval))
	}
	return errors.Join(errs...)
}

func (c Config) RetentionStrategy() (retention.Strategy, error) {
	return retention.ParseStrategy(c.Strategy, c.NumBackups)
}
