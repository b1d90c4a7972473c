// Package config handles specgate's configuration file.
//
// The file lives at <project>/specgate/specgate.yaml. Every key is
// optional; Default supplies the values a fresh project runs with, and
// command-line flags override whatever the file sets.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/HendryAvila/specgate/internal/logging"
)

const (
	// Dir is the project subdirectory holding specgate files.
	Dir = "specgate"
	// File is the configuration file name inside Dir.
	File = "specgate.yaml"
	// DefaultDataDirName is the audit directory under the home directory.
	DefaultDataDirName = ".specgate"
)

// Config is the full configuration.
type Config struct {
	// CataloguePath is the catalogue document (.json, .yaml, .yml, .hcl).
	// Relative paths resolve against the project root.
	CataloguePath string `yaml:"catalogue_path,omitempty"`
	// CycleCap is the number of rejected resolutions before escalation.
	CycleCap int `yaml:"cycle_cap" validate:"min=1,max=100"`
	// CascadeDepth bounds dependency hops during cascade detection.
	CascadeDepth int `yaml:"cascade_depth" validate:"min=1,max=32"`

	Audit AuditConfig    `yaml:"audit"`
	HTTP  HTTPConfig     `yaml:"http"`
	Log   logging.Config `yaml:"log"`
}

// AuditConfig controls the SQLite audit journal.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	DataDir string `yaml:"data_dir,omitempty"`
}

// HTTPConfig controls the read-only inspection API. An empty Addr
// disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr,omitempty" validate:"omitempty,hostname_port"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		CycleCap:     3,
		CascadeDepth: 6,
		Audit:        AuditConfig{Enabled: true},
		Log:          logging.DefaultConfig,
	}
}

var configValidate = validator.New()

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// DataDir returns the audit directory, defaulting to ~/.specgate.
func (c *Config) DataDir() (string, error) {
	if c.Audit.DataDir != "" {
		return expandHome(c.Audit.DataDir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, DefaultDataDirName), nil
}

// CatalogueFile resolves CataloguePath against root. It returns "" when
// no catalogue is configured.
func (c *Config) CatalogueFile(root string) (string, error) {
	if c.CataloguePath == "" {
		return "", nil
	}
	p, err := expandHome(c.CataloguePath)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	return p, nil
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}

// --- Paths ---

// SpecgatePath returns the specgate directory of a project.
func SpecgatePath(projectRoot string) string {
	return filepath.Join(projectRoot, Dir)
}

// ConfigPath returns the configuration file path of a project.
func ConfigPath(projectRoot string) string {
	return filepath.Join(projectRoot, Dir, File)
}

// Exists reports whether a project has a configuration file.
func Exists(projectRoot string) bool {
	_, err := os.Stat(ConfigPath(projectRoot))
	return err == nil
}

// FindProjectRoot walks up from start looking for specgate/specgate.yaml.
// When none is found it returns start; the caller decides what to do.
func FindProjectRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", start, err)
	}
	current := dir
	for {
		if Exists(current) {
			return current, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return dir, nil
		}
		current = parent
	}
}

// --- Store ---

// Store loads and saves project configuration.
type Store interface {
	Load(projectRoot string) (*Config, error)
	Save(projectRoot string, cfg *Config) error
}

// ErrNotInitialized is returned by Load when the project has no file.
var ErrNotInitialized = errors.New("specgate not initialized: no specgate/specgate.yaml")

// FileStore is the YAML-on-disk Store.
type FileStore struct{}

// NewFileStore creates a FileStore.
func NewFileStore() *FileStore {
	return &FileStore{}
}

// Load reads the project's file over Default.
func (fs *FileStore) Load(projectRoot string) (*Config, error) {
	cfg, err := LoadFile(ConfigPath(projectRoot))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotInitialized
	}
	return cfg, err
}

// Save validates cfg and writes it, creating the directory as needed.
func (fs *FileStore) Save(projectRoot string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(SpecgatePath(projectRoot), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", SpecgatePath(projectRoot), err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", File, err)
	}
	if err := os.WriteFile(ConfigPath(projectRoot), data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", File, err)
	}
	return nil
}

// LoadFile reads a configuration file at an explicit path. Keys the file
// omits keep their defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
