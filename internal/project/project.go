// Package project locates the runlens project directory and its
// configuration, and opens the history store on demand.
package project

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/newhook/runlens/internal/db"
	"github.com/newhook/runlens/internal/logging"
)

const (
	// ConfigDir is the directory name for project configuration.
	ConfigDir = ".runlens"
	// ConfigFile is the name of the project config file.
	ConfigFile = "config.toml"
	// HistoryDB is the name of the run history database file.
	HistoryDB = "history.db"
	// LogsDir is the name of the raw log directory.
	LogsDir = "logs"
)

// ErrNoProject is returned when no .runlens/config.toml is found.
var ErrNoProject = errors.New("no runlens project found")

// Project is a directory containing .runlens/.
type Project struct {
	Root   string
	Config *Config

	dbOnce sync.Once
	db     *db.DB
	dbErr  error
}

// Find finds a project from a flag value or the current directory,
// walking up until a .runlens/config.toml is found.
func Find(ctx context.Context, flagValue string) (*Project, error) {
	start := flagValue
	if start == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		start = cwd
	}

	dir, err := filepath.Abs(start)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, ConfigDir, ConfigFile)); err == nil {
			return load(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, fmt.Errorf("%w (no %s directory above %s)", ErrNoProject, ConfigDir, start)
		}
		dir = parent
	}
}

// FindOrDefault is Find, falling back to a project with default settings
// rooted at the start directory when none exists. Nothing is written to
// disk until the history store is used.
func FindOrDefault(ctx context.Context, flagValue string) (*Project, error) {
	p, err := Find(ctx, flagValue)
	if err == nil || !errors.Is(err, ErrNoProject) {
		return p, err
	}
	root := flagValue
	if root == "" {
		if root, err = os.Getwd(); err != nil {
			return nil, err
		}
	}
	if root, err = filepath.Abs(root); err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	return &Project{Root: root, Config: &Config{}}, nil
}

func load(root string) (*Project, error) {
	configPath := filepath.Join(root, ConfigDir, ConfigFile)
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
	}
	return &Project{Root: root, Config: cfg}, nil
}

// Create initializes a new project at dir.
func Create(ctx context.Context, dir string) (*Project, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	configDir := filepath.Join(absDir, ConfigDir)
	configPath := filepath.Join(configDir, ConfigFile)
	if _, err := os.Stat(configPath); err == nil {
		return nil, fmt.Errorf("project already exists at %s", absDir)
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create project directory: %w", err)
	}

	cfg := &Config{
		Project: ProjectConfig{
			Name:      filepath.Base(absDir),
			CreatedAt: time.Now(),
		},
	}
	if err := cfg.SaveDocumentedConfig(configPath); err != nil {
		return nil, fmt.Errorf("failed to write config: %w", err)
	}

	p := &Project{Root: absDir, Config: cfg}
	if _, err := p.DB(ctx); err != nil {
		return nil, err
	}
	logging.Info("project created", "root", absDir)
	return p, nil
}

// Path resolves a configured path against the project root.
func (p *Project) Path(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(p.Root, rel)
}

// WorkflowsDir returns the absolute workflows directory.
func (p *Project) WorkflowsDir() string {
	return p.Path(p.Config.Analyze.GetWorkflowsDir())
}

// Logs returns the raw log store.
func (p *Project) Logs() *db.LogStore {
	return db.NewLogStore(p.Path(p.Config.History.GetLogsDir()))
}

// DB opens the history database on first use.
func (p *Project) DB(ctx context.Context) (*db.DB, error) {
	p.dbOnce.Do(func() {
		path := p.Path(p.Config.History.GetDatabase())
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			p.dbErr = fmt.Errorf("failed to create database directory: %w", err)
			return
		}
		p.db, p.dbErr = db.OpenPath(ctx, path)
		if p.dbErr != nil {
			p.dbErr = fmt.Errorf("failed to open history database: %w", p.dbErr)
		}
	})
	return p.db, p.dbErr
}

// Close closes the history database if it was opened.
func (p *Project) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database: %w", err)
		}
	}
	return nil
}
