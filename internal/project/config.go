package project

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed templates/config.tmpl
var configTemplateText string

// Config represents the configuration stored in .runlens/config.toml.
type Config struct {
	Project ProjectConfig `toml:"project"`
	Extract ExtractConfig `toml:"extract"`
	Analyze AnalyzeConfig `toml:"analyze"`
	History HistoryConfig `toml:"history"`
	Cache   CacheConfig   `toml:"cache"`
	Watch   WatchConfig   `toml:"watch"`
}

// ProjectConfig contains project metadata.
type ProjectConfig struct {
	Name      string    `toml:"name"`
	CreatedAt time.Time `toml:"created_at"`
}

// ExtractConfig tunes failure extraction.
type ExtractConfig struct {
	// ContextLines is the number of lines kept around each failure.
	// Defaults to 3.
	ContextLines *int `toml:"context_lines"`

	// StackWindow is how many bytes around a failure are searched for a
	// stack trace. Defaults to 2000.
	StackWindow *int `toml:"stack_window"`
}

// GetContextLines returns the configured context lines or 3.
func (e *ExtractConfig) GetContextLines() int {
	if e.ContextLines == nil || *e.ContextLines < 0 {
		return 3
	}
	return *e.ContextLines
}

// GetStackWindow returns the configured stack window or 2000.
func (e *ExtractConfig) GetStackWindow() int {
	if e.StackWindow == nil || *e.StackWindow < 0 {
		return 2000
	}
	return *e.StackWindow
}

// AnalyzeConfig contains structure reconstruction settings.
type AnalyzeConfig struct {
	// WorkflowsDir holds the workflow files used as workflow name hints.
	// Defaults to ".github/workflows".
	WorkflowsDir string `toml:"workflows_dir"`
}

// GetWorkflowsDir returns the workflows directory or ".github/workflows".
func (a *AnalyzeConfig) GetWorkflowsDir() string {
	if a.WorkflowsDir == "" {
		return ".github/workflows"
	}
	return a.WorkflowsDir
}

// HistoryConfig contains run history settings.
type HistoryConfig struct {
	Database string `toml:"database"`
	LogsDir  string `toml:"logs_dir"`
	// KeepRuns is how many runs prune keeps. Defaults to 50; 0 keeps all.
	KeepRuns *int `toml:"keep_runs"`
}

// GetDatabase returns the database path or ".runlens/history.db".
func (h *HistoryConfig) GetDatabase() string {
	if h.Database == "" {
		return ConfigDir + "/" + HistoryDB
	}
	return h.Database
}

// GetLogsDir returns the log directory or ".runlens/logs".
func (h *HistoryConfig) GetLogsDir() string {
	if h.LogsDir == "" {
		return ConfigDir + "/" + LogsDir
	}
	return h.LogsDir
}

// GetKeepRuns returns the number of runs kept by prune.
func (h *HistoryConfig) GetKeepRuns() int {
	if h.KeepRuns == nil || *h.KeepRuns < 0 {
		return 50
	}
	return *h.KeepRuns
}

// CacheConfig controls the in-process analysis cache.
type CacheConfig struct {
	TTLSeconds *int `toml:"ttl_seconds"`
}

// GetTTL returns the cache TTL. Defaults to 5 minutes.
func (c *CacheConfig) GetTTL() time.Duration {
	if c.TTLSeconds != nil && *c.TTLSeconds > 0 {
		return time.Duration(*c.TTLSeconds) * time.Second
	}
	return 5 * time.Minute
}

// WatchConfig contains settings for "runlens watch".
type WatchConfig struct {
	DebounceMs *int   `toml:"debounce_ms"`
	Pattern    string `toml:"pattern"`
}

// GetDebounce returns the quiet period before a changed log is ingested.
// Defaults to 500ms.
func (w *WatchConfig) GetDebounce() time.Duration {
	if w.DebounceMs != nil && *w.DebounceMs > 0 {
		return time.Duration(*w.DebounceMs) * time.Millisecond
	}
	return 500 * time.Millisecond
}

// GetPattern returns the glob for watched files or "**/*.log".
func (w *WatchConfig) GetPattern() string {
	if w.Pattern == "" {
		return "**/*.log"
	}
	return w.Pattern
}

// LoadConfig reads and parses a config.toml file.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// SaveDocumentedConfig writes a fully documented config to path.
func (c *Config) SaveDocumentedConfig(path string) error {
	return os.WriteFile(path, []byte(c.GenerateDocumentedConfig()), 0644)
}

type configTemplateData struct {
	Name            string
	CreatedAt       string
	ContextLines    int
	StackWindow     int
	WorkflowsDir    string
	Database        string
	LogsDir         string
	KeepRuns        int
	CacheTTLSeconds int
	DebounceMs      int64
	Pattern         string
}

// tomlString quotes s as a TOML basic string.
func tomlString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`, "\t", `\t`)
	return `"` + r.Replace(s) + `"`
}

var configTemplate = template.Must(template.New("config").Funcs(template.FuncMap{
	"tomlString": tomlString,
}).Parse(configTemplateText))

// GenerateDocumentedConfig renders c, with every default filled in, as a
// commented config.toml.
func (c *Config) GenerateDocumentedConfig() string {
	data := configTemplateData{
		Name:            c.Project.Name,
		CreatedAt:       c.Project.CreatedAt.UTC().Format(time.RFC3339),
		ContextLines:    c.Extract.GetContextLines(),
		StackWindow:     c.Extract.GetStackWindow(),
		WorkflowsDir:    c.Analyze.GetWorkflowsDir(),
		Database:        c.History.GetDatabase(),
		LogsDir:         c.History.GetLogsDir(),
		KeepRuns:        c.History.GetKeepRuns(),
		CacheTTLSeconds: int(c.Cache.GetTTL() / time.Second),
		DebounceMs:      c.Watch.GetDebounce().Milliseconds(),
		Pattern:         c.Watch.GetPattern(),
	}

	var buf bytes.Buffer
	if err := configTemplate.Execute(&buf, data); err != nil {
		return fmt.Sprintf("[project]\nname = %s\ncreated_at = %s\n", tomlString(c.Project.Name), data.CreatedAt)
	}
	return buf.String()
}
