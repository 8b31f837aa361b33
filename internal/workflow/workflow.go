// Package workflow discovers GitHub Actions workflow files and reads the
// display names the analyzer uses to group jobs.
package workflow

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/goccy/go-yaml"

	"github.com/newhook/runlens/internal/logging"
)

// maxWorkflowSize caps the size of a workflow file we are willing to parse.
const maxWorkflowSize = 1 << 20

// Workflow is the part of a workflow file runlens cares about.
type Workflow struct {
	// Name is the workflow's display name: its name: key, else the file stem.
	Name string
	// File is the path relative to the workflows directory.
	File string
	// Jobs maps job ids to display names.
	Jobs map[string]string
}

type document struct {
	Name string `yaml:"name"`
	Jobs map[string]*struct {
		Name string `yaml:"name"`
	} `yaml:"jobs"`
}

// Discover parses every *.yml and *.yaml file under dir. A missing
// directory yields no workflows. Files that fail to parse are skipped.
func Discover(dir string) ([]Workflow, error) {
	if dir == "" {
		return nil, errors.New("workflows directory cannot be empty")
	}
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading workflows directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	fsys := os.DirFS(dir)
	var files []string
	for _, pattern := range []string{"**/*.yml", "**/*.yaml"} {
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly(), doublestar.WithNoFollow())
		if err != nil {
			return nil, fmt.Errorf("globbing workflows: %w", err)
		}
		files = append(files, matches...)
	}
	sort.Strings(files)

	var out []Workflow
	for _, file := range files {
		wf, err := parse(fsys, file)
		if err != nil {
			logging.Warn("skipping workflow file", "file", file, "error", err)
			continue
		}
		out = append(out, wf)
	}
	return out, nil
}

// Names returns the sorted, de-duplicated display names of workflows.
func Names(workflows []Workflow) []string {
	seen := make(map[string]struct{}, len(workflows))
	var names []string
	for _, w := range workflows {
		if _, ok := seen[w.Name]; ok || w.Name == "" {
			continue
		}
		seen[w.Name] = struct{}{}
		names = append(names, w.Name)
	}
	sort.Strings(names)
	return names
}

// DiscoverNames is Discover followed by Names.
func DiscoverNames(dir string) ([]string, error) {
	workflows, err := Discover(dir)
	if err != nil {
		return nil, err
	}
	return Names(workflows), nil
}

func parse(fsys fs.FS, file string) (Workflow, error) {
	data, err := fs.ReadFile(fsys, file)
	if err != nil {
		return Workflow{}, fmt.Errorf("reading workflow file: %w", err)
	}
	if err := validate(data); err != nil {
		return Workflow{}, err
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Workflow{}, fmt.Errorf("parsing workflow YAML: %w", err)
	}

	wf := Workflow{
		Name: strings.TrimSpace(doc.Name),
		File: file,
		Jobs: make(map[string]string, len(doc.Jobs)),
	}
	if wf.Name == "" {
		base := path.Base(file)
		wf.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	for id, job := range doc.Jobs {
		name := id
		if job != nil && strings.TrimSpace(job.Name) != "" {
			name = strings.TrimSpace(job.Name)
		}
		wf.Jobs[id] = name
	}
	return wf, nil
}

// validate rejects content that is too large or looks binary.
func validate(data []byte) error {
	if len(data) > maxWorkflowSize {
		return fmt.Errorf("workflow file exceeds maximum size of %d bytes", maxWorkflowSize)
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return errors.New("workflow file contains null bytes")
	}
	control := 0
	for _, b := range data {
		if b < 32 && b != '\n' && b != '\r' && b != '\t' {
			control++
		}
	}
	if control > 10 {
		return fmt.Errorf("workflow file contains excessive control characters (%d found)", control)
	}
	return nil
}
