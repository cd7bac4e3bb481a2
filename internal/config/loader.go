package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// SourceKind says where an effective value came from.
type SourceKind string

const (
	SourceDefault SourceKind = "default"
	SourceFile    SourceKind = "file"
	SourceEnv     SourceKind = "env"
)

// Source locates a value. Name is set for defaults and environment
// overrides, File/Line/Column for values read from yaml.
type Source struct {
	Kind   SourceKind
	Name   string
	File   string
	Line   int
	Column int
}

func (s Source) position() string {
	return fmt.Sprintf("%s:%d:%d", s.File, s.Line, s.Column)
}

// LoadResult is a validated config plus where each key was last set.
type LoadResult struct {
	Config *Config
	// Sources maps dotted yaml keys (e.g. "logging.level") to the file
	// position that set them last.
	Sources map[string]Source
	// Files lists every file read, includes first.
	Files []string
}

// DefaultConfigPath is ~/.config/vidout/config.yaml.
func DefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "vidout", "config.yaml"), nil
}

// Load reads the daemon configuration from DefaultConfigPath.
func Load() (*Config, error) {
	res, err := LoadWithSources()
	if err != nil {
		return nil, err
	}
	return res.Config, nil
}

// LoadWithSources is Load keeping per-key sources for `config explain`.
func LoadWithSources() (*LoadResult, error) {
	path, err := DefaultConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath loads path and its includes. A missing file yields the
// defaults. Includes are merged first, in order, and the including file
// overrides them.
func LoadFromPath(path string) (*LoadResult, error) {
	l := &loader{
		merged:  RawConfig{},
		sources: map[string]Source{},
		visited: map[string]bool{},
	}

	_, err := os.Stat(path)
	switch {
	case err == nil:
		if err := l.load(path); err != nil {
			return nil, err
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	cfg, err := BuildEffectiveConfig(l.merged)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		return nil, l.locate(err)
	}
	return &LoadResult{Config: cfg, Sources: l.sources, Files: l.files}, nil
}

// loader walks one include tree. chain is the current include path and
// catches cycles; visited keeps a file reached twice from merging twice.
type loader struct {
	merged  RawConfig
	sources map[string]Source
	files   []string
	visited map[string]bool
	chain   []string
}

func (l *loader) load(path string) error {
	file, err := canonicalPath(path)
	if err != nil {
		return err
	}
	if slices.Contains(l.chain, file) {
		return fmt.Errorf("include cycle detected: %s -> %s", strings.Join(l.chain, " -> "), file)
	}
	if l.visited[file] {
		return nil
	}
	l.visited[file] = true

	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("config %s: %w", file, err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%s: invalid yaml: %w", file, err)
	}
	var raw RawConfig
	if err := decodeStrict(data, &raw); err != nil {
		return fmt.Errorf("%s: %w", file, err)
	}

	l.chain = append(l.chain, file)
	for _, inc := range includes(topMapping(&doc), file) {
		paths, err := expandInclude(file, inc.value)
		if err != nil {
			return fmt.Errorf("%s: include %q: %w", inc.at.position(), inc.value, err)
		}
		for _, p := range paths {
			if err := l.load(p); err != nil {
				return err
			}
		}
	}
	l.chain = l.chain[:len(l.chain)-1]

	l.merged = l.merged.merge(raw)
	recordSources(topMapping(&doc), file, "", l.sources)
	l.files = append(l.files, file)
	return nil
}

// locate pins a ValidationError to the file position of its key.
func (l *loader) locate(err error) error {
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Path == "" {
		return err
	}
	if src, ok := l.sources[verr.Path]; ok {
		verr.Source = src
	}
	return err
}

func decodeStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && err != io.EOF {
		return err
	}
	return nil
}

func canonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %q: %w", path, err)
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real, nil
	}
	return abs, nil
}

// expandInclude resolves an include relative to the including file. A
// directory expands to its .yaml/.yml files in lexical order.
func expandInclude(from, include string) ([]string, error) {
	if include == "" {
		return nil, fmt.Errorf("path is empty")
	}
	path := expandHome(include)
	if !filepath.IsAbs(path) {
		path = filepath.Join(filepath.Dir(from), path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, ent := range entries {
		switch strings.ToLower(filepath.Ext(ent.Name())) {
		case ".yaml", ".yml":
			if !ent.IsDir() {
				files = append(files, filepath.Join(path, ent.Name()))
			}
		}
	}
	slices.Sort(files)
	return files, nil
}

func topMapping(doc *yaml.Node) *yaml.Node {
	node := doc
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		node = node.Content[0]
	}
	if node.Kind != yaml.MappingNode {
		return nil
	}
	return node
}

func fileSource(file string, n *yaml.Node) Source {
	return Source{Kind: SourceFile, File: file, Line: n.Line, Column: n.Column}
}

// recordSources stores the position of every key under node. Sequences
// (virtual.modes, include) are recorded as a whole.
func recordSources(node *yaml.Node, file, prefix string, out map[string]Source) {
	if node == nil || node.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i].Value, node.Content[i+1]
		if prefix != "" {
			key = prefix + "." + key
		}
		out[key] = fileSource(file, val)
		recordSources(val, file, key, out)
	}
}

type includeRef struct {
	value string
	at    Source
}

// includes reads the top-level include key, a path or a list of paths.
func includes(top *yaml.Node, file string) []includeRef {
	if top == nil {
		return nil
	}
	for i := 0; i+1 < len(top.Content); i += 2 {
		if top.Content[i].Value != "include" {
			continue
		}
		val := top.Content[i+1]
		items := []*yaml.Node{val}
		if val.Kind == yaml.SequenceNode {
			items = val.Content
		}
		var refs []includeRef
		for _, item := range items {
			if item.Kind == yaml.ScalarNode {
				refs = append(refs, includeRef{value: item.Value, at: fileSource(file, item)})
			}
		}
		return refs
	}
	return nil
}
