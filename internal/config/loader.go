package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type SourceKind string

const (
	SourceDefault SourceKind = "default"
	SourceFile    SourceKind = "file"
	SourceEnv     SourceKind = "env"
)

type Source struct {
	Kind   SourceKind
	Name   string // env variable for SourceEnv
	File   string
	Line   int
	Column int
}

func (s Source) String() string {
	switch s.Kind {
	case SourceFile:
		return fmt.Sprintf("%s:%d:%d", s.File, s.Line, s.Column)
	case SourceEnv:
		return "$" + s.Name
	default:
		return "default"
	}
}

type LoadResult struct {
	Config  *Config
	Sources map[string]Source // YAML-path -> source (file and env only)
	File    string            // loaded file, empty when running on defaults
}

const (
	// ProjectConfigName is looked up in the repo dir.
	ProjectConfigName = "deskrig.yaml"

	EnvRepoDir = "DESKRIG_REPO_DIR"
	EnvDisplay = "DISPLAY"
)

// ValidationError ties a config problem to the YAML path that caused it.
type ValidationError struct {
	Path   string
	Source Source
	Err    error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Source.Kind == SourceFile && e.Source.File != "" && e.Source.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s: %v", e.Source.File, e.Source.Line, e.Source.Column, e.Path, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

func DefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "deskrig", "config.yaml"), nil
}

// RepoDir returns $DESKRIG_REPO_DIR or the working directory.
func RepoDir() (string, error) {
	if dir := strings.TrimSpace(os.Getenv(EnvRepoDir)); dir != "" {
		return canonicalPath(dir)
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return wd, nil
}

// FindConfig returns the config file to load. An explicit path must exist;
// otherwise <repo>/deskrig.yaml then ~/.config/deskrig/config.yaml are tried.
// An empty result means built-in defaults.
func FindConfig(explicit string) (string, error) {
	if strings.TrimSpace(explicit) != "" {
		exists, err := pathExists(explicit)
		if err != nil {
			return "", err
		}
		if !exists {
			return "", fmt.Errorf("%s: failed to read: file does not exist", explicit)
		}
		return explicit, nil
	}

	repo, err := RepoDir()
	if err != nil {
		return "", err
	}
	candidates := []string{filepath.Join(repo, ProjectConfigName)}
	if global, err := DefaultConfigPath(); err == nil {
		candidates = append(candidates, global)
	}
	for _, candidate := range candidates {
		exists, err := pathExists(candidate)
		if err != nil {
			return "", err
		}
		if exists {
			return candidate, nil
		}
	}
	return "", nil
}

// Load finds and loads the configuration. See FindConfig for the search order.
func Load(explicit string) (*LoadResult, error) {
	path, err := FindConfig(explicit)
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath loads path over the defaults. A missing or empty path yields
// the defaults.
func LoadFromPath(path string) (*LoadResult, error) {
	cfg := DefaultConfig()
	sources := map[string]Source{}
	var file string

	if strings.TrimSpace(path) != "" {
		exists, err := pathExists(path)
		if err != nil {
			return nil, err
		}
		if exists {
			canon, err := canonicalPath(path)
			if err != nil {
				return nil, err
			}
			data, err := os.ReadFile(canon)
			if err != nil {
				return nil, fmt.Errorf("%s: failed to read: %w", canon, err)
			}
			var doc yaml.Node
			if err := yaml.Unmarshal(data, &doc); err != nil {
				return nil, fmt.Errorf("%s: failed to parse yaml: %w", canon, err)
			}
			if err := decodeStrictYAML(data, cfg); err != nil {
				return nil, fmt.Errorf("%s: %w", canon, err)
			}
			sources = collectSources(&doc, canon)
			file = canon
		}
	}

	if err := applyEnv(cfg, file, sources); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, attachSourceContext(err, sources)
	}

	return &LoadResult{
		Config:  cfg,
		Sources: sources,
		File:    file,
	}, nil
}

// applyEnv sets RepoDir and applies environment overrides.
func applyEnv(cfg *Config, file string, sources map[string]Source) error {
	switch {
	case strings.TrimSpace(os.Getenv(EnvRepoDir)) != "":
		dir, err := RepoDir()
		if err != nil {
			return err
		}
		cfg.RepoDir = dir
	case file != "" && filepath.Base(file) == ProjectConfigName:
		cfg.RepoDir = filepath.Dir(file)
	default:
		dir, err := RepoDir()
		if err != nil {
			return err
		}
		cfg.RepoDir = dir
	}

	// The local backend drives the host display, so DISPLAY wins there.
	if cfg.Runtime.Backend == BackendLocal {
		if display := strings.TrimSpace(os.Getenv(EnvDisplay)); display != "" {
			cfg.Runtime.Display = display
			sources["runtime.display"] = Source{Kind: SourceEnv, Name: EnvDisplay}
		}
	}
	return nil
}

// Marshal renders the effective configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Explain returns the effective value at a dotted YAML path (for example
// runtime.ssh.port or geometry_checks) and where it came from.
func Explain(res *LoadResult, path string) (any, Source, error) {
	if res == nil || res.Config == nil {
		return nil, Source{}, fmt.Errorf("no config loaded")
	}
	if path == "" {
		return nil, Source{}, fmt.Errorf("path is empty")
	}

	var root yaml.Node
	if err := root.Encode(res.Config); err != nil {
		return nil, Source{}, err
	}
	node := &root
	for _, part := range strings.Split(path, ".") {
		next := mappingValue(node, part)
		if next == nil {
			return nil, Source{}, fmt.Errorf("unknown config path %q", path)
		}
		node = next
	}
	var value any
	if err := node.Decode(&value); err != nil {
		return nil, Source{}, err
	}

	if src, ok := res.Sources[path]; ok {
		return value, src, nil
	}
	return value, Source{Kind: SourceDefault}, nil
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

func decodeStrictYAML(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

func canonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %q: %w", path, err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// Best-effort; still use abs.
		return abs, nil
	}
	return real, nil
}

func pathExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func collectSources(doc *yaml.Node, file string) map[string]Source {
	out := make(map[string]Source)
	if doc == nil {
		return out
	}
	node := doc
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		node = node.Content[0]
	}
	collectSourcesRec(node, file, "", out)
	return out
}

func collectSourcesRec(node *yaml.Node, file string, prefix string, out map[string]Source) {
	if node == nil {
		return
	}
	switch node.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			keyNode := node.Content[i]
			valNode := node.Content[i+1]
			path := keyNode.Value
			if prefix != "" {
				path = prefix + "." + keyNode.Value
			}
			out[path] = Source{
				Kind:   SourceFile,
				File:   file,
				Line:   valNode.Line,
				Column: valNode.Column,
			}
			collectSourcesRec(valNode, file, path, out)
		}
	case yaml.SequenceNode:
		if prefix != "" {
			out[prefix] = Source{
				Kind:   SourceFile,
				File:   file,
				Line:   node.Line,
				Column: node.Column,
			}
		}
	}
}

func attachSourceContext(err error, sources map[string]Source) error {
	var verr *ValidationError
	if !errors.As(err, &verr) || verr == nil {
		return err
	}
	if verr.Path == "" {
		return err
	}
	if src, ok := sources[verr.Path]; ok {
		verr.Source = src
	}
	return verr
}
