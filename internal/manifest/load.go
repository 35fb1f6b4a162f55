package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Format is a manifest encoding.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// FormatFor returns the format implied by path's extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// Load reads, resolves and validates the manifest at path. Relative paths in
// the manifest are relative to the manifest's directory.
func Load(path string) (*Manifest, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve manifest path %s: %w", path, err)
	}

	m, err := Parse(data, format, filepath.Dir(abs))
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest %s: %w", path, err)
	}
	return m, nil
}

// Parse decodes data and resolves relative paths against baseDir. Unknown
// keys are rejected so typos do not silently drop files.
func Parse(data []byte, format Format, baseDir string) (*Manifest, error) {
	var m Manifest
	switch format {
	case FormatTOML:
		md, err := toml.Decode(string(data), &m)
		if err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			sort.Strings(keys)
			return nil, fmt.Errorf("%w: unknown keys %s", ErrInvalidManifest, strings.Join(keys, ", "))
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	m.resolve(baseDir)
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// resolve makes every relative path absolute.
func (m *Manifest) resolve(baseDir string) {
	abs := func(path string) string {
		if path == "" || filepath.IsAbs(path) {
			return path
		}
		return filepath.Join(baseDir, path)
	}
	absAll := func(paths []string) []string {
		for i, p := range paths {
			paths[i] = abs(p)
		}
		return paths
	}

	for i := range m.Projects {
		p := &m.Projects[i]
		p.File = abs(p.File)
		p.OutputPath = abs(p.OutputPath)
		p.OutputRefPath = abs(p.OutputRefPath)
		p.Sources = absAll(p.Sources)
		p.AdditionalFiles = absAll(p.AdditionalFiles)
		p.AnalyzerConfigs = absAll(p.AnalyzerConfigs)
		p.Analyzers = absAll(p.Analyzers)
		for j := range p.References {
			p.References[j].Path = abs(p.References[j].Path)
		}
	}
}
