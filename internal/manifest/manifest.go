// Package manifest describes a solution as a TOML or YAML file and keeps a
// projectsystem.Factory in sync with it.
//
// A manifest plays the role of the project system: it declares projects,
// their files and their references. Loading it again after an edit applies
// only the difference.
package manifest

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/steveyegge/projsync/internal/workspace"
)

var (
	// ErrInvalidManifest is returned when a manifest fails validation.
	ErrInvalidManifest = errors.New("invalid manifest")

	// ErrUnsupportedFormat is returned for files that are neither TOML nor YAML.
	ErrUnsupportedFormat = errors.New("unsupported manifest format")
)

// Manifest is the root of a manifest file.
type Manifest struct {
	Name     string        `toml:"name" yaml:"name"`
	Projects []ProjectSpec `toml:"project" yaml:"projects"`
}

// ProjectSpec declares one project.
type ProjectSpec struct {
	// ===== Identification =====
	Name         string `toml:"name" yaml:"name"`
	Language     string `toml:"language" yaml:"language"`
	AssemblyName string `toml:"assembly_name" yaml:"assembly_name"`
	File         string `toml:"file" yaml:"file"`

	// ===== Build outputs =====
	OutputPath    string `toml:"output_path" yaml:"output_path"`
	OutputRefPath string `toml:"output_ref_path" yaml:"output_ref_path"`
	OutputKind    string `toml:"output_kind" yaml:"output_kind"` // library, exe, winexe, module

	// ===== Parsing =====
	LanguageVersion string   `toml:"language_version" yaml:"language_version"`
	DefineConstants []string `toml:"define_constants" yaml:"define_constants"`

	// ===== Documents =====
	Sources         []string `toml:"sources" yaml:"sources"`
	AdditionalFiles []string `toml:"additional_files" yaml:"additional_files"`
	AnalyzerConfigs []string `toml:"analyzer_configs" yaml:"analyzer_configs"`

	// ===== References =====
	References        []ReferenceSpec `toml:"reference" yaml:"references"`
	ProjectReferences []string        `toml:"project_references" yaml:"project_references"` // project names
	Analyzers         []string        `toml:"analyzers" yaml:"analyzers"`

	// Properties are raw build properties handed to the host.
	Properties map[string]string `toml:"properties" yaml:"properties"`
}

// ReferenceSpec declares a metadata reference.
type ReferenceSpec struct {
	Path              string   `toml:"path" yaml:"path"`
	Aliases           []string `toml:"aliases" yaml:"aliases"`
	EmbedInteropTypes bool     `toml:"embed_interop_types" yaml:"embed_interop_types"`
}

// Properties returns the reference properties declared by r.
func (r ReferenceSpec) Properties() workspace.MetadataReferenceProperties {
	return workspace.MetadataReferenceProperties{
		Aliases:           slices.Clone(r.Aliases),
		EmbedInteropTypes: r.EmbedInteropTypes,
	}
}

func (r ReferenceSpec) key() string {
	return strings.ToLower(filepath.Clean(r.Path)) + "|" + r.Properties().Key()
}

var outputKinds = []workspace.OutputKind{
	workspace.OutputKindLibrary,
	workspace.OutputKindConsole,
	workspace.OutputKindWindows,
	workspace.OutputKindModule,
}

// CompilationOptions returns the compilation options declared by p.
func (p ProjectSpec) CompilationOptions() workspace.CompilationOptions {
	kind := workspace.OutputKind(p.OutputKind)
	if kind == "" {
		kind = workspace.OutputKindLibrary
	}
	return workspace.CompilationOptions{OutputKind: kind}
}

// ParseOptions returns the parse options declared by p.
func (p ProjectSpec) ParseOptions() workspace.ParseOptions {
	return workspace.ParseOptions{
		LanguageVersion:     p.LanguageVersion,
		PreprocessorSymbols: slices.Clone(p.DefineConstants),
	}
}

// Validate checks the manifest for problems that would otherwise surface
// halfway through a sync. All problems are reported together.
func (m *Manifest) Validate() error {
	var problems []error
	names := make(map[string]bool, len(m.Projects))

	for i, p := range m.Projects {
		label := fmt.Sprintf("project %d", i)
		if p.Name == "" {
			problems = append(problems, fmt.Errorf("%s: name is required", label))
		} else {
			label = fmt.Sprintf("project %q", p.Name)
			if names[p.Name] {
				problems = append(problems, fmt.Errorf("%s: declared twice", label))
			}
			names[p.Name] = true
		}
		if p.Language == "" {
			problems = append(problems, fmt.Errorf("%s: language is required", label))
		}
		if p.OutputKind != "" && !slices.Contains(outputKinds, workspace.OutputKind(p.OutputKind)) {
			problems = append(problems, fmt.Errorf("%s: unknown output_kind %q", label, p.OutputKind))
		}

		for field, path := range map[string]string{"file": p.File, "output_path": p.OutputPath, "output_ref_path": p.OutputRefPath} {
			if path != "" && !filepath.IsAbs(path) {
				problems = append(problems, fmt.Errorf("%s: %s %q is not absolute", label, field, path))
			}
		}
		for field, paths := range map[string][]string{
			"sources":          p.Sources,
			"additional_files": p.AdditionalFiles,
			"analyzer_configs": p.AnalyzerConfigs,
			"analyzers":        p.Analyzers,
		} {
			problems = append(problems, checkPaths(label, field, paths)...)
		}

		refs := make(map[string]bool, len(p.References))
		for _, r := range p.References {
			if r.Path == "" || !filepath.IsAbs(r.Path) {
				problems = append(problems, fmt.Errorf("%s: reference path %q is not absolute", label, r.Path))
				continue
			}
			if refs[r.key()] {
				problems = append(problems, fmt.Errorf("%s: reference %s declared twice", label, r.Path))
			}
			refs[r.key()] = true
		}
		for k := range p.Properties {
			if k == "" {
				problems = append(problems, fmt.Errorf("%s: property with an empty name", label))
			}
		}
	}

	// References are checked once every name is known.
	for _, p := range m.Projects {
		seen := make(map[string]bool, len(p.ProjectReferences))
		for _, target := range p.ProjectReferences {
			switch {
			case target == p.Name:
				problems = append(problems, fmt.Errorf("project %q: references itself", p.Name))
			case !names[target]:
				problems = append(problems, fmt.Errorf("project %q: references unknown project %q", p.Name, target))
			case seen[target]:
				problems = append(problems, fmt.Errorf("project %q: references %q twice", p.Name, target))
			}
			seen[target] = true
		}
	}
	if cycle := m.referenceCycle(); cycle != nil {
		problems = append(problems, fmt.Errorf("project references form a cycle: %s", strings.Join(cycle, " -> ")))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidManifest, errors.Join(problems...))
	}
	return nil
}

func checkPaths(label, field string, paths []string) []error {
	var problems []error
	seen := make(map[string]bool, len(paths))
	for _, path := range paths {
		if path == "" || !filepath.IsAbs(path) {
			problems = append(problems, fmt.Errorf("%s: %s entry %q is not absolute", label, field, path))
			continue
		}
		key := strings.ToLower(filepath.Clean(path))
		if seen[key] {
			problems = append(problems, fmt.Errorf("%s: %s entry %s listed twice", label, field, path))
		}
		seen[key] = true
	}
	return problems
}

// referenceCycle returns a cycle among declared project references, or nil.
func (m *Manifest) referenceCycle() []string {
	edges := make(map[string][]string, len(m.Projects))
	for _, p := range m.Projects {
		edges[p.Name] = p.ProjectReferences
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(edges))
	var stack []string
	var cycle []string

	var visit func(name string) bool
	visit = func(name string) bool {
		switch state[name] {
		case visiting:
			i := slices.Index(stack, name)
			cycle = append(slices.Clone(stack[i:]), name)
			return true
		case done:
			return false
		}
		state[name] = visiting
		stack = append(stack, name)
		for _, next := range edges[name] {
			if _, declared := edges[next]; declared && next != name && visit(next) {
				return true
			}
		}
		stack = stack[:len(stack)-1]
		state[name] = done
		return false
	}

	for _, p := range m.Projects {
		if visit(p.Name) {
			return cycle
		}
	}
	return nil
}

// Project returns the project entry named name.
func (m *Manifest) Project(name string) (ProjectSpec, bool) {
	i := slices.IndexFunc(m.Projects, func(p ProjectSpec) bool { return p.Name == name })
	if i < 0 {
		return ProjectSpec{}, false
	}
	return m.Projects[i], true
}
