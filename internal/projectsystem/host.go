package projectsystem

import (
	"strings"

	"golang.org/x/mod/semver"

	"github.com/steveyegge/projsync/internal/workspace"
)

// HostProject is what a Host can see of a project when adjusting its options.
type HostProject struct {
	ID       workspace.ProjectID
	Language string

	// BuildProperties are the raw properties reported by the project system
	// through Project.SetBuildProperty.
	BuildProperties map[string]string
}

// Host lets the embedding environment adjust options before they reach the
// solution. Implementations must be pure: the same input always yields the
// same options.
type Host interface {
	CompilationOptions(project HostProject, options workspace.CompilationOptions) workspace.CompilationOptions
	ParseOptions(project HostProject, options workspace.ParseOptions) workspace.ParseOptions
}

// DefaultHost passes options through unchanged.
type DefaultHost struct{}

func (DefaultHost) CompilationOptions(_ HostProject, options workspace.CompilationOptions) workspace.CompilationOptions {
	return options
}

func (DefaultHost) ParseOptions(_ HostProject, options workspace.ParseOptions) workspace.ParseOptions {
	return options
}

// MaxLanguageVersionProperty is the build property that caps the language
// version of a project.
const MaxLanguageVersionProperty = "MaxSupportedLangVersion"

// MaxLanguageVersionHost caps ParseOptions.LanguageVersion at the version
// named by the project's MaxSupportedLangVersion build property.
//
// Versions are dotted numbers ("7.3", "12"). "latest", "preview", "default"
// and the empty string request the newest version and are always capped.
type MaxLanguageVersionHost struct {
	DefaultHost
}

func (MaxLanguageVersionHost) ParseOptions(project HostProject, options workspace.ParseOptions) workspace.ParseOptions {
	max, ok := languageVersion(project.BuildProperties[MaxLanguageVersionProperty])
	if !ok {
		return options
	}
	requested, ok := languageVersion(options.LanguageVersion)
	if ok && semver.Compare(requested, max) <= 0 {
		return options
	}
	options.LanguageVersion = project.BuildProperties[MaxLanguageVersionProperty]
	return options
}

// languageVersion converts a numeric language version to a comparable
// semantic version. Symbolic versions report false.
func languageVersion(v string) (string, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	sv := "v" + v
	if !semver.IsValid(sv) {
		return "", false
	}
	return sv, true
}
