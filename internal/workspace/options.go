package workspace

import "slices"

// OutputKind is the kind of artifact a project compiles to.
type OutputKind string

const (
	OutputKindLibrary OutputKind = "library"
	OutputKindConsole OutputKind = "exe"
	OutputKindWindows OutputKind = "winexe"
	OutputKindModule  OutputKind = "module"
)

// CompilationOptions are the project-wide settings handed to the compiler.
// The engine never interprets them; it only stores and diffs them.
type CompilationOptions struct {
	OutputKind   OutputKind
	Platform     string
	Optimize     bool
	AllowUnsafe  bool
	Nullable     string
	WarningLevel int
	RuleSetPath  string
}

// ParseOptions are the settings handed to the parser.
type ParseOptions struct {
	LanguageVersion     string
	DocumentationMode   string
	PreprocessorSymbols []string
}

// Equal reports whether p and o are the same options.
func (p ParseOptions) Equal(o ParseOptions) bool {
	return p.LanguageVersion == o.LanguageVersion &&
		p.DocumentationMode == o.DocumentationMode &&
		slices.Equal(p.PreprocessorSymbols, o.PreprocessorSymbols)
}

func (p ParseOptions) clone() ParseOptions {
	p.PreprocessorSymbols = slices.Clone(p.PreprocessorSymbols)
	return p
}
