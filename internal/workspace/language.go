package workspace

// Well-known language names.
const (
	LanguageCSharp      = "C#"
	LanguageVisualBasic = "Visual Basic"
	LanguageFSharp      = "F#"
)

// Language describes what the engine needs to know about a language.
type Language struct {
	Name string

	// CanCompile reports whether the IDE can build an in-memory compilation
	// for projects in this language. A project that can compile cannot
	// consume a project reference to one that cannot.
	CanCompile bool
}

// DefaultLanguages returns C#, Visual Basic and F#.
func DefaultLanguages() []Language {
	return []Language{
		{Name: LanguageCSharp, CanCompile: true},
		{Name: LanguageVisualBasic, CanCompile: true},
		{Name: LanguageFSharp, CanCompile: false},
	}
}

// Languages is an immutable lookup of registered languages.
type Languages struct {
	byName map[string]Language
}

// NewLanguages builds a lookup from langs. Later entries win on duplicate
// names.
func NewLanguages(langs []Language) *Languages {
	l := &Languages{byName: make(map[string]Language, len(langs))}
	for _, lang := range langs {
		l.byName[lang.Name] = lang
	}
	return l
}

// Contains reports whether name is registered.
func (l *Languages) Contains(name string) bool {
	_, ok := l.byName[name]
	return ok
}

// CanCompile reports whether name is registered and can produce a compilation.
func (l *Languages) CanCompile(name string) bool {
	return l.byName[name].CanCompile
}
