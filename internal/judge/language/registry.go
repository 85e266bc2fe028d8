// Package language maps language identifiers to judge engine ids and source templates.
package language

import (
	"sort"
	"strings"

	appErr "codejudge/pkg/errors"
)

// TemplateFunc wraps user code and a test snippet into a full program.
type TemplateFunc func(userCode, testCode string) string

// Descriptor describes one supported language.
type Descriptor struct {
	ID       string
	EngineID int
	Name     string
	Template TemplateFunc
}

// Registry is an immutable set of language descriptors keyed by lower-case id.
type Registry struct {
	byID map[string]Descriptor
}

// NewRegistry builds a registry from descriptors. Later duplicates replace earlier ones.
func NewRegistry(descriptors ...Descriptor) *Registry {
	byID := make(map[string]Descriptor, len(descriptors))
	for _, d := range descriptors {
		d.ID = normalizeID(d.ID)
		byID[d.ID] = d
	}
	return &Registry{byID: byID}
}

// Default returns the registry of languages understood by the Judge0 engine.
func Default() *Registry {
	return NewRegistry(
		Descriptor{ID: "python", EngineID: 71, Name: "Python (3.8.1)", Template: pythonTemplate},
		Descriptor{ID: "javascript", EngineID: 63, Name: "JavaScript (Node.js 12.14.0)", Template: scriptTemplate},
		Descriptor{ID: "java", EngineID: 62, Name: "Java (OpenJDK 13.0.1)", Template: javaTemplate},
		Descriptor{ID: "cpp", EngineID: 54, Name: "C++ (GCC 9.2.0)", Template: cppTemplate},
		Descriptor{ID: "c", EngineID: 50, Name: "C (GCC 9.2.0)", Template: cTemplate},
		Descriptor{ID: "csharp", EngineID: 51, Name: "C# (Mono 6.6.0.161)", Template: csharpTemplate},
		Descriptor{ID: "go", EngineID: 60, Name: "Go (1.13.5)", Template: goTemplate},
		Descriptor{ID: "rust", EngineID: 73, Name: "Rust (1.40.0)", Template: rustTemplate},
		Descriptor{ID: "typescript", EngineID: 74, Name: "TypeScript (3.7.4)", Template: scriptTemplate},
	)
}

// Resolve looks up a language case-insensitively.
func (r *Registry) Resolve(languageID string) (Descriptor, error) {
	id := normalizeID(languageID)
	if d, ok := r.byID[id]; ok {
		return d, nil
	}
	return Descriptor{}, appErr.UnsupportedLanguage(languageID)
}

// List returns all descriptors ordered by id.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, 0, len(r.byID))
	for _, d := range r.byID {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Render expands the descriptor's template.
func Render(d Descriptor, userCode, testCode string) string {
	if d.Template == nil {
		return userCode + "\n" + testCode
	}
	return d.Template(userCode, testCode)
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
