// Package language holds the registry of supported languages and the
// command templates used to compile and run them.
package language

import (
	"sort"
	"strings"

	"codegrade/pkg/errors"

	"github.com/google/shlex"
)

// HarnessMode selects how test case input reaches the submitted program.
type HarnessMode string

const (
	// HarnessIntrospect wraps the source so the runtime finds an entry
	// point function, calls it with the decoded input, and prints the
	// return value. Used for interpreted languages.
	HarnessIntrospect HarnessMode = "introspect"

	// HarnessStdin runs the program as-is; the program reads the test
	// case input from stdin and writes the answer to stdout.
	HarnessStdin HarnessMode = "stdin"
)

// Spec describes one supported language. CompileCmd and RunCmd are shell-like
// command templates expanded with {src}, {bin} and {dir} placeholders.
type Spec struct {
	ID         string      `yaml:"id"`
	Name       string      `yaml:"name"`
	SourceFile string      `yaml:"sourceFile"`
	BinaryFile string      `yaml:"binaryFile"`
	CompileCmd string      `yaml:"compileCmd"`
	RunCmd     string      `yaml:"runCmd"`
	Harness    HarnessMode `yaml:"harness"`

	DefaultTimeLimitMs   int64 `yaml:"defaultTimeLimitMs"`
	DefaultMemoryLimitMB int64 `yaml:"defaultMemoryLimitMB"`
}

// Compiled reports whether the language has a compile step.
func (s Spec) Compiled() bool {
	return strings.TrimSpace(s.CompileCmd) != ""
}

// Registry is an immutable set of language specs keyed by ID.
// Lookups after construction never observe mutation.
type Registry struct {
	specs map[string]Spec
}

// NewRegistry builds a registry from specs. IDs are lowercased; a duplicate
// or incomplete spec is rejected.
func NewRegistry(specs []Spec) (*Registry, error) {
	m := make(map[string]Spec, len(specs))
	for _, s := range specs {
		id := strings.ToLower(strings.TrimSpace(s.ID))
		if id == "" {
			return nil, errors.ValidationError("id", "language id is required")
		}
		if s.SourceFile == "" {
			return nil, errors.ValidationError("sourceFile", "source file name is required for language "+id)
		}
		if strings.TrimSpace(s.RunCmd) == "" {
			return nil, errors.ValidationError("runCmd", "run command is required for language "+id)
		}
		if _, ok := m[id]; ok {
			return nil, errors.Newf(errors.InvalidParams, "duplicate language id: %s", id)
		}
		if s.Harness == "" {
			s.Harness = HarnessStdin
		}
		if s.DefaultTimeLimitMs <= 0 {
			s.DefaultTimeLimitMs = 5000
		}
		if s.DefaultMemoryLimitMB <= 0 {
			s.DefaultMemoryLimitMB = 256
		}
		s.ID = id
		m[id] = s
	}
	return &Registry{specs: m}, nil
}

// DefaultRegistry returns the built-in language set.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(defaultSpecs())
	if err != nil {
		// The built-in set is validated by tests; this cannot happen at runtime.
		panic(err)
	}
	return r
}

// Get looks a language up by ID (case-insensitive).
func (r *Registry) Get(id string) (Spec, error) {
	s, ok := r.specs[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return Spec{}, errors.Newf(errors.LanguageNotSupported, "language not supported: %s", id)
	}
	return s, nil
}

// Has reports whether the language is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.specs[strings.ToLower(strings.TrimSpace(id))]
	return ok
}

// IDs returns the registered language IDs in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.specs))
	for id := range r.specs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ExpandCommand splits a command template with shlex and substitutes the
// {src}, {bin} and {dir} placeholders. Splitting happens before substitution
// so paths with spaces stay one argument.
func ExpandCommand(template, dir, srcPath, binPath string) ([]string, error) {
	parts, err := shlex.Split(template)
	if err != nil {
		return nil, errors.Wrapf(err, errors.InvalidParams, "invalid command template: %s", template)
	}
	if len(parts) == 0 {
		return nil, errors.Newf(errors.InvalidParams, "empty command template")
	}
	expanded := make([]string, len(parts))
	for i, p := range parts {
		p = strings.ReplaceAll(p, "{src}", srcPath)
		p = strings.ReplaceAll(p, "{bin}", binPath)
		p = strings.ReplaceAll(p, "{dir}", dir)
		expanded[i] = p
	}
	return expanded, nil
}

func defaultSpecs() []Spec {
	return []Spec{
		{
			ID:         "python",
			Name:       "Python 3",
			SourceFile: "main.py",
			RunCmd:     "python3 {src}",
			Harness:    HarnessIntrospect,
		},
		{
			ID:         "javascript",
			Name:       "Node.js",
			SourceFile: "main.js",
			RunCmd:     "node {src}",
			Harness:    HarnessIntrospect,
		},
		{
			ID:         "java",
			Name:       "Java",
			SourceFile: "Main.java",
			BinaryFile: "Main.class",
			CompileCmd: "javac -d {dir} {src}",
			RunCmd:     "java -cp {dir} Main",
			Harness:    HarnessStdin,

			DefaultTimeLimitMs:   10000,
			DefaultMemoryLimitMB: 512,
		},
		{
			ID:         "cpp",
			Name:       "C++17",
			SourceFile: "main.cpp",
			BinaryFile: "main",
			CompileCmd: "g++ -O2 -std=c++17 -o {bin} {src}",
			RunCmd:     "{bin}",
			Harness:    HarnessStdin,
		},
		{
			ID:         "c",
			Name:       "C11",
			SourceFile: "main.c",
			BinaryFile: "main",
			CompileCmd: "gcc -O2 -std=c11 -o {bin} {src}",
			RunCmd:     "{bin}",
			Harness:    HarnessStdin,
		},
		{
			ID:         "go",
			Name:       "Go",
			SourceFile: "main.go",
			BinaryFile: "main",
			CompileCmd: "go build -o {bin} {src}",
			RunCmd:     "{bin}",
			Harness:    HarnessStdin,

			DefaultTimeLimitMs: 10000,
		},
	}
}
