package expression

import (
	"fmt"
	"regexp"
)

// ParameterType is a named capture rule a {parameter} can bind to, per
// spec §4.1/§6.3. Pattern is the regex fragment substituted for the
// parameter in the compiled expression; Groups is the number of capture
// groups Pattern itself introduces (most types introduce exactly one — the
// whole pattern wrapped in parens — but `string` introduces two, one per
// quote style, per spec's explicit requirement).
type ParameterType struct {
	Name    string
	Pattern string
	Groups  int
}

// ParameterProvider resolves a parameter name to its ParameterType,
// combining the built-in defaults with any custom types registered by the
// caller (spec §6.3).
type ParameterProvider interface {
	Lookup(name string) (ParameterType, bool)
}

// defaultParameterTypes are the built-in types every expression compiler
// recognizes without registration, per spec §4.1's worked examples
// ({int}, {float}, {word}, {string}, {}).
var defaultParameterTypes = map[string]ParameterType{
	"int":    {Name: "int", Pattern: `-?\d+`, Groups: 1},
	"float":  {Name: "float", Pattern: `-?\d*\.?\d+(?:[eE][+-]?\d+)?`, Groups: 1},
	"word":   {Name: "word", Pattern: `[^\s]+`, Groups: 1},
	"string": {Name: "string", Pattern: `"([^"\\]*(?:\\.[^"\\]*)*)"|'([^'\\]*(?:\\.[^'\\]*)*)'`, Groups: 2},
	"":       {Name: "", Pattern: `.*`, Groups: 1},
}

// registry is the default ParameterProvider implementation: built-ins plus
// whatever custom types have been registered.
type registry struct {
	types map[string]ParameterType
}

// NewRegistry returns a ParameterProvider seeded with the default parameter
// types (int, float, word, string, the anonymous `{}` type).
func NewRegistry() *registry {
	types := make(map[string]ParameterType, len(defaultParameterTypes))
	for k, v := range defaultParameterTypes {
		types[k] = v
	}
	return &registry{types: types}
}

// Register adds a custom parameter type. Its name must not collide with a
// default type's name (spec §6.3); shadowing a default is rejected rather
// than silently overriding it, since a step registered before the custom
// type would otherwise change meaning under it.
func (r *registry) Register(pt ParameterType) error {
	if _, isDefault := defaultParameterTypes[pt.Name]; isDefault {
		return fmt.Errorf("parameter type %q shadows a default parameter type", pt.Name)
	}
	if pt.Name == "" {
		return fmt.Errorf("custom parameter type must have a non-empty name")
	}
	if pt.Pattern == "" {
		return fmt.Errorf("parameter type %q has an empty pattern", pt.Name)
	}
	if pt.Groups <= 0 {
		pt.Groups = 1
	}
	if _, err := regexp.Compile(pt.Pattern); err != nil {
		return fmt.Errorf("parameter type %q has an invalid pattern: %w", pt.Name, err)
	}
	r.types[pt.Name] = pt
	return nil
}

func (r *registry) Lookup(name string) (ParameterType, bool) {
	pt, ok := r.types[name]
	return pt, ok
}
