package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_DefaultTypesPresent(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"int", "float", "word", "string", ""} {
		_, ok := reg.Lookup(name)
		assert.True(t, ok, "expected default type %q", name)
	}
}

func TestRegistry_RegisterRejectsShadowingDefault(t *testing.T) {
	reg := NewRegistry()
	err := reg.Register(ParameterType{Name: "int", Pattern: `\d+`, Groups: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shadows")
}

func TestRegistry_RegisterRejectsInvalidPattern(t *testing.T) {
	reg := NewRegistry()
	err := reg.Register(ParameterType{Name: "broken", Pattern: `[`, Groups: 1})
	require.Error(t, err)
}

func TestRegistry_RegisterRejectsEmptyName(t *testing.T) {
	reg := NewRegistry()
	err := reg.Register(ParameterType{Name: "", Pattern: `\d+`, Groups: 1})
	require.Error(t, err)
}

func TestRegistry_RegisterCustomType(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(ParameterType{Name: "flag", Pattern: `on|off`, Groups: 1}))

	pt, ok := reg.Lookup("flag")
	require.True(t, ok)
	assert.Equal(t, "on|off", pt.Pattern)
}
