package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_WorkedExample(t *testing.T) {
	// spec §8.5's worked example.
	expr, err := Compile("I have {int} cuke(s) in my {word}", nil)
	require.NoError(t, err)

	require.True(t, expr.Regexp.MatchString("I have 42 cukes in my belly"))
	require.True(t, expr.Regexp.MatchString("I have 1 cuke in my belly"))
	assert.False(t, expr.Regexp.MatchString("I have 42 cukes in my belly basket"))

	captures, ok := expr.Match("I have 42 cukes in my belly")
	require.True(t, ok)
	require.Len(t, captures, 2)
	assert.Equal(t, "int", captures[0].Name)
	assert.Equal(t, "42", captures[0].Text)
	assert.Equal(t, "word", captures[1].Name)
	assert.Equal(t, "belly", captures[1].Text)
}

func TestCompile_Anchored(t *testing.T) {
	expr, err := Compile("a step", nil)
	require.NoError(t, err)
	assert.True(t, expr.Regexp.MatchString("a step"))
	assert.False(t, expr.Regexp.MatchString("a step further"))
	assert.False(t, expr.Regexp.MatchString("not a step"))
}

func TestCompile_StringParameterQuoteStyles(t *testing.T) {
	expr, err := Compile(`I say {string}`, nil)
	require.NoError(t, err)

	for _, text := range []string{`I say "hello"`, `I say 'hello'`} {
		captures, ok := expr.Match(text)
		require.True(t, ok, "expected match for %q", text)
		require.Len(t, captures, 1)
		assert.Equal(t, "hello", captures[0].Text)
	}
}

func TestCompile_AnonymousParameter(t *testing.T) {
	expr, err := Compile("I have {}", nil)
	require.NoError(t, err)
	captures, ok := expr.Match("I have anything at all")
	require.True(t, ok)
	require.Len(t, captures, 1)
	assert.Equal(t, "anything at all", captures[0].Text)
}

func TestCompile_Alternation(t *testing.T) {
	expr, err := Compile("I have a cat/dog", nil)
	require.NoError(t, err)
	assert.True(t, expr.Regexp.MatchString("I have a cat"))
	assert.True(t, expr.Regexp.MatchString("I have a dog"))
	assert.False(t, expr.Regexp.MatchString("I have a bird"))
}

func TestCompile_UndefinedParameterType(t *testing.T) {
	_, err := Compile("I have {mystery}", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mystery")
}

func TestCompile_CustomParameterType(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(ParameterType{Name: "color", Pattern: `red|green|blue`, Groups: 1}))

	expr, err := Compile("the {color} light", reg)
	require.NoError(t, err)
	assert.True(t, expr.Regexp.MatchString("the red light"))
	assert.False(t, expr.Regexp.MatchString("the purple light"))
}

func TestCompile_LiteralRegexCharactersAreEscaped(t *testing.T) {
	expr, err := Compile("cost is $5.00?", nil)
	require.NoError(t, err)
	assert.True(t, expr.Regexp.MatchString("cost is $5.00?"))
	assert.False(t, expr.Regexp.MatchString("cost is X5X00X"))
}
