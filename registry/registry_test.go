package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bddrunner/cucumber/event"
)

func TestParseKeyword(t *testing.T) {
	assert.Equal(t, Given, ParseKeyword("Given", Then))
	assert.Equal(t, When, ParseKeyword("When", Given))
	assert.Equal(t, Then, ParseKeyword("Then", Given))
	assert.Equal(t, Given, ParseKeyword("And", Given))
	assert.Equal(t, When, ParseKeyword("But", When))
	assert.Equal(t, Then, ParseKeyword("* ", Then))
}

func TestRegistry_RegisterRejectsNonFunction(t *testing.T) {
	r := New()
	err := r.Register(Given, "a step", "not a function", event.Location{}, nil)
	require.Error(t, err)
}

func TestRegistry_RegisterRejectsDuplicate(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(Given, "a step", func() {}, event.Location{}, nil))
	err := r.Register(Given, "a step", func() {}, event.Location{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestRegistry_RegisterRejectsBadExpression(t *testing.T) {
	r := New()
	err := r.Register(Given, "a {bad(optional)} step", func() {}, event.Location{}, nil)
	require.Error(t, err)
}

func TestRegistry_Find_NoMatch(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(Given, "a step", func() {}, event.Location{}, nil))

	m, err := r.Find(Given, "a different step")
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestRegistry_Find_SingleMatch(t *testing.T) {
	r := New()
	loc := event.Location{Path: "steps.go", Line: 10}
	require.NoError(t, r.Register(Given, "I have {int} cukes", func() {}, loc, nil))

	m, err := r.Find(Given, "I have 5 cukes")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, loc, m.Location)
	require.Len(t, m.Captures, 1)
	assert.Equal(t, "5", m.Captures[0].Text)
}

func TestRegistry_Find_Ambiguous(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(Given, "a step", func() {}, event.Location{Path: "a.go"}, nil))
	require.NoError(t, r.Register(Given, "a {word}", func() {}, event.Location{Path: "b.go"}, nil))

	m, err := r.Find(Given, "a step")
	require.Nil(t, m)
	require.Error(t, err)
	var ambig *AmbiguousError
	require.ErrorAs(t, err, &ambig)
	assert.Equal(t, "a step", ambig.StepText)
	assert.Len(t, ambig.Matches, 2)
}

func TestRegistry_Find_KeywordsAreIndependentBuckets(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(Given, "a step", func() {}, event.Location{}, nil))

	m, err := r.Find(When, "a step")
	require.NoError(t, err)
	assert.Nil(t, m)
}
