package evaluator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"selfevolve/pkg/datasets"
	"selfevolve/pkg/errors"
)

func TestExtractCode(t *testing.T) {
	assert.Equal(t, "df[::-1]", ExtractCode("Here you go:\n```python\ndf[::-1]\n```\nDone."))
	assert.Equal(t, "x = 1", ExtractCode("```\nx = 1\n```"))
	assert.Equal(t, "plain answer", ExtractCode("  plain answer \n"))
}

func TestCheckExact(t *testing.T) {
	e := New()

	v, err := e.Check("```python\na.sum(axis=0)\n```", datasets.CheckSpec{Type: "exact", Value: "a.sum(axis=0)"})
	require.NoError(t, err)
	assert.True(t, v.Passed)

	// Case and whitespace differences pass after normalization.
	v, err = e.Check("A.Sum(axis=0)", datasets.CheckSpec{Type: "exact", Value: "a.sum(axis=0)"})
	require.NoError(t, err)
	assert.True(t, v.Passed)

	v, err = e.Check("a.sum(axis=1)", datasets.CheckSpec{Type: "exact", Value: "a.sum(axis=0)"})
	require.NoError(t, err)
	assert.False(t, v.Passed)
	assert.NotEmpty(t, v.Feedback)
}

func TestCheckContains(t *testing.T) {
	e := New()

	v, err := e.Check("result = df.iloc[::-1].reset_index()", datasets.CheckSpec{Type: "contains", Value: "[::-1]"})
	require.NoError(t, err)
	assert.True(t, v.Passed)

	v, err = e.Check("result = df.reverse()", datasets.CheckSpec{Type: "contains", Value: "[::-1]"})
	require.NoError(t, err)
	assert.False(t, v.Passed)
}

func TestCheckRegex(t *testing.T) {
	e := New()

	v, err := e.Check("f = interp1d(x, y)", datasets.CheckSpec{Type: "regex", Value: `interp1d\(`})
	require.NoError(t, err)
	assert.True(t, v.Passed)

	_, err = e.Check("anything", datasets.CheckSpec{Type: "regex", Value: `([`})
	require.Error(t, err)
	assert.Equal(t, errors.ValidationFailed, errors.CodeOf(err))
}

func TestCheckNumeric(t *testing.T) {
	e := New()

	v, err := e.Check("The answer is 42", datasets.CheckSpec{Type: "numeric", Value: "42"})
	require.NoError(t, err)
	assert.True(t, v.Passed)

	// Last number in the answer wins.
	v, err = e.Check("step 1 gives 10, so the total is 3.5", datasets.CheckSpec{Type: "numeric", Value: "3.5"})
	require.NoError(t, err)
	assert.True(t, v.Passed)

	v, err = e.Check("no digits here", datasets.CheckSpec{Type: "numeric", Value: "1"})
	require.NoError(t, err)
	assert.False(t, v.Passed)
}

func TestCheckUnknownType(t *testing.T) {
	e := New()
	_, err := e.Check("answer", datasets.CheckSpec{Type: "fuzzy", Value: "v"})
	require.Error(t, err)
	assert.Equal(t, errors.ValidationFailed, errors.CodeOf(err))
}

func TestCheckUsesSpecFeedbackWhenProvided(t *testing.T) {
	e := New()
	v, err := e.Check("wrong", datasets.CheckSpec{
		Type:     "exact",
		Value:    "right",
		Feedback: "Traceback (most recent call last): KeyError 'x'",
	})
	require.NoError(t, err)
	assert.False(t, v.Passed)
	assert.Contains(t, v.Feedback, "Traceback")
}

func TestCheckIsDeterministic(t *testing.T) {
	e := New()
	spec := datasets.CheckSpec{Type: "contains", Value: "groupby"}
	v1, err := e.Check("df.groupby('a')", spec)
	require.NoError(t, err)
	v2, err := e.Check("df.groupby('a')", spec)
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
}
