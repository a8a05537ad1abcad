package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_ValidPrompt(t *testing.T) {
	ClearCache()

	prompt, err := Get("vision.json", "classify-problem")
	require.NoError(t, err)
	assert.NotEmpty(t, prompt)
	assert.Contains(t, prompt, "LEETCODE")
	assert.Contains(t, prompt, "VISUAL_REASONING")
}

func TestGet_InvalidFile(t *testing.T) {
	ClearCache()

	_, err := Get("nonexistent.json", "some-key")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read prompt file")
}

func TestGet_InvalidKey(t *testing.T) {
	ClearCache()

	_, err := Get("vision.json", "nonexistent-key")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestMustGet_Panics(t *testing.T) {
	ClearCache()

	assert.Panics(t, func() {
		MustGet("nonexistent.json", "some-key")
	})
}

func TestSolvingPrompts_CoverEveryCategory(t *testing.T) {
	ClearCache()

	for _, key := range []string{"polish-text", "solve-general", "solve-leetcode", "solve-acm", "solve-visual", "suggest-filename"} {
		prompt, err := Get("solving.json", key)
		require.NoErrorf(t, err, "missing prompt %s", key)
		assert.NotEmpty(t, prompt)
	}
}

func TestFormat(t *testing.T) {
	template := "Problem:\n{{.ProblemText}}\nEnd."
	result := Format(template, map[string]string{"ProblemText": "what is 2+2"})
	assert.Equal(t, "Problem:\nwhat is 2+2\nEnd.", result)
}

func TestList(t *testing.T) {
	ClearCache()

	keys, err := List("vision.json")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"classify-problem", "transcribe-image"}, keys)
}
