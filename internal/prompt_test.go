package internal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePromptDefaultTemplate(t *testing.T) {
	pm := NewPromptManager("", "")

	got, err := pm.CreatePrompt("What is this about?", "YouTube Content (1 video):\n\nblock", 1)
	require.NoError(t, err)
	assert.Equal(t, "What is this about?\n\nYouTube Content (1 video):\n\nblock", got)

	got, err = pm.CreatePrompt("just chatting", "", 0)
	require.NoError(t, err)
	assert.Equal(t, "just chatting", got)
}

func TestCreatePromptInlineTemplate(t *testing.T) {
	pm := NewPromptManager("", "Question: {{.Message}} ({{.Videos}} videos)")

	got, err := pm.CreatePrompt("why?", "ctx", 2)
	require.NoError(t, err)
	assert.Equal(t, "Question: why? (2 videos)", got)
}

func TestCreatePromptFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.txt")
	require.NoError(t, os.WriteFile(path, []byte("<<{{.Context}}>> {{.Message}}"), 0644))

	got, err := NewPromptManager("", path).CreatePrompt("m", "c", 1)
	require.NoError(t, err)
	assert.Equal(t, "<<c>> m", got)
}

func TestCreatePromptUsesConfigDirTemplate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prompt.txt"), []byte("from config: {{.Message}}"), 0644))

	got, err := NewPromptManager(dir, "").CreatePrompt("hi", "", 0)
	require.NoError(t, err)
	assert.Equal(t, "from config: hi", got)
}

func TestCreatePromptBrokenTemplate(t *testing.T) {
	_, err := NewPromptManager("", "{{.Message").CreatePrompt("m", "", 0)
	assert.Error(t, err)
}

func TestIsLikelyFilePath(t *testing.T) {
	assert.True(t, IsLikelyFilePath("~/prompts/custom.txt"))
	assert.True(t, IsLikelyFilePath("prompt.md"))
	assert.False(t, IsLikelyFilePath("Answer briefly: {{.Message}}"))
}
