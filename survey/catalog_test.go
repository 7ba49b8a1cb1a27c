package survey

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeCatalog(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoadCatalog(t *testing.T) {
	path := writeCatalog(t, `
- text: "Do you like Go?"
  quick_replies: ["Yes", "No"]
- text: "Anything else?"
`)

	c, err := LoadCatalog(path)
	require.NoError(t, err)

	require.Len(t, c, 2)
	require.Equal(t, "Do you like Go?", c[0].Text)
	require.Equal(t, []string{"Yes", "No"}, c[0].QuickReplies)
	require.Empty(t, c[1].QuickReplies)
	require.Equal(t, 1, c.FinalIndex())
}

func TestLoadCatalog_TooFewPrompts(t *testing.T) {
	path := writeCatalog(t, `
- text: "Only one question"
`)

	_, err := LoadCatalog(path)
	require.ErrorContains(t, err, "at least two prompts")
}

func TestLoadCatalog_EmptyPromptText(t *testing.T) {
	path := writeCatalog(t, `
- text: "First"
- text: ""
`)

	_, err := LoadCatalog(path)
	require.ErrorContains(t, err, "prompt 1 has no text")
}

func TestLoadCatalog_MissingFile(t *testing.T) {
	_, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "reading catalog file")
}

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()

	require.GreaterOrEqual(t, len(c), 2)

	// The final prompt is free-form
	require.Empty(t, c[c.FinalIndex()].QuickReplies)
}
