package env

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoader(t *testing.T) {
	l := NewLoader()
	assert.NotNil(t, l.vars)
	assert.Equal(t, []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}, l.APIKeyVars("Gemini"))
	assert.Equal(t, []string{"OPENAI_API_KEY"}, l.APIKeyVars("openai"))
	assert.Equal(t, []string{"MISTRAL_API_KEY"}, l.APIKeyVars("mistral"))
}

func TestDefaultLoader_Load(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	content := `# Comment
FOO=bar
BAZ="quoted value"
EMPTY=
SINGLE_QUOTE='single'
export EXPORTED=yes
URL=http://x/?a=b
HALF="open
not a pair
`
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0644))

	l := NewLoader()
	require.NoError(t, l.Load(envFile))
	assert.True(t, l.loaded)
	assert.Equal(t, "bar", l.vars["FOO"])
	assert.Equal(t, "quoted value", l.vars["BAZ"])
	assert.Equal(t, "", l.vars["EMPTY"])
	assert.Equal(t, "single", l.vars["SINGLE_QUOTE"])
	assert.Equal(t, "yes", l.vars["EXPORTED"])
	assert.Equal(t, "http://x/?a=b", l.vars["URL"])
	assert.Equal(t, `"open`, l.vars["HALF"])
	assert.Len(t, l.All(), 7)
}

func TestDefaultLoader_Load_FileNotFound(t *testing.T) {
	l := NewLoader()
	assert.Error(t, l.Load("/nonexistent/.env"))
	assert.NoError(t, l.LoadOptional("/nonexistent/.env"))
	assert.False(t, l.loaded)
}

func TestDefaultLoader_Get(t *testing.T) {
	l := NewLoader()
	l.vars["MOBILEQA_TEST_KEY"] = "from_file"
	assert.Equal(t, "from_file", l.Get("MOBILEQA_TEST_KEY"))

	t.Setenv("MOBILEQA_TEST_KEY", "from_env")
	assert.Equal(t, "from_env", l.Get("MOBILEQA_TEST_KEY"), "process env wins")

	assert.Equal(t, "fallback", l.GetWithDefault("MOBILEQA_TEST_MISSING", "fallback"))
	_, err := l.GetRequired("MOBILEQA_TEST_MISSING")
	assert.ErrorContains(t, err, "MOBILEQA_TEST_MISSING")
}

func TestDefaultLoader_GetAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	l := NewLoader()
	l.vars["GOOGLE_API_KEY"] = "google-key"
	assert.Equal(t, "google-key", l.GetAPIKey("gemini"), "falls back to the second variable")

	l.vars["GEMINI_API_KEY"] = "gemini-key"
	assert.Equal(t, "gemini-key", l.GetAPIKey("gemini"))
	assert.Empty(t, l.GetAPIKey("openai"))

	custom := NewLoaderWithMappings(map[string]string{"Local": "LOCAL_LLM_TOKEN"})
	custom.vars["LOCAL_LLM_TOKEN"] = "tok"
	assert.Equal(t, "tok", custom.GetAPIKey("local"))
}

func TestDefaultLoader_Set(t *testing.T) {
	t.Setenv("MOBILEQA_TEST_SET", "")
	l := NewLoader()
	require.NoError(t, l.Set("MOBILEQA_TEST_SET", "v"))
	assert.Equal(t, "v", os.Getenv("MOBILEQA_TEST_SET"))
	assert.Equal(t, "v", l.All()["MOBILEQA_TEST_SET"])
}
